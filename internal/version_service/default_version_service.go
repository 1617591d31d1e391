package version_service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shardstore/shardstore/internal/log_service"
	"github.com/shardstore/shardstore/internal/metadata"
)

type DefaultVersionService struct {
	store metadata.Store
	ls    log_service.LogService
}

func NewDefaultVersionService(store metadata.Store, ls log_service.LogService) *DefaultVersionService {
	return &DefaultVersionService{store: store, ls: ls}
}

// Snapshot numbers and creates the version inside the file lock so two
// concurrent snapshots cannot claim the same number.
func (vs *DefaultVersionService) Snapshot(ctx context.Context, fileID, notes, createdBy string) (*metadata.FileVersion, error) {
	file, err := vs.store.GetFile(fileID)
	if err != nil {
		return nil, err
	}
	if file.IsDeleted {
		return nil, ErrFileDeleted
	}

	var version metadata.FileVersion
	err = vs.store.WithFileLock(fileID, func() error {
		number, err := vs.store.NextVersionNumber(fileID)
		if err != nil {
			return err
		}

		version = metadata.FileVersion{
			ID:            uuid.New().String(),
			FileID:        fileID,
			VersionNumber: number,
			Size:          file.Size,
			Checksum:      file.Checksum,
			CreatedAt:     time.Now(),
			CreatedBy:     createdBy,
			Notes:         notes,
		}
		return vs.store.CreateVersion(version)
	})
	if err != nil {
		return nil, err
	}

	vs.ls.Info(log_service.LogEvent{
		Message:  "File version created",
		Metadata: map[string]any{"fileID": fileID, "version": version.VersionNumber, "createdBy": createdBy},
	})
	return &version, nil
}

func (vs *DefaultVersionService) Restore(ctx context.Context, versionID string) (*metadata.File, error) {
	version, err := vs.store.GetVersion(versionID)
	if err != nil {
		return nil, err
	}

	var restored *metadata.File
	err = vs.store.WithFileLock(version.FileID, func() error {
		file, err := vs.store.GetFile(version.FileID)
		if err != nil {
			return err
		}

		file.Size = version.Size
		file.Checksum = version.Checksum
		file.UpdatedAt = time.Now()
		if err := vs.store.UpdateFile(*file); err != nil {
			return err
		}
		restored = file
		return nil
	})
	if err != nil {
		return nil, err
	}

	vs.ls.Info(log_service.LogEvent{
		Message:  "File restored to version",
		Metadata: map[string]any{"fileID": version.FileID, "version": version.VersionNumber},
	})
	return restored, nil
}

func (vs *DefaultVersionService) ListVersions(ctx context.Context, fileID string) ([]metadata.FileVersion, error) {
	if _, err := vs.store.GetFile(fileID); err != nil {
		return nil, err
	}
	return vs.store.ListVersionsByFile(fileID)
}

func (vs *DefaultVersionService) GetVersion(ctx context.Context, versionID string) (*metadata.FileVersion, error) {
	return vs.store.GetVersion(versionID)
}

var _ VersionService = (*DefaultVersionService)(nil)
