package file_service

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/shardstore/shardstore/internal/assembler"
	"github.com/shardstore/shardstore/internal/checksum"
	"github.com/shardstore/shardstore/internal/chunker"
	"github.com/shardstore/shardstore/internal/log_service"
	"github.com/shardstore/shardstore/internal/metadata"
	"github.com/shardstore/shardstore/internal/replication"
)

// DefaultFileService spools uploads to a temp file so the content is
// read exactly once: the digest comes from the spool pass, dedup runs
// before any chunk is written, then the spool feeds the chunker.
type DefaultFileService struct {
	store             metadata.Store
	chunker           *chunker.Chunker
	coordinator       replication.Coordinator
	assembler         assembler.Assembler
	ls                log_service.LogService
	replicationFactor int
	spoolDir          string
}

func NewDefaultFileService(store metadata.Store, ch *chunker.Chunker, coordinator replication.Coordinator, asm assembler.Assembler, ls log_service.LogService, replicationFactor int, spoolDir string) *DefaultFileService {
	return &DefaultFileService{
		store:             store,
		chunker:           ch,
		coordinator:       coordinator,
		assembler:         asm,
		ls:                ls,
		replicationFactor: replicationFactor,
		spoolDir:          spoolDir,
	}
}

func (fs *DefaultFileService) StoreFile(ctx context.Context, req StoreRequest) (*StoreResult, error) {
	if req.Name == "" || req.OwnerID == "" || req.Content == nil {
		return nil, ErrInvalidInput
	}

	spool, err := os.CreateTemp(fs.spoolDir, "upload-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	hasher := checksum.NewWriter()
	size, err := io.Copy(io.MultiWriter(spool, hasher), req.Content)
	if err != nil {
		return nil, err
	}
	digest := hasher.Sum()

	if existing, err := fs.store.FindFileByContent(req.Name, digest, req.OwnerID); err == nil {
		fs.ls.Info(log_service.LogEvent{
			Message:  "Upload matches existing file",
			Metadata: map[string]any{"fileID": existing.ID, "name": req.Name, "ownerID": req.OwnerID},
		})
		return nil, &DuplicateFileError{Existing: *existing}
	}

	now := time.Now()
	file := metadata.File{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Size:        size,
		Checksum:    digest,
		ContentType: req.ContentType,
		OwnerID:     req.OwnerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := fs.store.CreateFile(file); err != nil {
		// A concurrent identical upload can win the (name, checksum,
		// owner) slot between the dedup lookup and this insert; the
		// loser reports the winner's record, same as the lookup path.
		if errors.Is(err, metadata.ErrFileExists) {
			if existing, findErr := fs.store.FindFileByContent(req.Name, digest, req.OwnerID); findErr == nil {
				fs.ls.Info(log_service.LogEvent{
					Message:  "Upload matches existing file",
					Metadata: map[string]any{"fileID": existing.ID, "name": req.Name, "ownerID": req.OwnerID},
				})
				return nil, &DuplicateFileError{Existing: *existing}
			}
		}
		return nil, err
	}

	fs.ls.Info(log_service.LogEvent{
		Message:  "Storing file",
		Metadata: map[string]any{"fileID": file.ID, "name": file.Name, "size": size, "ownerID": req.OwnerID},
	})

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		fs.abortStore(ctx, file.ID)
		return nil, err
	}

	result := &StoreResult{File: file}
	stream := fs.chunker.Split(spool)
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fs.abortStore(ctx, file.ID)
			return nil, err
		}

		writeResult, err := fs.coordinator.Write(ctx, file.ID, chunk.Ordinal, chunk.Data, fs.replicationFactor)
		if err != nil {
			fs.ls.Error(log_service.LogEvent{
				Message:  "Chunk write failed, aborting upload",
				Metadata: map[string]any{"fileID": file.ID, "ordinal": chunk.Ordinal, "error": err.Error()},
			})
			fs.abortStore(ctx, file.ID)
			return nil, err
		}

		result.Chunks++
		if writeResult.ReducedDurability {
			result.ReducedDurabilityOrdinals = append(result.ReducedDurabilityOrdinals, chunk.Ordinal)
		}
	}

	if len(result.ReducedDurabilityOrdinals) > 0 {
		fs.ls.Warn(log_service.LogEvent{
			Message:  "File stored with reduced durability",
			Metadata: map[string]any{"fileID": file.ID, "ordinals": result.ReducedDurabilityOrdinals},
		})
	}

	fs.ls.Info(log_service.LogEvent{
		Message:  "File stored",
		Metadata: map[string]any{"fileID": file.ID, "chunks": result.Chunks, "checksum": digest},
	})

	return result, nil
}

// abortStore undoes a partial upload: replica objects and chunk records
// go through the coordinator, then the file record is removed outright.
// Soft delete is for user-visible files; a never-completed upload leaves
// nothing behind.
func (fs *DefaultFileService) abortStore(ctx context.Context, fileID string) {
	if err := fs.coordinator.Delete(ctx, fileID); err != nil {
		fs.ls.Error(log_service.LogEvent{
			Message:  "Failed to clean up chunks of aborted upload",
			Metadata: map[string]any{"fileID": fileID, "error": err.Error()},
		})
	}
	if err := fs.store.DeleteFile(fileID); err != nil {
		fs.ls.Error(log_service.LogEvent{
			Message:  "Failed to remove file record of aborted upload",
			Metadata: map[string]any{"fileID": fileID, "error": err.Error()},
		})
	}
}

func (fs *DefaultFileService) ReadFile(ctx context.Context, fileID string) ([]byte, error) {
	return fs.assembler.Read(ctx, fileID)
}

func (fs *DefaultFileService) OpenFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	return fs.assembler.Open(ctx, fileID)
}

func (fs *DefaultFileService) GetFile(ctx context.Context, fileID string) (*metadata.File, error) {
	return fs.store.GetFile(fileID)
}

func (fs *DefaultFileService) ListFiles(ctx context.Context, ownerID string) ([]metadata.File, error) {
	return fs.store.ListFilesByOwner(ownerID)
}

// DeleteFile removes the replica objects and soft-deletes the record.
// The record stays for Undelete; whether its content survives depends on
// nothing having reclaimed the space, which is not guaranteed.
func (fs *DefaultFileService) DeleteFile(ctx context.Context, fileID string) error {
	file, err := fs.store.GetFile(fileID)
	if err != nil {
		return err
	}
	if file.IsDeleted {
		return ErrFileDeleted
	}

	if err := fs.coordinator.Delete(ctx, fileID); err != nil {
		return err
	}

	now := time.Now()
	file.IsDeleted = true
	file.DeletedAt = &now
	file.UpdatedAt = now
	if err := fs.store.UpdateFile(*file); err != nil {
		return err
	}

	fs.ls.Info(log_service.LogEvent{
		Message:  "File deleted",
		Metadata: map[string]any{"fileID": fileID, "name": file.Name},
	})
	return nil
}

// Undelete clears the soft-delete flags. Replica objects deleted with
// the file are not resurrected; a subsequent read reports the file
// incomplete.
func (fs *DefaultFileService) Undelete(ctx context.Context, fileID string) error {
	file, err := fs.store.GetFile(fileID)
	if err != nil {
		return err
	}
	if !file.IsDeleted {
		return ErrNotDeleted
	}

	file.IsDeleted = false
	file.DeletedAt = nil
	file.UpdatedAt = time.Now()
	if err := fs.store.UpdateFile(*file); err != nil {
		return err
	}

	fs.ls.Warn(log_service.LogEvent{
		Message:  "File restored; chunk objects may no longer exist",
		Metadata: map[string]any{"fileID": fileID, "name": file.Name},
	})
	return nil
}

var _ FileService = (*DefaultFileService)(nil)
