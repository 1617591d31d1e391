package version_service

import (
	"context"

	"github.com/shardstore/shardstore/internal/metadata"
)

// VersionService captures and restores immutable (size, checksum)
// snapshots of a file. Version numbers are gap-free per file from 1.
type VersionService interface {
	Snapshot(ctx context.Context, fileID, notes, createdBy string) (*metadata.FileVersion, error)

	// Restore overwrites the file's current size and checksum from the
	// version. Chunk records are untouched; reading a restored file whose
	// chunks no longer match fails the integrity check downstream.
	Restore(ctx context.Context, versionID string) (*metadata.File, error)

	ListVersions(ctx context.Context, fileID string) ([]metadata.FileVersion, error)
	GetVersion(ctx context.Context, versionID string) (*metadata.FileVersion, error)
}
