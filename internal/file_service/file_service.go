package file_service

import (
	"context"
	"io"

	"github.com/shardstore/shardstore/internal/metadata"
)

// StoreRequest describes one upload.
type StoreRequest struct {
	Name        string
	ContentType string
	OwnerID     string
	Content     io.Reader
}

// StoreResult reports what a completed upload produced.
type StoreResult struct {
	File   metadata.File
	Chunks int

	// ReducedDurabilityOrdinals lists the ordinals that completed with
	// fewer replicas than requested. Empty means fully replicated.
	ReducedDurabilityOrdinals []int
}

// FileService is the upward-facing facade over chunking, placement,
// replication, and assembly.
type FileService interface {
	StoreFile(ctx context.Context, req StoreRequest) (*StoreResult, error)
	ReadFile(ctx context.Context, fileID string) ([]byte, error)
	OpenFile(ctx context.Context, fileID string) (io.ReadCloser, error)
	GetFile(ctx context.Context, fileID string) (*metadata.File, error)
	ListFiles(ctx context.Context, ownerID string) ([]metadata.File, error)
	DeleteFile(ctx context.Context, fileID string) error
	Undelete(ctx context.Context, fileID string) error
}
