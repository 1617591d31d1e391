package replication

import (
	"context"

	"github.com/shardstore/shardstore/internal/metadata"
)

// WriteResult reports the outcome of replicating one chunk.
type WriteResult struct {
	Replicas  []metadata.Chunk
	Requested int
	Completed int

	// ReducedDurability is set when the write succeeded with fewer
	// completed replicas than requested. It is a warning, not an error.
	ReducedDurability bool
}

// Coordinator orchestrates chunk replica writes, deletion, and repair.
type Coordinator interface {
	Write(ctx context.Context, fileID string, ordinal int, data []byte, replicationFactor int) (*WriteResult, error)
	Delete(ctx context.Context, fileID string) error
	Repair(ctx context.Context, fileID string, ordinal int) (*metadata.Chunk, error)
}
