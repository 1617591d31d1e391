package verifier

import "context"

// Verifier checks stored replica bytes against their recorded checksums
// and keeps the per-chunk verification bookkeeping current.
type Verifier interface {
	// VerifyChunk re-reads one replica and compares its digest to the
	// recorded checksum. It returns ErrCorruptChunk on mismatch or when
	// the object is missing; the record is updated either way.
	VerifyChunk(ctx context.Context, chunkID string) error

	// VerifyFile verifies every live replica of the file.
	VerifyFile(ctx context.Context, fileID string) error

	// Run sweeps all live replicas on an interval until ctx is done.
	Run(ctx context.Context) error
}
