package assembler

import (
	"context"
	"io"
)

// Assembler reconstructs file content from chunk replicas.
type Assembler interface {
	// Read buffers the whole file and validates its checksum before
	// returning any bytes.
	Read(ctx context.Context, fileID string) ([]byte, error)

	// Open streams the file chunk by chunk. The whole-file checksum is
	// only checkable once every byte has passed through, so a mismatch
	// surfaces as ErrIntegrityFailure in place of io.EOF.
	Open(ctx context.Context, fileID string) (io.ReadCloser, error)
}
