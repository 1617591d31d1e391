package verifier

import "errors"

var (
	ErrCorruptChunk = errors.New("stored chunk does not match recorded checksum")
	ErrChunkDeleted = errors.New("chunk is deleted")
)
