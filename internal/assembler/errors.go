package assembler

import "errors"

var (
	ErrFileDeleted      = errors.New("file is deleted")
	ErrIncompleteFile   = errors.New("file has ordinals with no completed replica")
	ErrIntegrityFailure = errors.New("assembled content does not match file checksum")
	ErrChunkUnavailable = errors.New("no replica of the chunk could be fetched")
)
