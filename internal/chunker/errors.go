package chunker

import "errors"

var (
	ErrInvalidChunkSize = errors.New("chunk size must be a positive multiple of the alignment unit")
)
