package placement

import "errors"

var (
	ErrInvalidReplicationFactor = errors.New("replication factor must be at least 1")
	ErrInvalidChunkSize         = errors.New("chunk size must not be negative")
	ErrInsufficientCapacity     = errors.New("not enough eligible nodes for requested replication factor")
)
