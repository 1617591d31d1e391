package metadata

import "errors"

var (
	// Node errors
	ErrNodeNotFound  = errors.New("storage node not found")
	ErrNodeExists    = errors.New("storage node already exists")
	ErrNodeHasChunks = errors.New("storage node still owns chunks")

	// File errors
	ErrFileNotFound = errors.New("file not found")
	ErrFileExists   = errors.New("file already exists")

	// Chunk errors
	ErrChunkNotFound       = errors.New("chunk not found")
	ErrChunkExists         = errors.New("chunk already exists")
	ErrReplicaNodeConflict = errors.New("replica already exists on node for this file and ordinal")

	// Version errors
	ErrVersionNotFound = errors.New("file version not found")
	ErrVersionExists   = errors.New("file version already exists")

	ErrInvalidRecord = errors.New("invalid record")
)
