package metadata

import "time"

// Store is the single authoritative metadata store. Implementations must
// make AdjustNodeAvailable atomic and WithChunkLock a real critical
// section; the replication path depends on both.
type Store interface {
	// Nodes. DeleteNode is rejected while chunks reference the node.
	CreateNode(node StorageNode) error
	GetNode(nodeID string) (*StorageNode, error)
	GetNodeByName(name string) (*StorageNode, error)
	ListNodes(includeInactive bool) ([]StorageNode, error)
	UpdateNode(node StorageNode) error
	AdjustNodeAvailable(nodeID string, delta int64) error
	SetNodeAvailable(nodeID string, available int64) error
	TouchNodeHeartbeat(nodeID string, at time.Time) error
	DeleteNode(nodeID string) error

	// Files. DeleteFile cascades to chunks and versions.
	CreateFile(file File) error
	GetFile(fileID string) (*File, error)
	FindFileByContent(name, checksum, ownerID string) (*File, error)
	ListFilesByOwner(ownerID string) ([]File, error)
	UpdateFile(file File) error
	DeleteFile(fileID string) error

	// Chunks.
	CreateChunk(chunk Chunk) error
	GetChunk(chunkID string) (*Chunk, error)
	ListChunksByFile(fileID string) ([]Chunk, error)
	ListChunksByNode(nodeID string) ([]Chunk, error)
	UpdateChunk(chunk Chunk) error
	DeleteChunk(chunkID string) error

	// WithChunkLock serializes fn against other holders of the same
	// (file, ordinal) key. Primary election runs under this lock.
	WithChunkLock(fileID string, ordinal int, fn func() error) error

	// WithFileLock serializes fn per file. Version numbering and restore
	// run under this lock.
	WithFileLock(fileID string, fn func() error) error

	// Versions. CreateVersion rejects duplicate (file, version) pairs.
	CreateVersion(version FileVersion) error
	GetVersion(versionID string) (*FileVersion, error)
	ListVersionsByFile(fileID string) ([]FileVersion, error)
	NextVersionNumber(fileID string) (int, error)
}
