package inmemory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shardstore/shardstore/internal/log_service"
	"github.com/shardstore/shardstore/internal/metadata"
)

// InMemoryStore is the reference Store implementation. A relational store
// would back this in production; the contract is the same either way.
type InMemoryStore struct {
	mu       sync.RWMutex
	nodes    map[string]*metadata.StorageNode
	files    map[string]*metadata.File
	chunks   map[string]*metadata.Chunk
	versions map[string]*metadata.FileVersion

	locksMu    sync.Mutex
	chunkLocks map[string]*sync.Mutex
	fileLocks  map[string]*sync.Mutex

	ls log_service.LogService
}

func NewInMemoryStore(ls log_service.LogService) *InMemoryStore {
	return &InMemoryStore{
		nodes:      make(map[string]*metadata.StorageNode),
		files:      make(map[string]*metadata.File),
		chunks:     make(map[string]*metadata.Chunk),
		versions:   make(map[string]*metadata.FileVersion),
		chunkLocks: make(map[string]*sync.Mutex),
		fileLocks:  make(map[string]*sync.Mutex),
		ls:         ls,
	}
}

func (s *InMemoryStore) CreateNode(node metadata.StorageNode) error {
	if node.ID == "" || node.Name == "" || node.Capacity < 0 || node.Available < 0 || node.Available > node.Capacity {
		return metadata.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[node.ID]; exists {
		return metadata.ErrNodeExists
	}
	for _, existing := range s.nodes {
		if existing.Name == node.Name {
			return metadata.ErrNodeExists
		}
	}

	copied := node
	s.nodes[node.ID] = &copied

	s.ls.Info(log_service.LogEvent{
		Message:  "Storage node created",
		Metadata: map[string]any{"nodeID": node.ID, "name": node.Name, "capacity": node.Capacity},
	})

	return nil
}

func (s *InMemoryStore) GetNode(nodeID string) (*metadata.StorageNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, exists := s.nodes[nodeID]
	if !exists {
		return nil, metadata.ErrNodeNotFound
	}
	copied := *node
	return &copied, nil
}

func (s *InMemoryStore) GetNodeByName(name string) (*metadata.StorageNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, node := range s.nodes {
		if node.Name == name {
			copied := *node
			return &copied, nil
		}
	}
	return nil, metadata.ErrNodeNotFound
}

func (s *InMemoryStore) ListNodes(includeInactive bool) ([]metadata.StorageNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nodes []metadata.StorageNode
	for _, node := range s.nodes {
		if !includeInactive && !node.IsActive {
			continue
		}
		nodes = append(nodes, *node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

func (s *InMemoryStore) UpdateNode(node metadata.StorageNode) error {
	if node.Available < 0 || node.Available > node.Capacity {
		return metadata.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[node.ID]; !exists {
		return metadata.ErrNodeNotFound
	}
	copied := node
	s.nodes[node.ID] = &copied
	return nil
}

// AdjustNodeAvailable applies delta to the node's available counter under
// the store lock, clamped to [0, capacity]. The active flag is an
// operator decision and is never touched by capacity accounting; a full
// node drops out of eligibility through the available check instead.
func (s *InMemoryStore) AdjustNodeAvailable(nodeID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, exists := s.nodes[nodeID]
	if !exists {
		return metadata.ErrNodeNotFound
	}

	node.Available += delta
	if node.Available < 0 {
		node.Available = 0
	}
	if node.Available > node.Capacity {
		node.Available = node.Capacity
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "Node available capacity adjusted",
		Metadata: map[string]any{"nodeID": nodeID, "delta": delta, "available": node.Available},
	})

	return nil
}

func (s *InMemoryStore) SetNodeAvailable(nodeID string, available int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, exists := s.nodes[nodeID]
	if !exists {
		return metadata.ErrNodeNotFound
	}

	if available < 0 {
		available = 0
	}
	if available > node.Capacity {
		available = node.Capacity
	}
	node.Available = available
	return nil
}

func (s *InMemoryStore) TouchNodeHeartbeat(nodeID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, exists := s.nodes[nodeID]
	if !exists {
		return metadata.ErrNodeNotFound
	}
	node.LastHeartbeat = at
	return nil
}

func (s *InMemoryStore) DeleteNode(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[nodeID]; !exists {
		return metadata.ErrNodeNotFound
	}
	for _, chunk := range s.chunks {
		if chunk.NodeID == nodeID {
			return metadata.ErrNodeHasChunks
		}
	}
	delete(s.nodes, nodeID)

	s.ls.Info(log_service.LogEvent{
		Message:  "Storage node deleted",
		Metadata: map[string]any{"nodeID": nodeID},
	})

	return nil
}

func (s *InMemoryStore) CreateFile(file metadata.File) error {
	if file.ID == "" || file.Name == "" || file.Size < 0 {
		return metadata.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.files[file.ID]; exists {
		return metadata.ErrFileExists
	}
	for _, existing := range s.files {
		if existing.Name == file.Name && existing.Checksum == file.Checksum && existing.OwnerID == file.OwnerID {
			return metadata.ErrFileExists
		}
	}

	copied := file
	s.files[file.ID] = &copied

	s.ls.Info(log_service.LogEvent{
		Message:  "File record created",
		Metadata: map[string]any{"fileID": file.ID, "name": file.Name, "size": file.Size},
	})

	return nil
}

func (s *InMemoryStore) GetFile(fileID string) (*metadata.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, exists := s.files[fileID]
	if !exists {
		return nil, metadata.ErrFileNotFound
	}
	copied := *file
	return &copied, nil
}

func (s *InMemoryStore) FindFileByContent(name, checksum, ownerID string) (*metadata.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, file := range s.files {
		if file.Name == name && file.Checksum == checksum && file.OwnerID == ownerID {
			copied := *file
			return &copied, nil
		}
	}
	return nil, metadata.ErrFileNotFound
}

func (s *InMemoryStore) ListFilesByOwner(ownerID string) ([]metadata.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var files []metadata.File
	for _, file := range s.files {
		if file.OwnerID == ownerID {
			files = append(files, *file)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].CreatedAt.After(files[j].CreatedAt) })
	return files, nil
}

func (s *InMemoryStore) UpdateFile(file metadata.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.files[file.ID]; !exists {
		return metadata.ErrFileNotFound
	}
	copied := file
	s.files[file.ID] = &copied
	return nil
}

// DeleteFile removes the record and cascades to its chunks and versions.
func (s *InMemoryStore) DeleteFile(fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.files[fileID]; !exists {
		return metadata.ErrFileNotFound
	}

	for id, chunk := range s.chunks {
		if chunk.FileID == fileID {
			delete(s.chunks, id)
		}
	}
	for id, version := range s.versions {
		if version.FileID == fileID {
			delete(s.versions, id)
		}
	}
	delete(s.files, fileID)

	s.ls.Info(log_service.LogEvent{
		Message:  "File record deleted with cascade",
		Metadata: map[string]any{"fileID": fileID},
	})

	return nil
}

func (s *InMemoryStore) CreateChunk(chunk metadata.Chunk) error {
	if chunk.ID == "" || chunk.FileID == "" || chunk.NodeID == "" || chunk.Ordinal < 0 || chunk.Size < 0 {
		return metadata.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.chunks[chunk.ID]; exists {
		return metadata.ErrChunkExists
	}
	for _, existing := range s.chunks {
		if existing.FileID == chunk.FileID && existing.Ordinal == chunk.Ordinal && existing.NodeID == chunk.NodeID {
			return metadata.ErrReplicaNodeConflict
		}
	}

	copied := chunk
	s.chunks[chunk.ID] = &copied
	return nil
}

func (s *InMemoryStore) GetChunk(chunkID string) (*metadata.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunk, exists := s.chunks[chunkID]
	if !exists {
		return nil, metadata.ErrChunkNotFound
	}
	copied := *chunk
	return &copied, nil
}

func (s *InMemoryStore) ListChunksByFile(fileID string) ([]metadata.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chunks []metadata.Chunk
	for _, chunk := range s.chunks {
		if chunk.FileID == fileID {
			chunks = append(chunks, *chunk)
		}
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].Ordinal != chunks[j].Ordinal {
			return chunks[i].Ordinal < chunks[j].Ordinal
		}
		return chunks[i].NodeID < chunks[j].NodeID
	})
	return chunks, nil
}

func (s *InMemoryStore) ListChunksByNode(nodeID string) ([]metadata.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chunks []metadata.Chunk
	for _, chunk := range s.chunks {
		if chunk.NodeID == nodeID {
			chunks = append(chunks, *chunk)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })
	return chunks, nil
}

func (s *InMemoryStore) UpdateChunk(chunk metadata.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.chunks[chunk.ID]; !exists {
		return metadata.ErrChunkNotFound
	}
	copied := chunk
	s.chunks[chunk.ID] = &copied
	return nil
}

func (s *InMemoryStore) DeleteChunk(chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.chunks[chunkID]; !exists {
		return metadata.ErrChunkNotFound
	}
	delete(s.chunks, chunkID)
	return nil
}

func (s *InMemoryStore) WithChunkLock(fileID string, ordinal int, fn func() error) error {
	lock := s.keyedLock(s.chunkLocks, fmt.Sprintf("%s/%d", fileID, ordinal))
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

func (s *InMemoryStore) WithFileLock(fileID string, fn func() error) error {
	lock := s.keyedLock(s.fileLocks, fileID)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

func (s *InMemoryStore) keyedLock(locks map[string]*sync.Mutex, key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, exists := locks[key]
	if !exists {
		lock = &sync.Mutex{}
		locks[key] = lock
	}
	return lock
}

func (s *InMemoryStore) CreateVersion(version metadata.FileVersion) error {
	if version.ID == "" || version.FileID == "" || version.VersionNumber < 1 {
		return metadata.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.versions[version.ID]; exists {
		return metadata.ErrVersionExists
	}
	for _, existing := range s.versions {
		if existing.FileID == version.FileID && existing.VersionNumber == version.VersionNumber {
			return metadata.ErrVersionExists
		}
	}

	copied := version
	s.versions[version.ID] = &copied
	return nil
}

func (s *InMemoryStore) GetVersion(versionID string) (*metadata.FileVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	version, exists := s.versions[versionID]
	if !exists {
		return nil, metadata.ErrVersionNotFound
	}
	copied := *version
	return &copied, nil
}

func (s *InMemoryStore) ListVersionsByFile(fileID string) ([]metadata.FileVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var versions []metadata.FileVersion
	for _, version := range s.versions {
		if version.FileID == fileID {
			versions = append(versions, *version)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].VersionNumber > versions[j].VersionNumber })
	return versions, nil
}

func (s *InMemoryStore) NextVersionNumber(fileID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	next := 1
	for _, version := range s.versions {
		if version.FileID == fileID && version.VersionNumber >= next {
			next = version.VersionNumber + 1
		}
	}
	return next, nil
}

var _ metadata.Store = (*InMemoryStore)(nil)
