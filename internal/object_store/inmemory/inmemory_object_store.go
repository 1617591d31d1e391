package inmemory

import (
	"context"
	"sync"

	"github.com/shardstore/shardstore/internal/object_store"
)

// InMemoryObjectStore keeps objects per node address. Tests use the fault
// and corruption knobs to simulate misbehaving nodes.
type InMemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string]map[string][]byte
	// addresses whose puts fail
	failPuts map[string]bool
	// addresses whose gets fail
	failGets map[string]bool
}

func NewInMemoryObjectStore() *InMemoryObjectStore {
	return &InMemoryObjectStore{
		objects:  make(map[string]map[string][]byte),
		failPuts: make(map[string]bool),
		failGets: make(map[string]bool),
	}
}

func (s *InMemoryObjectStore) PutObject(ctx context.Context, address, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return object_store.ErrNodeUnreachable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failPuts[address] {
		return object_store.ErrPutFailed
	}

	node, ok := s.objects[address]
	if !ok {
		node = make(map[string][]byte)
		s.objects[address] = node
	}
	node[key] = append([]byte(nil), data...)
	return nil
}

func (s *InMemoryObjectStore) GetObject(ctx context.Context, address, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, object_store.ErrNodeUnreachable
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failGets[address] {
		return nil, object_store.ErrNodeUnreachable
	}

	node, ok := s.objects[address]
	if !ok {
		return nil, object_store.ErrObjectNotFound
	}
	data, ok := node[key]
	if !ok {
		return nil, object_store.ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *InMemoryObjectStore) DeleteObject(ctx context.Context, address, key string) error {
	if err := ctx.Err(); err != nil {
		return object_store.ErrNodeUnreachable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.objects[address]
	if !ok {
		return object_store.ErrObjectNotFound
	}
	if _, ok := node[key]; !ok {
		return object_store.ErrObjectNotFound
	}
	delete(node, key)
	return nil
}

// FailPuts makes every put to address fail until re-enabled.
func (s *InMemoryObjectStore) FailPuts(address string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPuts[address] = fail
}

// FailGets makes every get from address fail until re-enabled.
func (s *InMemoryObjectStore) FailGets(address string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGets[address] = fail
}

// Corrupt overwrites stored bytes in place, simulating silent bit rot.
func (s *InMemoryObjectStore) Corrupt(address, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.objects[address]
	if !ok {
		return
	}
	node[key] = append([]byte(nil), data...)
}

// ObjectCount reports how many objects address holds.
func (s *InMemoryObjectStore) ObjectCount(address string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects[address])
}

var _ object_store.Client = (*InMemoryObjectStore)(nil)
