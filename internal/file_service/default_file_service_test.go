package file_service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardstore/shardstore/internal/assembler"
	"github.com/shardstore/shardstore/internal/checksum"
	"github.com/shardstore/shardstore/internal/chunker"
	"github.com/shardstore/shardstore/internal/log_service/zaplog"
	"github.com/shardstore/shardstore/internal/metadata"
	metainmem "github.com/shardstore/shardstore/internal/metadata/inmemory"
	"github.com/shardstore/shardstore/internal/node_registry"
	objinmem "github.com/shardstore/shardstore/internal/object_store/inmemory"
	"github.com/shardstore/shardstore/internal/placement"
	"github.com/shardstore/shardstore/internal/replication"
)

type serviceEnv struct {
	store   *metainmem.InMemoryStore
	objects *objinmem.InMemoryObjectStore
	service *DefaultFileService
	nodes   []*metadata.StorageNode
}

func newServiceEnv(t *testing.T, nodeCount, replicationFactor int) *serviceEnv {
	t.Helper()
	ls := zaplog.NewNopLogService()
	store := metainmem.NewInMemoryStore(ls)
	objects := objinmem.NewInMemoryObjectStore()
	registry := node_registry.NewDefaultNodeRegistry(store, ls, time.Minute)
	planner := placement.NewGreedyPlanner(registry, ls)
	coordinator := replication.NewDefaultCoordinator(store, planner, objects, ls, 2*time.Second, 8*1024*1024)
	asm := assembler.NewDefaultAssembler(store, objects, ls, 2*time.Second)

	ch, err := chunker.New(4096)
	require.NoError(t, err)

	env := &serviceEnv{
		store:   store,
		objects: objects,
		service: NewDefaultFileService(store, ch, coordinator, asm, ls, replicationFactor, t.TempDir()),
	}
	for i := 0; i < nodeCount; i++ {
		node, err := registry.RegisterNode(node_registry.RegisterRequest{
			Name:     fmt.Sprintf("node-%d", i),
			Host:     fmt.Sprintf("10.0.0.%d", i+1),
			Port:     9000,
			Capacity: 1 << 20,
		})
		require.NoError(t, err)
		env.nodes = append(env.nodes, node)
	}
	return env
}

func patternedContent(n int) []byte {
	content := make([]byte, n)
	for i := range content {
		content[i] = byte(i % 251)
	}
	return content
}

func TestStoreFile_RoundTrip(t *testing.T) {
	env := newServiceEnv(t, 3, 3)
	content := patternedContent(10000) // 4096 + 4096 + 1808

	result, err := env.service.StoreFile(context.Background(), StoreRequest{
		Name:        "report.pdf",
		ContentType: "application/pdf",
		OwnerID:     "u1",
		Content:     bytes.NewReader(content),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Chunks)
	assert.Empty(t, result.ReducedDurabilityOrdinals)
	assert.Equal(t, int64(len(content)), result.File.Size)
	assert.Equal(t, checksum.SumBytes(content), result.File.Checksum)

	got, err := env.service.ReadFile(context.Background(), result.File.ID)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestStoreFile_EmptyContent(t *testing.T) {
	env := newServiceEnv(t, 1, 1)

	result, err := env.service.StoreFile(context.Background(), StoreRequest{
		Name:    "empty.txt",
		OwnerID: "u1",
		Content: bytes.NewReader(nil),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Chunks, "empty file still gets one chunk")
	assert.Equal(t, int64(0), result.File.Size)

	got, err := env.service.ReadFile(context.Background(), result.File.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStoreFile_DeduplicatesIdenticalUpload(t *testing.T) {
	env := newServiceEnv(t, 3, 2)
	content := patternedContent(5000)

	first, err := env.service.StoreFile(context.Background(), StoreRequest{
		Name:    "notes.txt",
		OwnerID: "u1",
		Content: bytes.NewReader(content),
	})
	require.NoError(t, err)

	_, err = env.service.StoreFile(context.Background(), StoreRequest{
		Name:    "notes.txt",
		OwnerID: "u1",
		Content: bytes.NewReader(content),
	})
	assert.ErrorIs(t, err, ErrFileExists)

	var dup *DuplicateFileError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.File.ID, dup.Existing.ID)

	// Same content under a different owner is a distinct file.
	_, err = env.service.StoreFile(context.Background(), StoreRequest{
		Name:    "notes.txt",
		OwnerID: "u2",
		Content: bytes.NewReader(content),
	})
	assert.NoError(t, err)
}

// missOnceStore makes the first dedup lookup come back empty, the way it
// does for the loser of two identical uploads racing past the lookup
// before either record lands.
type missOnceStore struct {
	metadata.Store
	mu     sync.Mutex
	missed bool
}

func (s *missOnceStore) FindFileByContent(name, digest, ownerID string) (*metadata.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.missed {
		s.missed = true
		return nil, metadata.ErrFileNotFound
	}
	return s.Store.FindFileByContent(name, digest, ownerID)
}

func TestStoreFile_ConcurrentIdenticalUploadReportsDuplicate(t *testing.T) {
	env := newServiceEnv(t, 3, 2)
	content := patternedContent(5000)

	first, err := env.service.StoreFile(context.Background(), StoreRequest{
		Name:    "notes.txt",
		OwnerID: "u1",
		Content: bytes.NewReader(content),
	})
	require.NoError(t, err)

	ls := zaplog.NewNopLogService()
	racing := &missOnceStore{Store: env.store}
	registry := node_registry.NewDefaultNodeRegistry(racing, ls, time.Minute)
	planner := placement.NewGreedyPlanner(registry, ls)
	coordinator := replication.NewDefaultCoordinator(racing, planner, env.objects, ls, 2*time.Second, 8*1024*1024)
	asm := assembler.NewDefaultAssembler(racing, env.objects, ls, 2*time.Second)
	ch, err := chunker.New(4096)
	require.NoError(t, err)
	loser := NewDefaultFileService(racing, ch, coordinator, asm, ls, 2, t.TempDir())

	_, err = loser.StoreFile(context.Background(), StoreRequest{
		Name:    "notes.txt",
		OwnerID: "u1",
		Content: bytes.NewReader(content),
	})
	assert.ErrorIs(t, err, ErrFileExists)

	var dup *DuplicateFileError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.File.ID, dup.Existing.ID)

	files, err := env.service.ListFiles(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, files, 1, "the losing upload must not create a second record")
}

func TestStoreFile_ReportsReducedDurabilityPerOrdinal(t *testing.T) {
	env := newServiceEnv(t, 2, 2)
	content := patternedContent(9000) // 3 chunks

	env.objects.FailPuts(env.nodes[1].Address(), true)

	result, err := env.service.StoreFile(context.Background(), StoreRequest{
		Name:    "degraded.bin",
		OwnerID: "u1",
		Content: bytes.NewReader(content),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, result.ReducedDurabilityOrdinals)

	got, err := env.service.ReadFile(context.Background(), result.File.ID)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestStoreFile_AbortsCleanlyWhenAllWritesFail(t *testing.T) {
	env := newServiceEnv(t, 2, 2)
	for _, node := range env.nodes {
		env.objects.FailPuts(node.Address(), true)
	}

	_, err := env.service.StoreFile(context.Background(), StoreRequest{
		Name:    "doomed.bin",
		OwnerID: "u1",
		Content: bytes.NewReader(patternedContent(5000)),
	})
	assert.ErrorIs(t, err, replication.ErrWriteFailed)

	files, err := env.service.ListFiles(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, files, "aborted upload leaves no file record")

	for _, node := range env.nodes {
		current, err := env.store.GetNode(node.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1<<20), current.Available)
	}
}

func TestStoreFile_InsufficientCapacityPassesThrough(t *testing.T) {
	env := newServiceEnv(t, 1, 3)

	_, err := env.service.StoreFile(context.Background(), StoreRequest{
		Name:    "big.bin",
		OwnerID: "u1",
		Content: bytes.NewReader(patternedContent(100)),
	})
	assert.ErrorIs(t, err, placement.ErrInsufficientCapacity)
}

func TestStoreFile_InvalidInput(t *testing.T) {
	env := newServiceEnv(t, 1, 1)

	tests := []struct {
		name string
		req  StoreRequest
	}{
		{name: "missing name", req: StoreRequest{OwnerID: "u1", Content: bytes.NewReader(nil)}},
		{name: "missing owner", req: StoreRequest{Name: "a.txt", Content: bytes.NewReader(nil)}},
		{name: "nil content", req: StoreRequest{Name: "a.txt", OwnerID: "u1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.StoreFile(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestDeleteFile_SoftDeletesAndFreesCapacity(t *testing.T) {
	env := newServiceEnv(t, 2, 2)
	content := patternedContent(5000)

	result, err := env.service.StoreFile(context.Background(), StoreRequest{
		Name:    "victim.bin",
		OwnerID: "u1",
		Content: bytes.NewReader(content),
	})
	require.NoError(t, err)

	require.NoError(t, env.service.DeleteFile(context.Background(), result.File.ID))

	_, err = env.service.ReadFile(context.Background(), result.File.ID)
	assert.ErrorIs(t, err, assembler.ErrFileDeleted)

	file, err := env.service.GetFile(context.Background(), result.File.ID)
	require.NoError(t, err)
	assert.True(t, file.IsDeleted)
	require.NotNil(t, file.DeletedAt)

	for _, node := range env.nodes {
		current, err := env.store.GetNode(node.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1<<20), current.Available)
	}

	assert.ErrorIs(t, env.service.DeleteFile(context.Background(), result.File.ID), ErrFileDeleted)
}

func TestUndelete_RestoresRecordButNotContent(t *testing.T) {
	env := newServiceEnv(t, 2, 2)

	result, err := env.service.StoreFile(context.Background(), StoreRequest{
		Name:    "lazarus.bin",
		OwnerID: "u1",
		Content: bytes.NewReader(patternedContent(5000)),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, env.service.Undelete(context.Background(), result.File.ID), ErrNotDeleted)

	require.NoError(t, env.service.DeleteFile(context.Background(), result.File.ID))
	require.NoError(t, env.service.Undelete(context.Background(), result.File.ID))

	file, err := env.service.GetFile(context.Background(), result.File.ID)
	require.NoError(t, err)
	assert.False(t, file.IsDeleted)
	assert.Nil(t, file.DeletedAt)

	// The record is back; the replica objects are not.
	_, err = env.service.ReadFile(context.Background(), result.File.ID)
	assert.ErrorIs(t, err, assembler.ErrIncompleteFile)
}

func TestReadFile_UnknownFile(t *testing.T) {
	env := newServiceEnv(t, 1, 1)
	_, err := env.service.ReadFile(context.Background(), "nope")
	assert.True(t, errors.Is(err, metadata.ErrFileNotFound))
}
