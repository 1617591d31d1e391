package assembler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardstore/shardstore/internal/checksum"
	"github.com/shardstore/shardstore/internal/log_service/zaplog"
	"github.com/shardstore/shardstore/internal/metadata"
	metainmem "github.com/shardstore/shardstore/internal/metadata/inmemory"
	objinmem "github.com/shardstore/shardstore/internal/object_store/inmemory"
)

type assemblerEnv struct {
	store     *metainmem.InMemoryStore
	objects   *objinmem.InMemoryObjectStore
	assembler *DefaultAssembler
	nodes     []metadata.StorageNode
	chunkSeq  int
}

func newAssemblerEnv(t *testing.T, nodeCount int) *assemblerEnv {
	t.Helper()
	ls := zaplog.NewNopLogService()
	store := metainmem.NewInMemoryStore(ls)
	objects := objinmem.NewInMemoryObjectStore()

	env := &assemblerEnv{
		store:     store,
		objects:   objects,
		assembler: NewDefaultAssembler(store, objects, ls, 2*time.Second),
	}
	for i := 0; i < nodeCount; i++ {
		node := metadata.StorageNode{
			ID:            fmt.Sprintf("n%d", i),
			Name:          fmt.Sprintf("node-%d", i),
			Host:          fmt.Sprintf("10.0.0.%d", i+1),
			Port:          9000,
			Capacity:      1 << 20,
			Available:     1 << 20,
			IsActive:      true,
			LastHeartbeat: time.Now(),
			CreatedAt:     time.Now(),
		}
		require.NoError(t, store.CreateNode(node))
		env.nodes = append(env.nodes, node)
	}
	return env
}

func (env *assemblerEnv) createFile(t *testing.T, fileID string, content []byte) metadata.File {
	t.Helper()
	file := metadata.File{
		ID:       fileID,
		Name:     fileID + ".bin",
		Size:     int64(len(content)),
		Checksum: checksum.SumBytes(content),
		OwnerID:  "u1",
	}
	require.NoError(t, env.store.CreateFile(file))
	return file
}

func (env *assemblerEnv) addReplica(t *testing.T, fileID string, ordinal, nodeIdx int, data []byte, primary bool) metadata.Chunk {
	t.Helper()
	env.chunkSeq++
	node := env.nodes[nodeIdx]
	key := fmt.Sprintf("%s-%d-%d", fileID, ordinal, env.chunkSeq)
	require.NoError(t, env.objects.PutObject(context.Background(), node.Address(), key, data))

	chunk := metadata.Chunk{
		ID:        fmt.Sprintf("c%d", env.chunkSeq),
		FileID:    fileID,
		NodeID:    node.ID,
		ObjectKey: key,
		Ordinal:   ordinal,
		Size:      int64(len(data)),
		Checksum:  checksum.SumBytes(data),
		IsPrimary: primary,
		Status:    metadata.ChunkStatusCompleted,
	}
	require.NoError(t, env.store.CreateChunk(chunk))
	return chunk
}

func TestRead_RoundTrip(t *testing.T) {
	env := newAssemblerEnv(t, 2)
	parts := [][]byte{[]byte("first chunk "), []byte("second chunk "), []byte("tail")}
	content := bytes.Join(parts, nil)
	env.createFile(t, "f1", content)
	for ordinal, part := range parts {
		env.addReplica(t, "f1", ordinal, 0, part, true)
		env.addReplica(t, "f1", ordinal, 1, part, false)
	}

	got, err := env.assembler.Read(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestOpen_StreamsWholeFile(t *testing.T) {
	env := newAssemblerEnv(t, 1)
	parts := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma")}
	content := bytes.Join(parts, nil)
	env.createFile(t, "f1", content)
	for ordinal, part := range parts {
		env.addReplica(t, "f1", ordinal, 0, part, true)
	}

	stream, err := env.assembler.Open(context.Background(), "f1")
	require.NoError(t, err)
	defer stream.Close()

	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestRead_EmptyFile(t *testing.T) {
	env := newAssemblerEnv(t, 1)
	env.createFile(t, "f1", nil)
	env.addReplica(t, "f1", 0, 0, nil, true)

	got, err := env.assembler.Read(context.Background(), "f1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRead_MissingMiddleOrdinal(t *testing.T) {
	env := newAssemblerEnv(t, 1)
	content := []byte("abcdef")
	env.createFile(t, "f1", content)
	env.addReplica(t, "f1", 0, 0, content[:2], true)
	env.addReplica(t, "f1", 2, 0, content[4:], true)

	_, err := env.assembler.Read(context.Background(), "f1")
	assert.ErrorIs(t, err, ErrIncompleteFile)
}

func TestRead_MissingTrailingOrdinal(t *testing.T) {
	env := newAssemblerEnv(t, 1)
	content := []byte("abcdef")
	env.createFile(t, "f1", content)
	// Only the first of two chunks exists; no ordinal gap, but the
	// assembled size falls short of the file size.
	env.addReplica(t, "f1", 0, 0, content[:3], true)

	_, err := env.assembler.Read(context.Background(), "f1")
	assert.ErrorIs(t, err, ErrIncompleteFile)
}

func TestRead_CorruptedOrdinalExcluded(t *testing.T) {
	env := newAssemblerEnv(t, 1)
	content := []byte("abcdef")
	env.createFile(t, "f1", content)
	env.addReplica(t, "f1", 0, 0, content[:3], true)
	corrupted := env.addReplica(t, "f1", 1, 0, content[3:], true)

	corrupted.Status = metadata.ChunkStatusCorrupted
	require.NoError(t, env.store.UpdateChunk(corrupted))

	_, err := env.assembler.Read(context.Background(), "f1")
	assert.ErrorIs(t, err, ErrIncompleteFile)
}

func TestRead_FallsBackToSecondary(t *testing.T) {
	env := newAssemblerEnv(t, 2)
	content := []byte("replicated content")
	env.createFile(t, "f1", content)
	primary := env.addReplica(t, "f1", 0, 0, content, true)
	env.addReplica(t, "f1", 0, 1, content, false)

	// Primary bytes rot on disk; the record still says completed.
	env.objects.Corrupt(env.nodes[0].Address(), primary.ObjectKey, []byte("rotten but same len"))

	got, err := env.assembler.Read(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestRead_AllReplicasRotten(t *testing.T) {
	env := newAssemblerEnv(t, 2)
	content := []byte("doomed content")
	env.createFile(t, "f1", content)
	first := env.addReplica(t, "f1", 0, 0, content, true)
	second := env.addReplica(t, "f1", 0, 1, content, false)

	env.objects.Corrupt(env.nodes[0].Address(), first.ObjectKey, []byte("flipped one"))
	env.objects.Corrupt(env.nodes[1].Address(), second.ObjectKey, []byte("flipped two"))

	_, err := env.assembler.Read(context.Background(), "f1")
	assert.ErrorIs(t, err, ErrIntegrityFailure)
}

func TestRead_WholeFileChecksumMismatch(t *testing.T) {
	env := newAssemblerEnv(t, 1)
	content := []byte("chunk level fine")
	file := env.createFile(t, "f1", content)
	env.addReplica(t, "f1", 0, 0, content, true)

	// Chunk checksums pass but the file-level digest disagrees.
	file.Checksum = checksum.SumBytes([]byte("something else"))
	require.NoError(t, env.store.UpdateFile(file))

	_, err := env.assembler.Read(context.Background(), "f1")
	assert.ErrorIs(t, err, ErrIntegrityFailure)
}

func TestOpen_IntegrityFailureSurfacesAtEOF(t *testing.T) {
	env := newAssemblerEnv(t, 1)
	content := []byte("streams then fails")
	file := env.createFile(t, "f1", content)
	env.addReplica(t, "f1", 0, 0, content, true)

	file.Checksum = checksum.SumBytes([]byte("not this"))
	require.NoError(t, env.store.UpdateFile(file))

	stream, err := env.assembler.Open(context.Background(), "f1")
	require.NoError(t, err)
	defer stream.Close()

	got, err := io.ReadAll(stream)
	assert.ErrorIs(t, err, ErrIntegrityFailure)
	assert.Equal(t, content, got, "bytes stream before the final check can run")
}

func TestRead_DeletedFile(t *testing.T) {
	env := newAssemblerEnv(t, 1)
	content := []byte("gone")
	file := env.createFile(t, "f1", content)
	env.addReplica(t, "f1", 0, 0, content, true)

	now := time.Now()
	file.IsDeleted = true
	file.DeletedAt = &now
	require.NoError(t, env.store.UpdateFile(file))

	_, err := env.assembler.Read(context.Background(), "f1")
	assert.ErrorIs(t, err, ErrFileDeleted)
}

func TestRead_UnknownFile(t *testing.T) {
	env := newAssemblerEnv(t, 1)
	_, err := env.assembler.Read(context.Background(), "missing")
	assert.ErrorIs(t, err, metadata.ErrFileNotFound)
}
