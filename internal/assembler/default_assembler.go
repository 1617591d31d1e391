package assembler

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/shardstore/shardstore/internal/checksum"
	"github.com/shardstore/shardstore/internal/log_service"
	"github.com/shardstore/shardstore/internal/metadata"
	"github.com/shardstore/shardstore/internal/metrics"
	"github.com/shardstore/shardstore/internal/object_store"
)

// DefaultAssembler rebuilds files from their completed replicas. Every
// ordinal is checked for a completed replica before the first byte is
// fetched, so callers never see a partial stream of an incomplete file.
type DefaultAssembler struct {
	store        metadata.Store
	objects      object_store.Client
	ls           log_service.LogService
	fetchTimeout time.Duration
}

func NewDefaultAssembler(store metadata.Store, objects object_store.Client, ls log_service.LogService, fetchTimeout time.Duration) *DefaultAssembler {
	return &DefaultAssembler{
		store:        store,
		objects:      objects,
		ls:           ls,
		fetchTimeout: fetchTimeout,
	}
}

func (a *DefaultAssembler) Read(ctx context.Context, fileID string) ([]byte, error) {
	file, groups, err := a.plan(fileID)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, file.Size)
	for _, replicas := range groups {
		data, err := a.fetchOrdinal(ctx, replicas)
		if err != nil {
			a.recordAssembly("failed")
			return nil, err
		}
		buf = append(buf, data...)
	}

	if checksum.SumBytes(buf) != file.Checksum {
		a.ls.Error(log_service.LogEvent{
			Message:  "Assembled file failed integrity check",
			Metadata: map[string]any{"fileID": fileID, "expected": file.Checksum},
		})
		a.recordAssembly("integrity_failure")
		return nil, ErrIntegrityFailure
	}

	a.recordAssembly("completed")
	return buf, nil
}

func (a *DefaultAssembler) Open(ctx context.Context, fileID string) (io.ReadCloser, error) {
	file, groups, err := a.plan(fileID)
	if err != nil {
		return nil, err
	}

	return &fileStream{
		ctx:       ctx,
		assembler: a,
		file:      file,
		groups:    groups,
		hasher:    checksum.NewWriter(),
	}, nil
}

// plan loads the file and arranges its completed replicas by ordinal,
// primary first. It fails before any fetch when the chunk map cannot
// yield the full file.
func (a *DefaultAssembler) plan(fileID string) (*metadata.File, [][]metadata.Chunk, error) {
	file, err := a.store.GetFile(fileID)
	if err != nil {
		return nil, nil, err
	}
	if file.IsDeleted {
		return nil, nil, ErrFileDeleted
	}

	chunks, err := a.store.ListChunksByFile(fileID)
	if err != nil {
		return nil, nil, err
	}

	byOrdinal := make(map[int][]metadata.Chunk)
	maxOrdinal := -1
	for _, chunk := range chunks {
		if chunk.Status != metadata.ChunkStatusCompleted {
			continue
		}
		byOrdinal[chunk.Ordinal] = append(byOrdinal[chunk.Ordinal], chunk)
		if chunk.Ordinal > maxOrdinal {
			maxOrdinal = chunk.Ordinal
		}
	}

	var assembledSize int64
	groups := make([][]metadata.Chunk, 0, maxOrdinal+1)
	for ordinal := 0; ordinal <= maxOrdinal; ordinal++ {
		replicas := byOrdinal[ordinal]
		if len(replicas) == 0 {
			a.ls.Warn(log_service.LogEvent{
				Message:  "File ordinal has no completed replica",
				Metadata: map[string]any{"fileID": fileID, "ordinal": ordinal},
			})
			a.recordAssembly("incomplete")
			return nil, nil, ErrIncompleteFile
		}
		sort.SliceStable(replicas, func(i, j int) bool {
			return replicas[i].IsPrimary && !replicas[j].IsPrimary
		})
		groups = append(groups, replicas)
		assembledSize += replicas[0].Size
	}

	// A missing trailing ordinal leaves no gap; the size check catches it.
	if assembledSize != file.Size {
		a.ls.Warn(log_service.LogEvent{
			Message:  "Chunk map does not cover the file",
			Metadata: map[string]any{"fileID": fileID, "fileSize": file.Size, "assembledSize": assembledSize},
		})
		a.recordAssembly("incomplete")
		return nil, nil, ErrIncompleteFile
	}

	return file, groups, nil
}

// fetchOrdinal returns verified bytes for one ordinal, falling back
// across replicas. A replica whose bytes fail their chunk checksum is
// skipped; the verifier handles marking it.
func (a *DefaultAssembler) fetchOrdinal(ctx context.Context, replicas []metadata.Chunk) ([]byte, error) {
	sawCorruption := false
	for _, replica := range replicas {
		node, err := a.store.GetNode(replica.NodeID)
		if err != nil {
			continue
		}

		fetchCtx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
		data, err := a.objects.GetObject(fetchCtx, node.Address(), replica.ObjectKey)
		cancel()
		if err != nil {
			a.ls.Warn(log_service.LogEvent{
				Message:  "Replica fetch failed, trying next",
				Metadata: map[string]any{"chunkID": replica.ID, "nodeID": replica.NodeID, "error": err.Error()},
			})
			continue
		}
		if checksum.SumBytes(data) != replica.Checksum {
			sawCorruption = true
			a.ls.Warn(log_service.LogEvent{
				Message:  "Replica bytes fail chunk checksum, trying next",
				Metadata: map[string]any{"chunkID": replica.ID, "nodeID": replica.NodeID},
			})
			continue
		}
		return data, nil
	}

	if sawCorruption {
		return nil, ErrIntegrityFailure
	}
	return nil, ErrChunkUnavailable
}

func (a *DefaultAssembler) recordAssembly(outcome string) {
	if m := metrics.GetStoreMetrics(); m != nil {
		m.AssembliesTotal.WithLabelValues(outcome).Inc()
	}
}

// fileStream reads ordinals lazily, hashing everything that passes
// through so the final checksum check covers exactly what the caller
// received.
type fileStream struct {
	ctx       context.Context
	assembler *DefaultAssembler
	file      *metadata.File
	groups    [][]metadata.Chunk

	next     int
	buffered []byte
	finished bool
	hasher   *checksum.Writer
}

func (s *fileStream) Read(p []byte) (int, error) {
	for len(s.buffered) == 0 {
		if s.finished {
			return 0, io.EOF
		}
		if s.next >= len(s.groups) {
			s.finished = true
			if s.hasher.Sum() != s.file.Checksum {
				s.assembler.recordAssembly("integrity_failure")
				return 0, ErrIntegrityFailure
			}
			s.assembler.recordAssembly("completed")
			return 0, io.EOF
		}

		data, err := s.assembler.fetchOrdinal(s.ctx, s.groups[s.next])
		if err != nil {
			s.finished = true
			s.assembler.recordAssembly("failed")
			return 0, err
		}
		s.next++
		s.hasher.Write(data)
		s.buffered = data
	}

	n := copy(p, s.buffered)
	s.buffered = s.buffered[n:]
	return n, nil
}

func (s *fileStream) Close() error {
	s.finished = true
	s.buffered = nil
	return nil
}

var _ Assembler = (*DefaultAssembler)(nil)
