package replication

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shardstore/shardstore/internal/checksum"
	"github.com/shardstore/shardstore/internal/log_service"
	"github.com/shardstore/shardstore/internal/metadata"
	"github.com/shardstore/shardstore/internal/metrics"
	"github.com/shardstore/shardstore/internal/object_store"
	"github.com/shardstore/shardstore/internal/placement"
	"golang.org/x/sync/errgroup"
)

// DefaultCoordinator fans a chunk out to its planned replica set. Each
// replica attempt is independent: one slow or failing node never blocks
// the others, and the write succeeds as soon as one replica completes.
type DefaultCoordinator struct {
	store        metadata.Store
	planner      placement.Planner
	objects      object_store.Client
	ls           log_service.LogService
	writeTimeout time.Duration
	maxChunkSize int64
}

func NewDefaultCoordinator(store metadata.Store, planner placement.Planner, objects object_store.Client, ls log_service.LogService, writeTimeout time.Duration, maxChunkSize int64) *DefaultCoordinator {
	return &DefaultCoordinator{
		store:        store,
		planner:      planner,
		objects:      objects,
		ls:           ls,
		writeTimeout: writeTimeout,
		maxChunkSize: maxChunkSize,
	}
}

type replicaAttempt struct {
	record    metadata.Chunk
	landed    bool // object bytes reached the node
	completed bool
}

func (c *DefaultCoordinator) Write(ctx context.Context, fileID string, ordinal int, data []byte, replicationFactor int) (*WriteResult, error) {
	if fileID == "" || ordinal < 0 || replicationFactor < 1 {
		return nil, ErrInvalidInput
	}
	if int64(len(data)) > c.maxChunkSize {
		return nil, ErrInvalidInput
	}
	if len(data) == 0 {
		// A zero-length chunk is only the single chunk of an empty file:
		// it must sit at ordinal 0 with no live siblings.
		if ordinal != 0 {
			return nil, ErrInvalidInput
		}
		siblings, err := c.store.ListChunksByFile(fileID)
		if err != nil {
			return nil, err
		}
		for _, sibling := range siblings {
			if sibling.Status != metadata.ChunkStatusDeleted && sibling.Ordinal > 0 {
				return nil, ErrInvalidInput
			}
		}
	}

	digest := checksum.SumBytes(data)

	c.ls.Info(log_service.LogEvent{
		Message:  "Replicating chunk",
		Metadata: map[string]any{"fileID": fileID, "ordinal": ordinal, "size": len(data), "replicationFactor": replicationFactor},
	})

	targets, err := c.planner.Plan(int64(len(data)), replicationFactor, nil)
	if err != nil {
		c.ls.Warn(log_service.LogEvent{
			Message:  "Placement failed for chunk",
			Metadata: map[string]any{"fileID": fileID, "ordinal": ordinal, "error": err.Error()},
		})
		return nil, err
	}

	var mu sync.Mutex
	var attempts []replicaAttempt

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		node := target
		g.Go(func() error {
			attempt := c.writeReplica(gctx, node, fileID, ordinal, data, digest)
			if attempt != nil {
				mu.Lock()
				attempts = append(attempts, *attempt)
				mu.Unlock()
			}
			return nil
		})
	}
	// Attempts never return errors; the group is only a join point.
	_ = g.Wait()

	result := &WriteResult{Requested: replicationFactor}
	for _, attempt := range attempts {
		result.Replicas = append(result.Replicas, attempt.record)
		if attempt.completed {
			result.Completed++
		}
	}

	if result.Completed == 0 {
		c.ls.Error(log_service.LogEvent{
			Message:  "All replica writes failed, rolling back",
			Metadata: map[string]any{"fileID": fileID, "ordinal": ordinal, "attempts": len(attempts)},
		})
		c.rollback(ctx, attempts)
		return nil, ErrWriteFailed
	}

	if result.Completed < replicationFactor {
		result.ReducedDurability = true
		c.ls.Warn(log_service.LogEvent{
			Message:  "Chunk written with reduced durability",
			Metadata: map[string]any{"fileID": fileID, "ordinal": ordinal, "completed": result.Completed, "requested": replicationFactor},
		})
		if m := metrics.GetStoreMetrics(); m != nil {
			m.ReducedDurability.Inc()
		}
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "Chunk replication completed",
		Metadata: map[string]any{"fileID": fileID, "ordinal": ordinal, "completed": result.Completed, "requested": replicationFactor},
	})

	return result, nil
}

// writeReplica runs one replica attempt end to end. It returns nil when
// the attempt left no record behind (transport failure rolls back its
// own uploading record).
func (c *DefaultCoordinator) writeReplica(ctx context.Context, node metadata.StorageNode, fileID string, ordinal int, data []byte, digest string) *replicaAttempt {
	started := time.Now()
	now := started

	record := metadata.Chunk{
		ID:        uuid.New().String(),
		FileID:    fileID,
		NodeID:    node.ID,
		ObjectKey: fmt.Sprintf("%s-%d-%s", fileID, ordinal, uuid.New().String()),
		Ordinal:   ordinal,
		Size:      int64(len(data)),
		Checksum:  digest,
		Status:    metadata.ChunkStatusUploading,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := c.store.CreateChunk(record); err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to create chunk record",
			Metadata: map[string]any{"fileID": fileID, "ordinal": ordinal, "nodeID": node.ID, "error": err.Error()},
		})
		c.recordWriteMetric("failed", started, 0)
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	if err := c.objects.PutObject(writeCtx, node.Address(), record.ObjectKey, data); err != nil {
		c.ls.Warn(log_service.LogEvent{
			Message:  "Replica write failed",
			Metadata: map[string]any{"fileID": fileID, "ordinal": ordinal, "nodeID": node.ID, "error": err.Error()},
		})
		// Nothing landed; the uploading record is rolled back and no
		// capacity change applies.
		_ = c.store.DeleteChunk(record.ID)
		c.recordWriteMetric("failed", started, 0)
		return nil
	}

	// Bytes occupy the node from here on, completed or not.
	if err := c.store.AdjustNodeAvailable(node.ID, -record.Size); err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to adjust node capacity",
			Metadata: map[string]any{"nodeID": node.ID, "error": err.Error()},
		})
	}

	stored, err := c.objects.GetObject(writeCtx, node.Address(), record.ObjectKey)
	if err != nil || checksum.SumBytes(stored) != digest {
		record.Status = metadata.ChunkStatusCorrupted
		if err == nil {
			record.StoredChecksum = checksum.SumBytes(stored)
		}
		record.UpdatedAt = time.Now()
		if updateErr := c.store.UpdateChunk(record); updateErr != nil {
			c.ls.Error(log_service.LogEvent{
				Message:  "Failed to mark replica corrupted",
				Metadata: map[string]any{"chunkID": record.ID, "error": updateErr.Error()},
			})
		}
		c.ls.Warn(log_service.LogEvent{
			Message:  "Replica failed post-write verification",
			Metadata: map[string]any{"fileID": fileID, "ordinal": ordinal, "nodeID": node.ID, "chunkID": record.ID},
		})
		c.recordWriteMetric("corrupted", started, 0)
		return &replicaAttempt{record: record, landed: true, completed: false}
	}

	record.Status = metadata.ChunkStatusCompleted
	record.StoredChecksum = digest
	verifiedAt := time.Now()
	record.LastVerifiedAt = &verifiedAt
	record.UpdatedAt = verifiedAt

	if err := c.electPrimary(&record); err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Primary election failed",
			Metadata: map[string]any{"fileID": fileID, "ordinal": ordinal, "chunkID": record.ID, "error": err.Error()},
		})
		c.recordWriteMetric("failed", started, 0)
		return &replicaAttempt{record: record, landed: true, completed: false}
	}

	c.ls.Debug(log_service.LogEvent{
		Message:  "Replica completed",
		Metadata: map[string]any{"fileID": fileID, "ordinal": ordinal, "nodeID": node.ID, "chunkID": record.ID, "primary": record.IsPrimary},
	})
	c.recordWriteMetric("completed", started, record.Size)

	return &replicaAttempt{record: record, landed: true, completed: true}
}

// electPrimary persists the completed record and designates it primary
// if its (file, ordinal) has no completed primary yet. The first replica
// to complete wins; any stale primary is demoted in the same critical
// section.
func (c *DefaultCoordinator) electPrimary(record *metadata.Chunk) error {
	return c.store.WithChunkLock(record.FileID, record.Ordinal, func() error {
		siblings, err := c.store.ListChunksByFile(record.FileID)
		if err != nil {
			return err
		}

		hasCompletedPrimary := false
		for _, sibling := range siblings {
			if sibling.Ordinal != record.Ordinal || sibling.ID == record.ID {
				continue
			}
			if !sibling.IsPrimary {
				continue
			}
			if sibling.Status == metadata.ChunkStatusCompleted {
				hasCompletedPrimary = true
				continue
			}
			sibling.IsPrimary = false
			sibling.UpdatedAt = time.Now()
			if err := c.store.UpdateChunk(sibling); err != nil {
				return err
			}
		}

		record.IsPrimary = !hasCompletedPrimary
		return c.store.UpdateChunk(*record)
	})
}

// rollback removes every record and object a failed write left behind
// and returns the capacity taken by replicas that landed.
func (c *DefaultCoordinator) rollback(ctx context.Context, attempts []replicaAttempt) {
	for _, attempt := range attempts {
		if attempt.landed {
			node, err := c.store.GetNode(attempt.record.NodeID)
			if err == nil {
				cleanupCtx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
				_ = c.objects.DeleteObject(cleanupCtx, node.Address(), attempt.record.ObjectKey)
				cancel()
			}
			_ = c.store.AdjustNodeAvailable(attempt.record.NodeID, attempt.record.Size)
		}
		_ = c.store.DeleteChunk(attempt.record.ID)
	}
}

// Delete removes every replica object of the file, marks the chunk
// records deleted, and recomputes each touched node's available space
// from the chunk table rather than trusting incremental deltas.
func (c *DefaultCoordinator) Delete(ctx context.Context, fileID string) error {
	chunks, err := c.store.ListChunksByFile(fileID)
	if err != nil {
		return ErrDeleteFailed
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "Deleting replicated chunks",
		Metadata: map[string]any{"fileID": fileID, "chunks": len(chunks)},
	})

	touchedNodes := make(map[string]bool)
	for _, chunk := range chunks {
		if chunk.Status == metadata.ChunkStatusDeleted {
			continue
		}

		node, err := c.store.GetNode(chunk.NodeID)
		if err == nil {
			deleteCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			if err := c.objects.DeleteObject(deleteCtx, node.Address(), chunk.ObjectKey); err != nil && err != object_store.ErrObjectNotFound {
				c.ls.Warn(log_service.LogEvent{
					Message:  "Failed to delete replica object",
					Metadata: map[string]any{"chunkID": chunk.ID, "nodeID": chunk.NodeID, "error": err.Error()},
				})
			}
			cancel()
		}

		chunk.Status = metadata.ChunkStatusDeleted
		chunk.IsPrimary = false
		chunk.UpdatedAt = time.Now()
		if err := c.store.UpdateChunk(chunk); err != nil {
			return ErrDeleteFailed
		}
		touchedNodes[chunk.NodeID] = true
	}

	for nodeID := range touchedNodes {
		if err := c.recomputeNodeAvailable(nodeID); err != nil {
			c.ls.Error(log_service.LogEvent{
				Message:  "Failed to recompute node capacity after delete",
				Metadata: map[string]any{"nodeID": nodeID, "error": err.Error()},
			})
			return ErrDeleteFailed
		}
	}

	return nil
}

func (c *DefaultCoordinator) recomputeNodeAvailable(nodeID string) error {
	node, err := c.store.GetNode(nodeID)
	if err != nil {
		return err
	}
	chunks, err := c.store.ListChunksByNode(nodeID)
	if err != nil {
		return err
	}

	var used int64
	for _, chunk := range chunks {
		if chunk.Status != metadata.ChunkStatusDeleted {
			used += chunk.Size
		}
	}
	return c.store.SetNodeAvailable(nodeID, node.Capacity-used)
}

// Repair re-replicates a (file, ordinal) from a healthy completed
// sibling onto a node that holds no replica of it yet. Corruption
// detection stays in the verifier; this is the remediation hook.
func (c *DefaultCoordinator) Repair(ctx context.Context, fileID string, ordinal int) (*metadata.Chunk, error) {
	chunks, err := c.store.ListChunksByFile(fileID)
	if err != nil {
		return nil, ErrRepairFailed
	}

	var replicas []metadata.Chunk
	var excludeNodes []string
	for _, chunk := range chunks {
		if chunk.Ordinal != ordinal {
			continue
		}
		if chunk.Status != metadata.ChunkStatusDeleted {
			excludeNodes = append(excludeNodes, chunk.NodeID)
		}
		if chunk.Status == metadata.ChunkStatusCompleted {
			if chunk.IsPrimary {
				replicas = append([]metadata.Chunk{chunk}, replicas...)
			} else {
				replicas = append(replicas, chunk)
			}
		}
	}

	var data []byte
	var source *metadata.Chunk
	for i := range replicas {
		replica := replicas[i]
		node, err := c.store.GetNode(replica.NodeID)
		if err != nil {
			continue
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
		fetched, err := c.objects.GetObject(fetchCtx, node.Address(), replica.ObjectKey)
		cancel()
		if err != nil || checksum.SumBytes(fetched) != replica.Checksum {
			continue
		}
		data = fetched
		source = &replica
		break
	}
	if source == nil {
		return nil, ErrNoHealthySource
	}

	targets, err := c.planner.Plan(source.Size, 1, excludeNodes)
	if err != nil {
		return nil, ErrRepairFailed
	}

	attempt := c.writeReplica(ctx, targets[0], fileID, ordinal, data, source.Checksum)
	if attempt == nil || !attempt.completed {
		return nil, ErrRepairFailed
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "Chunk replica repaired",
		Metadata: map[string]any{"fileID": fileID, "ordinal": ordinal, "sourceChunkID": source.ID, "newChunkID": attempt.record.ID},
	})

	return &attempt.record, nil
}

func (c *DefaultCoordinator) recordWriteMetric(outcome string, started time.Time, bytes int64) {
	if m := metrics.GetStoreMetrics(); m != nil {
		m.RecordReplicaWrite(outcome, time.Since(started).Seconds(), bytes)
	}
}

var _ Coordinator = (*DefaultCoordinator)(nil)
