package verifier

import (
	"context"
	"time"

	"github.com/shardstore/shardstore/internal/checksum"
	"github.com/shardstore/shardstore/internal/log_service"
	"github.com/shardstore/shardstore/internal/metadata"
	"github.com/shardstore/shardstore/internal/metrics"
	"github.com/shardstore/shardstore/internal/object_store"
)

// DefaultVerifier re-reads replicas from their nodes and reconciles the
// chunk records with what is actually stored.
type DefaultVerifier struct {
	store    metadata.Store
	objects  object_store.Client
	ls       log_service.LogService
	interval time.Duration
	timeout  time.Duration
}

func NewDefaultVerifier(store metadata.Store, objects object_store.Client, ls log_service.LogService, interval, timeout time.Duration) *DefaultVerifier {
	return &DefaultVerifier{
		store:    store,
		objects:  objects,
		ls:       ls,
		interval: interval,
		timeout:  timeout,
	}
}

func (v *DefaultVerifier) VerifyChunk(ctx context.Context, chunkID string) error {
	chunk, err := v.store.GetChunk(chunkID)
	if err != nil {
		return err
	}
	if chunk.Status == metadata.ChunkStatusDeleted {
		return ErrChunkDeleted
	}

	node, err := v.store.GetNode(chunk.NodeID)
	if err != nil {
		return err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, v.timeout)
	data, fetchErr := v.objects.GetObject(fetchCtx, node.Address(), chunk.ObjectKey)
	cancel()

	now := time.Now()
	record := *chunk
	record.LastVerifiedAt = &now
	record.UpdatedAt = now

	if fetchErr == object_store.ErrObjectNotFound {
		record.Status = metadata.ChunkStatusCorrupted
		record.StoredChecksum = ""
		if err := v.store.UpdateChunk(record); err != nil {
			return err
		}
		v.ls.Warn(log_service.LogEvent{
			Message:  "Replica object missing during verification",
			Metadata: map[string]any{"chunkID": chunk.ID, "nodeID": chunk.NodeID, "objectKey": chunk.ObjectKey},
		})
		v.recordResult(false)
		return ErrCorruptChunk
	}
	if fetchErr != nil {
		// Unreachable node is not evidence of corruption; leave the
		// record alone and report the transport failure.
		v.ls.Warn(log_service.LogEvent{
			Message:  "Could not reach node during verification",
			Metadata: map[string]any{"chunkID": chunk.ID, "nodeID": chunk.NodeID, "error": fetchErr.Error()},
		})
		return fetchErr
	}

	record.StoredChecksum = checksum.SumBytes(data)
	if record.StoredChecksum != chunk.Checksum {
		record.Status = metadata.ChunkStatusCorrupted
		if err := v.store.UpdateChunk(record); err != nil {
			return err
		}
		v.ls.Warn(log_service.LogEvent{
			Message:  "Replica failed verification",
			Metadata: map[string]any{"chunkID": chunk.ID, "nodeID": chunk.NodeID, "expected": chunk.Checksum, "stored": record.StoredChecksum},
		})
		v.recordResult(false)
		return ErrCorruptChunk
	}

	// Bytes match the recorded checksum. Verification is bookkeeping
	// only on this path: status stays whatever it was, so a replica
	// flagged corrupted needs an explicit repair, not a lucky re-read,
	// and an in-flight upload is not promoted out from under its writer.
	if err := v.store.UpdateChunk(record); err != nil {
		return err
	}
	v.recordResult(true)
	return nil
}

func (v *DefaultVerifier) VerifyFile(ctx context.Context, fileID string) error {
	chunks, err := v.store.ListChunksByFile(fileID)
	if err != nil {
		return err
	}

	corrupted := 0
	for _, chunk := range chunks {
		if chunk.Status == metadata.ChunkStatusDeleted {
			continue
		}
		if err := v.VerifyChunk(ctx, chunk.ID); err == ErrCorruptChunk {
			corrupted++
		} else if err != nil && err != ErrChunkDeleted {
			return err
		}
	}

	if corrupted > 0 {
		v.ls.Warn(log_service.LogEvent{
			Message:  "File has corrupted replicas",
			Metadata: map[string]any{"fileID": fileID, "corrupted": corrupted},
		})
		return ErrCorruptChunk
	}
	return nil
}

// Run sweeps every live replica on the configured interval.
func (v *DefaultVerifier) Run(ctx context.Context) error {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	v.ls.Info(log_service.LogEvent{
		Message:  "Verifier started",
		Metadata: map[string]any{"interval": v.interval.String()},
	})

	for {
		select {
		case <-ctx.Done():
			v.ls.Info(log_service.LogEvent{Message: "Verifier stopped"})
			return ctx.Err()
		case <-ticker.C:
			v.sweep(ctx)
		}
	}
}

func (v *DefaultVerifier) sweep(ctx context.Context) {
	nodes, err := v.store.ListNodes(true)
	if err != nil {
		v.ls.Error(log_service.LogEvent{
			Message:  "Verifier sweep failed to list nodes",
			Metadata: map[string]any{"error": err.Error()},
		})
		return
	}

	checked, corrupted := 0, 0
	for _, node := range nodes {
		chunks, err := v.store.ListChunksByNode(node.ID)
		if err != nil {
			continue
		}
		for _, chunk := range chunks {
			if ctx.Err() != nil {
				return
			}
			if chunk.Status == metadata.ChunkStatusDeleted {
				continue
			}
			checked++
			if err := v.VerifyChunk(ctx, chunk.ID); err == ErrCorruptChunk {
				corrupted++
			}
		}
	}

	v.ls.Info(log_service.LogEvent{
		Message:  "Verifier sweep completed",
		Metadata: map[string]any{"checked": checked, "corrupted": corrupted},
	})
}

func (v *DefaultVerifier) recordResult(valid bool) {
	if m := metrics.GetStoreMetrics(); m != nil {
		m.RecordVerification(valid)
	}
}

var _ Verifier = (*DefaultVerifier)(nil)
