package node_registry

import (
	"time"

	"github.com/google/uuid"
	"github.com/shardstore/shardstore/internal/log_service"
	"github.com/shardstore/shardstore/internal/metadata"
)

// DefaultNodeRegistry derives node health from heartbeat rows in the
// metadata store.
type DefaultNodeRegistry struct {
	store        metadata.Store
	ls           log_service.LogService
	heartbeatTTL time.Duration
	now          func() time.Time
}

func NewDefaultNodeRegistry(store metadata.Store, ls log_service.LogService, heartbeatTTL time.Duration) *DefaultNodeRegistry {
	return &DefaultNodeRegistry{
		store:        store,
		ls:           ls,
		heartbeatTTL: heartbeatTTL,
		now:          time.Now,
	}
}

func (nr *DefaultNodeRegistry) RegisterNode(req RegisterRequest) (*metadata.StorageNode, error) {
	if req.Name == "" || req.Host == "" || req.Port <= 0 || req.Capacity <= 0 {
		return nil, ErrInvalidNode
	}

	now := nr.now()
	node := metadata.StorageNode{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Host:          req.Host,
		Port:          req.Port,
		Capacity:      req.Capacity,
		Available:     req.Capacity,
		IsActive:      true,
		LastHeartbeat: now,
		CreatedAt:     now,
	}

	if err := nr.store.CreateNode(node); err != nil {
		nr.ls.Error(log_service.LogEvent{
			Message:  "Failed to register node",
			Metadata: map[string]any{"name": req.Name, "error": err.Error()},
		})
		return nil, ErrRegisterFailed
	}

	nr.ls.Info(log_service.LogEvent{
		Message:  "Node registered",
		Metadata: map[string]any{"nodeID": node.ID, "name": node.Name, "address": node.Address(), "capacity": node.Capacity},
	})

	return &node, nil
}

func (nr *DefaultNodeRegistry) Heartbeat(nodeID string) error {
	if err := nr.store.TouchNodeHeartbeat(nodeID, nr.now()); err != nil {
		nr.ls.Warn(log_service.LogEvent{
			Message:  "Heartbeat for unknown node",
			Metadata: map[string]any{"nodeID": nodeID},
		})
		return ErrNodeNotFound
	}
	return nil
}

func (nr *DefaultNodeRegistry) DeactivateNode(nodeID string) error {
	node, err := nr.store.GetNode(nodeID)
	if err != nil {
		return ErrNodeNotFound
	}

	node.IsActive = false
	if err := nr.store.UpdateNode(*node); err != nil {
		return ErrNodeNotFound
	}

	nr.ls.Info(log_service.LogEvent{
		Message:  "Node deactivated",
		Metadata: map[string]any{"nodeID": nodeID, "name": node.Name},
	})

	return nil
}

// GetEligibleNodes returns active nodes with space and a fresh heartbeat.
// Callers tolerate staleness; the replication path re-validates per
// attempt rather than trusting this snapshot.
func (nr *DefaultNodeRegistry) GetEligibleNodes() ([]metadata.StorageNode, error) {
	nodes, err := nr.store.ListNodes(false)
	if err != nil {
		return nil, err
	}

	cutoff := nr.now().Add(-nr.heartbeatTTL)
	var eligible []metadata.StorageNode
	for _, node := range nodes {
		if node.Available <= 0 {
			continue
		}
		if node.LastHeartbeat.Before(cutoff) {
			continue
		}
		eligible = append(eligible, node)
	}
	return eligible, nil
}

func (nr *DefaultNodeRegistry) GetAllNodes(includeInactive bool) ([]metadata.StorageNode, error) {
	return nr.store.ListNodes(includeInactive)
}

// Reconcile recomputes available capacity per node by summing the sizes
// of chunks that still occupy space there.
func (nr *DefaultNodeRegistry) Reconcile() error {
	nodes, err := nr.store.ListNodes(true)
	if err != nil {
		return ErrReconcileFailed
	}

	for _, node := range nodes {
		chunks, err := nr.store.ListChunksByNode(node.ID)
		if err != nil {
			return ErrReconcileFailed
		}

		var used int64
		for _, chunk := range chunks {
			if chunk.Status != metadata.ChunkStatusDeleted {
				used += chunk.Size
			}
		}

		if err := nr.store.SetNodeAvailable(node.ID, node.Capacity-used); err != nil {
			nr.ls.Error(log_service.LogEvent{
				Message:  "Failed to reconcile node capacity",
				Metadata: map[string]any{"nodeID": node.ID, "error": err.Error()},
			})
			return ErrReconcileFailed
		}

		nr.ls.Debug(log_service.LogEvent{
			Message:  "Node capacity reconciled",
			Metadata: map[string]any{"nodeID": node.ID, "used": used, "available": node.Capacity - used},
		})
	}

	return nil
}

var _ NodeRegistry = (*DefaultNodeRegistry)(nil)
