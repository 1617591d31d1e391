package node_registry

import "github.com/shardstore/shardstore/internal/metadata"

// RegisterRequest describes a node joining the fleet.
type RegisterRequest struct {
	Name     string
	Host     string
	Port     int
	Capacity int64
}

// NodeRegistry is the source of truth for which storage nodes may
// receive chunk replicas. Eligibility is derived: a node must be active,
// have available space, and have heartbeated recently.
type NodeRegistry interface {
	RegisterNode(req RegisterRequest) (*metadata.StorageNode, error)
	Heartbeat(nodeID string) error
	DeactivateNode(nodeID string) error
	GetEligibleNodes() ([]metadata.StorageNode, error)
	GetAllNodes(includeInactive bool) ([]metadata.StorageNode, error)

	// Reconcile recomputes every node's available capacity from the
	// chunk table, correcting drift from races the planner accepts.
	Reconcile() error
}
