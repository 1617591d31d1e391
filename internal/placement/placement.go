package placement

import "github.com/shardstore/shardstore/internal/metadata"

// Planner selects replica target nodes for one chunk. Implementations
// never reserve capacity; the replication coordinator settles accounting
// after confirmed writes, and periodic reconciliation corrects races.
type Planner interface {
	Plan(chunkSize int64, replicationFactor int, excludeNodes []string) ([]metadata.StorageNode, error)
}
