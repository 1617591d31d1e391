package placement

import (
	"errors"
	"testing"
	"time"

	"github.com/shardstore/shardstore/internal/log_service/zaplog"
	"github.com/shardstore/shardstore/internal/metadata"
	"github.com/shardstore/shardstore/internal/metadata/inmemory"
	"github.com/shardstore/shardstore/internal/node_registry"
)

func newTestPlanner(t *testing.T, nodes []metadata.StorageNode) *GreedyPlanner {
	t.Helper()
	ls := zaplog.NewNopLogService()
	store := inmemory.NewInMemoryStore(ls)
	for _, node := range nodes {
		node.LastHeartbeat = time.Now()
		node.CreatedAt = time.Now()
		node.IsActive = node.Available > 0
		if err := store.CreateNode(node); err != nil {
			t.Fatalf("CreateNode() error = %v", err)
		}
	}
	registry := node_registry.NewDefaultNodeRegistry(store, ls, time.Minute)
	return NewGreedyPlanner(registry, ls)
}

func TestGreedyPlanner_Plan(t *testing.T) {
	nodes := []metadata.StorageNode{
		{ID: "n1", Name: "node-1", Host: "10.0.0.1", Port: 9000, Capacity: 1000, Available: 500},
		{ID: "n2", Name: "node-2", Host: "10.0.0.2", Port: 9000, Capacity: 1000, Available: 900},
		{ID: "n3", Name: "node-3", Host: "10.0.0.3", Port: 9000, Capacity: 1000, Available: 700},
		{ID: "n4", Name: "node-4", Host: "10.0.0.4", Port: 9000, Capacity: 1000, Available: 50},
	}

	tests := []struct {
		name              string
		chunkSize         int64
		replicationFactor int
		exclude           []string
		wantIDs           []string
		wantErr           error
	}{
		{
			name:              "greedy by available",
			chunkSize:         100,
			replicationFactor: 2,
			wantIDs:           []string{"n2", "n3"},
		},
		{
			name:              "small nodes filtered out",
			chunkSize:         100,
			replicationFactor: 3,
			wantIDs:           []string{"n2", "n3", "n1"},
		},
		{
			name:              "exclusion honored",
			chunkSize:         100,
			replicationFactor: 2,
			exclude:           []string{"n2"},
			wantIDs:           []string{"n3", "n1"},
		},
		{
			name:              "insufficient capacity",
			chunkSize:         100,
			replicationFactor: 4,
			wantErr:           ErrInsufficientCapacity,
		},
		{
			name:              "chunk too large for any node",
			chunkSize:         2000,
			replicationFactor: 1,
			wantErr:           ErrInsufficientCapacity,
		},
		{
			name:              "invalid replication factor",
			chunkSize:         100,
			replicationFactor: 0,
			wantErr:           ErrInvalidReplicationFactor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner := newTestPlanner(t, nodes)

			plan, err := planner.Plan(tt.chunkSize, tt.replicationFactor, tt.exclude)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Plan() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}

			if len(plan) != len(tt.wantIDs) {
				t.Fatalf("Plan() returned %d nodes, want %d", len(plan), len(tt.wantIDs))
			}
			seen := map[string]bool{}
			for i, node := range plan {
				if node.ID != tt.wantIDs[i] {
					t.Errorf("Plan()[%d] = %s, want %s", i, node.ID, tt.wantIDs[i])
				}
				if seen[node.ID] {
					t.Errorf("Plan() returned duplicate node %s", node.ID)
				}
				seen[node.ID] = true
				if node.Available < tt.chunkSize {
					t.Errorf("Plan() returned node %s with available %d < chunk size %d", node.ID, node.Available, tt.chunkSize)
				}
			}
		})
	}
}

func TestGreedyPlanner_TieBreakDeterministic(t *testing.T) {
	nodes := []metadata.StorageNode{
		{ID: "n3", Name: "node-3", Host: "10.0.0.3", Port: 9000, Capacity: 1000, Available: 800},
		{ID: "n1", Name: "node-1", Host: "10.0.0.1", Port: 9000, Capacity: 1000, Available: 800},
		{ID: "n2", Name: "node-2", Host: "10.0.0.2", Port: 9000, Capacity: 1000, Available: 800},
	}

	for i := 0; i < 5; i++ {
		planner := newTestPlanner(t, nodes)
		plan, err := planner.Plan(100, 3, nil)
		if err != nil {
			t.Fatalf("Plan() error = %v", err)
		}
		for j, want := range []string{"n1", "n2", "n3"} {
			if plan[j].ID != want {
				t.Fatalf("Plan()[%d] = %s, want %s (run %d)", j, plan[j].ID, want, i)
			}
		}
	}
}
