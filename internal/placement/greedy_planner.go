package placement

import (
	"sort"

	"github.com/samber/lo"
	"github.com/shardstore/shardstore/internal/log_service"
	"github.com/shardstore/shardstore/internal/metadata"
	"github.com/shardstore/shardstore/internal/node_registry"
)

// GreedyPlanner picks the nodes with the most available space, which
// keeps allocation variance low across the fleet. Ties break on node ID
// so plans are deterministic.
type GreedyPlanner struct {
	registry node_registry.NodeRegistry
	ls       log_service.LogService
}

func NewGreedyPlanner(registry node_registry.NodeRegistry, ls log_service.LogService) *GreedyPlanner {
	return &GreedyPlanner{
		registry: registry,
		ls:       ls,
	}
}

func (p *GreedyPlanner) Plan(chunkSize int64, replicationFactor int, excludeNodes []string) ([]metadata.StorageNode, error) {
	if replicationFactor < 1 {
		return nil, ErrInvalidReplicationFactor
	}
	if chunkSize < 0 {
		return nil, ErrInvalidChunkSize
	}

	nodes, err := p.registry.GetEligibleNodes()
	if err != nil {
		return nil, err
	}

	excluded := lo.SliceToMap(excludeNodes, func(id string) (string, struct{}) {
		return id, struct{}{}
	})

	candidates := lo.Filter(nodes, func(node metadata.StorageNode, _ int) bool {
		if _, skip := excluded[node.ID]; skip {
			return false
		}
		return node.Available >= chunkSize
	})

	if len(candidates) < replicationFactor {
		p.ls.Warn(log_service.LogEvent{
			Message:  "Insufficient eligible nodes for plan",
			Metadata: map[string]any{"chunkSize": chunkSize, "replicationFactor": replicationFactor, "eligible": len(candidates)},
		})
		return nil, ErrInsufficientCapacity
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Available != candidates[j].Available {
			return candidates[i].Available > candidates[j].Available
		}
		return candidates[i].ID < candidates[j].ID
	})

	plan := candidates[:replicationFactor]

	p.ls.Debug(log_service.LogEvent{
		Message: "Placement plan selected",
		Metadata: map[string]any{
			"chunkSize":         chunkSize,
			"replicationFactor": replicationFactor,
			"targets": lo.Map(plan, func(node metadata.StorageNode, _ int) string {
				return node.ID
			}),
		},
	})

	return plan, nil
}

var _ Planner = (*GreedyPlanner)(nil)
