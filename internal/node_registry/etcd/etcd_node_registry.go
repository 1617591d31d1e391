package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shardstore/shardstore/internal/log_service"
	"github.com/shardstore/shardstore/internal/metadata"
	"github.com/shardstore/shardstore/internal/node_registry"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	EtcdDialTimeout = 5 * time.Second
	LeaseTTL        = 5 // seconds
	PrefixLease     = "/shardstore/leases/"
)

type nodeLiveness struct {
	NodeID        string    `json:"nodeId"`
	LeaseID       int64     `json:"leaseId"`
	LastRenewedAt time.Time `json:"lastRenewedAt"`
}

// EtcdNodeRegistry keeps capacity accounting in the metadata store but
// derives liveness from etcd leases instead of heartbeat rows: a node is
// alive while its lease keepalive holds, and an expired lease drops it
// from eligibility without waiting for a TTL window to lapse.
type EtcdNodeRegistry struct {
	*node_registry.DefaultNodeRegistry

	mu        sync.RWMutex
	client    *clientv3.Client
	endpoints []string
	ls        log_service.LogService

	// Local lease identity when this process heartbeats for a node.
	leases map[string]clientv3.LeaseID

	livenessCache map[string]nodeLiveness

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewEtcdNodeRegistry(store metadata.Store, endpoints []string, ls log_service.LogService, heartbeatTTL time.Duration) *EtcdNodeRegistry {
	return &EtcdNodeRegistry{
		DefaultNodeRegistry: node_registry.NewDefaultNodeRegistry(store, ls, heartbeatTTL),
		endpoints:           endpoints,
		ls:                  ls,
		leases:              make(map[string]clientv3.LeaseID),
		livenessCache:       make(map[string]nodeLiveness),
		stopCh:              make(chan struct{}),
	}
}

func (nr *EtcdNodeRegistry) Start(ctx context.Context) error {
	nr.ls.Info(log_service.LogEvent{Message: "Starting etcd node registry", Metadata: map[string]any{"endpoints": nr.endpoints}})

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   nr.endpoints,
		DialTimeout: EtcdDialTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to etcd: %w", err)
	}
	nr.client = cli

	if err := nr.syncLiveness(ctx); err != nil {
		return err
	}

	nr.wg.Add(1)
	go nr.watchLoop()

	return nil
}

func (nr *EtcdNodeRegistry) Stop(ctx context.Context) error {
	nr.ls.Info(log_service.LogEvent{Message: "Stopping etcd node registry"})
	close(nr.stopCh)

	nr.mu.RLock()
	leases := make([]clientv3.LeaseID, 0, len(nr.leases))
	for _, id := range nr.leases {
		leases = append(leases, id)
	}
	nr.mu.RUnlock()

	for _, leaseID := range leases {
		if _, err := nr.client.Revoke(ctx, leaseID); err != nil {
			nr.ls.Warn(log_service.LogEvent{Message: "Failed to revoke lease during shutdown", Metadata: map[string]any{"error": err.Error()}})
		}
	}

	nr.wg.Wait()
	return nr.client.Close()
}

// AnnounceLiveness grants a lease for nodeID and keeps it alive until
// Stop. Registration and capacity still go through the metadata store.
func (nr *EtcdNodeRegistry) AnnounceLiveness(nodeID string) error {
	resp, err := nr.client.Grant(context.TODO(), LeaseTTL)
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}

	liveness := nodeLiveness{
		NodeID:        nodeID,
		LeaseID:       int64(resp.ID),
		LastRenewedAt: time.Now(),
	}
	val, _ := json.Marshal(liveness)

	key := PrefixLease + nodeID
	if _, err := nr.client.Put(context.TODO(), key, string(val), clientv3.WithLease(resp.ID)); err != nil {
		return fmt.Errorf("failed to put liveness key: %w", err)
	}

	nr.mu.Lock()
	nr.leases[nodeID] = resp.ID
	nr.livenessCache[nodeID] = liveness
	nr.mu.Unlock()

	nr.ls.Info(log_service.LogEvent{
		Message:  "Node liveness announced",
		Metadata: map[string]any{"nodeID": nodeID, "leaseID": resp.ID},
	})

	nr.wg.Add(1)
	go nr.keepAliveLoop(nodeID, resp.ID)

	return nil
}

func (nr *EtcdNodeRegistry) keepAliveLoop(nodeID string, leaseID clientv3.LeaseID) {
	defer nr.wg.Done()

	ch, err := nr.client.KeepAlive(context.Background(), leaseID)
	if err != nil {
		nr.ls.Error(log_service.LogEvent{Message: "Failed to start keepalive channel", Metadata: map[string]any{"nodeID": nodeID, "error": err.Error()}})
		return
	}

	for {
		select {
		case <-nr.stopCh:
			return
		case ka, ok := <-ch:
			if !ok {
				nr.ls.Error(log_service.LogEvent{Message: "Etcd keepalive channel closed unexpectedly", Metadata: map[string]any{"nodeID": nodeID}})
				return
			}
			_ = ka
			// Mirror the renewal into the heartbeat row so operators
			// see the same timestamp either way.
			_ = nr.DefaultNodeRegistry.Heartbeat(nodeID)
		}
	}
}

func (nr *EtcdNodeRegistry) syncLiveness(ctx context.Context) error {
	nr.mu.Lock()
	defer nr.mu.Unlock()

	resp, err := nr.client.Get(ctx, PrefixLease, clientv3.WithPrefix())
	if err != nil {
		return err
	}
	for _, kv := range resp.Kvs {
		var l nodeLiveness
		if err := json.Unmarshal(kv.Value, &l); err == nil {
			nr.livenessCache[l.NodeID] = l
		}
	}
	return nil
}

func (nr *EtcdNodeRegistry) watchLoop() {
	defer nr.wg.Done()

	watchCh := nr.client.Watch(context.Background(), PrefixLease, clientv3.WithPrefix())

	for {
		select {
		case <-nr.stopCh:
			return
		case resp := <-watchCh:
			for _, ev := range resp.Events {
				nr.handleEvent(ev)
			}
		}
	}
}

func (nr *EtcdNodeRegistry) handleEvent(ev *clientv3.Event) {
	nr.mu.Lock()
	defer nr.mu.Unlock()

	key := string(ev.Kv.Key)
	if len(key) <= len(PrefixLease) || key[:len(PrefixLease)] != PrefixLease {
		return
	}
	nodeID := key[len(PrefixLease):]

	switch ev.Type {
	case clientv3.EventTypePut:
		var l nodeLiveness
		if err := json.Unmarshal(ev.Kv.Value, &l); err == nil {
			nr.livenessCache[nodeID] = l
		}
	case clientv3.EventTypeDelete:
		delete(nr.livenessCache, nodeID)
	}
}

// GetEligibleNodes narrows the store-derived eligible set to nodes whose
// lease is currently held.
func (nr *EtcdNodeRegistry) GetEligibleNodes() ([]metadata.StorageNode, error) {
	nodes, err := nr.DefaultNodeRegistry.GetEligibleNodes()
	if err != nil {
		return nil, err
	}

	nr.mu.RLock()
	defer nr.mu.RUnlock()

	var alive []metadata.StorageNode
	for _, node := range nodes {
		if _, ok := nr.livenessCache[node.ID]; ok {
			alive = append(alive, node)
		}
	}
	return alive, nil
}

var _ node_registry.NodeRegistry = (*EtcdNodeRegistry)(nil)
