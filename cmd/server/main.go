package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shardstore/shardstore/internal/config"
	"github.com/shardstore/shardstore/internal/log_service"
	"github.com/shardstore/shardstore/internal/log_service/zaplog"
	"github.com/shardstore/shardstore/internal/metadata/inmemory"
	"github.com/shardstore/shardstore/internal/metrics"
	"github.com/shardstore/shardstore/internal/node_registry"
	etcdregistry "github.com/shardstore/shardstore/internal/node_registry/etcd"
	httpstore "github.com/shardstore/shardstore/internal/object_store/http"
	"github.com/shardstore/shardstore/internal/verifier"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ls := zaplog.NewDevelopmentLogService("coordinator", cfg.LogLevel)
	metrics.InitStoreMetrics(nil)

	store := inmemory.NewInMemoryStore(ls)

	var registry node_registry.NodeRegistry
	var etcdReg *etcdregistry.EtcdNodeRegistry
	if len(cfg.EtcdEndpoints) > 0 {
		etcdReg = etcdregistry.NewEtcdNodeRegistry(store, cfg.EtcdEndpoints, ls, cfg.HeartbeatTTL.Std())
		if err := etcdReg.Start(context.Background()); err != nil {
			log.Fatalf("start etcd registry: %v", err)
		}
		registry = etcdReg
	} else {
		registry = node_registry.NewDefaultNodeRegistry(store, ls, cfg.HeartbeatTTL.Std())
	}

	for _, nodeCfg := range cfg.Nodes {
		node, err := registry.RegisterNode(node_registry.RegisterRequest{
			Name:     nodeCfg.Name,
			Host:     nodeCfg.Host,
			Port:     nodeCfg.Port,
			Capacity: nodeCfg.Capacity,
		})
		if err != nil {
			log.Fatalf("register node %s: %v", nodeCfg.Name, err)
		}
		ls.Info(log_service.LogEvent{
			Message:  "Registered configured node",
			Metadata: map[string]any{"nodeID": node.ID, "name": node.Name, "address": node.Address()},
		})
	}

	objects := httpstore.NewHTTPObjectStore(ls)

	ctx, cancel := context.WithCancel(context.Background())

	chunkVerifier := verifier.NewDefaultVerifier(store, objects, ls, cfg.VerifyInterval.Std(), cfg.WriteTimeout.Std())
	go func() {
		if err := chunkVerifier.Run(ctx); err != nil && err != context.Canceled {
			ls.Error(log_service.LogEvent{
				Message:  "Verifier exited",
				Metadata: map[string]any{"error": err.Error()},
			})
		}
	}()

	go heartbeatLoop(ctx, registry, ls, cfg.HeartbeatTTL.Std())
	go reconcileLoop(ctx, registry, ls, cfg.VerifyInterval.Std())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{Addr: cfg.MetricsAddress, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ls.Error(log_service.LogEvent{
				Message:  "Metrics server error",
				Metadata: map[string]any{"error": err.Error()},
			})
		}
	}()

	ls.Info(log_service.LogEvent{
		Message:  "Coordinator started",
		Metadata: map[string]any{"metricsAddress": cfg.MetricsAddress, "replicationFactor": cfg.ReplicationFactor},
	})

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	ls.Info(log_service.LogEvent{Message: "Shutting down"})
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("stop metrics server: %v", err)
	}
	if etcdReg != nil {
		if err := etcdReg.Stop(shutdownCtx); err != nil {
			log.Printf("stop etcd registry: %v", err)
		}
	}
}

// reconcileLoop periodically recomputes node capacity from the chunk
// table, correcting drift the incremental accounting accepts.
func reconcileLoop(ctx context.Context, registry node_registry.NodeRegistry, ls log_service.LogService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := registry.Reconcile(); err != nil {
				ls.Warn(log_service.LogEvent{
					Message:  "Capacity reconcile failed",
					Metadata: map[string]any{"error": err.Error()},
				})
			}
		}
	}
}

// heartbeatLoop polls each registered node's health endpoint and records
// a heartbeat for the ones that answer.
func heartbeatLoop(ctx context.Context, registry node_registry.NodeRegistry, ls log_service.LogService, ttl time.Duration) {
	interval := ttl / 3
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	client := &http.Client{Timeout: interval}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			nodes, err := registry.GetAllNodes(true)
			if err != nil {
				continue
			}
			for _, node := range nodes {
				resp, err := client.Get(fmt.Sprintf("http://%s/healthz", node.Address()))
				if err != nil {
					continue
				}
				resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					continue
				}
				if err := registry.Heartbeat(node.ID); err != nil {
					ls.Warn(log_service.LogEvent{
						Message:  "Failed to record heartbeat",
						Metadata: map[string]any{"nodeID": node.ID, "error": err.Error()},
					})
				}
			}
		}
	}
}
