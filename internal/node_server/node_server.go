package node_server

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shardstore/shardstore/internal/log_service"
)

// NodeServer is the storage-node daemon. It serves the object protocol
// over HTTP, backed by one file per object key under baseDir.
type NodeServer struct {
	listenAddress string
	baseDir       string
	httpServer    *http.Server
	ls            log_service.LogService
}

func NewNodeServer(listenAddress, baseDir string, ls log_service.LogService) (*NodeServer, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &NodeServer{
		listenAddress: listenAddress,
		baseDir:       baseDir,
		ls:            ls,
	}, nil
}

func (s *NodeServer) Address() string {
	return s.listenAddress
}

func (s *NodeServer) objectPath(key string) string {
	// Keys are opaque identifiers minted by the coordinator; strip any
	// path separators so a key can never escape baseDir.
	return filepath.Join(s.baseDir, filepath.Base(key)+".chunk")
}

func (s *NodeServer) Start() error {
	s.ls.Info(log_service.LogEvent{
		Message:  "Starting node server",
		Metadata: map[string]any{"address": s.listenAddress, "baseDir": s.baseDir},
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/objects/", s.handleObject)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    s.listenAddress,
		Handler: mux,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.ls.Error(log_service.LogEvent{
				Message:  "Node server error",
				Metadata: map[string]any{"address": s.listenAddress, "error": err.Error()},
			})
		}
	}()

	return nil
}

func (s *NodeServer) Stop() error {
	s.ls.Info(log_service.LogEvent{
		Message:  "Stopping node server",
		Metadata: map[string]any{"address": s.listenAddress},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the mux for tests that drive the server through
// httptest instead of a real listener.
func (s *NodeServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/objects/", s.handleObject)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *NodeServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *NodeServer) handleObject(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/objects/")
	if key == "" {
		http.Error(w, "missing object key", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPut:
		s.handlePut(w, r, key)
	case http.MethodGet:
		s.handleGet(w, r, key)
	case http.MethodDelete:
		s.handleDelete(w, r, key)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *NodeServer) handlePut(w http.ResponseWriter, r *http.Request, key string) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if err := os.WriteFile(s.objectPath(key), data, 0644); err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to write object",
			Metadata: map[string]any{"key": key, "error": err.Error()},
		})
		http.Error(w, "failed to store object", http.StatusInternalServerError)
		return
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "Object stored",
		Metadata: map[string]any{"key": key, "size": len(data)},
	})
	w.WriteHeader(http.StatusCreated)
}

func (s *NodeServer) handleGet(w http.ResponseWriter, r *http.Request, key string) {
	data, err := os.ReadFile(s.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "object not found", http.StatusNotFound)
			return
		}
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to read object",
			Metadata: map[string]any{"key": key, "error": err.Error()},
		})
		http.Error(w, "failed to read object", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func (s *NodeServer) handleDelete(w http.ResponseWriter, r *http.Request, key string) {
	if err := os.Remove(s.objectPath(key)); err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "object not found", http.StatusNotFound)
			return
		}
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to delete object",
			Metadata: map[string]any{"key": key, "error": err.Error()},
		})
		http.Error(w, "failed to delete object", http.StatusInternalServerError)
		return
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "Object deleted",
		Metadata: map[string]any{"key": key},
	})
	w.WriteHeader(http.StatusNoContent)
}
