package httpstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/shardstore/shardstore/internal/log_service"
	"github.com/shardstore/shardstore/internal/object_store"
)

// HTTPObjectStore speaks the object protocol served by node_server:
// PUT/GET/DELETE on /objects/{key}.
type HTTPObjectStore struct {
	ls         log_service.LogService
	clientLock sync.RWMutex
	clients    map[string]*http.Client
	timeout    time.Duration
}

func NewHTTPObjectStore(ls log_service.LogService) *HTTPObjectStore {
	return &HTTPObjectStore{
		ls:      ls,
		clients: make(map[string]*http.Client),
		timeout: 30 * time.Second,
	}
}

func (s *HTTPObjectStore) client(address string) *http.Client {
	s.clientLock.RLock()
	client, ok := s.clients[address]
	s.clientLock.RUnlock()
	if ok {
		return client
	}

	client = &http.Client{Timeout: s.timeout}
	s.clientLock.Lock()
	s.clients[address] = client
	s.clientLock.Unlock()
	return client
}

func objectURL(address, key string) string {
	return fmt.Sprintf("http://%s/objects/%s", address, key)
}

func (s *HTTPObjectStore) PutObject(ctx context.Context, address, key string, data []byte) error {
	s.ls.Debug(log_service.LogEvent{
		Message:  "Putting object",
		Metadata: map[string]any{"address": address, "key": key, "size": len(data)},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, objectURL(address, key), bytes.NewReader(data))
	if err != nil {
		return object_store.ErrPutFailed
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client(address).Do(req)
	if err != nil {
		s.ls.Warn(log_service.LogEvent{
			Message:  "Object put transport failure",
			Metadata: map[string]any{"address": address, "key": key, "error": err.Error()},
		})
		return object_store.ErrNodeUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		s.ls.Warn(log_service.LogEvent{
			Message:  "Object put rejected",
			Metadata: map[string]any{"address": address, "key": key, "status": resp.StatusCode},
		})
		return object_store.ErrPutFailed
	}
	return nil
}

func (s *HTTPObjectStore) GetObject(ctx context.Context, address, key string) ([]byte, error) {
	s.ls.Debug(log_service.LogEvent{
		Message:  "Getting object",
		Metadata: map[string]any{"address": address, "key": key},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, objectURL(address, key), nil)
	if err != nil {
		return nil, object_store.ErrNodeUnreachable
	}

	resp, err := s.client(address).Do(req)
	if err != nil {
		s.ls.Warn(log_service.LogEvent{
			Message:  "Object get transport failure",
			Metadata: map[string]any{"address": address, "key": key, "error": err.Error()},
		})
		return nil, object_store.ErrNodeUnreachable
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, object_store.ErrNodeUnreachable
		}
		return data, nil
	case http.StatusNotFound:
		return nil, object_store.ErrObjectNotFound
	default:
		return nil, object_store.ErrNodeUnreachable
	}
}

func (s *HTTPObjectStore) DeleteObject(ctx context.Context, address, key string) error {
	s.ls.Debug(log_service.LogEvent{
		Message:  "Deleting object",
		Metadata: map[string]any{"address": address, "key": key},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, objectURL(address, key), nil)
	if err != nil {
		return object_store.ErrDeleteFailed
	}

	resp, err := s.client(address).Do(req)
	if err != nil {
		s.ls.Warn(log_service.LogEvent{
			Message:  "Object delete transport failure",
			Metadata: map[string]any{"address": address, "key": key, "error": err.Error()},
		})
		return object_store.ErrNodeUnreachable
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return object_store.ErrObjectNotFound
	default:
		return object_store.ErrDeleteFailed
	}
}

var _ object_store.Client = (*HTTPObjectStore)(nil)
