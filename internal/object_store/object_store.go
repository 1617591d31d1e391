package object_store

import "context"

// Client is the byte transport to storage nodes. The replication and
// assembly paths treat any failure here as a replica failure; durability
// comes from replica count, not transport retries.
type Client interface {
	PutObject(ctx context.Context, address, key string, data []byte) error
	GetObject(ctx context.Context, address, key string) ([]byte, error)
	DeleteObject(ctx context.Context, address, key string) error
}
