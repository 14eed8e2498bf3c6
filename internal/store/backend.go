package store

import "context"

// Backend persists raw document bytes under a resolved key. Implementations
// need not serialize access per key; Store does that.
type Backend interface {
	// Load returns ErrNotFound when no document exists under key.
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	// Delete returns ErrNotFound when no document exists under key.
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close()
}
