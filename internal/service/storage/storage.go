package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by BlobStore.Get when the key has no value
var ErrNotFound = errors.New("storage: key not found")

// BlobStore is persistent key-value storage for opaque payloads.
// Implementations: memory, sqlite, redis and postgres.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Storage defines interface for any in-memory object storage
type Storage[K comparable, V any] interface {
	Set(key K, value V)
	Get(key K) (V, bool)
	Delete(key K) bool
	Count() int
}
