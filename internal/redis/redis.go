package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zonewatch/internal/logger"
	"zonewatch/internal/service/storage"

	"github.com/redis/go-redis/v9"
)

const (
	opTimeout = 5 * time.Second

	// KeyPrefix namespaces every blob key written by zonewatch
	KeyPrefix = "zonewatch"
)

// Init opens and pings a Redis connection
func Init(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.L().Info("redis_connected", "addr", opts.Addr, "db", opts.DB)
	return client, nil
}

// BlobStore stores blobs as plain Redis strings under "<prefix>:<key>"
type BlobStore struct {
	client redis.Cmdable
}

func NewBlobStore(client redis.Cmdable) *BlobStore {
	return &BlobStore{client: client}
}

func key(k string) string {
	return fmt.Sprintf("%s:%s", KeyPrefix, k)
}

// Get retrieves a value by key
func (s *BlobStore) Get(ctx context.Context, k string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	b, err := s.client.Get(ctx, key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	return b, err
}

// Set stores a value without expiration
func (s *BlobStore) Set(ctx context.Context, k string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return s.client.Set(ctx, key(k), value, 0).Err()
}

// Remove deletes a key
func (s *BlobStore) Remove(ctx context.Context, k string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return s.client.Del(ctx, key(k)).Err()
}
