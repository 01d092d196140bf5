package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ManuelReschke/MarketFox/internal/pkg/cache"
	"github.com/redis/go-redis/v9"
)

// queueRepository implements the QueueRepository interface
type queueRepository struct {
	// nil falls back to the shared cache client
	client *redis.Client
}

// NewQueueRepository creates a new queue repository instance
func NewQueueRepository(client *redis.Client) QueueRepository {
	return &queueRepository{client: client}
}

func (r *queueRepository) conn() *redis.Client {
	if r.client != nil {
		return r.client
	}
	return cache.GetClient()
}

// GetListLength returns the length of a Redis list
func (r *queueRepository) GetListLength(ctx context.Context, key string) (int64, error) {
	return r.conn().LLen(ctx, key).Result()
}

// GetSortedSetSize returns the cardinality of a Redis sorted set
func (r *queueRepository) GetSortedSetSize(ctx context.Context, key string) (int64, error) {
	return r.conn().ZCard(ctx, key).Result()
}

// GetHash returns all fields of a Redis hash. A missing key yields an empty map.
func (r *queueRepository) GetHash(ctx context.Context, key string) (map[string]string, error) {
	values, err := r.conn().HGetAll(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return map[string]string{}, nil
	}
	return values, err
}

// GetTTL retrieves the time-to-live for a specific key
func (r *queueRepository) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.conn().TTL(ctx, key).Result()
	if err != nil {
		return -1, err
	}
	return ttl, nil
}

// FindKeysByPatterns retrieves keys for the provided Redis match patterns using SCAN.
func (r *queueRepository) FindKeysByPatterns(ctx context.Context, patterns []string) ([]string, error) {
	client := r.conn()
	uniqueKeys := make(map[string]struct{})

	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}

		var cursor uint64
		for {
			keys, nextCursor, err := client.Scan(ctx, cursor, pattern, 500).Result()
			if err != nil {
				return nil, err
			}

			for _, key := range keys {
				uniqueKeys[key] = struct{}{}
			}

			cursor = nextCursor
			if cursor == 0 {
				break
			}
		}
	}

	keys := make([]string, 0, len(uniqueKeys))
	for key := range uniqueKeys {
		keys = append(keys, key)
	}

	sort.Strings(keys)
	return keys, nil
}
