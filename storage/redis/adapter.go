package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sig-0/fxcache/storage"
)

const keyPrefix = "fxcache"

// Storage is a Redis backed key-value store.
// Every namespace maps to one Redis hash
type Storage struct {
	client redis.UniversalClient
}

func NewStorage(client redis.UniversalClient) *Storage {
	return &Storage{
		client: client,
	}
}

// Ping checks the Redis server is reachable
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Storage) Get(
	ctx context.Context,
	ns storage.Namespace,
	keys ...string,
) (map[string][]byte, error) {
	if err := storage.ValidateNamespace(ns); err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(keys))

	if len(keys) == 0 {
		return out, nil
	}

	values, err := s.client.HMGet(ctx, hashKey(ns), keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("unable to fetch %s items: %w", ns, err)
	}

	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue // absent field
		}

		out[keys[i]] = []byte(str)
	}

	return out, nil
}

func (s *Storage) Set(
	ctx context.Context,
	ns storage.Namespace,
	items map[string][]byte,
) error {
	if err := storage.ValidateNamespace(ns); err != nil {
		return err
	}

	if len(items) == 0 {
		return nil
	}

	fields := make(map[string]any, len(items))
	for k, v := range items {
		fields[k] = string(v)
	}

	if err := s.client.HSet(ctx, hashKey(ns), fields).Err(); err != nil {
		return fmt.Errorf("unable to save %d %s items: %w", len(items), ns, err)
	}

	return nil
}

func hashKey(ns storage.Namespace) string {
	return fmt.Sprintf("%s:%s", keyPrefix, ns)
}
