package redis

import (
	"context"
	"errors"
	"fmt"

	"polotno-studio/core"

	goredis "github.com/redis/go-redis/v9"
)

// redisStore keeps each key as a hash with the kind tag and the encoded bytes.
type redisStore struct {
	rdb       *goredis.Client
	namespace string
}

// NewStore creates a Redis-backed store. Every key is stored under namespace.
func NewStore(addr, password, namespace string) *redisStore {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
	})
	return &redisStore{rdb: rdb, namespace: namespace}
}

// NewStoreFromClient wraps an existing client.
func NewStoreFromClient(rdb *goredis.Client, namespace string) *redisStore {
	return &redisStore{rdb: rdb, namespace: namespace}
}

func (s *redisStore) key(key string) string {
	return s.namespace + key
}

func (s *redisStore) Read(ctx context.Context, key string) (core.Value, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return core.Value{}, fmt.Errorf("read %s: %w", key, core.ErrNotFound)
		}
		return core.Value{}, fmt.Errorf("failed to read %s: %w", key, err)
	}
	kind, ok := fields["kind"]
	if !ok {
		return core.Value{}, fmt.Errorf("read %s: %w", key, core.ErrNotFound)
	}

	v, err := core.StoredValue(core.ParseValueKind(kind), []byte(fields["data"]))
	if err != nil {
		return core.Value{}, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return v, nil
}

func (s *redisStore) Write(ctx context.Context, key string, value core.Value) error {
	data, err := value.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.rdb.HSet(ctx, s.key(key), "kind", value.Kind.String(), "data", data).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	n, err := s.rdb.Del(ctx, s.key(key)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s: %w", key, core.ErrNotFound)
	}
	return nil
}

// Close releases the client's connections.
func (s *redisStore) Close() error {
	return s.rdb.Close()
}
