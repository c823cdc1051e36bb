package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore реализация Store поверх redis; все ключи автоматически
// получают префикс namespace, чтобы несколько терминалов могли делить
// один инстанс без коллизий
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore подключается по redis URL и проверяет соединение пингом
func NewRedisStore(redisURL, namespace string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client, namespace: namespace}, nil
}

var _ Store = (*RedisStore)(nil)

func (r *RedisStore) Close() error { return r.client.Close() }

func (r *RedisStore) qualify(key string) string {
	if r.namespace == "" {
		return key
	}
	return r.namespace + ":" + key
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.qualify(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	// без TTL: и кэш, и очередь должны пережить рестарт
	return r.client.Set(ctx, r.qualify(key), value, 0).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.qualify(key)).Err()
}

func (r *RedisStore) ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	pattern := r.qualify(prefix) + "*"
	out := make([]string, 0)
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), r.namespace+":"))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	// SCAN не упорядочен, контракт требует лексикографию
	sort.Strings(out)
	return out, nil
}
