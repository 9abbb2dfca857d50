package hostservices

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// KeyValueService implements the wasi-keyvalue host contract: buckets are
// opaque namespaces (a worker's project id, typically) and keys/values are
// raw bytes, with the durability requirement that a replayed Get against
// the same bucket/key returns the same bytes it returned live.
type KeyValueService interface {
	Get(ctx context.Context, bucket, key string) ([]byte, bool, error)
	Set(ctx context.Context, bucket, key string, value []byte) error
	Delete(ctx context.Context, bucket, key string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
	ListKeys(ctx context.Context, bucket string) ([]string, error)
}

const keyValueKeyPrefix = "golem:kv:"

// RedisKeyValueService is the production wasi-keyvalue backend, following
// the teacher's RedisStore conventions (internal/store/redis.go): a
// prefixed flat keyspace plus a per-bucket hash tracking member keys so
// ListKeys doesn't need a KEYS scan.
type RedisKeyValueService struct {
	client *redis.Client
}

func NewRedisKeyValueService(client *redis.Client) *RedisKeyValueService {
	return &RedisKeyValueService{client: client}
}

func (s *RedisKeyValueService) bucketIndexKey(bucket string) string {
	return keyValueKeyPrefix + bucket + ":index"
}

func (s *RedisKeyValueService) entryKey(bucket, key string) string {
	return keyValueKeyPrefix + bucket + ":" + key
}

func (s *RedisKeyValueService) Get(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.entryKey(bucket, key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("keyvalue get %s/%s: %w", bucket, key, err)
	}
	return data, true, nil
}

func (s *RedisKeyValueService) Set(ctx context.Context, bucket, key string, value []byte) error {
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.entryKey(bucket, key), value, 0)
	pipe.HSet(ctx, s.bucketIndexKey(bucket), key, 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("keyvalue set %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *RedisKeyValueService) Delete(ctx context.Context, bucket, key string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.entryKey(bucket, key))
	pipe.HDel(ctx, s.bucketIndexKey(bucket), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("keyvalue delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *RedisKeyValueService) Exists(ctx context.Context, bucket, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.entryKey(bucket, key)).Result()
	if err != nil {
		return false, fmt.Errorf("keyvalue exists %s/%s: %w", bucket, key, err)
	}
	return n > 0, nil
}

func (s *RedisKeyValueService) ListKeys(ctx context.Context, bucket string) ([]string, error) {
	keys, err := s.client.HKeys(ctx, s.bucketIndexKey(bucket)).Result()
	if err != nil {
		return nil, fmt.Errorf("keyvalue list %s: %w", bucket, err)
	}
	return keys, nil
}

var _ KeyValueService = (*RedisKeyValueService)(nil)
