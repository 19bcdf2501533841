package blobstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	fieldData        = "data"
	fieldContentType = "content_type"
)

// putScript writes the hash only when the key is still free.
var putScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2], ARGV[3], ARGV[4])
return 1
`)

// RedisStore keeps every blob in a hash holding its bytes and content type.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisStore(ctx context.Context, options *redis.Options, keyPrefix string) (*RedisStore, error) {
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", options.Addr, err)
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}, nil
}

func (s *RedisStore) redisKey(key string) string {
	return s.keyPrefix + key
}

func (s *RedisStore) Put(ctx context.Context, key string, blob Blob) error {
	stored, err := putScript.Run(ctx, s.client, []string{s.redisKey(key)},
		fieldData, blob.Data,
		fieldContentType, blob.ContentType,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to store blob %s: %w", key, err)
	}
	if stored == 0 {
		return fmt.Errorf("%s: %w", key, ErrBlobExists)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Blob, error) {
	values, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	data, ok := values[fieldData]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrBlobNotFound)
	}
	return &Blob{Data: []byte(data), ContentType: values[fieldContentType]}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
