// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	gwerrors "emissions-gateway/internal/common/errors"
)

const keyPrefix = "gateway:plan:"

// RedisStore is the distributed response cache for multi-instance
// deployments. TTL expiry is delegated to Redis; capacity bounding is left
// to the server's own maxmemory eviction policy rather than tracked here.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, fingerprint string) (*Result, bool, error) {
	val, err := s.client.Get(ctx, keyPrefix+fingerprint).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var result Result
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		// A stored value we cannot decode is an invariant violation, not
		// a miss; drop it and fail the request loudly.
		s.client.Del(ctx, keyPrefix+fingerprint)
		return nil, false, gwerrors.NewCacheCorruptionError("undecodable cache payload: " + err.Error())
	}
	return &result, true, nil
}

func (s *RedisStore) Put(ctx context.Context, fingerprint string, result *Result, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+fingerprint, payload, ttl).Err()
}
