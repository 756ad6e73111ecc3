package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "login"

func sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", keyPrefix, id)
}

// RedisStore keeps session records as JSON values with a TTL
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store on an existing client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Load(ctx context.Context, id string) (Record, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, err
	}
	return record, nil
}

// Save writes the record in a single SET so concurrent writers never
// leave a mix of two records behind.
func (s *RedisStore) Save(ctx context.Context, id string, record Record, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(id), data, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, sessionKey(id)).Err()
}

var _ Store = (*RedisStore)(nil)
