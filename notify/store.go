package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultCarriedTTL = 5 * time.Minute

func carriedKey(key string) string {
	return fmt.Sprintf("login:notify:%s", key)
}

// RedisStore keeps carried notifications in a list per session
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultCarriedTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Append(ctx context.Context, key string, items ...Notification) error {
	if len(items) == 0 {
		return nil
	}

	values := make([]any, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return err
		}
		values = append(values, raw)
	}

	k := carriedKey(key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, values...)
		pipe.Expire(ctx, k, s.ttl)
		return nil
	})
	return err
}

// Take drains the list atomically so a notification renders at most once
func (s *RedisStore) Take(ctx context.Context, key string) ([]Notification, error) {
	k := carriedKey(key)

	var rng *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rng = pipe.LRange(ctx, k, 0, -1)
		pipe.Del(ctx, k)
		return nil
	})
	if err != nil {
		return nil, err
	}

	raw := rng.Val()
	out := make([]Notification, 0, len(raw))
	for _, item := range raw {
		var n Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

type memoryItems struct {
	items   []Notification
	expires time.Time
}

// MemoryStore is a process local CarriedStore
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]memoryItems
	now   func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultCarriedTTL
	}
	return &MemoryStore{
		ttl:   ttl,
		items: map[string]memoryItems{},
		now:   time.Now,
	}
}

func (s *MemoryStore) Append(_ context.Context, key string, items ...Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.items[key]
	if !entry.expires.IsZero() && !s.now().Before(entry.expires) {
		entry.items = nil
	}
	entry.items = append(entry.items, items...)
	entry.expires = s.now().Add(s.ttl)
	s.items[key] = entry
	return nil
}

func (s *MemoryStore) Take(_ context.Context, key string) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[key]
	delete(s.items, key)
	if !ok || !s.now().Before(entry.expires) {
		return nil, nil
	}
	return entry.items, nil
}

var (
	_ CarriedStore = (*RedisStore)(nil)
	_ CarriedStore = (*MemoryStore)(nil)
)
