// Package session ties one client to at most one authenticated user.
// A Manager moves between Guest and Authenticated, rotating its id on
// every transition, and persists whole records through a Store.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ErrNotFound is returned by stores for unknown or expired ids
var ErrNotFound = errors.New("session not found", errors.CategoryNotFound).
	WithTextCode("SESSION_NOT_FOUND").
	WithCode(errors.CodeNotFound)

// Record is the persisted state of one session
type Record struct {
	UserID     uuid.UUID `json:"user_id"`
	Remembered bool      `json:"remembered,omitempty"`
	Language   string    `json:"language,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsGuest reports whether the record carries no identity
func (r Record) IsGuest() bool {
	return r.UserID == uuid.Nil
}

// Store persists session records. Save replaces the whole record.
type Store interface {
	Load(ctx context.Context, id string) (Record, error)
	Save(ctx context.Context, id string, record Record, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	record  Record
	expires time.Time
}

// MemoryStore is a process local Store
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: map[string]memoryEntry{},
		now:     time.Now,
	}
}

func (s *MemoryStore) Load(_ context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return Record{}, ErrNotFound
	}

	if !entry.expires.IsZero() && !s.now().Before(entry.expires) {
		delete(s.entries, id)
		return Record{}, ErrNotFound
	}

	return entry.record, nil
}

func (s *MemoryStore) Save(_ context.Context, id string, record Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{record: record}
	if ttl > 0 {
		entry.expires = s.now().Add(ttl)
	}
	s.entries[id] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// Len returns the number of live entries
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ Store = (*MemoryStore)(nil)
