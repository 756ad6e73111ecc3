package session

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	DefaultTTL           = 2 * time.Hour
	DefaultRememberedTTL = 30 * 24 * time.Hour
)

// ErrStore wraps failures of the backing store
var ErrStore = errors.New("session store failure", errors.CategoryOperation).
	WithTextCode("SESSION_STORE_FAILURE").
	WithCode(errors.CodeInternal)

type Option func(*Manager)

// WithTTL sets the lifetime of regular sessions
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithRememberedTTL sets the lifetime of sessions opened with remember
func WithRememberedTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.rememberedTTL = ttl
		}
	}
}

// WithCodec signs the id handed out by Token
func WithCodec(codec *TokenCodec) Option {
	return func(m *Manager) {
		m.codec = codec
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager holds the session of one client for the duration of a request.
// All transitions fully succeed or leave the previous state in place.
type Manager struct {
	mu            sync.Mutex
	store         Store
	codec         *TokenCodec
	ttl           time.Duration
	rememberedTTL time.Duration
	now           func() time.Time

	id        string
	record    Record
	persisted bool
}

// Open restores the session referenced by token. Missing or forged
// tokens yield a fresh guest session. A valid token whose record is
// missing or expired stays a guest under the same id. Store failures are
// returned so callers can tell them apart from an anonymous client.
func Open(ctx context.Context, store Store, token string, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:         store,
		ttl:           DefaultTTL,
		rememberedTTL: DefaultRememberedTTL,
		now:           time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	m.resetGuest()

	id := m.decode(token)
	if id == "" {
		return m, nil
	}

	record, err := store.Load(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			// guests are only stored once they carry state, keep their id
			// so carried notifications can be found again
			m.id = id
			return m, nil
		}
		return m, m.storeErr(err, "load")
	}

	if !record.ExpiresAt.IsZero() && !m.now().Before(record.ExpiresAt) {
		// the stale record is dropped when the id rotates
		m.id = id
		m.persisted = true
		return m, nil
	}

	m.id = id
	m.record = record
	m.persisted = true
	return m, nil
}

func (m *Manager) decode(token string) string {
	if token == "" {
		return ""
	}

	if m.codec == nil {
		return token
	}

	id, err := m.codec.Decode(token)
	if err != nil {
		return ""
	}
	return id
}

func (m *Manager) resetGuest() {
	now := m.now()
	m.id = uuid.NewString()
	m.record = Record{
		UserID:    uuid.Nil,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
	m.persisted = false
}

func (m *Manager) storeErr(err error, op string) error {
	return errors.Wrap(err, errors.CategoryOperation, ErrStore.Message).
		WithTextCode(ErrStore.TextCode).
		WithMetadata(map[string]any{"operation": op})
}

// Login binds userID to a new session id. The previous id is discarded.
func (m *Manager) Login(ctx context.Context, userID uuid.UUID, remember bool) error {
	if userID == uuid.Nil {
		return errors.New("cannot log in as guest", errors.CategoryBadInput).
			WithTextCode("SESSION_GUEST_LOGIN")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	ttl := m.ttl
	if remember {
		ttl = m.rememberedTTL
	}

	next := Record{
		UserID:     userID,
		Remembered: remember,
		Language:   m.record.Language,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}
	nextID := uuid.NewString()

	if err := m.store.Save(ctx, nextID, next, ttl); err != nil {
		return m.storeErr(err, "login")
	}

	if m.persisted {
		// the new session is already live, a stale id only lingers until its TTL
		_ = m.store.Delete(ctx, m.id)
	}

	m.id = nextID
	m.record = next
	m.persisted = true
	return nil
}

// Logout returns the session to guest. Logging out a guest is a no-op.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.record.IsGuest() {
		return nil
	}

	if m.persisted {
		if err := m.store.Delete(ctx, m.id); err != nil {
			return m.storeErr(err, "logout")
		}
	}

	m.resetGuest()
	return nil
}

// SetLanguage stores the preferred language on the session record
func (m *Manager) SetLanguage(ctx context.Context, language string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.record
	next.Language = language

	ttl := next.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		ttl = m.ttl
		next.ExpiresAt = m.now().Add(ttl)
	}

	if err := m.store.Save(ctx, m.id, next, ttl); err != nil {
		return m.storeErr(err, "set_language")
	}

	m.record = next
	m.persisted = true
	return nil
}

// CurrentUser returns the bound user id or uuid.Nil for guests
func (m *Manager) CurrentUser() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.UserID
}

func (m *Manager) IsGuest() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.IsGuest()
}

func (m *Manager) Remembered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.Remembered
}

func (m *Manager) Language() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.Language
}

// ID returns the current session id. It changes on login and logout.
func (m *Manager) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

func (m *Manager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.ExpiresAt
}

// Token returns the cookie value for the current session
func (m *Manager) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.codec == nil {
		return m.id, nil
	}
	return m.codec.Encode(m.id, m.record.ExpiresAt)
}
