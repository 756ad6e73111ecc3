// Package notify collects user facing messages produced while handling a
// request. Messages either render with the current response or are carried
// across a redirect and restored on the next request of the same session.
package notify

import (
	"context"
	"sync"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a translatable message. Key names the message, Params
// fill its placeholders.
type Notification struct {
	Severity Severity       `json:"severity"`
	Key      string         `json:"key"`
	Params   map[string]any `json:"params,omitempty"`
}

// CarriedStore holds notifications between two requests. Take returns and
// removes everything stored for key.
type CarriedStore interface {
	Append(ctx context.Context, key string, items ...Notification) error
	Take(ctx context.Context, key string) ([]Notification, error)
}

// Sink is the per request notification buffer
type Sink struct {
	mu        sync.Mutex
	store     CarriedStore
	restored  []Notification
	current   []Notification
	persisted []Notification
}

// NewSink creates an empty sink, store may be nil when nothing is carried
func NewSink(store CarriedStore) *Sink {
	return &Sink{store: store}
}

// Restore drains notifications carried under key
func (s *Sink) Restore(ctx context.Context, key string) error {
	if s.store == nil || key == "" {
		return nil
	}

	items, err := s.store.Take(ctx, key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.restored = append(s.restored, items...)
	s.mu.Unlock()
	return nil
}

// Add queues a notification for the current response
func (s *Sink) Add(severity Severity, key string, params map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = append(s.current, Notification{Severity: severity, Key: key, Params: params})
}

// AddPersisted queues a notification that survives a redirect
func (s *Sink) AddPersisted(severity Severity, key string, params map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted = append(s.persisted, Notification{Severity: severity, Key: key, Params: params})
}

// Pending returns everything queued so far without committing
func (s *Sink) Pending() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect()
}

func (s *Sink) collect() []Notification {
	out := make([]Notification, 0, len(s.restored)+len(s.persisted)+len(s.current))
	out = append(out, s.restored...)
	out = append(out, s.persisted...)
	out = append(out, s.current...)
	return out
}

// Commit finishes the request. When redirecting, restored and persisted
// notifications are carried under key and nothing is returned. Otherwise
// everything queued is returned for rendering.
func (s *Sink) Commit(ctx context.Context, key string, redirecting bool) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !redirecting || s.store == nil {
		out := s.collect()
		s.reset()
		return out, nil
	}

	carried := make([]Notification, 0, len(s.restored)+len(s.persisted))
	carried = append(carried, s.restored...)
	carried = append(carried, s.persisted...)

	if len(carried) > 0 {
		if err := s.store.Append(ctx, key, carried...); err != nil {
			return nil, err
		}
	}

	s.reset()
	return nil, nil
}

// Requeue puts restored notifications back under key. It is used when the
// request fails before Commit so carried messages reach the next request.
func (s *Sink) Requeue(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil || key == "" || len(s.restored) == 0 {
		return nil
	}

	if err := s.store.Append(ctx, key, s.restored...); err != nil {
		return err
	}
	s.restored = nil
	return nil
}

func (s *Sink) reset() {
	s.restored = nil
	s.current = nil
	s.persisted = nil
}
