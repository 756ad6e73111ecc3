// Package activitymap turns login activity events into a flat record that
// audit pipelines and log sinks can consume without importing login types.
package activitymap

import (
	"context"
	"slices"
	"strings"
	"time"

	login "github.com/goliatone/go-login"
)

const (
	// MetadataKeyActorType stores the actor type derived from login.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyRedacted lists metadata keys whose values were masked.
	MetadataKeyRedacted = "redacted"
)

const (
	defaultChannel    = "login"
	defaultObjectType = "user"
	defaultActorID    = "anonymous"
	redactedValue     = "[redacted]"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	objectType    string
	actorFallback string
	redact        map[string]struct{}
}

// Normalize converts a login.ActivityEvent into the normalized shape.
func Normalize(event login.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.Actor.ID),
		strings.TrimSpace(event.UserID),
		options.actorFallback,
	)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		ObjectID:   strings.TrimSpace(event.UserID),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event, options.redact),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor id used when neither actor nor user ids are set.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithRedactedKeys masks the values of the given metadata keys, e.g. the
// mail addresses attached to user.mail.changed.
func WithRedactedKeys(keys ...string) Option {
	return func(opts *normalizeOptions) {
		for _, key := range keys {
			if key = strings.TrimSpace(key); key != "" {
				opts.redact[key] = struct{}{}
			}
		}
	}
}

// LogSink returns an ActivitySink writing each normalized event to logger
func LogSink(logger login.Logger, opts ...Option) login.ActivitySink {
	return login.ActivitySinkFunc(func(_ context.Context, event login.ActivityEvent) error {
		if logger == nil {
			return nil
		}
		n := Normalize(event, opts...)
		logger.Info("activity",
			"verb", n.Verb,
			"actor", n.ActorID,
			"object", n.ObjectID,
			"channel", n.Channel,
			"metadata", n.Metadata,
			"occurred_at", n.OccurredAt,
		)
		return nil
	})
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		redact:        map[string]struct{}{},
	}
}

func normalizeMetadata(event login.ActivityEvent, redact map[string]struct{}) map[string]any {
	metadata := cloneMap(event.Metadata)

	var masked []string
	for key := range metadata {
		if _, ok := redact[key]; ok {
			metadata[key] = redactedValue
			masked = append(masked, key)
		}
	}
	if len(masked) > 0 {
		slices.Sort(masked)
		metadata[MetadataKeyRedacted] = masked
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[MetadataKeyActorType]; !exists {
			metadata[MetadataKeyActorType] = actorType
		}
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
