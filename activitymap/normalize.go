package activitymap

import (
	"context"
	"strings"
	"time"

	users "github.com/goliatone/go-users"
)

const (
	// MetadataKeyActorType stores the actor type derived from users.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeySiteID stores the site the event happened on.
	MetadataKeySiteID = "site_id"
)

const (
	defaultObjectType = "user"
	defaultActorID    = "system"
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
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(users.ActivityEvent) string
	now              func() time.Time
}

// Normalize converts a users.ActivityEvent into a generic normalized shape.
// The channel defaults to the event type prefix, "auth" or "user".
func Normalize(event users.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.Actor.ID),
		strings.TrimSpace(event.UserID),
		strings.TrimSpace(options.actorFallback),
	)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: strings.TrimSpace(options.objectType),
		ObjectID:   resolveObjectID(event, options.objectIDResolver),
		Channel:    firstNonEmpty(options.channel, channelFor(event.EventType)),
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithChannel pins the channel instead of deriving it from the event type.
func WithChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction from ActivityEvent.
func WithObjectIDResolver(resolver func(users.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the final actor-id fallback when actor/user ids are empty.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock stamps events that carry no timestamp.
func WithClock(clock users.Clock) Option {
	return func(opts *normalizeOptions) {
		if opts == nil || clock == nil {
			return
		}
		opts.now = clock
	}
}

// LogSink is a users.ActivitySink that logs normalized records
type LogSink struct {
	logger users.Logger
	opts   []Option
}

func NewLogSink(logger users.Logger, opts ...Option) *LogSink {
	return &LogSink{logger: logger, opts: opts}
}

// Record implements users.ActivitySink.
func (s *LogSink) Record(_ context.Context, event users.ActivityEvent) error {
	if s == nil || s.logger == nil {
		return nil
	}
	out := Normalize(event, s.opts...)
	s.logger.Info("activity",
		"verb", out.Verb,
		"channel", out.Channel,
		"actor_id", out.ActorID,
		"object_type", out.ObjectType,
		"object_id", out.ObjectID,
		"metadata", out.Metadata,
		"occurred_at", out.OccurredAt,
	)
	return nil
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
}

func channelFor(eventType users.ActivityEventType) string {
	prefix, _, found := strings.Cut(string(eventType), ".")
	if !found {
		return "users"
	}
	return prefix
}

func resolveObjectID(event users.ActivityEvent, resolver func(users.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	return strings.TrimSpace(event.UserID)
}

func normalizeMetadata(event users.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[MetadataKeyActorType]; !exists {
			metadata[MetadataKeyActorType] = actorType
		}
	}

	if event.SiteID != 0 {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[MetadataKeySiteID] = event.SiteID
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
