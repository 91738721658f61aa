package users

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventUserRegistered  ActivityEventType = "user.registered"
	ActivityEventUserUpdated     ActivityEventType = "user.updated"
	ActivityEventUserDeleted     ActivityEventType = "user.deleted"
	ActivityEventPasswordChanged ActivityEventType = "user.password.changed"
	ActivityEventAvatarChanged   ActivityEventType = "user.avatar.changed"
	ActivityEventLoginSuccess    ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure    ActivityEventType = "auth.login.failure"
	ActivityEventLogout          ActivityEventType = "auth.logout"
	ActivityEventTokenRotated    ActivityEventType = "auth.token.rotated"
)

// ActorRef identifies who performed an action.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	SiteID     int64
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

// LogActivitySink writes every event to a Logger
type LogActivitySink struct {
	Logger Logger
}

// Record implements ActivitySink.
func (s LogActivitySink) Record(_ context.Context, event ActivityEvent) error {
	normalizeLogger(s.Logger).Info("activity",
		"event", string(event.EventType),
		"user_id", event.UserID,
		"site_id", event.SiteID,
		"actor", event.Actor.ID,
		"metadata", event.Metadata,
	)
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
