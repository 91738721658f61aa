package activitymap_test

import (
	"context"
	"testing"
	"time"

	users "github.com/goliatone/go-users"
	"github.com/goliatone/go-users/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := users.ActivityEvent{
		EventType: users.ActivityEventUserDeleted,
		Actor:     users.ActorRef{ID: "staff-42", Type: "staff"},
		UserID:    "user-100",
		SiteID:    7,
		Metadata: map[string]any{
			"reason": "requested",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "staff-42" {
		t.Fatalf("expected actor_id staff-42, got %q", out.ActorID)
	}
	if out.Verb != string(users.ActivityEventUserDeleted) {
		t.Fatalf("expected verb %q, got %q", users.ActivityEventUserDeleted, out.Verb)
	}
	if out.ObjectType != "user" {
		t.Fatalf("expected object_type user, got %q", out.ObjectType)
	}
	if out.ObjectID != "user-100" {
		t.Fatalf("expected object_id user-100, got %q", out.ObjectID)
	}
	if out.Channel != "user" {
		t.Fatalf("expected channel user, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}

	if out.Metadata["reason"] != "requested" {
		t.Fatalf("expected metadata reason, got %#v", out.Metadata["reason"])
	}
	if out.Metadata[activitymap.MetadataKeyActorType] != "staff" {
		t.Fatalf("expected metadata actor_type staff, got %#v", out.Metadata[activitymap.MetadataKeyActorType])
	}
	if out.Metadata[activitymap.MetadataKeySiteID] != int64(7) {
		t.Fatalf("expected metadata site_id 7, got %#v", out.Metadata[activitymap.MetadataKeySiteID])
	}

	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeChannelFromEventType(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(users.ActivityEvent{EventType: users.ActivityEventLoginFailure})
	if out.Channel != "auth" {
		t.Fatalf("expected channel auth, got %q", out.Channel)
	}
	if out.Metadata != nil {
		t.Fatalf("expected no metadata, got %+v", out.Metadata)
	}

	out = activitymap.Normalize(users.ActivityEvent{EventType: "custom"})
	if out.Channel != "users" {
		t.Fatalf("expected channel users, got %q", out.Channel)
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	stamp := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	event := users.ActivityEvent{
		EventType: users.ActivityEventTokenRotated,
		Actor:     users.ActorRef{Type: "user"},
		UserID:    "user-200",
		Metadata: map[string]any{
			"token_id":                       "tok-1",
			activitymap.MetadataKeyActorType: "existing",
		},
	}

	out := activitymap.Normalize(
		event,
		activitymap.WithChannel("security"),
		activitymap.WithDefaultObjectType("token"),
		activitymap.WithClock(func() time.Time { return stamp }),
		activitymap.WithObjectIDResolver(func(e users.ActivityEvent) string {
			if v, ok := e.Metadata["token_id"].(string); ok {
				return v
			}
			return ""
		}),
	)

	if out.Channel != "security" {
		t.Fatalf("expected channel security, got %q", out.Channel)
	}
	if out.ObjectType != "token" {
		t.Fatalf("expected object_type token, got %q", out.ObjectType)
	}
	if out.ObjectID != "tok-1" {
		t.Fatalf("expected object_id tok-1, got %q", out.ObjectID)
	}
	if out.Metadata[activitymap.MetadataKeyActorType] != "existing" {
		t.Fatalf("expected existing actor_type preserved, got %#v", out.Metadata[activitymap.MetadataKeyActorType])
	}
	if !out.OccurredAt.Equal(stamp) {
		t.Fatalf("expected occurred_at from clock, got %v", out.OccurredAt)
	}
}

func TestNormalizeActorFallbackChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  users.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "uses actor id when present",
			event:  users.ActivityEvent{Actor: users.ActorRef{ID: "actor-1"}, UserID: "user-1"},
			expect: "actor-1",
		},
		{
			name:   "uses user id when actor id missing",
			event:  users.ActivityEvent{Actor: users.ActorRef{ID: ""}, UserID: "user-2"},
			expect: "user-2",
		},
		{
			name:   "uses default fallback when actor and user missing",
			event:  users.ActivityEvent{},
			expect: "system",
		},
		{
			name:   "uses configured fallback when actor and user missing",
			event:  users.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("createsuperuser")},
			expect: "createsuperuser",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := activitymap.Normalize(tc.event, tc.opts...)
			if out.ActorID != tc.expect {
				t.Fatalf("expected actor_id %q, got %q", tc.expect, out.ActorID)
			}
		})
	}
}

type recordingLogger struct {
	messages []string
	args     [][]any
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}
func (l *recordingLogger) Info(msg string, args ...any) {
	l.messages = append(l.messages, msg)
	l.args = append(l.args, args)
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	logger := &recordingLogger{}
	sink := activitymap.NewLogSink(logger)

	var _ users.ActivitySink = sink
	if err := sink.Record(context.Background(), users.ActivityEvent{
		EventType: users.ActivityEventLoginSuccess,
		UserID:    "user-1",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(logger.messages) != 1 || logger.messages[0] != "activity" {
		t.Fatalf("expected one activity log line, got %v", logger.messages)
	}
	args := logger.args[0]
	if args[0] != "verb" || args[1] != string(users.ActivityEventLoginSuccess) {
		t.Fatalf("expected verb first, got %v", args[:2])
	}
	if args[2] != "channel" || args[3] != "auth" {
		t.Fatalf("expected auth channel, got %v", args[2:4])
	}

	if err := (*activitymap.LogSink)(nil).Record(context.Background(), users.ActivityEvent{}); err != nil {
		t.Fatalf("nil sink should be a no-op, got %v", err)
	}
}
