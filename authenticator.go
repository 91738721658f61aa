package users

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// LoginRequest carries login credentials. Without an email the password
// alone identifies the account.
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	ForceLogin bool   `json:"force_login"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// Session is the outcome of a successful login
type Session struct {
	User   *User
	Token  *ExpiringToken
	Expiry *int64
}

type Auther struct {
	provider     *UserProvider
	store        UserStore
	issuer       *TokenIssuer
	logger       Logger
	activitySink ActivitySink
	clock        Clock
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(store UserStore, issuer *TokenIssuer) *Auther {
	return &Auther{
		provider:     NewUserProvider(store),
		store:        store,
		issuer:       issuer,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	s.provider.WithLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

func (s *Auther) WithClock(c Clock) *Auther {
	s.clock = c
	s.provider.WithClock(c)
	return s
}

// WithUserProvider replaces the credential verifier
func (s *Auther) WithUserProvider(p *UserProvider) *Auther {
	if p != nil {
		s.provider = p
	}
	return s
}

// Login verifies the credentials on site and returns the user token,
// rotating it when it expired or when the request forces a new login.
func (s *Auther) Login(ctx context.Context, site *Site, req LoginRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, NewValidationError(err)
	}

	user, err := s.provider.VerifyCredentials(ctx, site.ID, req.Email, req.Password)
	if err != nil {
		s.logger.Info("login rejected", "site_id", site.ID, "email", req.Email, "error", err)
		s.emit(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", site.ID, map[string]any{
			"identifier": req.Email,
			"error":      err.Error(),
		})
		return nil, err
	}

	token, created, err := s.issuer.GetOrCreate(ctx, user)
	if err != nil {
		return nil, err
	}

	rotated := false
	if !created && (s.issuer.Expired(token, user) || req.ForceLogin) {
		if token, err = s.issuer.Rotate(ctx, user); err != nil {
			return nil, err
		}
		rotated = true
	}

	if err := s.store.TrackSuccessfulLogin(ctx, user); err != nil {
		s.logger.Error("failed to track successful login", "user_id", user.ID.String(), "error", err)
	}

	s.emit(ctx, ActivityEventLoginSuccess, actorFor(user), user.ID.String(), site.ID, map[string]any{
		"force_login": req.ForceLogin,
		"rotated":     rotated,
		"created":     created,
	})

	return &Session{
		User:   user,
		Token:  token,
		Expiry: s.issuer.Expiry(user),
	}, nil
}

// Logout marks the user offline and drops its token. Neither step fails
// the request.
func (s *Auther) Logout(ctx context.Context, user *User) {
	if err := s.store.SetOnline(ctx, user.ID, false); err != nil {
		s.logger.Error("failed to mark user offline", "user_id", user.ID.String(), "error", err)
	}

	if err := s.issuer.Revoke(ctx, user); err != nil {
		s.logger.Error("failed to delete token on logout", "user_id", user.ID.String(), "error", err)
	}

	user.IsOnline = false
	s.emit(ctx, ActivityEventLogout, actorFor(user), user.ID.String(), user.SiteID, nil)
}

func (s *Auther) emit(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, siteID int64, md map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		UserID:     userID,
		SiteID:     siteID,
		Metadata:   md,
		OccurredAt: s.clock.now(),
	}
	if err := s.activitySink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink failed", "event", eventType, "error", err)
	}
}

func actorFor(user *User) ActorRef {
	if user == nil {
		return ActorRef{Type: "unknown"}
	}
	kind := "user"
	if user.IsStaff {
		kind = "staff"
	}
	return ActorRef{ID: user.ID.String(), Type: kind}
}
