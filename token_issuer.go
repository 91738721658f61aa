package users

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// DefaultTokenLifespan is how long a token stays valid without use
const DefaultTokenLifespan = 30 * time.Minute

// TokenIssuer owns the lifecycle of the one token a user holds
type TokenIssuer struct {
	repo     RepositoryManager
	keys     TokenService
	lifespan time.Duration
	clock    Clock
	logger   Logger
	activity ActivitySink
}

type TokenIssuerOption func(*TokenIssuer)

func WithIssuerClock(c Clock) TokenIssuerOption {
	return func(t *TokenIssuer) {
		t.clock = c
	}
}

func WithIssuerLogger(l Logger) TokenIssuerOption {
	return func(t *TokenIssuer) {
		t.logger = normalizeLogger(l)
	}
}

func WithIssuerActivitySink(s ActivitySink) TokenIssuerOption {
	return func(t *TokenIssuer) {
		t.activity = normalizeActivitySink(s)
	}
}

// NewTokenIssuer creates an issuer. A zero lifespan disables expiry.
func NewTokenIssuer(repo RepositoryManager, keys TokenService, lifespan time.Duration, opts ...TokenIssuerOption) *TokenIssuer {
	t := &TokenIssuer{
		repo:     repo,
		keys:     keys,
		lifespan: lifespan,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Lifespan returns the configured token lifespan
func (t *TokenIssuer) Lifespan() time.Duration {
	return t.lifespan
}

// Expired reports whether the token outlived its lifespan
func (t *TokenIssuer) Expired(token *ExpiringToken, user *User) bool {
	return token.Expired(user, t.clock.now(), t.lifespan)
}

// Expiry is the lifespan in seconds reported for user, nil for staff
func (t *TokenIssuer) Expiry(user *User) *int64 {
	return ExpiryFor(user, t.lifespan)
}

// GetOrCreate returns the user's token, creating it when missing
func (t *TokenIssuer) GetOrCreate(ctx context.Context, user *User) (*ExpiringToken, bool, error) {
	var (
		token   *ExpiringToken
		created bool
	)
	err := t.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		token, created, err = t.GetOrCreateTx(ctx, tx, user)
		return err
	})
	if err != nil && IsUniqueViolation(err) {
		// lost a creation race, the winner's token is the one to use
		err = t.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var err error
			token, err = t.repo.Tokens().GetByUserTx(ctx, tx, user.ID)
			return err
		})
		created = false
	}
	if err != nil {
		return nil, false, errors.Wrap(err, errors.CategoryInternal, "failed to get or create token")
	}
	return token, created, nil
}

func (t *TokenIssuer) GetOrCreateTx(ctx context.Context, tx bun.IDB, user *User) (*ExpiringToken, bool, error) {
	token, err := t.repo.Tokens().GetByUserTx(ctx, tx, user.ID)
	if err == nil {
		token.User = user
		return token, false, nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, false, err
	}

	token, err = t.createTx(ctx, tx, user)
	if err != nil {
		return nil, false, err
	}
	return token, true, nil
}

// Rotate replaces the user's token with a fresh key. The old key stops
// authenticating once the transaction commits.
func (t *TokenIssuer) Rotate(ctx context.Context, user *User) (*ExpiringToken, error) {
	var token *ExpiringToken
	err := t.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		token, err = t.RotateTx(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to rotate token")
	}

	t.record(ctx, ActivityEvent{
		EventType: ActivityEventTokenRotated,
		UserID:    user.ID.String(),
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
	})

	return token, nil
}

func (t *TokenIssuer) RotateTx(ctx context.Context, tx bun.IDB, user *User) (*ExpiringToken, error) {
	if _, err := t.repo.Tokens().DeleteByUserTx(ctx, tx, user.ID); err != nil {
		return nil, err
	}
	return t.createTx(ctx, tx, user)
}

func (t *TokenIssuer) createTx(ctx context.Context, tx bun.IDB, user *User) (*ExpiringToken, error) {
	key, err := t.keys.Mint(user.ID)
	if err != nil {
		return nil, err
	}

	now := t.clock.now()
	token := &ExpiringToken{
		Key:     key,
		UserID:  user.ID,
		Created: now,
		Updated: now,
	}
	if _, err := t.repo.Tokens().CreateTx(ctx, tx, token); err != nil {
		return nil, err
	}
	token.User = user
	return token, nil
}

// Touch marks the token as used now, pushing its expiry forward
func (t *TokenIssuer) Touch(ctx context.Context, token *ExpiringToken) error {
	now := t.clock.now()
	if err := t.repo.Tokens().Touch(ctx, token.Key, now); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to extend token")
	}
	token.Updated = now
	return nil
}

// Revoke deletes the user's token. A missing token is not an error.
func (t *TokenIssuer) Revoke(ctx context.Context, user *User) error {
	n, err := t.repo.Tokens().DeleteByUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		t.logger.Debug("no token to revoke", "user_id", user.ID.String())
	}
	return nil
}

// Authenticate resolves a key to its user
func (t *TokenIssuer) Authenticate(ctx context.Context, key string) (*User, *ExpiringToken, error) {
	claims, err := t.keys.Validate(key)
	if err != nil {
		return nil, nil, withMetadata(ErrAuthenticationFailed, map[string]any{"reason": "invalid token"})
	}

	token, err := t.repo.Tokens().GetByKey(ctx, key)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil, withMetadata(ErrAuthenticationFailed, map[string]any{"reason": "invalid token"})
		}
		return nil, nil, errors.Wrap(err, errors.CategoryInternal, "failed to load token")
	}

	user := token.User
	if user == nil || user.ID.String() != claims.Subject {
		t.logger.Warn("token key does not belong to its stored user",
			"subject", claims.Subject,
			"issued_at", keyIssuedAt(claims),
		)
		return nil, nil, withMetadata(ErrAuthenticationFailed, map[string]any{"reason": "invalid token"})
	}

	if !user.IsActive {
		return nil, nil, ErrNotAuthenticated
	}

	if t.Expired(token, user) {
		return nil, nil, ErrTokenExpired
	}

	return user, token, nil
}

func (t *TokenIssuer) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = t.clock.now()
	}
	if err := t.activity.Record(ctx, event); err != nil {
		t.logger.Warn("activity sink failed", "event", event.EventType, "error", err)
	}
}
