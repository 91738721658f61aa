package users

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
)

// MaxLoginAttempts is the maximun number of failed attempts a user gets
// in a CoolDownPeriod
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = 30 * time.Minute

// UserProvider resolves login credentials to a user
type UserProvider struct {
	store       UserStore
	passwords   PasswordAuthenticator
	logger      Logger
	clock       Clock
	maxAttempts int
	coolDown    time.Duration
}

// NewUserProvider will create a new UserProvider
func NewUserProvider(store UserStore) *UserProvider {
	return &UserProvider{
		store:       store,
		passwords:   BcryptAuthenticator,
		logger:      defLogger{},
		maxAttempts: MaxLoginAttempts,
		coolDown:    CoolDownPeriod,
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	u.logger = normalizeLogger(l)
	return u
}

func (u *UserProvider) WithClock(c Clock) *UserProvider {
	u.clock = c
	return u
}

func (u *UserProvider) WithPasswordAuthenticator(p PasswordAuthenticator) *UserProvider {
	if p != nil {
		u.passwords = p
	}
	return u
}

// WithLockout overrides the failed attempt threshold and the window it
// applies to. Non positive values keep the defaults.
func (u *UserProvider) WithLockout(maxAttempts int, period time.Duration) *UserProvider {
	if maxAttempts > 0 {
		u.maxAttempts = maxAttempts
	}
	if period > 0 {
		u.coolDown = period
	}
	return u
}

// LoginIdentifier is the email when given, otherwise the password digest
func LoginIdentifier(email, password string) string {
	if strings.TrimSpace(email) != "" {
		return NormalizeEmail(email)
	}
	return PasswordIdentifier(password)
}

// VerifyCredentials finds the active user for the credentials on the site
// and checks the password, tracking failed attempts.
func (u *UserProvider) VerifyCredentials(ctx context.Context, siteID int64, email, password string) (*User, error) {
	identifier := LoginIdentifier(email, password)

	matches, err := u.store.FindByEmail(ctx, siteID, identifier, true)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	switch {
	case len(matches) == 0:
		return nil, u.resolveInactive(ctx, siteID, identifier, password)
	case len(matches) > 1:
		return nil, withMetadata(ErrDuplicateAccount, map[string]any{"identifier": identifier})
	}

	user := matches[0]
	if err := u.checkPassword(ctx, user, password); err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrNotAuthenticated
	}

	return user, nil
}

// checkPassword enforces the lockout window for user and compares the
// password, tracking failed attempts.
func (u *UserProvider) checkPassword(ctx context.Context, user *User, password string) error {
	if user.LoginAttemptAt != nil && IsOutsideThresholdPeriod(u.clock.now(), *user.LoginAttemptAt, u.coolDown) {
		user.LoginAttempts = 0
	}

	//if we have too many attempts in the given window, cool off!
	if user.LoginAttempts >= u.maxAttempts {
		return ErrTooManyLoginAttempts
	}

	if err := u.passwords.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if err2 := u.store.TrackAttemptedLogin(ctx, user); err2 != nil {
			return errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}
		return ErrAuthenticationFailed
	}

	return nil
}

// resolveInactive tells an inactive account with valid credentials apart
// from unknown credentials. Inactive accounts share the lockout of active
// ones, otherwise the error code would leak password guesses.
func (u *UserProvider) resolveInactive(ctx context.Context, siteID int64, identifier, password string) error {
	inactive, err := u.store.FindByEmail(ctx, siteID, identifier, false)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	var result error = ErrAuthenticationFailed
	for _, user := range inactive {
		err := u.checkPassword(ctx, user, password)
		if err == nil {
			return ErrNotAuthenticated
		}
		if !stderrors.Is(err, ErrAuthenticationFailed) {
			result = err
		}
	}

	return result
}
