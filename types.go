package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the account service options
type Config interface {
	GetSigningKey() string
	GetTokenLifespan() time.Duration
	GetAuthSchemes() []string
	GetMaxLoginAttempts() int
	GetLockoutPeriod() time.Duration
	GetDefaultSiteDomain() string
	GetAvatarBaseURL() string
	GetPhoneRegion() string
}

// Clock returns the current time. Tests inject a fixed clock.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// UserStore is the lookup surface the login flow needs
type UserStore interface {
	FindByEmail(ctx context.Context, siteID int64, email string, active bool) ([]*User, error)
	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] USERS " + format(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] USERS " + format(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] USERS " + format(msg, args...))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] USERS " + format(msg, args...))
}

func format(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		b.WriteByte(' ')
		if i+1 < len(args) {
			fmt.Fprintf(&b, "%v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, "%v", args[i])
	}
	b.WriteByte('\n')
	return b.String()
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
