package users_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	users "github.com/goliatone/go-users"
	"github.com/goliatone/go-users/database/dbtest"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		textCode string
	}{
		{name: "authentication failed", err: users.ErrAuthenticationFailed, status: http.StatusUnauthorized, textCode: users.TextCodeAuthenticationFailed},
		{name: "inactive", err: users.ErrNotAuthenticated, status: http.StatusUnauthorized, textCode: users.TextCodeNotAuthenticated},
		{name: "expired", err: users.ErrTokenExpired, status: http.StatusForbidden, textCode: users.TextCodeTokenExpired},
		{name: "locked", err: users.ErrTooManyLoginAttempts, status: http.StatusForbidden, textCode: users.TextCodeAccountLocked},
		{name: "duplicate account", err: users.ErrDuplicateAccount, status: http.StatusConflict, textCode: users.TextCodeDuplicateAccount},
		{name: "unregistered site", err: users.ErrUnregisteredSite, status: http.StatusBadRequest, textCode: users.TextCodeUnregisteredSite},
		{name: "fiber not found", err: fiber.ErrNotFound, status: http.StatusNotFound, textCode: users.TextCodeNotFound},
		{name: "fiber method not allowed", err: fiber.ErrMethodNotAllowed, status: http.StatusMethodNotAllowed, textCode: "method_not_allowed"},
		{name: "plain error", err: errors.New("boom"), status: http.StatusInternalServerError, textCode: users.TextCodeInternal},
		{
			name:     "category only",
			err:      goerrors.New("slow down", goerrors.CategoryRateLimit),
			status:   http.StatusTooManyRequests,
			textCode: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			richErr := users.ToRichError(tt.err)
			require.NotNil(t, richErr)
			assert.Equal(t, tt.status, users.StatusFor(richErr))
			if tt.textCode != "" {
				assert.Equal(t, tt.textCode, richErr.TextCode)
			} else {
				assert.NotEmpty(t, richErr.TextCode)
			}
		})
	}
}

func TestNewValidationError(t *testing.T) {
	assert.Nil(t, users.NewValidationError(nil))

	err := users.NewValidationError(validation.Errors{
		"email":   errors.New("must be a valid email address"),
		"profile": validation.Errors{"phone": errors.New("enter a valid phone number")},
	})

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, users.TextCodeValidation, richErr.TextCode)
	assert.Equal(t, http.StatusBadRequest, users.StatusFor(richErr))
	assert.Equal(t, "must be a valid email address", richErr.Metadata["email"])
	assert.Equal(t, map[string]any{"phone": "enter a valid phone number"}, richErr.Metadata["profile"])
}

func TestSentinelMetadataDoesNotLeak(t *testing.T) {
	_, err := users.NewTokenService([]byte("0123456789abcdef"), "", nil).Validate("garbage")
	require.Error(t, err)

	assert.Empty(t, users.ErrTokenMalformed.Source, "validation attaches its cause to a clone")
}

func TestIsUniqueViolation(t *testing.T) {
	t.Run("sqlite constraint", func(t *testing.T) {
		db := dbtest.Open(t)
		ctx := context.Background()
		dbtest.Site(t, db, "example.com")

		_, err := db.NewInsert().Model(&users.Site{Domain: "example.com", Name: "again"}).Exec(ctx)
		require.Error(t, err)
		assert.True(t, users.IsUniqueViolation(err))
		assert.True(t, users.IsUniqueViolation(fmt.Errorf("insert site: %w", err)))
	})

	t.Run("postgres sqlstate", func(t *testing.T) {
		assert.True(t, users.IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
		assert.True(t, users.IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
		assert.False(t, users.IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	})

	t.Run("other errors", func(t *testing.T) {
		assert.False(t, users.IsUniqueViolation(errors.New("UNIQUE constraint failed: users.email")), "message text alone is not trusted")
		assert.False(t, users.IsUniqueViolation(errors.New("connection refused")))
		assert.False(t, users.IsUniqueViolation(nil))
	})
}
