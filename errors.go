package users

import (
	stderrors "errors"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// pgUniqueViolation is the SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

const (
	TextCodeAuthenticationFailed = "authentication_failed"
	TextCodeNotAuthenticated     = "not_authenticated"
	TextCodeTokenExpired         = "token_expired"
	TextCodeTokenMalformed       = "token_malformed"
	TextCodePermissionDenied     = "permission_denied"
	TextCodeAccountLocked        = "account_locked"
	TextCodeDuplicateAccount     = "DuplicateAccount"
	TextCodeDuplicateEmail       = "duplicate_email"
	TextCodeValidation           = "validation_error"
	TextCodeNotFound             = "not_found"
	TextCodeUnregisteredSite     = "unregistered_site"
	TextCodeInternal             = "internal_error"
)

// ErrAuthenticationFailed is returned for unknown credentials or keys
var ErrAuthenticationFailed = goerrors.New("incorrect authentication credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthenticationFailed).
	WithCode(goerrors.CodeUnauthorized)

// ErrNotAuthenticated is returned when the account exists but is inactive
var ErrNotAuthenticated = goerrors.New("user inactive or deleted", goerrors.CategoryAuth).
	WithTextCode(TextCodeNotAuthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when a token outlived its lifespan
var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeForbidden)

// ErrTokenMalformed is returned when the key signature does not verify
var ErrTokenMalformed = goerrors.New("invalid token", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrMissingToken is returned when a protected route gets no credentials
var ErrMissingToken = goerrors.New("authentication credentials were not provided", goerrors.CategoryAuth).
	WithTextCode(TextCodeNotAuthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrPermissionDenied is returned when a user acts on another account
var ErrPermissionDenied = goerrors.New("you do not have permission to perform this action", goerrors.CategoryAuthz).
	WithTextCode(TextCodePermissionDenied).
	WithCode(goerrors.CodeForbidden)

// ErrTooManyLoginAttempts is returned while the account is locked out
var ErrTooManyLoginAttempts = goerrors.New("too many failed login attempts, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeAccountLocked).
	WithCode(goerrors.CodeForbidden)

// ErrDuplicateAccount is returned when credentials resolve to several active users
var ErrDuplicateAccount = goerrors.New("multiple accounts share these credentials", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateAccount).
	WithCode(goerrors.CodeConflict)

// ErrDuplicateEmail is returned on signup when an active user owns the email
var ErrDuplicateEmail = goerrors.New("an active user with this email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrUserNotFound is returned when the user record does not exist
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrTokenNotFound is returned by refresh when the key is unknown
var ErrTokenNotFound = goerrors.New("token not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrUnregisteredSite is returned when the request host matches no site
var ErrUnregisteredSite = goerrors.New("request host is not a registered site", goerrors.CategoryBadInput).
	WithTextCode(TextCodeUnregisteredSite).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is returned by password comparison
var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthenticationFailed).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// NewValidationError wraps field errors, as produced by ozzo-validation,
// into a 400 error carrying the field map as metadata.
func NewValidationError(err error) error {
	if err == nil {
		return nil
	}

	fields := map[string]any{}
	var verrs validation.Errors
	if stderrors.As(err, &verrs) {
		fields = fieldErrors(verrs)
	}

	return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid input").
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(fields)
}

func fieldErrors(verrs validation.Errors) map[string]any {
	out := make(map[string]any, len(verrs))
	for field, err := range verrs {
		if nested, ok := err.(validation.Errors); ok {
			out[field] = fieldErrors(nested)
			continue
		}
		out[field] = err.Error()
	}
	return out
}

// NewBadInput builds a 400 error for a single malformed payload
func NewBadInput(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest)
}

// withMetadata clones a sentinel before attaching request specific data
func withMetadata(sentinel *goerrors.Error, md map[string]any) *goerrors.Error {
	clone := sentinel.Clone()
	if clone == nil {
		return sentinel
	}
	return clone.WithMetadata(md)
}

// IsTextCode reports whether err carries the given text code
func IsTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// IsUniqueViolation reports whether err comes from a unique constraint
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr *sqlite.Error
	if stderrors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	return repository.IsDuplicatedKey(err)
}
