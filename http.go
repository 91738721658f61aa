package users

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"

	"github.com/goliatone/go-users/middleware/tokenware"
)

// ErrorBody is the client facing error payload
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse wraps ErrorBody under the "error" key
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorHandler renders every error as an ErrorResponse. Server side
// failures are logged with their metadata and never leak the cause.
func NewErrorHandler(logger Logger) fiber.ErrorHandler {
	logger = normalizeLogger(logger)

	return func(c *fiber.Ctx, err error) error {
		richErr := ToRichError(err)
		status := StatusFor(richErr)

		body := ErrorBody{
			Code:    richErr.TextCode,
			Message: richErr.Message,
		}
		if len(richErr.Metadata) > 0 {
			body.Details = richErr.Metadata
		}

		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"error", err,
				"metadata", richErr.Metadata,
			)
			body.Code = TextCodeInternal
			body.Message = "internal server error"
			body.Details = nil
		}

		return c.Status(status).JSON(ErrorResponse{Error: body})
	}
}

// ToRichError converts err into a *goerrors.Error, keeping fiber status
// errors meaningful.
func ToRichError(err error) *goerrors.Error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.TextCode == "" {
			richErr = richErr.Clone()
			richErr.TextCode = textCodeFor(StatusFor(richErr))
		}
		return richErr
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return goerrors.New(fiberErr.Message, categoryForStatus(fiberErr.Code)).
			WithCode(fiberErr.Code).
			WithTextCode(textCodeFor(fiberErr.Code))
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, "internal server error").
		WithCode(goerrors.CodeInternal).
		WithTextCode(TextCodeInternal)
}

// StatusFor returns the HTTP status for a rich error, falling back to its
// category when no code was set.
func StatusFor(richErr *goerrors.Error) int {
	if richErr == nil {
		return http.StatusInternalServerError
	}
	if richErr.Code > 0 {
		return richErr.Code
	}

	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func categoryForStatus(status int) goerrors.Category {
	switch {
	case status == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status == http.StatusConflict:
		return goerrors.CategoryConflict
	case status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case status >= 400 && status < 500:
		return goerrors.CategoryBadInput
	default:
		return goerrors.CategoryInternal
	}
}

func textCodeFor(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return TextCodeValidation
	case http.StatusUnauthorized:
		return TextCodeNotAuthenticated
	case http.StatusForbidden:
		return TextCodePermissionDenied
	case http.StatusNotFound:
		return TextCodeNotFound
	case http.StatusTooManyRequests:
		return "throttled"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	}
	if status >= 500 {
		return TextCodeInternal
	}
	return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
}

// SiteResolver maps the request host to a registered Site
type SiteResolver struct {
	sites         Sites
	defaultDomain string
	logger        Logger
}

func NewSiteResolver(sites Sites, defaultDomain string, logger Logger) *SiteResolver {
	return &SiteResolver{
		sites:         sites,
		defaultDomain: strings.ToLower(strings.TrimSpace(defaultDomain)),
		logger:        normalizeLogger(logger),
	}
}

// Resolve returns the site registered for host, or the default site when
// one is configured.
func (r *SiteResolver) Resolve(ctx context.Context, host string) (*Site, error) {
	domain := HostDomain(host)

	site, err := r.sites.GetByDomain(ctx, domain)
	if err == nil {
		return site, nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve site")
	}

	if r.defaultDomain == "" || r.defaultDomain == domain {
		return nil, withMetadata(ErrUnregisteredSite, map[string]any{"host": domain})
	}

	site, err = r.sites.GetByDomain(ctx, r.defaultDomain)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			r.logger.Warn("default site is not registered", "domain", r.defaultDomain)
			return nil, withMetadata(ErrUnregisteredSite, map[string]any{"host": domain})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve site")
	}
	return site, nil
}

// Middleware stores the resolved site in the request user context
func (r *SiteResolver) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		site, err := r.Resolve(c.UserContext(), c.Hostname())
		if err != nil {
			return err
		}
		c.Locals("site", site)
		c.SetUserContext(WithSiteContext(c.UserContext(), site))
		return c.Next()
	}
}

// HostDomain lower cases host and strips its port
func HostDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.Trim(host, "[]")
}

// ProtectedRoute returns a middleware that authenticates the request key
// against the token store. Keys of users from another site are rejected.
func ProtectedRoute(issuer *TokenIssuer, schemes []string, listeners ...ValidationListener) fiber.Handler {
	cfg := tokenware.Config{
		ContextKey:      "principal",
		AuthSchemes:     schemes,
		TokenValidator:  tokenValidator(issuer),
		ContextEnricher: ContextEnricherAdapter,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, tokenware.ErrTokenMissingOrMalformed) {
				return ErrMissingToken
			}
			return err
		},
	}
	RegisterValidationListeners(&cfg, listeners...)
	return tokenware.New(cfg)
}

func tokenValidator(issuer *TokenIssuer) tokenware.TokenValidator {
	return tokenware.TokenValidatorFunc(func(ctx context.Context, key string) (any, error) {
		user, token, err := issuer.Authenticate(ctx, key)
		if err != nil {
			return nil, err
		}

		if site, ok := SiteFromContext(ctx); ok && user.SiteID != site.ID {
			return nil, ErrAuthenticationFailed
		}

		return &Principal{User: user, Token: token}, nil
	})
}
