// Package tokenware is a fiber middleware that authenticates requests
// carrying an opaque bearer key.
package tokenware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var (
	defaultTokenLookup = "header:" + fiber.HeaderAuthorization
	defaultAuthSchemes = []string{"Token", "Bearer"}

	ErrTokenMissingOrMalformed = errors.New("missing or malformed token")
)

// TokenValidator resolves a raw key to the principal it authenticates.
// Keeping it an interface here avoids an import cycle with callers.
type TokenValidator interface {
	Validate(ctx context.Context, key string) (any, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(ctx context.Context, key string) (any, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(ctx context.Context, key string) (any, error) {
	if f == nil {
		return nil, ErrTokenMissingOrMalformed
	}
	return f(ctx, key)
}

// ValidationListener is invoked after a key has been validated.
type ValidationListener func(c *fiber.Ctx, principal any) error

type Config struct {
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	ErrorHandler   fiber.ErrorHandler
	ContextKey     string
	TokenLookup    string
	AuthSchemes    []string

	// TokenValidator is required for token validation
	TokenValidator TokenValidator

	// ContextEnricher propagates the principal to the request user context.
	ContextEnricher func(c context.Context, principal any) context.Context

	// ValidationListeners run after validation and can reject the request.
	ValidationListeners []ValidationListener
}

func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		key, err := ExtractRawToken(c, extractors)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		principal, err := cfg.TokenValidator.Validate(c.UserContext(), key)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		if err := cfg.runValidationListeners(c, principal); err != nil {
			return cfg.ErrorHandler(c, err)
		}

		c.Locals(cfg.ContextKey, principal)

		if cfg.ContextEnricher != nil {
			c.SetUserContext(cfg.ContextEnricher(c.UserContext(), principal))
		}

		return cfg.SuccessHandler(c)
	}
}

func ExtractRawToken(c *fiber.Ctx, extractors []TokenExtractor) (string, error) {
	var raw string
	var err error

	for _, extractor := range extractors {
		raw, err = extractor(c)
		if raw != "" && err == nil {
			break
		}
	}

	if raw == "" && err == nil {
		err = ErrTokenMissingOrMalformed
	}

	return raw, err
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			if errors.Is(err, ErrTokenMissingOrMalformed) {
				return c.Status(fiber.StatusUnauthorized).SendString(ErrTokenMissingOrMalformed.Error())
			}
			return c.Status(fiber.StatusUnauthorized).SendString("Invalid or expired token")
		}
	}

	if cfg.TokenValidator == nil {
		panic("USERS: token middleware configuration: TokenValidator is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if len(cfg.AuthSchemes) == 0 {
		cfg.AuthSchemes = defaultAuthSchemes
	}

	return cfg
}

func (cfg *Config) getExtractors() []TokenExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthSchemes...)
}

func (cfg *Config) runValidationListeners(c *fiber.Ctx, principal any) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(c, principal); err != nil {
			return err
		}
	}
	return nil
}

// GetExtractors parses a lookup such as "header:Authorization,query:token".
func GetExtractors(tokenLookup string, authSchemes ...string) []TokenExtractor {
	extractors := make([]TokenExtractor, 0)

	if len(authSchemes) == 0 {
		authSchemes = defaultAuthSchemes
	}

	rootParts := strings.Split(tokenLookup, ",")
	for _, rootPart := range rootParts {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) != 2 {
			continue
		}

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, tokenFromHeader(parts[1], authSchemes))
		case "query":
			extractors = append(extractors, tokenFromQuery(parts[1]))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(parts[1]))
		}
	}

	return extractors
}

type TokenExtractor func(c *fiber.Ctx) (string, error)

// tokenFromHeader extracts a key from a header such as "Token <key>".
func tokenFromHeader(header string, authSchemes []string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		a := strings.TrimSpace(c.Get(header))
		for _, scheme := range authSchemes {
			l := len(scheme)
			if len(a) > l+1 && strings.EqualFold(a[:l], scheme) && a[l] == ' ' {
				if key := strings.TrimSpace(a[l:]); key != "" {
					return key, nil
				}
			}
		}
		return "", ErrTokenMissingOrMalformed
	}
}

// tokenFromQuery extracts a key from the query string.
func tokenFromQuery(param string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}

// tokenFromCookie extracts a key from the named cookie.
func tokenFromCookie(name string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}
