package users

import (
	"context"

	"github.com/goliatone/go-users/middleware/tokenware"
)

// ValidationListener aliases the tokenware listener so consumers can use
// the users helpers directly.
type ValidationListener = tokenware.ValidationListener

// Principal is what the token middleware stores for an authenticated request
type Principal struct {
	User  *User
	Token *ExpiringToken
}

// ContextEnricherAdapter stores the authenticated user and token in the
// standard context for downstream handlers.
func ContextEnricherAdapter(c context.Context, principal any) context.Context {
	p, ok := principal.(*Principal)
	if !ok || p == nil {
		return c
	}

	c = WithContext(c, p.User)
	if p.Token != nil {
		c = WithTokenContext(c, p.Token)
	}
	return c
}

// RegisterValidationListeners appends listeners to a tokenware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *tokenware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}
