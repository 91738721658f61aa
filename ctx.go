package users

import (
	"context"
)

var userCtxKey = &contextKey{"user"}
var tokenCtxKey = &contextKey{"token"}
var siteCtxKey = &contextKey{"site"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok && raw != nil
}

// WithTokenContext sets the authenticated token in the given context
func WithTokenContext(r context.Context, token *ExpiringToken) context.Context {
	return context.WithValue(r, tokenCtxKey, token)
}

// TokenFromContext finds the authenticated token from the context.
func TokenFromContext(ctx context.Context) (*ExpiringToken, bool) {
	raw, ok := ctx.Value(tokenCtxKey).(*ExpiringToken)
	return raw, ok && raw != nil
}

// WithSiteContext sets the request Site in the given context
func WithSiteContext(r context.Context, site *Site) context.Context {
	return context.WithValue(r, siteCtxKey, site)
}

// SiteFromContext finds the request site from the context.
func SiteFromContext(ctx context.Context) (*Site, bool) {
	raw, ok := ctx.Value(siteCtxKey).(*Site)
	return raw, ok && raw != nil
}
