package users_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	users "github.com/goliatone/go-users"
	"github.com/goliatone/go-users/database/dbtest"
)

func decodeError(t *testing.T, resp *http.Response) users.ErrorResponse {
	t.Helper()
	out := users.ErrorResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: users.NewErrorHandler(nil)})
	app.Get("/denied", func(c *fiber.Ctx) error { return users.ErrPermissionDenied })
	app.Get("/invalid", func(c *fiber.Ctx) error {
		return goerrors.New("invalid input", goerrors.CategoryValidation).
			WithTextCode(users.TextCodeValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"email": "required"})
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return goerrors.Wrap(errors.New("pq: relation users does not exist"), goerrors.CategoryInternal, "query failed").
			WithMetadata(map[string]any{"table": "users"})
	})

	t.Run("client error", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/denied", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		body := decodeError(t, resp)
		assert.Equal(t, users.TextCodePermissionDenied, body.Error.Code)
		assert.Nil(t, body.Error.Details)
	})

	t.Run("validation details", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/invalid", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		body := decodeError(t, resp)
		assert.Equal(t, map[string]any{"email": "required"}, body.Error.Details)
	})

	t.Run("server error is sanitized", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		body := decodeError(t, resp)
		assert.Equal(t, users.TextCodeInternal, body.Error.Code)
		assert.Equal(t, "internal server error", body.Error.Message)
		assert.Nil(t, body.Error.Details)
	})

	t.Run("unknown route", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/nowhere", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, users.TextCodeNotFound, decodeError(t, resp).Error.Code)
	})
}

func TestHostDomain(t *testing.T) {
	assert.Equal(t, "example.com", users.HostDomain("Example.COM:8080"))
	assert.Equal(t, "example.com", users.HostDomain(" example.com "))
	assert.Equal(t, "::1", users.HostDomain("[::1]:8000"))
	assert.Equal(t, "localhost", users.HostDomain("localhost"))
}

func TestSiteResolver(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	site := dbtest.Site(t, db, "example.com")
	sites := users.NewSitesRepository(db)

	t.Run("registered host", func(t *testing.T) {
		got, err := users.NewSiteResolver(sites, "", nil).Resolve(ctx, "EXAMPLE.com:443")
		require.NoError(t, err)
		assert.Equal(t, site.ID, got.ID)
	})

	t.Run("unregistered host", func(t *testing.T) {
		_, err := users.NewSiteResolver(sites, "", nil).Resolve(ctx, "unknown.test")
		require.Error(t, err)
		richErr := users.ToRichError(err)
		assert.Equal(t, users.TextCodeUnregisteredSite, richErr.TextCode)
		assert.Equal(t, "unknown.test", richErr.Metadata["host"])
		assert.Empty(t, users.ErrUnregisteredSite.Metadata)
	})

	t.Run("default site fallback", func(t *testing.T) {
		got, err := users.NewSiteResolver(sites, "example.com", nil).Resolve(ctx, "localhost:8000")
		require.NoError(t, err)
		assert.Equal(t, site.ID, got.ID)
	})

	t.Run("default site missing", func(t *testing.T) {
		_, err := users.NewSiteResolver(sites, "missing.test", nil).Resolve(ctx, "localhost")
		assert.True(t, users.IsTextCode(err, users.TextCodeUnregisteredSite))
	})
}

func TestProtectedRouteRejectsForeignSite(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()
	other := dbtest.Site(t, f.db, "other.example.com")
	alice := dbtest.User(t, f.db, f.site, "alice@example.com")

	token, _, err := f.issuer.GetOrCreate(ctx, alice)
	require.NoError(t, err)

	app := fiber.New(fiber.Config{ErrorHandler: users.NewErrorHandler(nil)})
	app.Use(users.NewSiteResolver(f.repo.Sites(), "", nil).Middleware())
	app.Get("/me", users.ProtectedRoute(f.issuer, []string{"Token"}), func(c *fiber.Ctx) error {
		user, ok := users.FromContext(c.UserContext())
		require.True(t, ok)
		return c.SendString(user.Email)
	})

	req := httptest.NewRequest("GET", "http://example.com/me", nil)
	req.Header.Set("Authorization", "Token "+token.Key)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest("GET", "http://"+other.Domain+"/me", nil)
	req.Header.Set("Authorization", "Token "+token.Key)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, users.TextCodeAuthenticationFailed, decodeError(t, resp).Error.Code)

	req = httptest.NewRequest("GET", "http://example.com/me", nil)
	req.Header.Set("Authorization", "Bearer "+token.Key)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "only the configured scheme is accepted")
}
