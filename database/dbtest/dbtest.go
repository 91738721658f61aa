// Package dbtest opens migrated in-memory databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	users "github.com/goliatone/go-users"
	"github.com/goliatone/go-users/database"
)

// Open returns a private in-memory SQLite database with every migration
// applied. It is closed when the test ends.
func Open(t testing.TB) *bun.DB {
	t.Helper()

	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())

	db, err := database.Open(ctx, database.Options{Driver: database.DriverSQLite, DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db, users.GetMigrationsFS(), users.MigrationsRoot))
	return db
}

// Site registers domain and returns its site.
func Site(t testing.TB, db *bun.DB, domain string) *users.Site {
	t.Helper()

	site, err := users.NewSitesRepository(db).GetOrCreate(context.Background(), domain, domain)
	require.NoError(t, err)
	return site
}

// User stores an active user on site with an unusable password hash.
func User(t testing.TB, db *bun.DB, site *users.Site, email string) *users.User {
	t.Helper()

	user, err := users.NewUsersRepository(db).Register(context.Background(), &users.User{
		Email:        email,
		SiteID:       site.ID,
		IsActive:     true,
		PasswordHash: "unusable",
	})
	require.NoError(t, err)
	return user
}
