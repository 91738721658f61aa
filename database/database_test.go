package database_test

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/goliatone/go-users/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := database.Open(context.Background(), database.Options{Driver: "oracle", DSN: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestMigrateSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Options{Driver: "sqlite3", DSN: "file::memory:?cache=shared"})
	require.NoError(t, err)
	defer db.Close()

	migrations := fstest.MapFS{
		"migrations/sqlite/00001_things.sql": &fstest.MapFile{Data: []byte(
			"-- +goose Up\nCREATE TABLE things (id INTEGER PRIMARY KEY, name TEXT);\n" +
				"-- +goose Down\nDROP TABLE things;\n",
		)},
	}

	require.NoError(t, database.Migrate(ctx, db, migrations, "migrations"))

	_, err = db.ExecContext(ctx, "INSERT INTO things (name) VALUES (?)", "one")
	require.NoError(t, err)

	var count int
	require.NoError(t, db.NewSelect().Table("things").ColumnExpr("COUNT(*)").Scan(ctx, &count))
	assert.Equal(t, 1, count)

	// applying twice is a no-op
	require.NoError(t, database.Migrate(ctx, db, migrations, "migrations/"))
}
