// Package database opens the bun connection for the configured driver and
// applies the embedded goose migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options describe how to reach the database.
type Options struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// Open returns a bun.DB for the given driver. SQLite connections are
// limited to a single open connection.
func Open(ctx context.Context, opts Options) (*bun.DB, error) {
	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch normalizeDriver(opts.Driver) {
	case DriverSQLite:
		sqldb, err = sql.Open(sqliteshim.ShimName, opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("db open error: %w", err)
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DriverPostgres:
		sqldb, err = sql.Open("pgx", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("db open error: %w", err)
		}
		if opts.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(opts.MaxOpenConns)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	return db, nil
}

// goose keeps its base FS and dialect in package state.
var gooseMu sync.Mutex

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate runs the migrations found under <root>/<driver> in migrations.
func Migrate(ctx context.Context, db *bun.DB, migrations fs.FS, root string) error {
	driver := DriverSQLite
	gooseDialect := "sqlite3"
	if db.Dialect().Name() == dialect.PG {
		driver = DriverPostgres
		gooseDialect = "pgx"
	}

	sub, err := fs.Sub(migrations, strings.TrimSuffix(root, "/")+"/"+driver)
	if err != nil {
		return fmt.Errorf("migrations lookup error: %w", err)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(sub)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("migration dialect error: %w", err)
	}

	if err := gooseUpContext(ctx, db.DB, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	return nil
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite
	case "postgres", "postgresql", "pg", "pgx":
		return DriverPostgres
	default:
		return driver
	}
}
