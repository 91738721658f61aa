package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/uptrace/bun"
	"golang.org/x/term"

	users "github.com/goliatone/go-users"
	"github.com/goliatone/go-users/config"
	"github.com/goliatone/go-users/database"
	"github.com/goliatone/go-users/logging"
	"github.com/goliatone/go-users/server"
)

const usage = `usage: users-server [-config path] <command> [flags]

commands:
  serve            run the HTTP server (default)
  migrate          apply database migrations
  createsuperuser  create a staff account
`

// readPassword is a seam for term.ReadPassword
var readPassword = term.ReadPassword

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("users-server", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("USERS_CONFIG"), "path to a JSON or YAML config file")
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container := config.New(&config.BaseConfig{}).
		WithConfigPath(*configPath).
		WithLogger(logging.New(os.Stderr, os.Getenv(config.EnvPrefix+"APP__LOG_LEVEL")))
	if err := container.Load(ctx); err != nil {
		return err
	}
	cfg := container.Raw()

	logger := logging.New(os.Stdout, cfg.App.LogLevel)
	if cfg.App.Debug {
		fmt.Println(cfg.Dump())
	}

	db, err := database.Open(ctx, database.Options{
		Driver:       cfg.Persistence.Driver,
		DSN:          cfg.Persistence.DSN,
		MaxOpenConns: cfg.Persistence.MaxOpenConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	command, rest := "serve", []string{}
	if fs.NArg() > 0 {
		command, rest = fs.Arg(0), fs.Args()[1:]
	}

	switch command {
	case "migrate":
		if err := migrate(ctx, db, cfg); err != nil {
			return err
		}
		logger.Info("migrations applied", "driver", cfg.Persistence.Driver)
		return nil
	case "createsuperuser":
		return createSuperuser(ctx, db, cfg, logger, rest)
	case "serve":
		return serve(ctx, db, cfg, logger)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func migrate(ctx context.Context, db *bun.DB, cfg *config.BaseConfig) error {
	return database.Migrate(ctx, db, users.GetMigrationsFS(), users.MigrationsRoot)
}

func serve(ctx context.Context, db *bun.DB, cfg *config.BaseConfig, logger *logging.SlogLogger) error {
	if cfg.Persistence.AutoMigrate {
		if err := migrate(ctx, db, cfg); err != nil {
			return err
		}
	}

	srv, err := server.New(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

func createSuperuser(ctx context.Context, db *bun.DB, cfg *config.BaseConfig, logger *logging.SlogLogger, args []string) error {
	fs := flag.NewFlagSet("createsuperuser", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password, prompted when empty")
	domain := fs.String("site", cfg.GetDefaultSiteDomain(), "site domain the account belongs to")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		return errors.New("createsuperuser: -email is required")
	}
	if *domain == "" {
		return errors.New("createsuperuser: -site is required")
	}

	if *password == "" {
		fmt.Print("Password: ")
		raw, err := readPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("createsuperuser: read password: %w", err)
		}
		*password = strings.TrimSpace(string(raw))
	}

	repo := users.NewRepositoryManager(db)
	site, err := repo.Sites().GetOrCreate(ctx, *domain, *domain)
	if err != nil {
		return fmt.Errorf("createsuperuser: resolve site: %w", err)
	}

	accounts := users.NewAccounts(repo, nil,
		users.WithAccountsLogger(logger),
		users.WithAccountsActivitySink(users.LogActivitySink{Logger: logger}),
		users.WithPhoneRegion(cfg.GetPhoneRegion()),
		users.WithDeterministicIDs(cfg.Auth.DeterministicIDs),
	)

	user, err := accounts.Register(ctx, site, users.RegisterUserMessage{
		Email:    *email,
		Password: *password,
		IsStaff:  true,
	})
	if err != nil {
		return err
	}

	logger.Info("superuser created", "user_id", user.ID.String(), "email", user.Email, "site", site.Domain)
	return nil
}
