// Package server assembles the fiber application serving the users and
// ledger APIs.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	users "github.com/goliatone/go-users"
	"github.com/goliatone/go-users/activitymap"
	"github.com/goliatone/go-users/config"
	"github.com/goliatone/go-users/ledger"
	"github.com/goliatone/go-users/logging"
	"github.com/goliatone/go-users/storage"
)

// ErrTooManyRequests is returned when the login rate limit is reached
var ErrTooManyRequests = goerrors.New("request was throttled", goerrors.CategoryRateLimit).
	WithTextCode("throttled").
	WithCode(fiber.StatusTooManyRequests)

// Server owns the fiber application and its dependencies
type Server struct {
	app    *fiber.App
	cfg    *config.BaseConfig
	repo   users.RepositoryManager
	issuer *users.TokenIssuer
	logger users.Logger

	clock     users.Clock
	blobs     users.BlobStore
	activity  users.ActivitySink
	accessLog io.Writer
}

type Option func(*Server)

// WithClock injects the clock used by every time dependent component
func WithClock(c users.Clock) Option {
	return func(s *Server) {
		s.clock = c
	}
}

// WithBlobStore overrides the configured avatar storage
func WithBlobStore(b users.BlobStore) Option {
	return func(s *Server) {
		s.blobs = b
	}
}

// WithActivitySink records account events somewhere other than the log
func WithActivitySink(sink users.ActivitySink) Option {
	return func(s *Server) {
		s.activity = sink
	}
}

// WithAccessLog sets the request log output. A nil writer disables it.
func WithAccessLog(w io.Writer) Option {
	return func(s *Server) {
		s.accessLog = w
	}
}

// New wires repositories, services and routes on top of db
func New(ctx context.Context, cfg *config.BaseConfig, db *bun.DB, logger users.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config is required")
	}

	if logger == nil {
		logger = logging.New(os.Stdout, cfg.App.LogLevel)
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		accessLog: os.Stdout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.activity == nil {
		s.activity = activitymap.NewLogSink(logger, activitymap.WithClock(s.clock))
	}

	if s.blobs == nil {
		blobs, err := newBlobStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.blobs = blobs
	}

	s.repo = users.NewRepositoryManager(db, users.WithUsersClock(s.clock))
	if err := s.repo.Validate(); err != nil {
		return nil, err
	}

	keys := users.NewTokenService([]byte(cfg.GetSigningKey()), cfg.GetIssuer(), logger).
		WithClock(s.clock)

	s.issuer = users.NewTokenIssuer(s.repo, keys, cfg.GetTokenLifespan(),
		users.WithIssuerClock(s.clock),
		users.WithIssuerLogger(logger),
		users.WithIssuerActivitySink(s.activity),
	)

	provider := users.NewUserProvider(s.repo.Users()).
		WithLogger(logger).
		WithClock(s.clock).
		WithLockout(cfg.GetMaxLoginAttempts(), cfg.GetLockoutPeriod())

	auther := users.NewAuthenticator(s.repo.Users(), s.issuer).
		WithUserProvider(provider).
		WithLogger(logger).
		WithClock(s.clock).
		WithActivitySink(s.activity)

	accounts := users.NewAccounts(s.repo, s.issuer,
		users.WithAccountsLogger(logger),
		users.WithAccountsActivitySink(s.activity),
		users.WithAccountsClock(s.clock),
		users.WithBlobStore(s.blobs),
		users.WithPhoneRegion(cfg.GetPhoneRegion()),
		users.WithDeterministicIDs(cfg.Auth.DeterministicIDs),
	)

	usersController := users.NewUsersController(accounts, auther, s.issuer,
		users.WithControllerLogger(logger),
		users.WithControllerDebug(cfg.App.Debug),
		users.WithRepresenter(users.Representer{AvatarBaseURL: cfg.GetAvatarBaseURL()}),
	)

	ledgerController := ledger.NewController(ledger.NewService(ledger.NewRepository(db),
		ledger.WithLogger(logger),
		ledger.WithClock(s.clock),
	))

	s.app = fiber.New(fiber.Config{
		AppName:       cfg.App.Name,
		ErrorHandler:  users.NewErrorHandler(logger),
		StrictRouting: false,
		ReadTimeout:   cfg.Server.GetReadTimeout(),
		WriteTimeout:  cfg.Server.GetWriteTimeout(),
		BodyLimit:     int(users.MaxAvatarSize) + 1<<20,
	})

	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	if s.accessLog != nil {
		s.app.Use(fiberlogger.New(fiberlogger.Config{
			Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
			Output: s.accessLog,
		}))
	}

	if cfg.Storage.Driver == "local" && cfg.Server.MediaRoute != "" {
		s.app.Static(cfg.Server.MediaRoute, cfg.Storage.LocalRoot)
	}

	s.app.Get("/v1/status/ping", Ping).Name("status.ping")

	sites := users.NewSiteResolver(s.repo.Sites(), cfg.GetDefaultSiteDomain(), logger)
	v1 := s.app.Group("/v1", sites.Middleware())
	protected := users.ProtectedRoute(s.issuer, cfg.GetAuthSchemes())

	usersGroup := v1.Group("/users")
	if cfg.Server.LoginRateLimit > 0 {
		usersGroup.Use(usersController.Routes.Login, limiter.New(limiter.Config{
			Max:        cfg.Server.LoginRateLimit,
			Expiration: time.Minute,
			Next: func(c *fiber.Ctx) bool {
				return c.Method() != fiber.MethodPost
			},
			LimitReached: func(c *fiber.Ctx) error {
				return ErrTooManyRequests
			},
		}))
	}
	usersController.RegisterRoutes(usersGroup, protected)
	ledgerController.RegisterRoutes(v1, protected)

	return s, nil
}

func newBlobStore(ctx context.Context, cfg *config.BaseConfig) (users.BlobStore, error) {
	switch cfg.Storage.Driver {
	case "s3":
		s3cfg := cfg.Storage.S3
		return storage.NewS3(ctx, storage.S3Options{
			Bucket:       s3cfg.Bucket,
			Region:       s3cfg.Region,
			Endpoint:     s3cfg.Endpoint,
			AccessKey:    s3cfg.AccessKey,
			SecretKey:    s3cfg.SecretKey,
			PublicURL:    s3cfg.PublicURL,
			UsePathStyle: s3cfg.UsePathStyle,
		})
	case "", "local":
		return storage.NewLocal(cfg.Storage.LocalRoot, cfg.Storage.LocalBaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

// Ping reports that the process is serving requests
func Ping(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "pong"})
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Repository() users.RepositoryManager {
	return s.repo
}

// Serve listens on the configured address until ctx is cancelled, then
// shuts down within the configured timeout.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.cfg.Server.Addr)
		errCh <- s.app.Listen(s.cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	if err := s.app.ShutdownWithTimeout(s.cfg.Server.GetShutdownTimeout()); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-errCh
}
