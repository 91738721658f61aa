// Package config loads the service configuration from defaults, an
// optional JSON or YAML file and USERS_ prefixed environment variables.
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-print"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/v2"

	users "github.com/goliatone/go-users"
)

// EnvPrefix marks the environment variables read by Load. Sections are
// separated by a double underscore, e.g. USERS_AUTH__SIGNING_KEY.
const EnvPrefix = "USERS_"

type App struct {
	Name     string `koanf:"name" json:"name"`
	Env      string `koanf:"env" json:"env"`
	Debug    bool   `koanf:"debug" json:"debug"`
	LogLevel string `koanf:"log_level" json:"log_level"`
}

type Server struct {
	Addr                      string `koanf:"addr" json:"addr"`
	ReadTimeoutExpression     string `koanf:"read_timeout" json:"read_timeout"`
	WriteTimeoutExpression    string `koanf:"write_timeout" json:"write_timeout"`
	ShutdownTimeoutExpression string `koanf:"shutdown_timeout" json:"shutdown_timeout"`
	LoginRateLimit            int    `koanf:"login_rate_limit" json:"login_rate_limit"`
	MediaRoute                string `koanf:"media_route" json:"media_route"`
}

type Persistence struct {
	Driver       string `koanf:"driver" json:"driver"`
	DSN          string `koanf:"dsn" json:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns" json:"max_open_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate" json:"auto_migrate"`
}

type Auth struct {
	SigningKey              string   `koanf:"signing_key" json:"signing_key"`
	Issuer                  string   `koanf:"issuer" json:"issuer"`
	TokenLifespanExpression string   `koanf:"token_lifespan" json:"token_lifespan"`
	AuthSchemes             []string `koanf:"auth_schemes" json:"auth_schemes"`
	MaxLoginAttempts        int      `koanf:"max_login_attempts" json:"max_login_attempts"`
	LockoutPeriodExpression string   `koanf:"lockout_period" json:"lockout_period"`
	DefaultSiteDomain       string   `koanf:"default_site_domain" json:"default_site_domain"`
	DeterministicIDs        bool     `koanf:"deterministic_ids" json:"deterministic_ids"`
}

type Profiles struct {
	AvatarBaseURL string `koanf:"avatar_base_url" json:"avatar_base_url"`
	PhoneRegion   string `koanf:"phone_region" json:"phone_region"`
}

type S3 struct {
	Bucket       string `koanf:"bucket" json:"bucket"`
	Region       string `koanf:"region" json:"region"`
	Endpoint     string `koanf:"endpoint" json:"endpoint"`
	AccessKey    string `koanf:"access_key" json:"access_key"`
	SecretKey    string `koanf:"secret_key" json:"secret_key"`
	PublicURL    string `koanf:"public_url" json:"public_url"`
	UsePathStyle bool   `koanf:"use_path_style" json:"use_path_style"`
}

type Storage struct {
	Driver       string `koanf:"driver" json:"driver"`
	LocalRoot    string `koanf:"local_root" json:"local_root"`
	LocalBaseURL string `koanf:"local_base_url" json:"local_base_url"`
	S3           S3     `koanf:"s3" json:"s3"`
}

// BaseConfig is the complete service configuration
type BaseConfig struct {
	App         App         `koanf:"app" json:"app"`
	Server      Server      `koanf:"server" json:"server"`
	Persistence Persistence `koanf:"persistence" json:"persistence"`
	Auth        Auth        `koanf:"auth" json:"auth"`
	Profiles    Profiles    `koanf:"profiles" json:"profiles"`
	Storage     Storage     `koanf:"storage" json:"storage"`
}

var _ users.Config = (*BaseConfig)(nil)

// Defaults returns the flattened default values
func Defaults() map[string]any {
	return map[string]any{
		"app.name":      "users",
		"app.env":       "development",
		"app.debug":     false,
		"app.log_level": "info",

		"server.addr":             ":8000",
		"server.read_timeout":     "10s",
		"server.write_timeout":    "10s",
		"server.shutdown_timeout": "10s",
		"server.login_rate_limit": 20,
		"server.media_route":      "/media",

		"persistence.driver":         "sqlite",
		"persistence.dsn":            "file:users.db?cache=shared&_pragma=foreign_keys(1)",
		"persistence.max_open_conns": 10,
		"persistence.auto_migrate":   true,

		"auth.issuer":             "users",
		"auth.token_lifespan":     users.DefaultTokenLifespan.String(),
		"auth.auth_schemes":       []string{"Token", "Bearer"},
		"auth.max_login_attempts": users.MaxLoginAttempts,
		"auth.lockout_period":     users.CoolDownPeriod.String(),
		"auth.deterministic_ids":  false,

		"profiles.avatar_base_url": users.DefaultAvatarBaseURL,
		"profiles.phone_region":    users.DefaultPhoneRegion,

		"storage.driver":         "local",
		"storage.local_root":     "media",
		"storage.local_base_url": "/media",
	}
}

// Load reads the configuration. path may be empty; a .json, .yaml or .yml
// file is merged over the defaults and the environment wins over both.
func Load(path string) (*BaseConfig, error) {
	return LoadWithEnv(path, EnvPrefix)
}

// LoadWithEnv is Load with a custom environment prefix
func LoadWithEnv(path, prefix string) (*BaseConfig, error) {
	c := New(&BaseConfig{}).WithConfigPath(path).WithEnvPrefix(prefix)
	if err := c.Load(context.Background()); err != nil {
		return nil, err
	}
	return c.Raw(), nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return json.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
	}
}

// envKey maps USERS_AUTH__SIGNING_KEY to auth.signing_key
func envKey(prefix string) func(string) string {
	return func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}
}

// splitList accepts comma separated values coming from the environment
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c BaseConfig) Validate() error {
	if err := validation.ValidateStruct(&c.Auth,
		validation.Field(&c.Auth.SigningKey, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.Auth.TokenLifespanExpression, validation.Required, validation.By(isDuration)),
		validation.Field(&c.Auth.LockoutPeriodExpression, validation.Required, validation.By(isDuration)),
		validation.Field(&c.Auth.AuthSchemes, validation.Required),
		validation.Field(&c.Auth.MaxLoginAttempts, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("config auth: %w", err)
	}

	if err := validation.ValidateStruct(&c.Persistence,
		validation.Field(&c.Persistence.Driver, validation.Required, validation.In("sqlite", "sqlite3", "postgres", "postgresql", "pg", "pgx")),
		validation.Field(&c.Persistence.DSN, validation.Required),
	); err != nil {
		return fmt.Errorf("config persistence: %w", err)
	}

	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Addr, validation.Required),
		validation.Field(&c.Server.ReadTimeoutExpression, validation.By(isDuration)),
		validation.Field(&c.Server.WriteTimeoutExpression, validation.By(isDuration)),
		validation.Field(&c.Server.ShutdownTimeoutExpression, validation.By(isDuration)),
	); err != nil {
		return fmt.Errorf("config server: %w", err)
	}

	if err := validation.ValidateStruct(&c.Storage,
		validation.Field(&c.Storage.Driver, validation.Required, validation.In("local", "s3")),
	); err != nil {
		return fmt.Errorf("config storage: %w", err)
	}
	if c.Storage.Driver == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("config storage: s3 bucket is required")
	}

	return nil
}

func isDuration(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.ParseDuration(s); err != nil {
		return fmt.Errorf("must be a duration such as 30m")
	}
	return nil
}

func duration(expr string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(expr)
	if err != nil {
		return def
	}
	return d
}

func (c BaseConfig) GetSigningKey() string {
	return c.Auth.SigningKey
}

func (c BaseConfig) GetIssuer() string {
	return c.Auth.Issuer
}

func (c BaseConfig) GetTokenLifespan() time.Duration {
	return duration(c.Auth.TokenLifespanExpression, users.DefaultTokenLifespan)
}

func (c BaseConfig) GetAuthSchemes() []string {
	return c.Auth.AuthSchemes
}

func (c BaseConfig) GetMaxLoginAttempts() int {
	return c.Auth.MaxLoginAttempts
}

func (c BaseConfig) GetLockoutPeriod() time.Duration {
	return duration(c.Auth.LockoutPeriodExpression, users.CoolDownPeriod)
}

func (c BaseConfig) GetDefaultSiteDomain() string {
	return c.Auth.DefaultSiteDomain
}

func (c BaseConfig) GetAvatarBaseURL() string {
	return c.Profiles.AvatarBaseURL
}

func (c BaseConfig) GetPhoneRegion() string {
	return c.Profiles.PhoneRegion
}

func (s Server) GetReadTimeout() time.Duration {
	return duration(s.ReadTimeoutExpression, 10*time.Second)
}

func (s Server) GetWriteTimeout() time.Duration {
	return duration(s.WriteTimeoutExpression, 10*time.Second)
}

func (s Server) GetShutdownTimeout() time.Duration {
	return duration(s.ShutdownTimeoutExpression, 10*time.Second)
}

// Redacted returns a copy safe to print
func (c BaseConfig) Redacted() BaseConfig {
	out := c
	out.Auth.AuthSchemes = append([]string(nil), c.Auth.AuthSchemes...)
	out.Auth.SigningKey = mask(c.Auth.SigningKey)
	out.Storage.S3.SecretKey = mask(c.Storage.S3.SecretKey)
	out.Persistence.DSN = maskDSN(c.Persistence.DSN)
	return out
}

// Dump renders the redacted configuration as indented JSON
func (c BaseConfig) Dump() string {
	return print.MaybePrettyJSON(c.Redacted())
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "********" + dsn[at:]
}
