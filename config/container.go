package config

import (
	"context"
	"fmt"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	users "github.com/goliatone/go-users"
)

// Container loads a BaseConfig from defaults, an optional file and the
// environment, later sources winning.
type Container struct {
	cfg    *BaseConfig
	path   string
	prefix string
	logger users.Logger
	k      *koanf.Koanf
}

// New wraps cfg, which Load fills in place
func New(cfg *BaseConfig) *Container {
	if cfg == nil {
		cfg = &BaseConfig{}
	}
	return &Container{
		cfg:    cfg,
		prefix: EnvPrefix,
	}
}

// WithConfigPath sets the .json, .yaml or .yml file to merge. Empty skips it.
func (c *Container) WithConfigPath(path string) *Container {
	c.path = path
	return c
}

func (c *Container) WithEnvPrefix(prefix string) *Container {
	if prefix != "" {
		c.prefix = prefix
	}
	return c
}

func (c *Container) WithLogger(l users.Logger) *Container {
	c.logger = l
	return c
}

// Load merges every source into the wrapped config and validates it
func (c *Container) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return fmt.Errorf("config defaults: %w", err)
	}

	if c.path != "" {
		parser, err := parserFor(c.path)
		if err != nil {
			return err
		}
		if err := k.Load(file.Provider(c.path), parser); err != nil {
			return fmt.Errorf("config file %s: %w", c.path, err)
		}
	}

	if err := k.Load(env.Provider(c.prefix, ".", envKey(c.prefix)), nil); err != nil {
		return fmt.Errorf("config env: %w", err)
	}

	cfg := BaseConfig{}
	if err := k.Unmarshal("", &cfg); err != nil {
		return fmt.Errorf("config decode: %w", err)
	}
	cfg.Auth.AuthSchemes = splitList(cfg.Auth.AuthSchemes)

	if err := cfg.Validate(); err != nil {
		return err
	}

	*c.cfg = cfg
	c.k = k
	if c.logger != nil {
		c.logger.Debug("config loaded", "file", c.path, "env_prefix", c.prefix, "keys", len(k.Keys()))
	}
	return nil
}

// Raw returns the loaded configuration
func (c *Container) Raw() *BaseConfig {
	return c.cfg
}

// String returns the merged value of a dotted key, e.g. "auth.issuer".
// It is empty before Load.
func (c *Container) String(key string) string {
	if c.k == nil {
		return ""
	}
	return c.k.String(key)
}
