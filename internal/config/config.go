// Package config provides configuration loading and management for reposync.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for all reposync environment variables.
const EnvPrefix = "REPOSYNC"

const (
	// DefaultCatalogPath is the default location of the grouping document.
	DefaultCatalogPath = "REPOS.md"

	// DefaultWorkers is the default maximum number of concurrent workers per wave.
	DefaultWorkers = 5

	// DefaultAPIBaseURL is the GitHub REST API endpoint.
	DefaultAPIBaseURL = "https://api.github.com"

	// DefaultListingCap bounds how many repositories the bulk listing resolves.
	DefaultListingCap = 1000
)

// Config represents the effective runtime configuration.
type Config struct {
	// Root is the mirror root directory; repositories live under <Root>/repos.
	Root string `yaml:"root,omitempty"`

	// CatalogPath is the path to the grouping document.
	CatalogPath string `yaml:"catalog,omitempty"`

	// Workers is the maximum number of concurrent workers per wave.
	Workers int `yaml:"workers,omitempty"`

	// Owner overrides the assumed owner; defaults to the authenticated identity.
	Owner string `yaml:"owner,omitempty"`

	// Token authenticates against the source control provider.
	Token string `yaml:"token,omitempty"`

	// APIBaseURL is the provider API endpoint, overridable for tests.
	APIBaseURL string `yaml:"apiBaseURL,omitempty"`

	// ListingCap bounds the bulk remote listing.
	ListingCap int `yaml:"listingCap,omitempty"`
}

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path      string
	overrides []func(*Config)
}

// WithSettingsPath loads configuration from a YAML settings file
func WithSettingsPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// WithRoot overrides the mirror root directory.
func WithRoot(root string) Option {
	return override(func(c *Config) {
		if root != "" {
			c.Root = root
		}
	})
}

// WithCatalogPath overrides the grouping document path.
func WithCatalogPath(path string) Option {
	return override(func(c *Config) {
		if path != "" {
			c.CatalogPath = path
		}
	})
}

// WithWorkers overrides the per-wave worker bound.
func WithWorkers(n int) Option {
	return override(func(c *Config) {
		if n > 0 {
			c.Workers = n
		}
	})
}

// WithOwner overrides the assumed owner.
func WithOwner(owner string) Option {
	return override(func(c *Config) {
		if owner != "" {
			c.Owner = owner
		}
	})
}

// WithToken sets the provider API token.
func WithToken(token string) Option {
	return override(func(c *Config) {
		if token != "" {
			c.Token = token
		}
	})
}

func override(f func(*Config)) Option {
	return func(cfg *loaderConfig) error {
		cfg.overrides = append(cfg.overrides, f)
		return nil
	}
}

// Load builds the effective configuration: defaults, then the optional
// settings file, then explicit overrides, in that order.
func Load(opts ...Option) (*Config, error) {
	lc := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(lc); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Root:        ".",
		CatalogPath: DefaultCatalogPath,
		Workers:     DefaultWorkers,
		APIBaseURL:  DefaultAPIBaseURL,
		ListingCap:  DefaultListingCap,
	}

	if lc.path != "" {
		data, err := os.ReadFile(lc.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse settings file: %w", err)
		}
		cfg.applyFileDefaults()
	}

	for _, f := range lc.overrides {
		f(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFileDefaults restores defaults the settings file zeroed out.
func (c *Config) applyFileDefaults() {
	if c.Root == "" {
		c.Root = "."
	}
	if c.CatalogPath == "" {
		c.CatalogPath = DefaultCatalogPath
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.ListingCap == 0 {
		c.ListingCap = DefaultListingCap
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root directory is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.ListingCap < 1 {
		return fmt.Errorf("listingCap must be at least 1, got %d", c.ListingCap)
	}
	return nil
}

// ReposDir returns the directory that holds all group directories.
func (c *Config) ReposDir() string {
	return filepath.Join(c.Root, "repos")
}
