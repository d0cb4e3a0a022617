package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultRegistryURL is used when no registry is configured.
const DefaultRegistryURL = "https://pkg.datapkg.io"

// DefaultTimeout bounds every registry and transfer request.
const DefaultTimeout = 10 * time.Minute

// Environment variables, each overriding the matching config file key.
const (
	EnvRegistryURL = "DATAPKG_URL"        // registry_url
	EnvDataDir     = "DATAPKG_DATA_DIR"   // data_dir
	EnvStorePath   = "DATAPKG_STORE_PATH" // store_path
	EnvTimeout     = "DATAPKG_TIMEOUT"    // timeout
	EnvSentryDSN   = "DATAPKG_SENTRY_DSN" // sentry_dsn
)

const (
	authFileName   = "auth.json"
	indexFileName  = "index.db"
	packageDirName = "packages"
)

// Config is the resolved configuration passed to every component.
type Config struct {
	RegistryURL string
	DataDir     string
	// StorePaths lists extra read-only store roots searched after the
	// primary store.
	StorePaths []string
	Timeout    time.Duration
	SentryDSN  string
}

// Options controls where Load looks for configuration.
type Options struct {
	// ConfigDir holds the key=value "config" file. Empty means Dir().
	ConfigDir string
	// EnvFile is a dotenv file loaded into the environment without
	// overriding variables that are already set. Empty skips it.
	EnvFile string
}

// Load resolves configuration: defaults, then the config file, then the
// dotenv file and environment.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", opts.EnvFile, err)
		}
	}

	configDir := opts.ConfigDir
	if configDir == "" {
		dir, err := Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		configDir = dir
	}

	file, err := LoadFile(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	dataDir, err := DataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}

	cfg := &Config{
		RegistryURL: DefaultRegistryURL,
		DataDir:     dataDir,
		Timeout:     DefaultTimeout,
	}

	if v := lookup(file, "registry_url", EnvRegistryURL); v != "" {
		cfg.RegistryURL = strings.TrimRight(v, "/")
	}
	if v := lookup(file, "data_dir", EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := lookup(file, "store_path", EnvStorePath); v != "" {
		cfg.StorePaths = splitList(v)
	}
	if v := lookup(file, "timeout", EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid timeout %q: must be a positive duration like 30s or 5m", v)
		}
		cfg.Timeout = d
	}
	cfg.SentryDSN = lookup(file, "sentry_dsn", EnvSentryDSN)

	return cfg, nil
}

// AuthFile is the credential record location.
func (c *Config) AuthFile() string {
	return filepath.Join(c.DataDir, authFileName)
}

// IndexPath is the sqlite package index location.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, indexFileName)
}

// StoreDir is the primary, writable package store root.
func (c *Config) StoreDir() string {
	return filepath.Join(c.DataDir, packageDirName)
}

// StoreRoots returns the primary store followed by the extra roots.
func (c *Config) StoreRoots() []string {
	roots := make([]string, 0, len(c.StorePaths)+1)
	roots = append(roots, c.StoreDir())
	for _, p := range c.StorePaths {
		if p != c.StoreDir() {
			roots = append(roots, p)
		}
	}
	return roots
}

// lookup prefers the environment over the config file.
func lookup(file map[string]string, key, env string) string {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v
	}
	return file[key]
}

func splitList(v string) []string {
	var out []string
	for _, p := range filepath.SplitList(v) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
