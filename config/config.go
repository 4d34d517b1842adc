// Package config reads the server settings from the environment after
// loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables.
const (
	EnvURL          = "SUPABASE_URL"
	EnvServiceKey   = "SUPABASE_SERVICE_ROLE_KEY"
	EnvDBURL        = "SUPABASE_DB_URL"
	EnvSchema       = "SUPABASE_SCHEMA"
	EnvBackend      = "SUPABASE_MCP_BACKEND"
	EnvLogLevel     = "SUPABASE_MCP_LOG_LEVEL"
	EnvLogFile      = "SUPABASE_MCP_LOG_FILE"
	EnvResolveLimit = "SUPABASE_MCP_RESOLVE_LIMIT"
	EnvHTTPTimeout  = "SUPABASE_MCP_HTTP_TIMEOUT"
	EnvKeyring      = "SUPABASE_MCP_KEYRING"
)

// Defaults.
const (
	DefaultSchema       = "public"
	DefaultLogFile      = "supabase_mcp.log"
	DefaultResolveLimit = 100
	DefaultHTTPTimeout  = 30 * time.Second
)

type Backend string

const (
	BackendPostgREST Backend = "postgrest"
	BackendPostgres  Backend = "postgres"
	BackendMemory    Backend = "memory"
)

var (
	ErrMissingCredentials = errors.New("config: " + EnvURL + " and " + EnvServiceKey + " must be set")
	ErrMissingDBURL       = errors.New("config: " + EnvDBURL + " must be set for the postgres backend")
)

type Config struct {
	URL            string
	ServiceRoleKey string
	DBURL          string
	Schema         string
	Backend        Backend
	LogLevel       slog.Level
	LogFile        string
	ResolveLimit   int
	HTTPTimeout    time.Duration
	UseKeyring     bool
}

// Lookup reads one environment variable.
type Lookup func(key string) (string, bool)

// Load reads .env files (a missing file is ignored) and then the process
// environment. Variables already set in the environment win.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env file failed: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, applying defaults. It does not check
// backend requirements; see Validate.
func FromEnv(lookup Lookup) (*Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	c := &Config{
		URL:            get(EnvURL),
		ServiceRoleKey: get(EnvServiceKey),
		DBURL:          get(EnvDBURL),
		Schema:         get(EnvSchema),
		Backend:        Backend(strings.ToLower(get(EnvBackend))),
		LogFile:        DefaultLogFile,
		ResolveLimit:   DefaultResolveLimit,
		HTTPTimeout:    DefaultHTTPTimeout,
	}

	if c.Schema == "" {
		c.Schema = DefaultSchema
	}
	if c.Backend == "" {
		c.Backend = BackendPostgREST
	}

	// an explicitly empty log file disables file logging
	if v, ok := lookup(EnvLogFile); ok {
		c.LogFile = strings.TrimSpace(v)
	}

	if v := get(EnvLogLevel); v != "" {
		if err := c.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("config: invalid %s %q: %w", EnvLogLevel, v, err)
		}
	}

	if v := get(EnvResolveLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("config: invalid %s %q: must be a positive integer", EnvResolveLimit, v)
		}
		c.ResolveLimit = n
	}

	if v := get(EnvHTTPTimeout); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid %s %q: %w", EnvHTTPTimeout, v, err)
		}
		c.HTTPTimeout = d
	}

	if v := get(EnvKeyring); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid %s %q: %w", EnvKeyring, v, err)
		}
		c.UseKeyring = b
	}

	return c, nil
}

// parseDuration accepts Go durations ("45s") and bare seconds ("45").
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, errors.New("must be positive")
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

// Validate checks that the selected backend has what it needs to connect.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendPostgREST:
		if c.URL == "" || c.ServiceRoleKey == "" {
			return ErrMissingCredentials
		}
	case BackendPostgres:
		if c.DBURL == "" {
			return ErrMissingDBURL
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown backend %q (want %s, %s or %s)", c.Backend, BackendPostgREST, BackendPostgres, BackendMemory)
	}
	return nil
}

// LogValue keeps secrets out of logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", string(c.Backend)),
		slog.String("url", c.URL),
		slog.Bool("service_role_key", c.ServiceRoleKey != ""),
		slog.Bool("db_url", c.DBURL != ""),
		slog.String("schema", c.Schema),
		slog.String("log_level", c.LogLevel.String()),
		slog.String("log_file", c.LogFile),
		slog.Int("resolve_limit", c.ResolveLimit),
		slog.Duration("http_timeout", c.HTTPTimeout),
		slog.Bool("keyring", c.UseKeyring),
	)
}
