// Package config parses the server's CLI surface and environment
// variables into a single immutable Config.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every value the CLI surface and environment variables
// in the external interfaces section can set.
type Config struct {
	Port      int
	Host      string
	Webroot   string
	HTTPLog   string
	DebugLog  string
	LogLevel  string
	StartupCmd string

	CookiesKeyfile   string
	CookiesInsecure  bool
	HTTPMaxCacheAge  time.Duration
}

// defaults mirror spec.md's external-interfaces section verbatim.
func defaults() Config {
	return Config{
		Port:     8080,
		Host:     "*",
		Webroot:  ".",
		HTTPLog:  "-",
		DebugLog: "-",
		LogLevel: "INFO",
	}
}

// Parse loads an optional .env file (missing is not an error, matching
// the teacher's tolerant startup), then parses args against flag.
// Positional argument 0, if present, is the port.
func Parse(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	fs := flag.NewFlagSet("instant", flag.ContinueOnError)
	fs.StringVar(&cfg.Host, "host", cfg.Host, "interface to listen on")
	fs.StringVar(&cfg.Host, "h", cfg.Host, "interface to listen on (shorthand)")
	fs.StringVar(&cfg.Webroot, "webroot", cfg.Webroot, "static file webroot")
	fs.StringVar(&cfg.Webroot, "r", cfg.Webroot, "static file webroot (shorthand)")
	fs.StringVar(&cfg.HTTPLog, "http-log", cfg.HTTPLog, "HTTP access log path, - for stderr")
	fs.StringVar(&cfg.DebugLog, "debug-log", cfg.DebugLog, "debug log path, - for stderr")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "minimum log level")
	fs.StringVar(&cfg.LogLevel, "L", cfg.LogLevel, "minimum log level (shorthand)")
	fs.StringVar(&cfg.StartupCmd, "startup-cmd", cfg.StartupCmd, "shell command run before the main loop")
	fs.StringVar(&cfg.StartupCmd, "c", cfg.StartupCmd, "shell command run before the main loop (shorthand)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if rest := fs.Args(); len(rest) > 0 {
		port, err := strconv.Atoi(rest[0])
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", rest[0], err)
		}
		cfg.Port = port
	}

	cfg.CookiesKeyfile = os.Getenv("INSTANT_COOKIES_KEYFILE")
	cfg.CookiesInsecure = os.Getenv("INSTANT_COOKIES_INSECURE") == "yes"

	cfg.HTTPMaxCacheAge = 5 * time.Minute
	if raw := os.Getenv("INSTANT_HTTP_MAXCACHEAGE"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid INSTANT_HTTP_MAXCACHEAGE %q: %w", raw, err)
		}
		cfg.HTTPMaxCacheAge = time.Duration(seconds) * time.Second
	}

	return &cfg, nil
}

// Addr returns the listen address for net/http, translating the
// "*" host sentinel to an empty bind address (all interfaces).
func (c *Config) Addr() string {
	host := c.Host
	if host == "*" {
		host = ""
	}
	return fmt.Sprintf("%s:%d", host, c.Port)
}
