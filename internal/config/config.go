// Package config provides functionality for managing configuration options
// for the backend using command-line flags, a JSON file and environment
// variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"
)

// Options holds the configuration values for the backend.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string
	// DatabaseDSN holds the database connection string.
	DatabaseDSN string
	// Config is the path to the JSON config file.
	Config string
	// Secret signs access and refresh tokens.
	Secret string
	// AccessTTL is the lifetime of access tokens.
	AccessTTL time.Duration
	// RefreshTTL is the lifetime of refresh tokens.
	RefreshTTL time.Duration
	// LogLevel is a zap level name.
	LogLevel string
	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string
	TLSKey  string
	// CleanInterval is how often expired revocations are purged.
	CleanInterval time.Duration
}

// TLS reports whether the server should listen with HTTPS.
func (o *Options) TLS() bool {
	return o.TLSCert != "" && o.TLSKey != ""
}

// fileOptions mirrors Options in the config file. Durations are strings
// such as "15m".
type fileOptions struct {
	ServerAddress string `json:"server_address"`
	DatabaseDSN   string `json:"database_dsn"`
	Secret        string `json:"jwt_secret"`
	AccessTTL     string `json:"access_ttl"`
	RefreshTTL    string `json:"refresh_ttl"`
	LogLevel      string `json:"log_level"`
	TLSCert       string `json:"tls_cert"`
	TLSKey        string `json:"tls_key"`
	CleanInterval string `json:"clean_interval"`
}

// Parse reads os.Args and the environment, exiting on invalid input.
func Parse() *Options {
	opts, err := Load(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatalf("error while loading config: %v", err)
	}
	return opts
}

// Load builds Options from args, an optional JSON file and env. Later
// sources win: defaults, file, flags, environment.
func Load(args []string, getenv func(string) string) (*Options, error) {
	opts := &Options{}
	fs := flag.NewFlagSet("consultdesk-server", flag.ContinueOnError)
	fs.StringVar(&opts.Port, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&opts.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&opts.Config, "config", "config.json", "path to config file")
	fs.StringVar(&opts.Config, "c", "config.json", "path to config file (shorthand)")
	fs.StringVar(&opts.Secret, "secret", "", "token signing secret")
	fs.DurationVar(&opts.AccessTTL, "access-ttl", 15*time.Minute, "access token lifetime")
	fs.DurationVar(&opts.RefreshTTL, "refresh-ttl", 7*24*time.Hour, "refresh token lifetime")
	fs.StringVar(&opts.LogLevel, "log-level", "info", "log level")
	fs.StringVar(&opts.TLSCert, "tls-cert", "", "TLS certificate file")
	fs.StringVar(&opts.TLSKey, "tls-key", "", "TLS key file")
	fs.DurationVar(&opts.CleanInterval, "clean-interval", time.Hour, "revoked token cleanup interval")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if configPath := getenv("CONFIG"); configPath != "" {
		opts.Config = configPath
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if opts.Config != "" {
		if err := applyFile(opts, opts.Config, set); err != nil {
			return nil, err
		}
	}

	if v := getenv("SERVER_ADDRESS"); v != "" {
		opts.Port = v
	}
	if v := getenv("DATABASE_DSN"); v != "" {
		opts.DatabaseDSN = v
	}
	if v := getenv("JWT_SECRET"); v != "" {
		opts.Secret = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		opts.LogLevel = v
	}

	if opts.Secret == "" {
		return nil, errors.New("token signing secret is required (-secret or JWT_SECRET)")
	}
	for name, d := range map[string]time.Duration{
		"access-ttl":     opts.AccessTTL,
		"refresh-ttl":    opts.RefreshTTL,
		"clean-interval": opts.CleanInterval,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return opts, nil
}

// applyFile fills options not given as flags from the JSON file at path. A
// missing file is not an error.
func applyFile(opts *Options, path string, set map[string]bool) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}
	var f fileOptions
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}

	str := func(flagName, v string, dst *string) {
		if v != "" && !set[flagName] {
			*dst = v
		}
	}
	str("a", f.ServerAddress, &opts.Port)
	str("d", f.DatabaseDSN, &opts.DatabaseDSN)
	str("secret", f.Secret, &opts.Secret)
	str("log-level", f.LogLevel, &opts.LogLevel)
	str("tls-cert", f.TLSCert, &opts.TLSCert)
	str("tls-key", f.TLSKey, &opts.TLSKey)

	dur := func(flagName, v string, dst *time.Duration) error {
		if v == "" || set[flagName] {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config file %s: %w", flagName, err)
		}
		*dst = d
		return nil
	}
	if err := dur("access-ttl", f.AccessTTL, &opts.AccessTTL); err != nil {
		return err
	}
	if err := dur("refresh-ttl", f.RefreshTTL, &opts.RefreshTTL); err != nil {
		return err
	}
	return dur("clean-interval", f.CleanInterval, &opts.CleanInterval)
}
