// Package config loads easlog settings from defaults, an optional YAML
// file, EASLOG_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/cdtdelta/easlog/internal/charset"
	"github.com/cdtdelta/easlog/internal/database"
	"github.com/cdtdelta/easlog/internal/report"
	"github.com/cdtdelta/easlog/internal/source"
)

// Config is the validated configuration of one invocation.
type Config struct {
	Workers  int
	Charsets []charset.Candidate
	Format   string
	Output   string
	Compress source.Compression
	Keep     report.Filter

	Log      LogConfig
	Database DatabaseConfig
	Server   ServerConfig
}

type LogConfig struct {
	Level  slog.Level
	Format string // text or json
}

type DatabaseConfig struct {
	Driver string
	DSN    string // empty disables the database sink for parse
}

type ServerConfig struct {
	Addr string
}

// New returns a viper instance with defaults and environment binding set.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("workers", 4)
	v.SetDefault("charsets", []string{"US-ASCII", "UTF-8", "UTF-16", "ISO-8859-1"})
	v.SetDefault("format", "text")
	v.SetDefault("output", "-")
	v.SetDefault("compress", "none")
	v.SetDefault("keep", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", database.DriverSQLite)
	v.SetDefault("database.dsn", "")
	v.SetDefault("server.addr", ":8080")

	v.SetEnvPrefix("easlog")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile reads the config file at path, or looks for .easlog.yaml in the
// home and working directories when path is empty. A missing default file
// is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".easlog")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// Load validates the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	var errs []error

	cfg := &Config{
		Workers: v.GetInt("workers"),
		Format:  strings.ToLower(v.GetString("format")),
		Output:  v.GetString("output"),
		Keep:    report.ParseKeep(v.GetStringSlice("keep")...),
		Database: DatabaseConfig{
			Driver: strings.ToLower(v.GetString("database.driver")),
			DSN:    v.GetString("database.dsn"),
		},
		Server: ServerConfig{Addr: v.GetString("server.addr")},
	}

	if cfg.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", cfg.Workers))
	}
	if !slices.Contains(report.Formats, cfg.Format) {
		errs = append(errs, fmt.Errorf("unknown format %q (want one of %s)", cfg.Format, strings.Join(report.Formats, ", ")))
	}
	if cfg.Output == "" {
		cfg.Output = "-"
	}

	cands, err := charset.LookupAll(splitList(v.GetStringSlice("charsets")))
	if err != nil {
		errs = append(errs, err)
	} else if len(cands) == 0 {
		errs = append(errs, errors.New("at least one charset is required"))
	}
	cfg.Charsets = cands

	if cfg.Compress, err = source.ParseCompression(v.GetString("compress")); err != nil {
		errs = append(errs, err)
	}

	if !slices.Contains(database.Drivers, cfg.Database.Driver) {
		errs = append(errs, fmt.Errorf("unknown database driver %q", cfg.Database.Driver))
	}

	if err := cfg.Log.Level.UnmarshalText([]byte(v.GetString("log.level"))); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	cfg.Log.Format = strings.ToLower(v.GetString("log.format"))
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", cfg.Log.Format))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the process logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// splitList accepts both repeated values and a single comma separated one,
// as environment variables deliver.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
