package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cdtdelta/easlog/internal/source"
)

func candidateNames(cfg *Config) []string {
	var out []string
	for _, c := range cfg.Charsets {
		out = append(out, c.Name)
	}
	return out
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Workers)
	}
	if cfg.Format != "text" || cfg.Output != "-" || cfg.Compress != source.None {
		t.Errorf("unexpected output defaults: %q %q %q", cfg.Format, cfg.Output, cfg.Compress)
	}
	want := []string{"US-ASCII", "UTF-8", "UTF-16", "ISO-8859-1"}
	if diff := cmp.Diff(want, candidateNames(cfg)); diff != "" {
		t.Errorf("charsets mismatch (-want +got):\n%s", diff)
	}
	if cfg.Log.Level != slog.LevelInfo || cfg.Log.Format != "text" {
		t.Errorf("unexpected log defaults: %v %q", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "" {
		t.Errorf("unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Server.Addr)
	}
	if !cfg.Keep.Empty() {
		t.Error("expected empty keep filter")
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("EASLOG_WORKERS", "8")
	t.Setenv("EASLOG_CHARSETS", "utf-8, latin1")
	t.Setenv("EASLOG_DATABASE_DSN", "/tmp/eas.db")
	t.Setenv("EASLOG_LOG_LEVEL", "debug")

	cfg, err := Load(New())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Workers)
	}
	if diff := cmp.Diff([]string{"UTF-8", "ISO-8859-1"}, candidateNames(cfg)); diff != "" {
		t.Errorf("charsets mismatch (-want +got):\n%s", diff)
	}
	if cfg.Database.DSN != "/tmp/eas.db" {
		t.Errorf("expected DSN from env, got %q", cfg.Database.DSN)
	}
	if cfg.Log.Level != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.Log.Level)
	}
}

func TestReadFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "easlog.yaml")
	content := `workers: 2
format: json
compress: zstd
keep: [DEV1, DEV2]
database:
  driver: postgres
  dsn: postgres://localhost/eas
server:
  addr: 127.0.0.1:9000
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	v := New()
	if err := ReadFile(v, path); err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workers != 2 || cfg.Format != "json" || cfg.Compress != source.Zstd {
		t.Errorf("unexpected values: workers=%d format=%s compress=%s", cfg.Workers, cfg.Format, cfg.Compress)
	}
	if diff := cmp.Diff([]string{"DEV1", "DEV2"}, cfg.Keep.Devices()); diff != "" {
		t.Errorf("keep mismatch (-want +got):\n%s", diff)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://localhost/eas" {
		t.Errorf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("unexpected addr %s", cfg.Server.Addr)
	}
}

func TestReadFile_MissingExplicitFile(t *testing.T) {
	if err := ReadFile(New(), "/nonexistent/easlog.yaml"); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"workers":         "0",
		"format":          "xml",
		"compress":        "xz",
		"charsets":        "klingon",
		"database.driver": "oracle",
		"log.level":       "loud",
		"log.format":      "yaml",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			v := New()
			v.Set(key, value)
			if _, err := Load(v); err == nil {
				t.Errorf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	v := New()
	v.Set("workers", 0)
	v.Set("format", "xml")

	_, err := Load(v)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "workers") || !strings.Contains(err.Error(), "format") {
		t.Errorf("expected both problems in %q", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := LogConfig{Level: slog.LevelWarn, Format: "json"}.NewLogger(&buf)
	log.Info("hidden")
	log.Warn("shown", "path", "a.log")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, `"path":"a.log"`) {
		t.Errorf("expected JSON attributes, got %q", out)
	}
}
