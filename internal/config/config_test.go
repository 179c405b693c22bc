package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvBaseDirectory, EnvPort, EnvDatabasePath, EnvLogLevel, EnvLogFormat, EnvShutdownTimeout} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "urfiles.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
baseDirectory: /srv/icons
port: 9090
logLevel: debug
logFormat: console
shutdownTimeout: 10s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BaseDirectory != "/srv/icons" {
		t.Errorf("BaseDirectory = %q, want %q", cfg.BaseDirectory, "/srv/icons")
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.DatabasePath != filepath.Join("/srv/icons", "urfiles.db") {
		t.Errorf("DatabasePath = %q, want it inside the base directory", cfg.DatabasePath)
	}
	if cfg.Level() != zerolog.DebugLevel {
		t.Errorf("Level() = %v, want %v", cfg.Level(), zerolog.DebugLevel)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "baseDirectory: /srv/icons\nport: 9090\n")
	t.Setenv(EnvBaseDirectory, "/data/icons")
	t.Setenv(EnvPort, "7070")
	t.Setenv(EnvDatabasePath, "/var/lib/urfiles/index.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BaseDirectory != "/data/icons" {
		t.Errorf("BaseDirectory = %q, want %q", cfg.BaseDirectory, "/data/icons")
	}
	if cfg.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Port)
	}
	if cfg.DatabasePath != "/var/lib/urfiles/index.db" {
		t.Errorf("DatabasePath = %q, want %q", cfg.DatabasePath, "/var/lib/urfiles/index.db")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBaseDirectory, "/srv/icons")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != defaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, defaultPort)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, LogFormatJSON)
	}
	if cfg.ShutdownTimeout != defaultShutdownTimeout {
		t.Errorf("ShutdownTimeout = %v, want %v", cfg.ShutdownTimeout, defaultShutdownTimeout)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing base directory",
			config:  "port: 8080\n",
			wantErr: "baseDirectory is required",
		},
		{
			name:    "unknown key",
			config:  "baseDirectory: /srv\nbaseDir: /srv\n",
			wantErr: "failed to parse config",
		},
		{
			name:    "bad log level",
			config:  "baseDirectory: /srv\nlogLevel: loud\n",
			wantErr: "invalid logLevel",
		},
		{
			name:    "bad port in env",
			config:  "baseDirectory: /srv\n",
			env:     map[string]string{EnvPort: "eighty"},
			wantErr: EnvPort,
		},
		{
			name:    "port out of range",
			config:  "baseDirectory: /srv\nport: 70000\n",
			wantErr: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(writeConfig(t, tt.config))
			if err == nil {
				t.Fatalf("Load() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Error("Load() with missing file should fail")
	}
}
