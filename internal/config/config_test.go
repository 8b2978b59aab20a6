package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
api:
  rest_url: https://chat.example.com/api
  ws_url: wss://chat.example.com/api/ws
channel:
  request_timeout: 10s
  heartbeat_interval: 15s
  max_reconnect_attempts: 4
log:
  level: debug
  format: json
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.RestURL != "https://chat.example.com/api" {
		t.Errorf("API.RestURL = %q, want %q", cfg.API.RestURL, "https://chat.example.com/api")
	}
	if cfg.Channel.RequestTimeout != 10*time.Second {
		t.Errorf("Channel.RequestTimeout = %v, want %v", cfg.Channel.RequestTimeout, 10*time.Second)
	}
	if cfg.Channel.HeartbeatInterval != 15*time.Second {
		t.Errorf("Channel.HeartbeatInterval = %v, want %v", cfg.Channel.HeartbeatInterval, 15*time.Second)
	}
	if cfg.Channel.MaxReconnectAttempts != 4 {
		t.Errorf("Channel.MaxReconnectAttempts = %d, want 4", cfg.Channel.MaxReconnectAttempts)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
	// Load alone applies no defaults.
	if cfg.Channel.BufferSize != 0 {
		t.Errorf("Channel.BufferSize = %d, want 0", cfg.Channel.BufferSize)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Errorf("Load() error = %v, want read error", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTempFile(t, "api: [unclosed")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("Load() error = %v, want parse error", err)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_CHAT_HOST", "chat.internal:9000")

	yaml := `
api:
  rest_url: http://${TEST_CHAT_HOST}/api
  ws_url: ws://${TEST_CHAT_HOST}/api/ws
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.WSURL != "ws://chat.internal:9000/api/ws" {
		t.Errorf("API.WSURL = %q, want %q", cfg.API.WSURL, "ws://chat.internal:9000/api/ws")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
metrics:
  enabled: true
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.API.RestURL != DefaultRestURL {
		t.Errorf("API.RestURL = %q, want default %q", cfg.API.RestURL, DefaultRestURL)
	}
	if cfg.Channel.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("Channel.RequestTimeout = %v, want default %v", cfg.Channel.RequestTimeout, DefaultRequestTimeout)
	}
	if cfg.Channel.ReconnectMaxDelay != DefaultReconnectMaxDelay {
		t.Errorf("Channel.ReconnectMaxDelay = %v, want default %v", cfg.Channel.ReconnectMaxDelay, DefaultReconnectMaxDelay)
	}
	if cfg.Channel.MaxReconnectAttempts != DefaultMaxReconnectAttempts {
		t.Errorf("Channel.MaxReconnectAttempts = %d, want default %d", cfg.Channel.MaxReconnectAttempts, DefaultMaxReconnectAttempts)
	}
	if cfg.Server.IdlePingInterval != DefaultIdlePingInterval {
		t.Errorf("Server.IdlePingInterval = %v, want default %v", cfg.Server.IdlePingInterval, DefaultIdlePingInterval)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoadAndValidate(t *testing.T) {
	t.Run("empty path uses defaults", func(t *testing.T) {
		cfg, err := LoadAndValidate("")
		if err != nil {
			t.Fatalf("LoadAndValidate failed: %v", err)
		}
		if cfg.API.WSURL != DefaultWSURL {
			t.Errorf("API.WSURL = %q, want %q", cfg.API.WSURL, DefaultWSURL)
		}
	})

	t.Run("invalid file", func(t *testing.T) {
		path := writeTempFile(t, "log:\n  format: xml\n")
		_, err := LoadAndValidate(path)
		if err == nil || !strings.Contains(err.Error(), "validate config: log.format") {
			t.Errorf("LoadAndValidate() error = %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "missing rest url",
			mutate:  func(c *Config) { c.API.RestURL = "" },
			wantErr: "api.rest_url is required",
		},
		{
			name:    "ws url with http scheme",
			mutate:  func(c *Config) { c.API.WSURL = "http://localhost:8000/api/ws" },
			wantErr: `api.ws_url must be an absolute [ws wss] URL, got "http://localhost:8000/api/ws"`,
		},
		{
			name:    "relative rest url",
			mutate:  func(c *Config) { c.API.RestURL = "/api" },
			wantErr: `api.rest_url must be an absolute [http https] URL, got "/api"`,
		},
		{
			name:    "negative heartbeat",
			mutate:  func(c *Config) { c.Channel.HeartbeatInterval = -time.Second },
			wantErr: "channel.heartbeat_interval must be > 0",
		},
		{
			name: "base delay exceeds max",
			mutate: func(c *Config) {
				c.Channel.ReconnectBaseDelay = time.Minute
				c.Channel.ReconnectMaxDelay = time.Second
			},
			wantErr: "channel.reconnect_base_delay (1m0s) cannot exceed reconnect_max_delay (1s)",
		},
		{
			name:    "no reconnect attempts",
			mutate:  func(c *Config) { c.Channel.MaxReconnectAttempts = -1 },
			wantErr: "channel.max_reconnect_attempts must be >= 1",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: `log.level must be debug, info, warn or error, got "trace"`,
		},
		{
			name: "metrics port out of range",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = 70000
			},
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name: "metrics port ignored when disabled",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.Port = 70000
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestManagerConfig(t *testing.T) {
	cfg := Default()
	cfg.Channel.MaxReconnectAttempts = 3

	mc := cfg.Channel.ManagerConfig("ws://chat.test/api/ws", nil)
	if mc.URL != "ws://chat.test/api/ws" {
		t.Errorf("URL = %q", mc.URL)
	}
	if mc.ReconnectBaseWait != DefaultReconnectBaseDelay || mc.ReconnectMaxWait != DefaultReconnectMaxDelay {
		t.Errorf("reconnect waits = %v/%v", mc.ReconnectBaseWait, mc.ReconnectMaxWait)
	}
	if mc.MaxReconnectAttempts != 3 {
		t.Errorf("MaxReconnectAttempts = %d, want 3", mc.MaxReconnectAttempts)
	}
	if mc.MessageBufferSize != DefaultBufferSize {
		t.Errorf("MessageBufferSize = %d, want %d", mc.MessageBufferSize, DefaultBufferSize)
	}
}

func TestDevServer(t *testing.T) {
	cfg := Default()
	if got := cfg.DevServer().MetricsPath; got != "" {
		t.Errorf("MetricsPath = %q with metrics disabled", got)
	}

	cfg.Metrics.Enabled = true
	ds := cfg.DevServer()
	if ds.MetricsPath != DefaultMetricsPath || ds.ListenAddr != DefaultListenAddr {
		t.Errorf("devserver config = %+v", ds)
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("json at warn", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		logger.Info("dropped")
		logger.Warn("kept", "k", "v")

		out := buf.String()
		if strings.Contains(out, "dropped") {
			t.Errorf("info record written at warn level: %s", out)
		}
		if !strings.Contains(out, `"msg":"kept"`) {
			t.Errorf("output = %s, want JSON record", out)
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := LogConfig{Level: "debug", Format: "text"}.NewLogger(&buf)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		logger.Debug("hello")
		if !strings.Contains(buf.String(), "msg=hello") {
			t.Errorf("output = %s", buf.String())
		}
	})

	t.Run("bad level", func(t *testing.T) {
		if _, err := (LogConfig{Level: "loud"}).NewLogger(&bytes.Buffer{}); err == nil {
			t.Error("expected error")
		}
	})
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
