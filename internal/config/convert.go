package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sadnxai/chatlink/internal/api"
	"github.com/sadnxai/chatlink/internal/connection"
	"github.com/sadnxai/chatlink/internal/devserver"
	"github.com/sadnxai/chatlink/internal/metrics"
)

// ManagerConfig converts the channel section to a connection.ManagerConfig
// dialing wsURL. m may be nil.
func (ch ChannelConfig) ManagerConfig(wsURL string, m *metrics.Collector) connection.ManagerConfig {
	return connection.ManagerConfig{
		URL:                  wsURL,
		RequestTimeout:       ch.RequestTimeout,
		HeartbeatInterval:    ch.HeartbeatInterval,
		ReconnectBaseWait:    ch.ReconnectBaseDelay,
		ReconnectMaxWait:     ch.ReconnectMaxDelay,
		MaxReconnectAttempts: ch.MaxReconnectAttempts,
		WriteTimeout:         ch.WriteTimeout,
		HandshakeTimeout:     ch.HandshakeTimeout,
		MessageBufferSize:    ch.BufferSize,
		Metrics:              m,
	}
}

// ClientOptions returns the REST client options for the api section.
func (a APIConfig) ClientOptions(logger *slog.Logger) []api.ClientOption {
	return []api.ClientOption{
		api.WithTimeout(a.Timeout),
		api.WithRetries(a.MaxRetries, a.RetryBackoff),
		api.WithLogger(logger),
	}
}

// DevServer converts the server section, serving metrics on the same
// listener when enabled.
func (c *Config) DevServer() devserver.Config {
	cfg := devserver.Config{
		ListenAddr:       c.Server.ListenAddr,
		IdlePingInterval: c.Server.IdlePingInterval,
		MaxUploadBytes:   c.Server.MaxUploadBytes,
	}
	if c.Metrics.Enabled {
		cfg.MetricsPath = c.Metrics.Path
	}
	return cfg
}

func (l LogConfig) level() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", l.Level)
}

// NewLogger builds a slog logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
