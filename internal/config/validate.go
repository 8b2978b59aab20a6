package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := validateURL("api.rest_url", c.API.RestURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("api.ws_url", c.API.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if c.API.MaxRetries > 0 && c.API.RetryBackoff <= 0 {
		return errors.New("api.retry_backoff must be > 0 when retries are enabled")
	}

	if err := c.Channel.validate("channel"); err != nil {
		return err
	}

	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is required")
	}
	if c.Server.IdlePingInterval <= 0 {
		return errors.New("server.idle_ping_interval must be > 0")
	}

	if _, err := c.Log.level(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (ch *ChannelConfig) validate(prefix string) error {
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"request_timeout", ch.RequestTimeout},
		{"heartbeat_interval", ch.HeartbeatInterval},
		{"reconnect_base_delay", ch.ReconnectBaseDelay},
		{"reconnect_max_delay", ch.ReconnectMaxDelay},
		{"write_timeout", ch.WriteTimeout},
		{"handshake_timeout", ch.HandshakeTimeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%s.%s must be > 0", prefix, p.name)
		}
	}

	if ch.ReconnectBaseDelay > ch.ReconnectMaxDelay {
		return fmt.Errorf("%s.reconnect_base_delay (%v) cannot exceed reconnect_max_delay (%v)",
			prefix, ch.ReconnectBaseDelay, ch.ReconnectMaxDelay)
	}
	if ch.MaxReconnectAttempts < 1 {
		return fmt.Errorf("%s.max_reconnect_attempts must be >= 1", prefix)
	}
	if ch.BufferSize < 1 {
		return fmt.Errorf("%s.buffer_size must be >= 1", prefix)
	}
	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be an absolute %v URL, got %q", field, schemes, raw)
}
