package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
// Discord snowflakes are often pasted as bare numbers.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the relay. It is loaded once at
// startup and never mutated afterwards; components receive the sections
// they need by value.
type Config struct {
	Discord   DiscordConfig     `json:"discord" envPrefix:"DISCORD_"`
	Routes    RoutesConfig      `json:"routes"`
	Mentions  map[string]string `json:"mentions,omitempty"` // GitHub login → pre-formatted mention token
	Status    StatusConfig      `json:"status" envPrefix:"STATUS_"`
	Gateway   GatewayConfig     `json:"gateway"`
	Dispatch  DispatchConfig    `json:"dispatch" envPrefix:"DISPATCH_"`
	Telemetry TelemetryConfig   `json:"telemetry,omitempty" envPrefix:"TELEMETRY_"`
}

// StatusConfig configures the periodic status message.
type StatusConfig struct {
	Enabled      bool                `json:"enabled" env:"ENABLED"`
	Channel      string              `json:"channel,omitempty" env:"CHANNEL_ID"`
	Interval     string              `json:"interval,omitempty" env:"INTERVAL"` // Go duration (default "10m")
	Schedule     string              `json:"schedule,omitempty" env:"SCHEDULE"` // cron expression, overrides interval
	Mounts       FlexibleStringSlice `json:"mounts,omitempty" env:"MOUNTS"`     // filesystems reported in the status text
	PurgeOnStart bool                `json:"purge_on_start,omitempty" env:"PURGE_ON_START"`
	PurgeLimit   int                 `json:"purge_limit,omitempty" env:"PURGE_LIMIT"` // max messages inspected on purge (default 100)
}

// GatewayConfig configures the HTTP listener that receives webhooks.
// WebhookSecret is env-only like every other secret.
type GatewayConfig struct {
	Host          string `json:"host" env:"HOST"`
	Port          int    `json:"port" env:"PORT"`
	WebhookPath   string `json:"webhook_path,omitempty" env:"WEBHOOK_PATH"`
	WebhookSecret string `json:"-" env:"WEBHOOK_SECRET"`
	RateLimitRPM  int    `json:"rate_limit_rpm,omitempty" env:"RATE_LIMIT_RPM"` // per remote address, <= 0 disables
	ShutdownGrace string `json:"shutdown_grace,omitempty" env:"SHUTDOWN_GRACE"` // Go duration (default "10s")
}

// DispatchConfig configures the per-channel delivery queues.
type DispatchConfig struct {
	QueueSize      int    `json:"queue_size,omitempty" env:"QUEUE_SIZE"`             // per channel (default 100)
	MaxAttempts    int    `json:"max_attempts,omitempty" env:"MAX_ATTEMPTS"`         // transient failures before drop (default 5)
	RetryBaseDelay string `json:"retry_base_delay,omitempty" env:"RETRY_BASE_DELAY"` // default "1s"
	RetryMaxDelay  string `json:"retry_max_delay,omitempty" env:"RETRY_MAX_DELAY"`   // default "30s"
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
// When enabled, delivery and status-cycle spans are exported to an
// OTLP-compatible backend (Jaeger, Tempo, Datadog, etc.).
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty" env:"ENABLED"`          // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty" env:"ENDPOINT"`        // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty" env:"PROTOCOL"`        // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty" env:"INSECURE"`        // plaintext transport for local collectors
	ServiceName string            `json:"service_name,omitempty" env:"SERVICE_NAME"` // default "hookrelay"
	Headers     map[string]string `json:"headers,omitempty"`                        // extra headers (e.g. auth tokens for cloud backends)
}

// StatusInterval returns the parsed refresh interval.
func (s StatusConfig) StatusInterval() time.Duration {
	return parseDuration(s.Interval, 10*time.Minute)
}

// Grace returns the shutdown grace period.
func (g GatewayConfig) Grace() time.Duration {
	return parseDuration(g.ShutdownGrace, 10*time.Second)
}

// Addr returns the listen address.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// BaseDelay returns the first retry delay.
func (d DispatchConfig) BaseDelay() time.Duration {
	return parseDuration(d.RetryBaseDelay, time.Second)
}

// MaxDelay returns the retry delay cap.
func (d DispatchConfig) MaxDelay() time.Duration {
	return parseDuration(d.RetryMaxDelay, 30*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
