package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"github.com/titanous/json5"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "HOOKRELAY_"

// mentionEnvPrefix marks per-user mention variables, e.g.
// GITHUB_NOTIFY_octocat=<@123456789012345678>.
const mentionEnvPrefix = "GITHUB_NOTIFY_"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Discord: DiscordConfig{
			SendRatePerSecond: 1,
			SendBurst:         5,
		},
		Routes: RoutesConfig{
			PullRequestActions: FlexibleStringSlice{"opened", "reopened", "closed", "synchronize", "ready_for_review", "converted_to_draft"},
			WorkflowActions:    FlexibleStringSlice{"completed"},
		},
		Status: StatusConfig{
			Enabled:    true,
			Interval:   "10m",
			Mounts:     FlexibleStringSlice{"/"},
			PurgeLimit: 100,
		},
		Gateway: GatewayConfig{
			Host:          "0.0.0.0",
			Port:          3000,
			WebhookPath:   "/github-webhook",
			RateLimitRPM:  120,
			ShutdownGrace: "10s",
		},
		Dispatch: DispatchConfig{
			QueueSize:      100,
			MaxAttempts:    5,
			RetryBaseDelay: "1s",
			RetryMaxDelay:  "30s",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "hookrelay",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: the relay can run from env alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(os.Environ()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values; HOOKRELAY_* names take
// precedence over the legacy unprefixed names.
func (c *Config) applyEnvOverrides(environ []string) error {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	envStr := func(key string, dst *string) {
		if v := vars[key]; v != "" {
			*dst = v
		}
	}
	envStr("DISCORD_TOKEN", &c.Discord.Token)
	envStr("DISCORD_PR_CHANNEL_ID", &c.Routes.PullRequestChannel)
	envStr("DISCORD_WORKFLOW_CHANNEL_ID", &c.Routes.WorkflowChannel)
	envStr("DISCORD_DEV_ROLE_ID", &c.Routes.PullRequestRoleID)
	envStr("DISCORD_STATUS_CHANNEL_ID", &c.Status.Channel)
	if v := vars["STATUS_UPDATE_INTERVAL_SECS"]; v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Status.Interval = (time.Duration(secs) * time.Second).String()
		}
	}

	if err := env.ParseWithOptions(c, env.Options{
		Prefix:      EnvPrefix,
		Environment: vars,
	}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	for k, v := range vars {
		login, ok := strings.CutPrefix(k, mentionEnvPrefix)
		if !ok || login == "" || v == "" {
			continue
		}
		if c.Mentions == nil {
			c.Mentions = make(map[string]string)
		}
		c.Mentions[login] = v
	}
	return nil
}

// Validate reports every missing or malformed required entry at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Discord.Token == "" {
		errs = append(errs, errors.New("discord token is required (HOOKRELAY_DISCORD_TOKEN)"))
	}
	if c.Discord.SendRatePerSecond < 0 {
		errs = append(errs, errors.New("discord.send_rate_per_second must not be negative"))
	}

	r := c.Routes
	if r.ChannelFor(r.PullRequestChannel) == "" {
		errs = append(errs, errors.New("routes: no channel for pull_request events (set pull_request_channel or fallback_channel)"))
	}
	if r.ChannelFor(r.ReviewTarget()) == "" {
		errs = append(errs, errors.New("routes: no channel for review requests (set review_channel, pull_request_channel or fallback_channel)"))
	}
	if r.ChannelFor(r.WorkflowChannel) == "" {
		errs = append(errs, errors.New("routes: no channel for workflow_run events (set workflow_channel or fallback_channel)"))
	}

	for login, token := range c.Mentions {
		if login == "" || token == "" {
			errs = append(errs, fmt.Errorf("mentions: empty entry %q=%q", login, token))
		}
	}

	if c.Status.Enabled {
		if c.Status.Channel == "" {
			errs = append(errs, errors.New("status.channel is required when status is enabled (HOOKRELAY_STATUS_CHANNEL_ID)"))
		}
		if c.Status.Schedule != "" {
			if !gronx.New().IsValid(c.Status.Schedule) {
				errs = append(errs, fmt.Errorf("status.schedule: invalid cron expression %q", c.Status.Schedule))
			}
		} else if err := checkDuration("status.interval", c.Status.Interval); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port out of range: %d", c.Gateway.Port))
	}
	if !strings.HasPrefix(c.Gateway.WebhookPath, "/") {
		errs = append(errs, fmt.Errorf("gateway.webhook_path must start with /: %q", c.Gateway.WebhookPath))
	} else if c.Gateway.WebhookPath == "/health" {
		errs = append(errs, errors.New("gateway.webhook_path must not be /health"))
	}
	if err := checkDuration("gateway.shutdown_grace", c.Gateway.ShutdownGrace); err != nil {
		errs = append(errs, err)
	}

	if c.Dispatch.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.queue_size must be positive: %d", c.Dispatch.QueueSize))
	}
	if c.Dispatch.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.max_attempts must be positive: %d", c.Dispatch.MaxAttempts))
	}
	if err := checkDuration("dispatch.retry_base_delay", c.Dispatch.RetryBaseDelay); err != nil {
		errs = append(errs, err)
	}
	if err := checkDuration("dispatch.retry_max_delay", c.Dispatch.RetryMaxDelay); err != nil {
		errs = append(errs, err)
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.Protocol {
		case "", "grpc", "http":
		default:
			errs = append(errs, fmt.Errorf("telemetry.protocol must be grpc or http: %q", c.Telemetry.Protocol))
		}
	}

	return errors.Join(errs...)
}

// checkDuration accepts an empty value (the default applies) or a
// positive Go duration.
func checkDuration(field, s string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive: %s", field, s)
	}
	return nil
}
