package config

// DiscordConfig configures the bot session used for egress.
// Token is NEVER read from config.json (secret), only from env.
type DiscordConfig struct {
	Token             string  `json:"-" env:"TOKEN"`
	SendRatePerSecond float64 `json:"send_rate_per_second,omitempty" env:"SEND_RATE"` // proactive per-channel pacing (default 1)
	SendBurst         int     `json:"send_burst,omitempty" env:"SEND_BURST"`          // default 5
	Commands          bool    `json:"commands,omitempty" env:"COMMANDS"`              // register /status /health /uptime
	GuildID           string  `json:"guild_id,omitempty" env:"GUILD_ID"`              // register commands in one guild instead of globally
}

// RoutesConfig maps event kinds to destination channels.
type RoutesConfig struct {
	PullRequestChannel string              `json:"pull_request_channel,omitempty" env:"PR_CHANNEL_ID"`
	ReviewChannel      string              `json:"review_channel,omitempty" env:"REVIEW_CHANNEL_ID"` // defaults to the PR channel
	WorkflowChannel    string              `json:"workflow_channel,omitempty" env:"WORKFLOW_CHANNEL_ID"`
	FallbackChannel    string              `json:"fallback_channel,omitempty" env:"FALLBACK_CHANNEL_ID"`
	PullRequestRoleID  string              `json:"pull_request_role_id,omitempty" env:"PR_ROLE_ID"` // role pinged on newly opened PRs
	PullRequestActions FlexibleStringSlice `json:"pull_request_actions,omitempty" env:"PR_ACTIONS"`
	WorkflowActions    FlexibleStringSlice `json:"workflow_actions,omitempty" env:"WORKFLOW_ACTIONS"`
}

// ChannelFor resolves a configured route, falling back to the fallback
// channel when the specific one is unset.
func (r RoutesConfig) ChannelFor(specific string) string {
	if specific != "" {
		return specific
	}
	return r.FallbackChannel
}

// ReviewTarget returns the configured review channel, or the PR channel
// when no dedicated review channel is set.
func (r RoutesConfig) ReviewTarget() string {
	if r.ReviewChannel != "" {
		return r.ReviewChannel
	}
	return r.PullRequestChannel
}
