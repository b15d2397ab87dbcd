package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/hookrelay/internal/channels"
	"github.com/nextlevelbuilder/hookrelay/internal/config"
	"github.com/nextlevelbuilder/hookrelay/internal/dispatch"
)

// maxMessageLen is Discord's per-message character limit.
const maxMessageLen = 2000

// restAPI is the subset of *discordgo.Session used for egress.
type restAPI interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// Channel connects to Discord via the Bot API. It posts and deletes
// messages for the dispatch queue and answers a few slash commands.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	rest      restAPI
	config    config.DiscordConfig
	botUserID string // populated on start

	limiters sync.Map // channelID string → *rate.Limiter
	commands Commands
}

// New creates a new Discord channel from config.
func New(cfg config.DiscordConfig) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	// Surface 429s and 5xx to the dispatch worker instead of sleeping or
	// retrying inside the REST call; the worker owns pacing and budgets.
	session.ShouldRetryOnRateLimit = false
	session.MaxRestRetries = 0
	session.Identify.Intents = discordgo.IntentsGuilds

	return newChannel(session, session, cfg), nil
}

func newChannel(session *discordgo.Session, rest restAPI, cfg config.DiscordConfig) *Channel {
	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord"),
		session:     session,
		rest:        rest,
		config:      cfg,
	}
}

// Start opens the Discord gateway connection and registers slash commands.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(c.handleInteraction)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	// Fetch bot identity
	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	if c.config.Commands {
		c.registerCommands()
	}

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)

	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

// BotUserID returns the bot's user ID once connected.
func (c *Channel) BotUserID() string { return c.botUserID }

// Send delivers text to a Discord channel as a single message. Pings are
// allowed only when mention tokens were rendered into the text.
func (c *Channel) Send(ctx context.Context, channelID, text string, mentions []string) (dispatch.MessageRef, error) {
	if channelID == "" {
		return dispatch.MessageRef{}, dispatch.Permanent(fmt.Errorf("empty channel ID for discord send"))
	}
	if err := c.limiter(channelID).Wait(ctx); err != nil {
		return dispatch.MessageRef{}, err
	}

	msg, err := c.rest.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         truncate(text, maxMessageLen),
		AllowedMentions: allowedMentions(mentions),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return dispatch.MessageRef{}, classifyError(err)
	}
	return dispatch.MessageRef{ChannelID: channelID, MessageID: msg.ID}, nil
}

// Delete removes a previously sent message. An already-deleted message
// is not an error.
func (c *Channel) Delete(ctx context.Context, ref dispatch.MessageRef) error {
	if ref.IsZero() {
		return nil
	}
	err := c.rest.ChannelMessageDelete(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete discord message %s: %w", ref.MessageID, classifyError(err))
	}
	return nil
}

// PurgeOwnMessages deletes the bot's own messages among the last limit
// messages in channelID and returns how many were removed. Messages from
// anyone else are left alone.
func (c *Channel) PurgeOwnMessages(ctx context.Context, channelID string, limit int) (int, error) {
	if c.botUserID == "" {
		return 0, fmt.Errorf("discord bot not connected")
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	msgs, err := c.rest.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("list discord messages: %w", classifyError(err))
	}

	deleted := 0
	for _, m := range msgs {
		if m.Author == nil || m.Author.ID != c.botUserID {
			continue
		}
		if err := c.Delete(ctx, dispatch.MessageRef{ChannelID: channelID, MessageID: m.ID}); err != nil {
			slog.Warn("discord: purge delete failed", "channel_id", channelID, "message_id", m.ID, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// limiter returns the proactive send limiter for a channel.
func (c *Channel) limiter(channelID string) *rate.Limiter {
	if l, ok := c.limiters.Load(channelID); ok {
		return l.(*rate.Limiter)
	}
	limit := rate.Inf
	if c.config.SendRatePerSecond > 0 {
		limit = rate.Limit(c.config.SendRatePerSecond)
	}
	burst := c.config.SendBurst
	if burst <= 0 {
		burst = 1
	}
	l, _ := c.limiters.LoadOrStore(channelID, rate.NewLimiter(limit, burst))
	return l.(*rate.Limiter)
}

// allowedMentions restricts pings to users and roles when the message
// carries mention tokens, and disables them otherwise.
func allowedMentions(mentions []string) *discordgo.MessageAllowedMentions {
	if len(mentions) == 0 {
		return &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}
	}
	return &discordgo.MessageAllowedMentions{
		Parse: []discordgo.AllowedMentionType{
			discordgo.AllowedMentionTypeUsers,
			discordgo.AllowedMentionTypeRoles,
		},
	}
}

// truncate cuts s to at most max characters, marking the cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}

// Whoami resolves the bot identity for token without opening the gateway
// connection. Used by the doctor command.
func Whoami(ctx context.Context, token string) (*discordgo.User, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.MaxRestRetries = 0
	user, err := session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch discord bot identity: %w", classifyError(err))
	}
	return user, nil
}
