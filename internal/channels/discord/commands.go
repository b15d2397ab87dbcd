package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// commandTimeout bounds how long a slash command may take to compose its
// reply. Discord expects an interaction response within 3 seconds.
const commandTimeout = 2500 * time.Millisecond

var commandDefs = []*discordgo.ApplicationCommand{
	{Name: "status", Description: "Show server status"},
	{Name: "health", Description: "Check that the relay is alive"},
	{Name: "uptime", Description: "Show host and relay uptime"},
}

// Commands supplies the data behind the slash commands. Nil functions
// make the corresponding command report that it is unavailable.
type Commands struct {
	Status  func(ctx context.Context) (string, error)
	Uptime  func() (string, error)
	Started time.Time
}

// SetCommands installs the command data sources. Call before Start.
func (c *Channel) SetCommands(cmds Commands) { c.commands = cmds }

func (c *Channel) registerCommands() {
	for _, def := range commandDefs {
		if _, err := c.session.ApplicationCommandCreate(c.botUserID, c.config.GuildID, def); err != nil {
			slog.Warn("discord: register slash command failed", "command", def.Name, "error", err)
		}
	}
}

func (c *Channel) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	name := i.ApplicationCommandData().Name

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	reply := c.commandReply(ctx, name)

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         truncate(reply, maxMessageLen),
			AllowedMentions: allowedMentions(nil),
		},
	})
	if err != nil {
		slog.Warn("discord: interaction response failed", "command", name, "error", err)
	}
}

// commandReply renders the answer to a slash command.
func (c *Channel) commandReply(ctx context.Context, name string) string {
	switch name {
	case "health":
		return "✅ Relay is healthy"
	case "status":
		if c.commands.Status == nil {
			return "Status is not available."
		}
		text, err := c.commands.Status(ctx)
		if err != nil {
			slog.Warn("discord: /status failed", "error", err)
			return "⚠️ Could not collect status."
		}
		return text
	case "uptime":
		relay := ""
		if !c.commands.Started.IsZero() {
			relay = fmt.Sprintf("\nRelay: %s", time.Since(c.commands.Started).Round(time.Second))
		}
		if c.commands.Uptime == nil {
			return "Host uptime is not available." + relay
		}
		up, err := c.commands.Uptime()
		if err != nil {
			slog.Warn("discord: /uptime failed", "error", err)
			return "⚠️ Could not read host uptime." + relay
		}
		return "⏱️ Host: " + up + relay
	default:
		return "Unknown command."
	}
}
