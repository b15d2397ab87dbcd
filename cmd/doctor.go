package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/hookrelay/internal/channels/discord"
	"github.com/nextlevelbuilder/hookrelay/internal/config"
	"github.com/nextlevelbuilder/hookrelay/internal/events"
	"github.com/nextlevelbuilder/hookrelay/internal/mention"
	"github.com/nextlevelbuilder/hookrelay/internal/sysstat"
)

func doctorCmd() *cobra.Command {
	var online bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and environment health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context(), online)
		},
	}
	cmd.Flags().BoolVar(&online, "online", false, "also verify the Discord bot token against the API")
	return cmd
}

func runDoctor(ctx context.Context, online bool) {
	fmt.Println("hookrelay doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	if up, err := hostUptime(); err == nil {
		fmt.Printf("  Host up:  %s\n", up)
	}
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults and env)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Validation:")
	if err := cfg.Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Printf("    ✗ %s\n", line)
		}
	} else {
		fmt.Println("    ✓ OK")
	}

	// Routes
	routes := events.RoutesFromConfig(cfg.Routes)
	fmt.Println()
	fmt.Println("  Routes:")
	for _, k := range []events.Kind{events.KindPullRequest, events.KindReviewRequested, events.KindWorkflowRun} {
		checkRoute(k.String(), routes.ChannelFor(k))
	}
	if routes.PullRequestRole != "" {
		fmt.Printf("    %-18s %s (on opened)\n", "PR role:", routes.PullRequestRole)
	}

	// Mentions
	fmt.Println()
	dir, err := mention.NewDirectory(cfg.Mentions)
	if err != nil {
		fmt.Printf("  Mentions: INVALID (%s)\n", err)
	} else {
		fmt.Printf("  Mentions: %d\n", dir.Len())
		for _, u := range dir.Usernames() {
			fmt.Printf("    - %s\n", u)
		}
	}

	// Status
	fmt.Println()
	fmt.Println("  Status message:")
	if !cfg.Status.Enabled {
		fmt.Printf("    %-18s disabled\n", "State:")
	} else {
		fmt.Printf("    %-18s %s\n", "Channel:", orMissing(cfg.Status.Channel))
		if sched, err := statusSchedule(cfg.Status); err != nil {
			fmt.Printf("    %-18s INVALID (%s)\n", "Schedule:", err)
		} else {
			desc := "every " + cfg.Status.StatusInterval().String()
			if cfg.Status.Schedule != "" {
				desc = "cron " + cfg.Status.Schedule
			}
			if next, err := sched.Next(time.Now()); err == nil {
				desc += ", next " + next.Format(time.RFC3339)
			}
			fmt.Printf("    %-18s %s\n", "Schedule:", desc)
		}
		fmt.Printf("    %-18s %s\n", "Mounts:", strings.Join(cfg.Status.Mounts, ", "))
		if _, err := sysstat.HostUptime(); err != nil {
			fmt.Printf("    %-18s %s\n", "Host metrics:", err)
		}
	}

	// Gateway
	fmt.Println()
	fmt.Println("  Gateway:")
	fmt.Printf("    %-18s %s%s\n", "Listen:", cfg.Gateway.Addr(), cfg.Gateway.WebhookPath)
	if cfg.Gateway.WebhookSecret != "" {
		fmt.Printf("    %-18s configured\n", "Webhook secret:")
	} else {
		fmt.Printf("    %-18s NOT SET (signatures not verified)\n", "Webhook secret:")
	}
	fmt.Printf("    %-18s queue %d, %d attempts, %s..%s backoff\n", "Dispatch:",
		cfg.Dispatch.QueueSize, cfg.Dispatch.MaxAttempts, cfg.Dispatch.BaseDelay(), cfg.Dispatch.MaxDelay())
	if cfg.Telemetry.Enabled {
		fmt.Printf("    %-18s %s (%s)\n", "Telemetry:", cfg.Telemetry.Endpoint, cfg.Telemetry.Protocol)
	}

	// Discord
	fmt.Println()
	fmt.Println("  Discord:")
	if cfg.Discord.Token == "" {
		fmt.Printf("    %-18s NOT SET\n", "Token:")
		return
	}
	fmt.Printf("    %-18s %s\n", "Token:", maskToken(cfg.Discord.Token))
	if online {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		user, err := discord.Whoami(checkCtx, cfg.Discord.Token)
		if err != nil {
			fmt.Printf("    %-18s FAILED (%s)\n", "Bot identity:", err)
		} else {
			fmt.Printf("    %-18s %s (%s)\n", "Bot identity:", user.Username, user.ID)
		}
	}
}

func checkRoute(name, channel string) {
	fmt.Printf("    %-18s %s\n", name+":", orMissing(channel))
}

func orMissing(s string) string {
	if s == "" {
		return "NOT SET"
	}
	return s
}

func maskToken(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
