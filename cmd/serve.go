package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/hookrelay/internal/channels"
	"github.com/nextlevelbuilder/hookrelay/internal/channels/discord"
	"github.com/nextlevelbuilder/hookrelay/internal/config"
	"github.com/nextlevelbuilder/hookrelay/internal/dispatch"
	"github.com/nextlevelbuilder/hookrelay/internal/events"
	"github.com/nextlevelbuilder/hookrelay/internal/gateway"
	"github.com/nextlevelbuilder/hookrelay/internal/mention"
	"github.com/nextlevelbuilder/hookrelay/internal/status"
	"github.com/nextlevelbuilder/hookrelay/internal/sysstat"
	"github.com/nextlevelbuilder/hookrelay/internal/tracing"
	"github.com/nextlevelbuilder/hookrelay/internal/webhook"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook relay (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func setupLogging() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

func runServe(parent context.Context) error {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", cfgPath, "error", err)
		return err
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "path", cfgPath, "error", err)
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	directory, err := mention.NewDirectory(cfg.Mentions)
	if err != nil {
		return fmt.Errorf("mentions: %w", err)
	}
	classifier := events.NewClassifier(events.RoutesFromConfig(cfg.Routes), directory,
		events.WithPullRequestActions(cfg.Routes.PullRequestActions...),
		events.WithWorkflowActions(cfg.Routes.WorkflowActions...),
		events.WithLogger(slog.Default()),
	)
	slog.Info("mention directory loaded", "entries", directory.Len())

	dc, err := discord.New(cfg.Discord)
	if err != nil {
		return err
	}
	sampler := &sysstat.Sampler{Mounts: cfg.Status.Mounts}
	dc.SetCommands(discord.Commands{
		Status:  status.HostComposer{Sampler: sampler}.Compose,
		Uptime:  hostUptime,
		Started: time.Now(),
	})

	manager := channels.NewManager()
	manager.RegisterChannel(dc.Name(), dc)
	if err := manager.StartAll(ctx); err != nil {
		return err
	}
	defer func() {
		if err := manager.StopAll(context.Background()); err != nil {
			slog.Warn("channel stop failed", "error", err)
		}
	}()

	dispatcher := dispatch.New(dc, dispatch.Options{
		QueueSize: cfg.Dispatch.QueueSize,
		Retry:     dispatch.RetryConfigFromConfig(cfg.Dispatch),
		Tracer:    tracing.Tracer("github.com/nextlevelbuilder/hookrelay/internal/dispatch"),
	})

	var (
		refresher *status.Refresher
		schedule  status.Schedule
	)
	if cfg.Status.Enabled {
		if schedule, err = statusSchedule(cfg.Status); err != nil {
			return err
		}
		opts := status.Options{
			Channel:    cfg.Status.Channel,
			Composer:   status.HostComposer{Sampler: sampler},
			Queue:      dispatcher,
			Deleter:    dc,
			PurgeLimit: cfg.Status.PurgeLimit,
			Tracer:     tracing.Tracer("github.com/nextlevelbuilder/hookrelay/internal/status"),
		}
		if cfg.Status.PurgeOnStart {
			opts.Purger = dc
		}
		refresher = status.NewRefresher(opts)
	}

	hook := webhook.NewHandler(webhook.Options{
		Secret:     cfg.Gateway.WebhookSecret,
		Classifier: classifier,
		Queue:      dispatcher,
		Limiter:    webhook.NewRateLimiter(cfg.Gateway.RateLimitRPM),
		Tracer:     tracing.Tracer("github.com/nextlevelbuilder/hookrelay/internal/webhook"),
	})
	server := gateway.NewServer(cfg.Gateway, hook, func() map[string]any {
		detail := map[string]any{
			"version":  Version,
			"channels": manager.GetStatus(),
			"queues":   dispatcher.Depths(),
		}
		if refresher != nil {
			detail["status_refresher"] = refresher.State().String()
		}
		return detail
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })
	if refresher != nil {
		g.Go(func() error { return refresher.Run(gctx, schedule) })
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("graceful shutdown initiated", "grace", cfg.Gateway.Grace())
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.Grace())
		defer cancel()
		if err := dispatcher.Shutdown(drainCtx); err != nil {
			slog.Warn("dispatch queues not fully drained", "error", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("hookrelay stopped")
	return err
}

// statusSchedule prefers the cron expression over the fixed interval.
func statusSchedule(cfg config.StatusConfig) (status.Schedule, error) {
	if cfg.Schedule != "" {
		return status.Cron(cfg.Schedule)
	}
	return status.Every(cfg.StatusInterval()), nil
}

func hostUptime() (string, error) {
	d, err := sysstat.HostUptime()
	if err != nil {
		return "", err
	}
	return sysstat.FormatUptime(d), nil
}
