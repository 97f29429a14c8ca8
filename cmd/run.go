package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/replyclaw/internal/bot"
	"github.com/nextlevelbuilder/replyclaw/internal/config"
	"github.com/nextlevelbuilder/replyclaw/internal/pipeline"
	"github.com/nextlevelbuilder/replyclaw/internal/state"
	"github.com/nextlevelbuilder/replyclaw/internal/tracing"
	"github.com/nextlevelbuilder/replyclaw/internal/twitter"
	"github.com/nextlevelbuilder/replyclaw/internal/venice"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the reply bot daemon",
		Run: func(cmd *cobra.Command, args []string) {
			runBot()
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

func runBot() {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	bc, sc := cfg.Tunables()

	schedule, err := bot.NewSchedule(sc.Active)
	if err != nil {
		slog.Error("invalid schedule", "error", err)
		os.Exit(1)
	}

	store := state.Open(bc.StateFile)
	slog.Info("state loaded",
		"path", bc.StateFile,
		"processed", store.ProcessedCount(),
		"conversations", store.ConversationCount())

	replyLog, err := state.OpenReplyLog(bc.ReplyLogFile)
	if err != nil {
		slog.Warn("reply log unavailable, continuing without it", "error", err)
		replyLog = nil
	} else {
		defer replyLog.Close()
	}

	api := twitter.NewClient(
		cfg.Twitter.APIBase,
		cfg.Twitter.BearerToken,
		cfg.Twitter.APIKey, cfg.Twitter.APISecret,
		cfg.Twitter.AccessToken, cfg.Twitter.AccessSecret,
	)
	completer := venice.NewClient(cfg.Venice.APIBase, cfg.Venice.APIKey)
	generator := pipeline.New(completer, pipeline.Models{
		Web:     cfg.Venice.WebModel,
		Vision:  cfg.Venice.VisionModel,
		Crafter: cfg.Venice.CrafterModel,
	}, cfg.Venice.Summarize)

	b := bot.New(cfg, api, generator, store, replyLog, schedule)

	slog.Info("replyclaw starting",
		"version", Version,
		"poll_interval_sec", bc.MinPollIntervalSec,
		"max_replies_per_hour", bc.MaxRepliesPerHour,
		"premium", bc.Premium)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Run(ctx)
	})
	g.Go(func() error {
		return watchConfig(ctx, cfgPath, cfg)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("bot stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// watchConfig hot-reloads the tunable config sections when the file
// changes. Credentials are never swapped at runtime.
func watchConfig(ctx context.Context, path string, cfg *config.Config) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
		<-ctx.Done()
		return nil
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		// missing file: env-only config, nothing to watch
		slog.Debug("config file not watched", "path", path, "error", err)
		<-ctx.Done()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			fresh, err := config.Load(path)
			if err != nil {
				slog.Warn("config reload failed, keeping previous tunables", "error", err)
				continue
			}
			cfg.ReplaceTunables(fresh)
			bc, sc := cfg.Tunables()
			slog.Info("tunables reloaded",
				"max_replies_per_hour", bc.MaxRepliesPerHour,
				"schedule", sc.Active)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}
