package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/xhyrom-forks/BunnyPlugins/internal/builder"
	"github.com/xhyrom-forks/BunnyPlugins/internal/config"
	"github.com/xhyrom-forks/BunnyPlugins/internal/scheduler"
	"github.com/xhyrom-forks/BunnyPlugins/internal/watch"
)

// BuildCmd runs one batch over every discovered plugin and exits.
type BuildCmd struct {
	Output  string `short:"o" help:"Output directory override"`
	Workers int    `short:"w" help:"Worker pool size override (0 = CPU count)"`
}

func (b *BuildCmd) Run(_ *Global, cli *CLI) error {
	sigctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if b.Output != "" {
		cfg.Build.OutputDir = b.Output
	}
	if b.Workers > 0 {
		cfg.Build.Workers = b.Workers
	}

	names, err := builder.Discover(cfg.Plugins.Dir, cfg.Plugins.Manifest)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		slog.Info("No plugins to build", "dir", cfg.Plugins.Dir)
		return nil
	}

	pipeline, err := builder.NewExecBuilder(cfg.Build.Command)
	if err != nil {
		return err
	}

	sched := scheduler.New(cfg.WorkerCount(), pipeline)
	defer sched.Shutdown()

	start := time.Now()
	reqs := builder.Requests(names, cfg.Plugins.Dir, cfg.Build.OutputDir)
	if err := sched.StartBatch(sigctx, reqs); err != nil {
		return fmt.Errorf("batch build: %w", err)
	}
	slog.Info("Build finished", "plugins", len(names), "duration", time.Since(start))

	// Record the built names so a running dev daemon (or its clients)
	// observes the change.
	return watch.Write(cfg.Dev.SentinelPath, names)
}
