// Package daemon wires the dev mode together: the build scheduler, the
// catch-up broadcaster, the websocket server, and the sentinel watcher. The
// scheduler and broadcaster never call each other; they are driven by
// independent external events (a batch-build request vs. a sentinel change)
// and run concurrently.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/xhyrom-forks/BunnyPlugins/internal/announce"
	"github.com/xhyrom-forks/BunnyPlugins/internal/builder"
	"github.com/xhyrom-forks/BunnyPlugins/internal/catchup"
	"github.com/xhyrom-forks/BunnyPlugins/internal/config"
	"github.com/xhyrom-forks/BunnyPlugins/internal/metrics"
	"github.com/xhyrom-forks/BunnyPlugins/internal/scheduler"
	"github.com/xhyrom-forks/BunnyPlugins/internal/server"
	"github.com/xhyrom-forks/BunnyPlugins/internal/watch"
)

// Daemon owns the long-running dev-mode components.
type Daemon struct {
	cfg       *config.Config
	sched     *scheduler.Scheduler
	bcast     *catchup.Broadcaster
	srv       *server.Server
	watcher   *watch.SentinelWatcher
	announcer *announce.Publisher
	workers   workerGroup
	cron      gocron.Scheduler
}

// New assembles a daemon from the configuration. The build pipeline command
// comes from config; tests inject their own builder via NewWithBuilder.
func New(cfg *config.Config) (*Daemon, error) {
	pipeline, err := builder.NewExecBuilder(cfg.Build.Command)
	if err != nil {
		return nil, err
	}
	return NewWithBuilder(cfg, pipeline)
}

// NewWithBuilder assembles a daemon around an explicit pipeline implementation.
func NewWithBuilder(cfg *config.Config, pipeline scheduler.Builder) (*Daemon, error) {
	var rec metrics.Recorder = metrics.NoopRecorder{}
	var reg *prom.Registry
	if cfg.Metrics.Enabled {
		reg = prom.NewRegistry()
		rec = metrics.NewPrometheusRecorder(reg)
	}

	announcer, err := announce.New(cfg.NATS)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:       cfg,
		sched:     scheduler.New(cfg.WorkerCount(), pipeline, scheduler.WithRecorder(rec)),
		bcast:     catchup.New(catchup.WithHeartbeatInterval(cfg.HeartbeatInterval()), catchup.WithRecorder(rec)),
		announcer: announcer,
	}
	d.srv = server.New(cfg, d.bcast, reg)

	d.watcher, err = watch.NewSentinelWatcher(cfg.Dev.SentinelPath, cfg.DebounceDelay(), d.onSentinelChange)
	if err != nil {
		announcer.Close()
		return nil, err
	}
	return d, nil
}

// Run starts every component and blocks until ctx is canceled, then shuts
// down. The sentinel file exists (empty) for the whole lifetime of the
// process and is deleted on clean exit.
func (d *Daemon) Run(ctx context.Context) error {
	if err := watch.Init(d.cfg.Dev.SentinelPath); err != nil {
		return err
	}
	defer func() {
		if err := watch.Cleanup(d.cfg.Dev.SentinelPath); err != nil {
			slog.Error("Sentinel cleanup failed", "error", err)
		}
	}()

	if err := d.srv.Start(ctx); err != nil {
		return err
	}
	if err := d.watcher.Start(ctx); err != nil {
		return err
	}
	if err := d.startCron(ctx); err != nil {
		return err
	}

	slog.Info("Dev daemon running",
		"plugins_dir", d.cfg.Plugins.Dir,
		"sentinel", d.cfg.Dev.SentinelPath,
		"workers", d.sched.PoolSize())

	// Initial full build so clients have artifacts to fetch.
	d.workers.Go(func() {
		if err := d.BuildAll(ctx); err != nil {
			slog.Error("Initial build failed", "error", err)
		}
	})

	<-ctx.Done()
	return d.shutdown()
}

// BuildAll discovers every plugin and runs one batch over the pool. On
// success the sentinel is rewritten with the built names, which is what
// drives connected and disconnected clients' catch-up state.
func (d *Daemon) BuildAll(ctx context.Context) error {
	names, err := builder.Discover(d.cfg.Plugins.Dir, d.cfg.Plugins.Manifest)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		slog.Info("No plugins discovered", "dir", d.cfg.Plugins.Dir)
		return nil
	}

	d.announcer.BatchStarted(names)
	start := time.Now()
	reqs := builder.Requests(names, d.cfg.Plugins.Dir, d.cfg.Build.OutputDir)
	if err := d.sched.StartBatch(ctx, reqs); err != nil {
		d.announcer.BatchFailed(err)
		return fmt.Errorf("batch build: %w", err)
	}
	d.announcer.BatchCompleted(names, time.Since(start))

	if err := watch.Write(d.cfg.Dev.SentinelPath, names); err != nil {
		return err
	}
	return nil
}

// onSentinelChange runs on the watch goroutine after each debounced
// sentinel change.
func (d *Daemon) onSentinelChange(names []string) {
	d.announcer.PluginsChanged(names)
	d.bcast.NotifyChanged(names)
}

func (d *Daemon) startCron(ctx context.Context) error {
	interval := d.cfg.RebuildInterval()
	if interval <= 0 {
		return nil
	}
	cron, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create rebuild scheduler: %w", err)
	}
	_, err = cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := d.BuildAll(ctx); err != nil {
				slog.Error("Scheduled rebuild failed", "error", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule periodic rebuild: %w", err)
	}
	d.cron = cron
	cron.Start()
	slog.Info("Periodic rebuild scheduled", "every", interval)
	return nil
}

func (d *Daemon) shutdown() error {
	slog.Info("Shutting down dev daemon")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if d.cron != nil {
		if err := d.cron.Shutdown(); err != nil {
			slog.Error("Rebuild scheduler shutdown failed", "error", err)
		}
	}
	if err := d.watcher.Close(); err != nil {
		slog.Error("Sentinel watcher close failed", "error", err)
	}
	d.bcast.Shutdown()
	if err := d.srv.Stop(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	d.sched.Shutdown()
	d.announcer.Close()
	return d.workers.StopAndWait(shutdownCtx)
}
