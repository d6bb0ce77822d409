package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/xhyrom-forks/BunnyPlugins/internal/config"
	"github.com/xhyrom-forks/BunnyPlugins/internal/daemon"
)

// DevCmd starts the dev daemon: an initial full build, the websocket
// dev-sync server, and the sentinel watcher, until interrupted.
type DevCmd struct {
	Port int `short:"p" help:"Dev server port override"`
}

func (d *DevCmd) Run(_ *Global, cli *CLI) error {
	sigctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if d.Port > 0 {
		cfg.Dev.Port = d.Port
	}

	dm, err := daemon.New(cfg)
	if err != nil {
		return err
	}
	return dm.Run(sigctx)
}
