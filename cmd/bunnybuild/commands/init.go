package commands

import (
	"fmt"
	"log/slog"
	"os"
)

// InitCmd writes a starter configuration file.
type InitCmd struct {
	Force bool `help:"Overwrite existing configuration file"`
}

const starterConfig = `# bunnybuild configuration
plugins:
  dir: ./plugins
  manifest: manifest.json

build:
  output_dir: ./dist
  # workers: 0 means one worker per CPU
  workers: 0
  # The external bundler invocation; it receives BUNNY_PLUGIN,
  # BUNNY_PLUGIN_DIR and BUNNY_OUT_DIR in its environment.
  command: ["node", "scripts/build.mjs"]

dev:
  host: 127.0.0.1
  port: 7270
  heartbeat_interval: 20s
  debounce: 50ms
  # rebuild_every: 30m

# nats:
#   enabled: true
#   url: nats://localhost:4222
#   subject: bunnybuild.events

# metrics:
#   enabled: true
#   path: /metrics
`

func (i *InitCmd) Run(_ *Global, cli *CLI) error {
	if _, err := os.Stat(cli.Config); err == nil && !i.Force {
		return fmt.Errorf("configuration file %s already exists (use --force to overwrite)", cli.Config)
	}
	if err := os.WriteFile(cli.Config, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	slog.Info("Configuration written", "path", cli.Config)
	return nil
}
