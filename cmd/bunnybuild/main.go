package main

import (
	"github.com/alecthomas/kong"

	"github.com/xhyrom-forks/BunnyPlugins/cmd/bunnybuild/commands"
	"github.com/xhyrom-forks/BunnyPlugins/internal/version"
)

func main() {
	cli := &commands.CLI{}
	ctx := kong.Parse(cli,
		kong.Name("bunnybuild"),
		kong.Description("Plugin build coordinator and dev-sync server."),
		kong.UsageOnError(),
		kong.Vars{"version": version.Version},
	)
	err := ctx.Run(&commands.Global{}, cli)
	ctx.FatalIfErrorf(err)
}
