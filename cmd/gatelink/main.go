package main

import (
	"github.com/alecthomas/kong"

	"github.com/tracklab/gatelink/internal/cli"
)

func main() {
	var root cli.CLI
	ctx := kong.Parse(&root,
		kong.Name("gatelink"),
		kong.Description("BLE client for timing gate sensors"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&root))
}
