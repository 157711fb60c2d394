package main

import (
	"github.com/alecthomas/kong"
	"github.com/replibridge/replibridge/pkg/runner"
)

var cli struct {
	runner.Run `cmd:"" help:"Run a replication task from an injected JSON config."`
}

func main() {
	ctx := kong.Parse(&cli)
	ctx.FatalIfErrorf(ctx.Run())
}
