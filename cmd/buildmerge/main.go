package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/wolfeidau/buildmerge/cmd/buildmerge/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Run       commands.RunCmd   `cmd:"" default:"withargs" help:"Build or serve depending on the lifecycle event"`
		Build     commands.BuildCmd `cmd:"" help:"Write production bundles"`
		Serve     commands.ServeCmd `cmd:"" help:"Serve the bundle with live reload"`
		Print     commands.PrintCmd `cmd:"" help:"Print the composed configuration"`
		Debug     bool              `help:"Enable debug mode."`
		Telemetry bool              `help:"Export metrics and traces over OTLP." env:"BUILDMERGE_TELEMETRY"`
		Version   kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("buildmerge"),
		kong.Description("Compose a bundler configuration from a baseline and mode fragments, then build or serve it."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Telemetry: cli.Telemetry, Version: version})
	cmd.FatalIfErrorf(err)
}
