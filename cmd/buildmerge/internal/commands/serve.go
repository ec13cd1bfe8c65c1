package commands

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/buildmerge/internal/bundler"
	"github.com/wolfeidau/buildmerge/internal/compose"
	"github.com/wolfeidau/buildmerge/internal/logger"
)

type ServeCmd struct {
	ProjectFlags `embed:""`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	stop := setup(ctx, globals)
	defer stop()

	return serve(ctx, &c.ProjectFlags)
}

func serve(ctx context.Context, flags *ProjectFlags) error {
	log.Logger = logger.ForMode(log.Logger, compose.ModeDevelopment.String())
	log.Info().Msg("Using dev server")

	_, cfg, err := flags.compose(ctx, compose.ModeDevelopment)
	if err != nil {
		return err
	}

	b, err := bundler.New(cfg)
	if err != nil {
		return err
	}

	return b.Serve(ctx)
}
