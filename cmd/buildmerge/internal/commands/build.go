package commands

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/buildmerge/internal/bundler"
	"github.com/wolfeidau/buildmerge/internal/compose"
	"github.com/wolfeidau/buildmerge/internal/logger"
	"github.com/wolfeidau/buildmerge/internal/telemetry"
)

type BuildCmd struct {
	ProjectFlags `embed:""`
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	stop := setup(ctx, globals)
	defer stop()

	return build(ctx, &c.ProjectFlags)
}

func build(ctx context.Context, flags *ProjectFlags) error {
	log.Logger = logger.ForMode(log.Logger, compose.ModeBuild.String())
	log.Info().Msg("Building bundle")

	_, cfg, err := flags.compose(ctx, compose.ModeBuild)
	if err != nil {
		return err
	}

	b, err := bundler.New(cfg)
	if err != nil {
		return err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "build")
	defer span.End()

	if err := b.Build(ctx); err != nil {
		span.RecordError(err)
		return err
	}

	log.Info().Str("outdir", cfg.Output.Path).Msg("Bundle complete")
	return nil
}
