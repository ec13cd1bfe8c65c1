package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfeidau/buildmerge/internal/compose"
	"github.com/wolfeidau/buildmerge/internal/logger"
	"github.com/wolfeidau/buildmerge/internal/merge"
	"github.com/wolfeidau/buildmerge/internal/project"
	"github.com/wolfeidau/buildmerge/internal/schema"
	"github.com/wolfeidau/buildmerge/internal/telemetry"
)

const serviceName = "buildmerge"

type Globals struct {
	Debug     bool
	Telemetry bool
	Version   string
}

// ProjectFlags locate the project file and carry the settings that come
// from the command line or environment rather than the project file.
type ProjectFlags struct {
	Config    string `help:"project file (yaml, toml or json)" default:"buildmerge.yaml" env:"BUILDMERGE_CONFIG" type:"path"`
	Host      string `help:"dev server host" default:"" env:"HOST"`
	Port      string `help:"dev server port" default:"" env:"PORT"`
	Conflicts string `help:"how overridden settings are handled (override, report, strict)" default:"override" enum:"override,report,strict" env:"BUILDMERGE_CONFLICTS"`
}

// setup configures logging and, when enabled, telemetry export. The
// returned function flushes telemetry.
func setup(ctx context.Context, globals *Globals) func() {
	log.Logger = logger.Setup(globals.Debug)

	if !globals.Telemetry {
		return func() {}
	}

	shutdown, err := telemetry.InitTelemetry(ctx, serviceName, globals.Version)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}

// loadProject reads the project file. A missing file at the default
// location falls back to the conventional layout next to it.
func (f *ProjectFlags) loadProject() (*project.Config, error) {
	cfg, err := project.Load(f.Config)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	root, absErr := filepath.Abs(filepath.Dir(f.Config))
	if absErr != nil {
		return nil, absErr
	}
	log.Debug().Str("config", f.Config).Str("root", root).Msg("Project file not found, using defaults")
	return project.DefaultConfig(root), nil
}

// options builds composer options from the project file and flags.
func (f *ProjectFlags) options() (compose.Options, error) {
	proj, err := f.loadProject()
	if err != nil {
		return compose.Options{}, err
	}

	opts, err := proj.ComposeOptions()
	if err != nil {
		return compose.Options{}, fmt.Errorf("failed to read project %s: %w", f.Config, err)
	}

	opts.Host = f.Host
	opts.Port = f.Port
	opts.Policy, err = merge.ParsePolicy(f.Conflicts)
	if err != nil {
		return compose.Options{}, err
	}

	return opts, nil
}

// compose folds the configuration for mode and validates the result.
func (f *ProjectFlags) compose(ctx context.Context, mode compose.Mode) (*compose.Result, *schema.Config, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "compose", trace.WithAttributes(attribute.String("mode", mode.String())))
	defer span.End()

	opts, err := f.options()
	if err != nil {
		return nil, nil, err
	}

	result, err := compose.Compose(mode, opts)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	metrics := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("mode", mode.String()))
	metrics.ComposeTotal.Add(ctx, 1, attrs)
	metrics.ComposeFragmentsTotal.Add(ctx, int64(len(result.Fragments)), attrs)
	metrics.ComposeConflictsTotal.Add(ctx, int64(len(result.Conflicts)), attrs)

	for _, c := range result.Conflicts {
		log.Warn().
			Str("path", c.Path).
			Str("fragment", c.Fragment).
			Str("previous", c.Previous).
			Msg("Setting overridden")
	}

	log.Debug().Strs("fragments", result.Fragments).Str("mode", mode.String()).Msg("Composed configuration")

	cfg, err := schema.Validate(result.Config)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	return result, cfg, nil
}
