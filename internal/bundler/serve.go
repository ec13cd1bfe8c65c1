package bundler

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/buildmerge/internal/telemetry"
)

// Serve rebuilds on change and serves the output directory until ctx is
// cancelled. Live reload is enabled when the configuration carries the hot
// module replacement plugin.
func (b *Bundler) Serve(ctx context.Context) error {
	host, port, err := b.listenAddress()
	if err != nil {
		return err
	}

	opts := b.options
	opts.Plugins = append(append([]api.Plugin{}, b.options.Plugins...), b.rebuildPlugin(ctx))

	buildCtx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		for _, msg := range ctxErr.Errors {
			log.Error().Str("error", msg.Text).Msg("Invalid build options")
		}
		return fmt.Errorf("%w: %d error(s)", ErrBuildFailed, len(ctxErr.Errors))
	}
	defer buildCtx.Dispose()

	if b.liveReload {
		if err := buildCtx.Watch(api.WatchOptions{}); err != nil {
			return fmt.Errorf("failed to watch: %w", err)
		}
	} else {
		buildCtx.Rebuild()
	}

	serveOpts := api.ServeOptions{
		Host:     host,
		Servedir: b.outdir,
	}
	setPort(&serveOpts.Port, port)
	if b.devServer.HistoryAPIFallback {
		serveOpts.Fallback = filepath.Join(b.outdir, indexPage)
	}

	result, err := backoff.Retry(ctx, func() (api.ServeResult, error) {
		res, err := buildCtx.Serve(serveOpts)
		if err != nil {
			log.Warn().Err(err).Str("host", host).Int("port", port).Msg("Failed to start dev server, retrying")
		}
		return res, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(5))
	if err != nil {
		return fmt.Errorf("failed to start dev server: %w", err)
	}

	log.Info().
		Str("url", fmt.Sprintf("http://%s:%v", host, result.Port)).
		Bool("live_reload", b.liveReload).
		Msg("Dev server started")

	<-ctx.Done()
	log.Info().Msg("Dev server stopping")
	return nil
}

// listenAddress applies the defaults to the dev server block.
func (b *Bundler) listenAddress() (string, int, error) {
	host := cond(b.devServer.Host != "", b.devServer.Host, DefaultHost)

	port := DefaultPort
	if b.devServer.Port != "" {
		p, err := strconv.Atoi(b.devServer.Port)
		if err != nil {
			return "", 0, fmt.Errorf("invalid dev server port %q: %w", b.devServer.Port, err)
		}
		port = p
	}

	return host, port, nil
}

// rebuildPlugin refreshes the page and manifest after every rebuild.
func (b *Bundler) rebuildPlugin(ctx context.Context) api.Plugin {
	var started time.Time
	attrs := metric.WithAttributes(attribute.String("mode", "serve"))

	return api.Plugin{
		Name: "buildmerge-rebuild",
		Setup: func(build api.PluginBuild) {
			build.OnStart(func() (api.OnStartResult, error) {
				started = time.Now()
				return api.OnStartResult{}, nil
			})
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				metrics := telemetry.GetMetrics()
				metrics.BuildDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)

				if err := logMessages(*result); err != nil {
					metrics.BuildErrorsTotal.Add(ctx, 1, attrs)
					return api.OnEndResult{}, nil
				}
				if err := b.afterBuild(*result, b.liveReload); err != nil {
					log.Error().Err(err).Msg("Failed to update bundle outputs")
					return api.OnEndResult{}, nil
				}

				log.Info().Dur("elapsed", time.Since(started)).Msg("Rebuilt bundle")
				return api.OnEndResult{}, nil
			})
		},
	}
}

func setPort[T ~int | ~uint16](dst *T, port int) {
	*dst = T(port)
}
