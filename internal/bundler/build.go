package bundler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/buildmerge/internal/telemetry"
)

// Build cleans the configured targets, runs esbuild once and writes the
// page, manifest and compressed copies.
func (b *Bundler) Build(ctx context.Context) error {
	started := time.Now()
	metrics := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("mode", "build"))

	for _, target := range b.clean {
		log.Info().Str("path", target).Msg("Cleaning output")
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("failed to clean %s: %w", target, err)
		}
	}

	log.Info().Strs("entries", b.entryNames()).Str("outdir", b.outdir).Msg("Building bundle")

	result := api.Build(b.options)
	metrics.BuildDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)

	if err := logMessages(result); err != nil {
		metrics.BuildErrorsTotal.Add(ctx, 1, attrs)
		return err
	}

	for _, file := range result.OutputFiles {
		log.Info().Str("file", file.Path).Int("bytes", len(file.Contents)).Msg("Built file")
		metrics.OutputBytesTotal.Add(ctx, int64(len(file.Contents)), attrs)
	}

	if err := b.afterBuild(result, false); err != nil {
		return err
	}

	if len(b.compression) > 0 {
		written, err := precompress(b.outdir, b.compression)
		if err != nil {
			return fmt.Errorf("failed to compress outputs: %w", err)
		}
		metrics.CompressedBytesTotal.Add(ctx, written, attrs)
		log.Info().Strs("algorithms", b.compression).Int64("bytes", written).Msg("Compressed outputs")
	}

	return nil
}

// afterBuild records the metafile and writes the page and manifest derived
// from it.
func (b *Bundler) afterBuild(result api.BuildResult, liveReload bool) error {
	var metadata BuildMetadata
	if err := json.Unmarshal([]byte(result.Metafile), &metadata); err != nil {
		return fmt.Errorf("failed to parse metafile: %w", err)
	}

	b.mu.Lock()
	b.metadata = &metadata
	b.mu.Unlock()

	outputs := b.entryOutputs(&metadata)

	if err := os.MkdirAll(b.outdir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.page != nil {
		if err := b.renderPage(outputs, liveReload); err != nil {
			return fmt.Errorf("failed to write %s: %w", indexPage, err)
		}
	}

	if b.manifest != "" {
		if err := b.writeManifest(&metadata, outputs); err != nil {
			return fmt.Errorf("failed to write manifest: %w", err)
		}
	}

	return nil
}

func (b *Bundler) writeManifest(metadata *BuildMetadata, outputs map[string]EntryOutputs) error {
	buildID, err := uuid.NewV7()
	if err != nil {
		return err
	}

	manifest := Manifest{
		BuildID: buildID.String(),
		Entries: outputs,
	}
	for _, outputPath := range sortedKeys(metadata.Outputs) {
		info := metadata.Outputs[outputPath]
		if info.EntryPoint == "" && filepath.Ext(outputPath) == ".js" {
			manifest.Chunks = append(manifest.Chunks, b.relativeToOutdir(outputPath))
		}
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}

	target := filepath.Join(b.outdir, b.manifest+".json")
	log.Info().Str("file", target).Str("build_id", manifest.BuildID).Msg("Wrote manifest")
	return os.WriteFile(target, data, 0o644) //nolint:gosec
}

// Metadata returns the metafile of the last successful build.
func (b *Bundler) Metadata() (*BuildMetadata, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.metadata == nil {
		return nil, errors.New("bundle not built yet, call Build() first")
	}
	return b.metadata, nil
}

func (b *Bundler) entryNames() []string {
	names := make([]string, len(b.entries))
	for i, e := range b.entries {
		names[i] = e.name
	}
	return names
}

func logMessages(result api.BuildResult) error {
	for _, msg := range api.FormatMessages(result.Warnings, api.FormatMessagesOptions{Kind: api.WarningMessage}) {
		log.Warn().Msg(msg)
	}

	if len(result.Errors) == 0 {
		return nil
	}

	for _, msg := range result.Errors {
		ev := log.Error().Str("error", msg.Text)
		if msg.Location != nil {
			ev = ev.Str("file", msg.Location.File).Int("line", msg.Location.Line)
		}
		ev.Msg("Build error")
	}
	return fmt.Errorf("%w: %d error(s)", ErrBuildFailed, len(result.Errors))
}
