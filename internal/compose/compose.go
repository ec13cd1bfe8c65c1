// Package compose selects the fragment sequence for a build mode and folds it
// onto the baseline configuration.
package compose

import (
	"fmt"
	"path/filepath"

	"github.com/wolfeidau/buildmerge/internal/merge"
	"github.com/wolfeidau/buildmerge/internal/parts"
)

// BuildEvent is the lifecycle event that selects ModeBuild.
const BuildEvent = "build"

// Mode selects which fragment sequence is folded onto the baseline.
type Mode int

const (
	// ModeDevelopment serves the bundle with live reload.
	ModeDevelopment Mode = iota
	// ModeBuild writes minified, cache-busted bundles.
	ModeBuild
)

func (m Mode) String() string {
	switch m {
	case ModeBuild:
		return "build"
	default:
		return "development"
	}
}

// ParseMode maps a lifecycle event onto a Mode. Anything other than
// BuildEvent, including an empty signal, is ModeDevelopment.
func ParseMode(event string) Mode {
	if event == BuildEvent {
		return ModeBuild
	}
	return ModeDevelopment
}

// Paths holds absolute project locations.
type Paths struct {
	// App is the application entry point.
	App string
	// Style lists the stylesheets bundled into the style entry.
	Style []string
	// Build is the output directory.
	Build string
}

// Options carries every external input the fragment producers need. It is
// built once by the caller; producers never read the environment.
type Options struct {
	Root  string
	Paths Paths
	Title string

	// Host and Port configure the development server. Empty values fall
	// through to the bundler defaults.
	Host string
	Port string

	// VendorBundle names the extracted dependency bundle.
	VendorBundle string
	// Vendor lists the modules extracted into VendorBundle.
	Vendor []string

	// Compression lists pre-compression algorithms for build mode.
	Compression []string

	// Overrides are appended after the built-in fragments of a mode.
	Overrides map[Mode][]merge.Fragment

	Policy merge.Policy
}

// Result is a composed configuration.
type Result struct {
	Mode      Mode
	Config    merge.Config
	Fragments []string
	Conflicts []merge.Conflict
}

type sequence func(Options) []merge.Fragment

var sequences = map[Mode]sequence{
	ModeDevelopment: developmentSequence,
	ModeBuild:       buildSequence,
}

// Baseline is the configuration shared by every mode.
func Baseline(opts Options) merge.Fragment {
	entry := merge.Config{
		"app": opts.Paths.App,
	}
	if len(opts.Paths.Style) > 0 {
		style := make([]any, len(opts.Paths.Style))
		for i, p := range opts.Paths.Style {
			style[i] = p
		}
		entry["style"] = style
	}

	baseline := merge.Config{
		"context": opts.Root,
		"entry":   entry,
		"output": merge.Config{
			"path":     opts.Paths.Build,
			"filename": "[name].js",
		},
	}

	return merge.Named("baseline", merge.Merge(baseline, parts.HTML(opts.Title).Config))
}

func developmentSequence(opts Options) []merge.Fragment {
	return []merge.Fragment{
		parts.SourceMaps("eval-source-map"),
		parts.SetupCSS(opts.Paths.Style),
		parts.DevServer(parts.DevServerOptions{
			Host: opts.Host,
			Port: opts.Port,
		}),
	}
}

func buildSequence(opts Options) []merge.Fragment {
	fragments := []merge.Fragment{
		parts.SourceMaps("source-map"),
		parts.Output(parts.OutputOptions{
			Path:          opts.Paths.Build,
			Filename:      "[name].[chunkhash].js",
			ChunkFilename: "[chunkhash].js",
		}),
		parts.Minify(),
		parts.SetFreeVariable("process.env.NODE_ENV", "production"),
		parts.ExtractCSS(opts.Paths.Style),
		parts.PurifyCSS(opts.Root, []string{opts.Paths.App}),
	}

	if len(opts.Vendor) > 0 {
		fragments = append(fragments, parts.ExtractBundle(parts.ExtractBundleOptions{
			Name:    vendorBundle(opts),
			Entries: opts.Vendor,
		}))
	}

	fragments = append(fragments, parts.Clean(parts.CleanOptions{
		Path: opts.Paths.Build,
		Root: opts.Root,
	}))

	if len(opts.Compression) > 0 {
		fragments = append(fragments, parts.Compress(opts.Compression))
	}

	return fragments
}

func vendorBundle(opts Options) string {
	if opts.VendorBundle == "" {
		return "vendor"
	}
	return opts.VendorBundle
}

// Fragments returns the ordered fragment sequence for mode, baseline first.
func Fragments(mode Mode, opts Options) ([]merge.Fragment, error) {
	seq, ok := sequences[mode]
	if !ok {
		return nil, fmt.Errorf("no fragment sequence for mode %s", mode)
	}

	fragments := []merge.Fragment{Baseline(opts)}
	fragments = append(fragments, seq(opts)...)
	fragments = append(fragments, opts.Overrides[mode]...)
	return fragments, nil
}

// Compose folds the fragment sequence for mode. Under the default policy it
// cannot fail; an error is only returned for PolicyStrict conflicts.
func Compose(mode Mode, opts Options) (*Result, error) {
	fragments, err := Fragments(mode, opts)
	if err != nil {
		return nil, err
	}

	cfg, conflicts, err := merge.Fold(opts.Policy, fragments...)
	if err != nil {
		return nil, fmt.Errorf("failed to compose %s configuration: %w", mode, err)
	}

	names := make([]string, len(fragments))
	for i, f := range fragments {
		names[i] = f.Name
	}

	return &Result{
		Mode:      mode,
		Config:    cfg,
		Fragments: names,
		Conflicts: conflicts,
	}, nil
}

// DefaultPaths returns the conventional layout under root.
func DefaultPaths(root string) Paths {
	return Paths{
		App: filepath.Join(root, "app"),
		Style: []string{
			filepath.Join(root, "node_modules", "purecss"),
			filepath.Join(root, "app", "main.css"),
		},
		Build: filepath.Join(root, "build"),
	}
}
