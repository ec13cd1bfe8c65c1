// Package parts produces the configuration fragments that the composer folds
// together. Every producer is pure: it allocates a fresh fragment from its
// options and never reads the environment or touches the filesystem. None of
// them validate their input; bad values surface when the merged
// configuration is validated or bundled.
package parts

import (
	"encoding/json"

	"github.com/wolfeidau/buildmerge/internal/merge"
)

// Plugin names understood by the bundler adapter.
const (
	PluginHTML                 = "Html"
	PluginHotModuleReplacement = "HotModuleReplacement"
	PluginExtractText          = "ExtractText"
	PluginPurify               = "Purify"
	PluginUglifyJS             = "UglifyJs"
	PluginDefine               = "Define"
	PluginCommonsChunk         = "CommonsChunk"
	PluginClean                = "Clean"
	PluginCompression          = "Compression"
)

// Loader names used in module rules.
const (
	LoaderStyle   = "style"
	LoaderCSS     = "css"
	LoaderExtract = "extract"
)

// CSSTest matches stylesheets in module rules.
const CSSTest = `\.css$`

// ManifestBundle is the companion bundle holding the runtime manifest.
const ManifestBundle = "manifest"

// Plugin builds a plugin descriptor.
func Plugin(name string, options merge.Config) merge.Config {
	if options == nil {
		options = merge.Config{}
	}
	return merge.Config{
		"name":    name,
		"options": options,
	}
}

func plugins(descriptors ...merge.Config) []any {
	out := make([]any, len(descriptors))
	for i, d := range descriptors {
		out[i] = d
	}
	return out
}

func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// DevServerOptions configures the development server. Empty values are
// passed through; the bundler applies localhost and 8080.
type DevServerOptions struct {
	Host string
	Port string
}

// DevServer enables history API fallback, hot reloading and inline live
// reload on the given host and port.
func DevServer(opts DevServerOptions) merge.Fragment {
	return merge.Named("dev-server", merge.Config{
		"devServer": merge.Config{
			"historyApiFallback": true,
			"hot":                true,
			"inline":             true,
			"host":               opts.Host,
			"port":               opts.Port,
		},
		"plugins": plugins(
			Plugin(PluginHotModuleReplacement, merge.Config{"multiStep": true}),
		),
	})
}

// SetupCSS loads stylesheets under paths and injects them through the
// script bundle.
func SetupCSS(paths []string) merge.Fragment {
	return merge.Named("setup-css", merge.Config{
		"module": merge.Config{
			"loaders": []any{
				merge.Config{
					"test":    CSSTest,
					"loaders": []any{LoaderStyle, LoaderCSS},
					"include": anySlice(paths),
				},
			},
		},
	})
}

// ExtractCSS writes stylesheets under paths to their own cache-busted files.
func ExtractCSS(paths []string) merge.Fragment {
	return merge.Named("extract-css", merge.Config{
		"module": merge.Config{
			"loaders": []any{
				merge.Config{
					"test":    CSSTest,
					"loaders": []any{LoaderExtract, LoaderCSS},
					"include": anySlice(paths),
				},
			},
		},
		"plugins": plugins(
			Plugin(PluginExtractText, merge.Config{"filename": "[name].[chunkhash].css"}),
		),
	})
}

// PurifyCSS drops selectors not referenced from the sources under paths.
func PurifyCSS(basePath string, paths []string) merge.Fragment {
	return merge.Named("purify-css", merge.Config{
		"plugins": plugins(
			Plugin(PluginPurify, merge.Config{
				"basePath": basePath,
				"paths":    anySlice(paths),
			}),
		),
	})
}

// Minify compresses script output.
func Minify() merge.Fragment {
	return merge.Named("minify", merge.Config{
		"plugins": plugins(
			Plugin(PluginUglifyJS, merge.Config{
				"compress": merge.Config{"warnings": false},
			}),
		),
	})
}

// SetFreeVariable substitutes key with the JSON encoding of value at build
// time.
func SetFreeVariable(key string, value any) merge.Fragment {
	encoded, err := json.Marshal(value)
	if err != nil {
		// left for the validator to reject
		encoded = nil
	}

	return merge.Named("define:"+key, merge.Config{
		"plugins": plugins(
			Plugin(PluginDefine, merge.Config{
				"definitions": merge.Config{key: string(encoded)},
			}),
		),
	})
}

// ExtractBundleOptions names a bundle and the modules moved into it.
type ExtractBundleOptions struct {
	Name    string
	Entries []string
}

// ExtractBundle splits Entries into their own bundle with a companion
// manifest bundle so application changes leave the extracted bundle's hash
// untouched.
func ExtractBundle(opts ExtractBundleOptions) merge.Fragment {
	return merge.Named("extract-bundle:"+opts.Name, merge.Config{
		"entry": merge.Config{
			opts.Name: anySlice(opts.Entries),
		},
		"plugins": plugins(
			Plugin(PluginCommonsChunk, merge.Config{
				"names": []any{opts.Name, ManifestBundle},
			}),
		),
	})
}

// CleanOptions names the directory removed before a build and the root it
// must stay inside.
type CleanOptions struct {
	Path string
	Root string
}

// Clean removes Path before a fresh build.
func Clean(opts CleanOptions) merge.Fragment {
	return merge.Named("clean", merge.Config{
		"plugins": plugins(
			Plugin(PluginClean, merge.Config{
				"paths": []any{opts.Path},
				"root":  opts.Root,
			}),
		),
	})
}

// SourceMaps selects the source map style.
func SourceMaps(devtool string) merge.Fragment {
	return merge.Named("source-maps", merge.Config{
		"devtool": devtool,
	})
}

// OutputOptions describes where bundles are written and how they are named.
// Filename patterns may carry [name], [hash], [chunkhash], [contenthash] and
// [path] placeholders.
type OutputOptions struct {
	Path          string
	Filename      string
	ChunkFilename string
}

// Output sets the output descriptor. Empty fields are omitted so they do not
// clobber earlier fragments.
func Output(opts OutputOptions) merge.Fragment {
	output := merge.Config{}
	if opts.Path != "" {
		output["path"] = opts.Path
	}
	if opts.Filename != "" {
		output["filename"] = opts.Filename
	}
	if opts.ChunkFilename != "" {
		output["chunkFilename"] = opts.ChunkFilename
	}
	return merge.Named("output", merge.Config{"output": output})
}

// HTML generates an index page titled title that loads every entry.
func HTML(title string) merge.Fragment {
	return merge.Named("html", merge.Config{
		"plugins": plugins(
			Plugin(PluginHTML, merge.Config{"title": title}),
		),
	})
}

// Compress writes pre-compressed copies of scripts and stylesheets using the
// given algorithms.
func Compress(algorithms []string) merge.Fragment {
	return merge.Named("compress", merge.Config{
		"plugins": plugins(
			Plugin(PluginCompression, merge.Config{
				"algorithms": anySlice(algorithms),
				"test":       `\.(js|css|html)$`,
			}),
		),
	})
}
