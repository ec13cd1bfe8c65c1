// Package bundler hands a validated configuration to esbuild. It translates
// entries, output naming, loader rules and plugin descriptors into esbuild
// build options, then either runs a single build or serves the bundle with
// live reload.
package bundler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/buildmerge/internal/parts"
	"github.com/wolfeidau/buildmerge/internal/schema"
)

const (
	// DefaultHost and DefaultPort apply when the dev server block leaves
	// them empty.
	DefaultHost = "localhost"
	DefaultPort = 8080

	indexPage = "index.html"
)

// ErrBuildFailed is returned when esbuild reports errors.
var ErrBuildFailed = errors.New("esbuild failed with errors")

// Bundler runs esbuild for one validated configuration.
type Bundler struct {
	root    string
	outdir  string
	options api.BuildOptions

	entries     []entry
	page        *page
	clean       []string
	compression []string
	manifest    string
	commons     []string
	liveReload  bool
	devServer   schema.DevServer

	metadata *BuildMetadata
	mu       sync.RWMutex
}

type entry struct {
	name string
	// input is the esbuild entry path as it appears in the metafile
	input   string
	members []string
}

// New translates cfg into esbuild options. Descriptors without an esbuild
// equivalent are logged and skipped.
func New(cfg *schema.Config) (*Bundler, error) {
	root := cfg.Context
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		root = wd
	}

	b := &Bundler{
		root:   root,
		outdir: cfg.Output.Path,
	}
	if cfg.DevServer != nil {
		b.devServer = *cfg.DevServer
	}

	b.options = api.BuildOptions{
		AbsWorkingDir: root,
		Outdir:        cfg.Output.Path,
		EntryNames:    namePattern(cfg.Output.Filename),
		AssetNames:    "[name]-[hash]",
		PublicPath:    cfg.Output.PublicPath,
		Bundle:        true,
		Write:         true,
		Metafile:      true,
		Format:        api.FormatESModule,
		Platform:      api.PlatformBrowser,
		Sourcemap:     sourceMap(cfg.Devtool),
		LogLevel:      api.LogLevelSilent,
		Define:        map[string]string{},
		Loader:        map[string]api.Loader{},
	}
	if cfg.Output.ChunkFilename != "" {
		b.options.ChunkNames = namePattern(cfg.Output.ChunkFilename)
	}

	b.translateEntries(cfg.Entry)
	b.translateLoaders(cfg.Module.Loaders)
	if err := b.translatePlugins(cfg.Plugins); err != nil {
		return nil, err
	}

	return b, nil
}

// Options returns the translated esbuild options.
func (b *Bundler) Options() api.BuildOptions {
	return b.options
}

func (b *Bundler) translateEntries(entries map[string]schema.Entry) {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	slices.Sort(names)

	var virtual []entry
	for _, name := range names {
		members := entries[name]

		if len(members) == 1 && isPathLike(members[0]) {
			input := resolveEntryPath(b.root, members[0])
			b.options.EntryPointsAdvanced = append(b.options.EntryPointsAdvanced, api.EntryPoint{
				InputPath:  input,
				OutputPath: name,
			})
			b.entries = append(b.entries, entry{name: name, input: metafilePath(b.root, input)})
			continue
		}

		resolved := make([]string, len(members))
		for i, m := range members {
			if isPathLike(m) {
				resolved[i] = resolveEntryPath(b.root, m)
			} else {
				resolved[i] = m
			}
		}

		e := entry{name: name, input: virtualNamespace + ":" + name, members: resolved}
		virtual = append(virtual, e)
		b.entries = append(b.entries, e)
		b.options.EntryPointsAdvanced = append(b.options.EntryPointsAdvanced, api.EntryPoint{
			InputPath:  virtualPrefix + name,
			OutputPath: name,
		})
	}

	if len(virtual) > 0 {
		b.options.Plugins = append(b.options.Plugins, virtualEntryPlugin(b.root, virtual))
	}
}

var loaderByName = map[string]api.Loader{
	parts.LoaderCSS:     api.LoaderCSS,
	parts.LoaderStyle:   api.LoaderCSS,
	parts.LoaderExtract: api.LoaderCSS,
	"file":              api.LoaderFile,
	"url":               api.LoaderDataURL,
	"json":              api.LoaderJSON,
	"raw":               api.LoaderText,
	"text":              api.LoaderText,
	"jsx":               api.LoaderJSX,
	"ts":                api.LoaderTS,
}

func (b *Bundler) translateLoaders(rules []schema.Loader) {
	for _, rule := range rules {
		loader, ok := ruleLoader(rule)
		if !ok {
			log.Warn().Str("test", rule.Test).Strs("loaders", rule.Chain()).Msg("No esbuild loader for rule, skipping")
			continue
		}

		exts := extensionsFromTest(rule.Test)
		if len(exts) == 0 {
			log.Warn().Str("test", rule.Test).Msg("Could not derive file extensions from rule test, skipping")
			continue
		}
		for _, ext := range exts {
			b.options.Loader[ext] = loader
		}
	}
}

// ruleLoader picks the esbuild loader for a chain. Chains apply right to
// left so the last recognised name decides.
func ruleLoader(rule schema.Loader) (api.Loader, bool) {
	chain := rule.Chain()
	for i := len(chain) - 1; i >= 0; i-- {
		name, _, _ := strings.Cut(chain[i], "?")
		if loader, ok := loaderByName[strings.TrimSuffix(name, "-loader")]; ok {
			return loader, true
		}
	}
	return api.LoaderNone, false
}

func (b *Bundler) translatePlugins(plugins []schema.Plugin) error {
	for _, p := range plugins {
		switch p.Name {
		case parts.PluginHTML:
			title, _ := p.Options["title"].(string)
			b.page = &page{title: title}
		case parts.PluginUglifyJS:
			b.options.MinifyWhitespace = true
			b.options.MinifyIdentifiers = true
			b.options.MinifySyntax = true
		case parts.PluginDefine:
			definitions, _ := p.Options["definitions"].(map[string]any)
			for key, value := range definitions {
				if s, ok := value.(string); ok {
					b.options.Define[key] = s
				}
			}
		case parts.PluginCommonsChunk:
			b.options.Splitting = true
			names := stringList(p.Options["names"])
			b.commons = append(b.commons, names...)
			b.manifest = parts.ManifestBundle
			if len(names) > 1 {
				b.manifest = names[len(names)-1]
			}
		case parts.PluginClean:
			root, _ := p.Options["root"].(string)
			if root == "" {
				root = b.root
			}
			for _, target := range stringList(p.Options["paths"]) {
				if err := checkCleanTarget(root, target); err != nil {
					return err
				}
				b.clean = append(b.clean, target)
			}
		case parts.PluginCompression:
			for _, algorithm := range stringList(p.Options["algorithms"]) {
				if _, ok := compressors[algorithm]; !ok {
					return fmt.Errorf("unsupported compression algorithm %q", algorithm)
				}
				b.compression = append(b.compression, algorithm)
			}
		case parts.PluginHotModuleReplacement:
			b.liveReload = true
		case parts.PluginExtractText:
			// esbuild always writes stylesheets to their own files
		default:
			log.Warn().Str("plugin", p.Name).Msg("Plugin has no esbuild equivalent, skipping")
		}
	}
	return nil
}

// checkCleanTarget refuses to remove root itself or anything outside it.
func checkCleanTarget(root, target string) error {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return fmt.Errorf("clean target %s: %w", target, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("clean target %s is outside project root %s", target, root)
	}
	return nil
}

func stringList(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

var hashPlaceholder = regexp.MustCompile(`\[(chunkhash|contenthash|hash)(:\d+)?\]`)

// namePattern converts a bundle filename pattern into an esbuild name
// template: the extension is dropped and hash placeholders collapse onto
// esbuild's [hash].
func namePattern(filename string) string {
	switch ext := filepath.Ext(filename); ext {
	case ".js", ".mjs", ".cjs", ".css":
		filename = strings.TrimSuffix(filename, ext)
	}

	pattern := hashPlaceholder.ReplaceAllString(filename, "[hash]")
	pattern = strings.ReplaceAll(pattern, "[path]", "[dir]")
	pattern = strings.ReplaceAll(pattern, "[id]", "[name]")
	return pattern
}

func sourceMap(devtool string) api.SourceMap {
	switch {
	case devtool == "":
		return api.SourceMapNone
	case devtool == "hidden-source-map":
		return api.SourceMapExternal
	case strings.Contains(devtool, "eval"), strings.HasPrefix(devtool, "inline"):
		return api.SourceMapInline
	default:
		return api.SourceMapLinked
	}
}

var extensionGroup = regexp.MustCompile(`\\\.\(\??:?([a-zA-Z0-9|]+)\)`)
var extensionSingle = regexp.MustCompile(`\\\.([a-zA-Z0-9]+)`)

// extensionsFromTest pulls file extensions out of a rule test such as
// `\.css$` or `\.(png|jpg)$`.
func extensionsFromTest(test string) []string {
	var exts []string
	if m := extensionGroup.FindStringSubmatch(test); m != nil {
		for _, ext := range strings.Split(m[1], "|") {
			if ext != "" {
				exts = append(exts, "."+ext)
			}
		}
		return exts
	}
	for _, m := range extensionSingle.FindAllStringSubmatch(test, -1) {
		exts = append(exts, "."+m[1])
	}
	return exts
}

func isPathLike(p string) bool {
	return filepath.IsAbs(p) || p == "." || strings.HasPrefix(p, "./") || strings.HasPrefix(p, "../")
}

var indexFiles = []string{"index.js", "index.jsx", "index.ts", "index.tsx", "index.mjs"}

// resolveEntryPath makes p absolute and maps a directory onto its index
// file when it has one.
func resolveEntryPath(root, p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}

	info, err := os.Stat(p)
	if err != nil || !info.IsDir() {
		return p
	}
	for _, name := range indexFiles {
		candidate := filepath.Join(p, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return p
}

// metafilePath is how esbuild names a file input in the metafile: relative
// to the working directory with forward slashes.
func metafilePath(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
