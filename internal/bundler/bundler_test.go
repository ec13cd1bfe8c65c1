package bundler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/buildmerge/internal/compose"
	"github.com/wolfeidau/buildmerge/internal/parts"
	"github.com/wolfeidau/buildmerge/internal/schema"
)

func TestNamePattern(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"[name].js", "[name]"},
		{"[name].[chunkhash].js", "[name].[hash]"},
		{"[chunkhash].js", "[hash]"},
		{"[name].[contenthash:8].css", "[name].[hash]"},
		{"[path][name].[hash].mjs", "[dir][name].[hash]"},
		{"[id].bundle", "[name].bundle"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, namePattern(tt.filename))
		})
	}
}

func TestSourceMap(t *testing.T) {
	assert.Equal(t, api.SourceMapNone, sourceMap(""))
	assert.Equal(t, api.SourceMapInline, sourceMap("eval-source-map"))
	assert.Equal(t, api.SourceMapInline, sourceMap("inline-source-map"))
	assert.Equal(t, api.SourceMapLinked, sourceMap("source-map"))
	assert.Equal(t, api.SourceMapLinked, sourceMap("cheap-module-source-map"))
	assert.Equal(t, api.SourceMapExternal, sourceMap("hidden-source-map"))
}

func TestExtensionsFromTest(t *testing.T) {
	assert.Equal(t, []string{".css"}, extensionsFromTest(parts.CSSTest))
	assert.Equal(t, []string{".png", ".jpg"}, extensionsFromTest(`\.(png|jpg)$`))
	assert.Equal(t, []string{".svg"}, extensionsFromTest(`\.(?:svg)$`))
	assert.Empty(t, extensionsFromTest(`^vendor`))
}

func TestCheckCleanTarget(t *testing.T) {
	root := filepath.FromSlash("/src/project")

	require.NoError(t, checkCleanTarget(root, filepath.Join(root, "build")))
	require.NoError(t, checkCleanTarget(root, filepath.Join(root, "dist", "assets")))

	require.Error(t, checkCleanTarget(root, root))
	require.Error(t, checkCleanTarget(root, filepath.Dir(root)))
	require.Error(t, checkCleanTarget(root, filepath.FromSlash("/src/other/build")))
}

func TestRuleLoader(t *testing.T) {
	loader, ok := ruleLoader(schema.Loader{Test: parts.CSSTest, Loaders: []string{"style", "css"}})
	require.True(t, ok)
	assert.Equal(t, api.LoaderCSS, loader)

	loader, ok = ruleLoader(schema.Loader{Test: `\.png$`, Loader: "url-loader?limit=8192"})
	require.True(t, ok)
	assert.Equal(t, api.LoaderDataURL, loader)

	_, ok = ruleLoader(schema.Loader{Test: `\.vue$`, Loader: "vue"})
	assert.False(t, ok)
}

func TestEntrySource(t *testing.T) {
	assert.Equal(t, "import \"react\";\nimport \"/src/app/main.css\";\n",
		entrySource([]string{"react", "/src/app/main.css"}))
}

func TestNew_TranslatesConfig(t *testing.T) {
	root := t.TempDir()

	cfg := &schema.Config{
		Context: root,
		Entry: map[string]schema.Entry{
			"app":    {"./app.js"},
			"style":  {"./a.css", "./b.css"},
			"vendor": {"react"},
		},
		Output: schema.Output{
			Path:          filepath.Join(root, "build"),
			Filename:      "[name].[chunkhash].js",
			ChunkFilename: "[chunkhash].js",
		},
		Module: schema.Module{Loaders: []schema.Loader{
			{Test: `\.svg$`, Loader: "file"},
		}},
		Plugins: []schema.Plugin{
			{Name: parts.PluginHTML, Options: map[string]any{"title": "Demo"}},
			{Name: parts.PluginUglifyJS},
			{Name: parts.PluginDefine, Options: map[string]any{"definitions": map[string]any{"process.env.NODE_ENV": `"production"`}}},
			{Name: parts.PluginCommonsChunk, Options: map[string]any{"names": []any{"vendor", "manifest"}}},
			{Name: parts.PluginClean, Options: map[string]any{"paths": []any{filepath.Join(root, "build")}, "root": root}},
			{Name: parts.PluginCompression, Options: map[string]any{"algorithms": []any{"gzip"}}},
			{Name: parts.PluginPurify},
		},
		Devtool: "source-map",
	}

	b, err := New(cfg)
	require.NoError(t, err)

	opts := b.Options()
	assert.Equal(t, root, opts.AbsWorkingDir)
	assert.Equal(t, "[name].[hash]", opts.EntryNames)
	assert.Equal(t, "[hash]", opts.ChunkNames)
	assert.Equal(t, api.SourceMapLinked, opts.Sourcemap)
	assert.True(t, opts.MinifyWhitespace)
	assert.True(t, opts.Splitting)
	assert.Equal(t, `"production"`, opts.Define["process.env.NODE_ENV"])
	assert.Equal(t, api.LoaderFile, opts.Loader[".svg"])
	require.Len(t, opts.Plugins, 1, "virtual entry plugin")

	require.Len(t, opts.EntryPointsAdvanced, 3)
	assert.Equal(t, api.EntryPoint{InputPath: filepath.Join(root, "app.js"), OutputPath: "app"}, opts.EntryPointsAdvanced[0])
	assert.Equal(t, api.EntryPoint{InputPath: virtualPrefix + "style", OutputPath: "style"}, opts.EntryPointsAdvanced[1])
	assert.Equal(t, api.EntryPoint{InputPath: virtualPrefix + "vendor", OutputPath: "vendor"}, opts.EntryPointsAdvanced[2])

	assert.Equal(t, &page{title: "Demo"}, b.page)
	assert.Equal(t, "manifest", b.manifest)
	assert.Equal(t, []string{filepath.Join(root, "build")}, b.clean)
	assert.Equal(t, []string{"gzip"}, b.compression)
	assert.Equal(t, []string{"vendor", "app", "style"}, b.pageOrder())
}

func TestNew_RejectsCleanOutsideRoot(t *testing.T) {
	root := t.TempDir()

	_, err := New(&schema.Config{
		Context: root,
		Entry:   map[string]schema.Entry{"app": {"./app.js"}},
		Output:  schema.Output{Path: filepath.Join(root, "build"), Filename: "[name].js"},
		Plugins: []schema.Plugin{
			{Name: parts.PluginClean, Options: map[string]any{"paths": []any{root}, "root": root}},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside project root")
}

func TestNew_RejectsUnknownCompression(t *testing.T) {
	root := t.TempDir()

	_, err := New(&schema.Config{
		Context: root,
		Entry:   map[string]schema.Entry{"app": {"./app.js"}},
		Output:  schema.Output{Path: filepath.Join(root, "build"), Filename: "[name].js"},
		Plugins: []schema.Plugin{
			{Name: parts.PluginCompression, Options: map[string]any{"algorithms": []any{"brotli"}}},
		},
	})
	require.Error(t, err)
}

func TestListenAddress(t *testing.T) {
	b := &Bundler{}
	host, port, err := b.listenAddress()
	require.NoError(t, err)
	assert.Equal(t, DefaultHost, host)
	assert.Equal(t, DefaultPort, port)

	b.devServer = schema.DevServer{Host: "0.0.0.0", Port: "3000"}
	host, port, err = b.listenAddress()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", host)
	assert.Equal(t, 3000, port)

	b.devServer.Port = "http"
	_, _, err = b.listenAddress()
	require.Error(t, err)
}

func TestSetPort(t *testing.T) {
	var small uint16
	setPort(&small, 8080)
	assert.Equal(t, uint16(8080), small)

	var wide int
	setPort(&wide, 3000)
	assert.Equal(t, 3000, wide)
}

func TestMetadata_BeforeBuild(t *testing.T) {
	_, err := (&Bundler{}).Metadata()
	require.Error(t, err)
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestBuild_ComposedProject(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app", "index.js"), "import { greet } from '../lib/dep.js';\ndocument.body.append(greet(process.env.NODE_ENV));\n")
	writeFile(t, filepath.Join(root, "app", "main.css"), "body { margin: 0; }\n")
	writeFile(t, filepath.Join(root, "lib", "base.css"), "html { color: #333; }\n")
	writeFile(t, filepath.Join(root, "lib", "dep.js"), "export const greet = (env) => `hello ${env}`;\n")
	writeFile(t, filepath.Join(root, "build", "stale.js"), "old")

	paths := compose.Paths{
		App:   filepath.Join(root, "app"),
		Style: []string{filepath.Join(root, "lib", "base.css"), filepath.Join(root, "app", "main.css")},
		Build: filepath.Join(root, "build"),
	}
	result, err := compose.Compose(compose.ModeBuild, compose.Options{
		Root:        root,
		Paths:       paths,
		Title:       "Webpack Demo",
		Vendor:      []string{"./lib/dep.js"},
		Compression: []string{"gzip", "zstd"},
	})
	require.NoError(t, err)

	cfg, err := schema.Validate(result.Config)
	require.NoError(t, err)

	b, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))

	assert.NoFileExists(t, filepath.Join(root, "build", "stale.js"))

	page, err := os.ReadFile(filepath.Join(root, "build", indexPage))
	require.NoError(t, err)
	assert.Contains(t, string(page), "<title>Webpack Demo</title>")
	assert.Contains(t, string(page), `<script type="module" src="app.`)
	assert.Contains(t, string(page), `<link rel="stylesheet" href="style.`)
	assert.NotContains(t, string(page), "EventSource")

	data, err := os.ReadFile(filepath.Join(root, "build", "manifest.json"))
	require.NoError(t, err)
	var manifest Manifest
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.NotEmpty(t, manifest.BuildID)
	assert.Contains(t, manifest.Entries, "app")
	assert.Contains(t, manifest.Entries, "vendor")
	assert.NotEmpty(t, manifest.Entries["app"].Scripts)

	assert.FileExists(t, filepath.Join(root, "build", indexPage+".gz"))
	assert.FileExists(t, filepath.Join(root, "build", indexPage+".zst"))

	metadata, err := b.Metadata()
	require.NoError(t, err)
	assert.NotEmpty(t, metadata.Outputs)
}

func TestBuild_ReportsErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app.js"), "import './missing.js';\n")

	b, err := New(&schema.Config{
		Context: root,
		Entry:   map[string]schema.Entry{"app": {"./app.js"}},
		Output:  schema.Output{Path: filepath.Join(root, "build"), Filename: "[name].js"},
	})
	require.NoError(t, err)

	err = b.Build(context.Background())
	require.ErrorIs(t, err, ErrBuildFailed)
}

func TestPrecompress(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.js"), "console.log('hello hello hello hello');\n")
	writeFile(t, filepath.Join(dir, "logo.png"), "not compressible")

	written, err := precompress(dir, []string{"gzip"})
	require.NoError(t, err)
	assert.Positive(t, written)

	assert.FileExists(t, filepath.Join(dir, "app.js.gz"))
	assert.NoFileExists(t, filepath.Join(dir, "logo.png.gz"))
}

func TestEntryOutputs(t *testing.T) {
	root := filepath.FromSlash("/src")
	b := &Bundler{
		root:   root,
		outdir: filepath.Join(root, "build"),
		entries: []entry{
			{name: "app", input: "app/index.js"},
			{name: "app-admin", input: "admin/index.js"},
			{name: "style", input: virtualPrefix + "style"},
			{name: "theme", input: "app/theme.css"},
		},
	}

	// stylesheets emitted for a script entry have no entryPoint of their own
	metadata := &BuildMetadata{Outputs: map[string]OutputInfo{
		"build/app.AAAA.js": {
			EntryPoint: "app/index.js",
			CSSBundle:  "build/app.EEEE.css",
			Imports: []ImportInfo{
				{Path: "build/CHUNK1.js", Kind: "import-statement"},
				{Path: "build/LAZY.js", Kind: "dynamic-import"},
			},
		},
		"build/app.EEEE.css": {},
		"build/CHUNK1.js": {
			Imports: []ImportInfo{{Path: "build/CHUNK2.js", Kind: "import-statement"}},
		},
		"build/CHUNK2.js":         {},
		"build/LAZY.js":           {},
		"build/app-admin.DDDD.js": {EntryPoint: "admin/index.js"},
		"build/style.BBBB.js":     {EntryPoint: virtualPrefix + "style", CSSBundle: "build/style.CCCC.css"},
		"build/style.CCCC.css":    {},
		"build/theme.FFFF.css":    {EntryPoint: "app/theme.css"},
	}}

	outputs := b.entryOutputs(metadata)

	assert.Equal(t, EntryOutputs{
		Scripts:     []string{"app.AAAA.js"},
		Stylesheets: []string{"app.EEEE.css"},
		Preloads:    []string{"CHUNK1.js", "CHUNK2.js"},
	}, outputs["app"])
	assert.Equal(t, EntryOutputs{
		Scripts: []string{"app-admin.DDDD.js"},
	}, outputs["app-admin"])
	assert.Equal(t, EntryOutputs{
		Scripts:     []string{"style.BBBB.js"},
		Stylesheets: []string{"style.CCCC.css"},
	}, outputs["style"])
	assert.Equal(t, EntryOutputs{
		Stylesheets: []string{"theme.FFFF.css"},
	}, outputs["theme"])
}

func TestBuild_EntriesSharingNamePrefix(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app", "index.js"), "document.body.append('app');\n")
	writeFile(t, filepath.Join(root, "admin", "index.js"), "document.body.append('admin');\n")

	b, err := New(&schema.Config{
		Context: root,
		Entry: map[string]schema.Entry{
			"app":       {"./app"},
			"app-admin": {"./admin"},
		},
		Output:  schema.Output{Path: filepath.Join(root, "build"), Filename: "[name].[chunkhash].js"},
		Plugins: []schema.Plugin{{Name: parts.PluginHTML, Options: map[string]any{"title": "Admin"}}},
	})
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))

	metadata, err := b.Metadata()
	require.NoError(t, err)
	outputs := b.entryOutputs(metadata)

	require.Len(t, outputs["app"].Scripts, 1)
	assert.True(t, strings.HasPrefix(outputs["app"].Scripts[0], "app."))
	require.Len(t, outputs["app-admin"].Scripts, 1)
	assert.True(t, strings.HasPrefix(outputs["app-admin"].Scripts[0], "app-admin."))

	page, err := os.ReadFile(filepath.Join(root, "build", indexPage))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(page), "<script"))
}
