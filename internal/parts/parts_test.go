package parts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/buildmerge/internal/merge"
)

func pluginNames(t *testing.T, cfg merge.Config) []string {
	t.Helper()

	raw, ok := cfg.Get("plugins")
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	require.True(t, ok, "plugins should be a sequence")

	names := make([]string, 0, len(list))
	for _, p := range list {
		descriptor, ok := p.(merge.Config)
		require.True(t, ok, "plugin descriptor should be a mapping")
		names = append(names, descriptor["name"].(string))
	}
	return names
}

func TestDevServer(t *testing.T) {
	fragment := DevServer(DevServerOptions{Host: "0.0.0.0", Port: "3000"})

	assert.Equal(t, "dev-server", fragment.Name)

	host, _ := fragment.Config.Get("devServer", "host")
	port, _ := fragment.Config.Get("devServer", "port")
	hot, _ := fragment.Config.Get("devServer", "hot")
	fallback, _ := fragment.Config.Get("devServer", "historyApiFallback")
	assert.Equal(t, "0.0.0.0", host)
	assert.Equal(t, "3000", port)
	assert.Equal(t, true, hot)
	assert.Equal(t, true, fallback)
	assert.Equal(t, []string{PluginHotModuleReplacement}, pluginNames(t, fragment.Config))
}

func TestDevServer_PassesEmptyValuesThrough(t *testing.T) {
	fragment := DevServer(DevServerOptions{})

	host, ok := fragment.Config.Get("devServer", "host")
	require.True(t, ok)
	assert.Equal(t, "", host)
}

func TestCSSRules(t *testing.T) {
	paths := []string{"/src/node_modules/purecss", "/src/app/main.css"}

	tests := []struct {
		name            string
		fragment        merge.Fragment
		expectedLoaders []any
		expectedPlugins []string
	}{
		{
			name:            "setup",
			fragment:        SetupCSS(paths),
			expectedLoaders: []any{LoaderStyle, LoaderCSS},
		},
		{
			name:            "extract",
			fragment:        ExtractCSS(paths),
			expectedLoaders: []any{LoaderExtract, LoaderCSS},
			expectedPlugins: []string{PluginExtractText},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, ok := tt.fragment.Config.Get("module", "loaders")
			require.True(t, ok)
			rules := raw.([]any)
			require.Len(t, rules, 1)

			rule := rules[0].(merge.Config)
			assert.Equal(t, CSSTest, rule["test"])
			assert.Equal(t, tt.expectedLoaders, rule["loaders"])
			assert.Equal(t, []any{paths[0], paths[1]}, rule["include"])
			assert.Equal(t, tt.expectedPlugins, pluginNames(t, tt.fragment.Config))
		})
	}
}

func TestSetFreeVariable(t *testing.T) {
	fragment := SetFreeVariable("process.env.NODE_ENV", "production")

	plugins := fragment.Config["plugins"].([]any)
	require.Len(t, plugins, 1)

	definitions, ok := plugins[0].(merge.Config).Get("options", "definitions")
	require.True(t, ok)
	assert.Equal(t, merge.Config{"process.env.NODE_ENV": `"production"`}, definitions)
}

func TestExtractBundle(t *testing.T) {
	fragment := ExtractBundle(ExtractBundleOptions{Name: "vendor", Entries: []string{"react", "react-dom"}})

	entries, ok := fragment.Config.Get("entry", "vendor")
	require.True(t, ok)
	assert.Equal(t, []any{"react", "react-dom"}, entries)

	plugins := fragment.Config["plugins"].([]any)
	names, ok := plugins[0].(merge.Config).Get("options", "names")
	require.True(t, ok)
	assert.Equal(t, []any{"vendor", ManifestBundle}, names)
}

func TestOutput_OmitsEmptyFields(t *testing.T) {
	fragment := Output(OutputOptions{Filename: "[name].[chunkhash].js"})

	assert.Equal(t, merge.Config{
		"output": merge.Config{"filename": "[name].[chunkhash].js"},
	}, fragment.Config)
}

func TestProducersAllocateFreshFragments(t *testing.T) {
	first := Minify()
	second := Minify()

	first.Config["plugins"].([]any)[0].(merge.Config)["name"] = "changed"

	assert.Equal(t, []string{PluginUglifyJS}, pluginNames(t, second.Config))
}

func TestPluginDescriptors(t *testing.T) {
	tests := []struct {
		name     string
		fragment merge.Fragment
		plugin   string
		option   string
		expected any
	}{
		{name: "minify", fragment: Minify(), plugin: PluginUglifyJS, option: "compress", expected: merge.Config{"warnings": false}},
		{name: "purify", fragment: PurifyCSS("/src", []string{"/src/app"}), plugin: PluginPurify, option: "paths", expected: []any{"/src/app"}},
		{name: "clean", fragment: Clean(CleanOptions{Path: "/src/build", Root: "/src"}), plugin: PluginClean, option: "paths", expected: []any{"/src/build"}},
		{name: "html", fragment: HTML("Webpack Demo"), plugin: PluginHTML, option: "title", expected: "Webpack Demo"},
		{name: "compress", fragment: Compress([]string{"gzip"}), plugin: PluginCompression, option: "algorithms", expected: []any{"gzip"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, []string{tt.plugin}, pluginNames(t, tt.fragment.Config))

			descriptor := tt.fragment.Config["plugins"].([]any)[0].(merge.Config)
			value, ok := descriptor.Get("options", tt.option)
			require.True(t, ok)
			assert.Equal(t, tt.expected, value)
		})
	}
}

func TestSourceMaps(t *testing.T) {
	assert.Equal(t, merge.Config{"devtool": "eval-source-map"}, SourceMaps("eval-source-map").Config)
}
