package bundler

import (
	"bytes"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"slices"
)

const liveReloadScript = `new EventSource('/esbuild').addEventListener('change', () => location.reload())`

var pageTemplate = template.Must(template.New(indexPage).Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="UTF-8">
    <title>{{ .Title }}</title>
{{- range .Stylesheets }}
    <link rel="stylesheet" href="{{ . }}">
{{- end }}
{{- range .Preloads }}
    <link rel="modulepreload" href="{{ . }}">
{{- end }}
  </head>
  <body>
{{- range .Scripts }}
    <script type="module" src="{{ . }}"></script>
{{- end }}
{{- if .LiveReload }}
    <script>{{ .LiveReloadScript }}</script>
{{- end }}
  </body>
</html>
`))

type page struct {
	title string
}

// entryOutputs maps each entry onto the files esbuild wrote for it, relative
// to the output directory.
func (b *Bundler) entryOutputs(metadata *BuildMetadata) map[string]EntryOutputs {
	out := make(map[string]EntryOutputs, len(b.entries))

	for _, e := range b.entries {
		var outputs EntryOutputs
		visited := make(map[string]bool)
		for _, outputPath := range sortedKeys(metadata.Outputs) {
			info := metadata.Outputs[outputPath]
			if !b.outputBelongsTo(e, info) {
				continue
			}

			rel := b.relativeToOutdir(outputPath)
			switch path.Ext(outputPath) {
			case ".js":
				outputs.Scripts = append(outputs.Scripts, rel)
				visited[outputPath] = true
				b.addPreloads(metadata, info, &outputs.Preloads, visited)
				if info.CSSBundle != "" {
					outputs.Stylesheets = append(outputs.Stylesheets, b.relativeToOutdir(info.CSSBundle))
				}
			case ".css":
				if !slices.Contains(outputs.Stylesheets, rel) {
					outputs.Stylesheets = append(outputs.Stylesheets, rel)
				}
			}
		}
		out[e.name] = outputs
	}

	return out
}

// addPreloads walks the static imports of an output, collecting every chunk
// it pulls in.
func (b *Bundler) addPreloads(metadata *BuildMetadata, output OutputInfo, preloads *[]string, visited map[string]bool) {
	for _, imp := range output.Imports {
		if imp.Kind != "import-statement" || visited[imp.Path] {
			continue
		}
		visited[imp.Path] = true
		*preloads = append(*preloads, b.relativeToOutdir(imp.Path))

		if chunk, ok := metadata.Outputs[imp.Path]; ok {
			b.addPreloads(metadata, chunk, preloads, visited)
		}
	}
}

// outputBelongsTo matches by the metafile entry point. Stylesheets emitted
// for a script entry carry no entry point and are reached via cssBundle.
func (b *Bundler) outputBelongsTo(e entry, info OutputInfo) bool {
	return info.EntryPoint != "" && info.EntryPoint == e.input
}

func (b *Bundler) relativeToOutdir(outputPath string) string {
	abs := filepath.Join(b.root, filepath.FromSlash(outputPath))
	rel, err := filepath.Rel(b.outdir, abs)
	if err != nil {
		return filepath.ToSlash(outputPath)
	}
	return filepath.ToSlash(rel)
}

// pageOrder puts extracted bundles first, in the order their plugin named
// them, followed by the remaining entries by name.
func (b *Bundler) pageOrder() []string {
	var order []string
	for _, name := range slices.Backward(b.commons) {
		if slices.ContainsFunc(b.entries, func(e entry) bool { return e.name == name }) && !slices.Contains(order, name) {
			order = append(order, name)
		}
	}
	for _, e := range b.entries {
		if !slices.Contains(order, e.name) {
			order = append(order, e.name)
		}
	}
	return order
}

// renderPage writes index.html loading every entry's scripts and
// stylesheets.
func (b *Bundler) renderPage(outputs map[string]EntryOutputs, liveReload bool) error {
	var scripts, stylesheets, preloads []string
	for _, name := range b.pageOrder() {
		for _, s := range outputs[name].Scripts {
			scripts = append(scripts, b.options.PublicPath+s)
		}
		for _, s := range outputs[name].Stylesheets {
			stylesheets = append(stylesheets, b.options.PublicPath+s)
		}
		for _, s := range outputs[name].Preloads {
			if href := b.options.PublicPath + s; !slices.Contains(preloads, href) {
				preloads = append(preloads, href)
			}
		}
	}

	data := map[string]any{
		"Title":            b.page.title,
		"Scripts":          scripts,
		"Stylesheets":      stylesheets,
		"Preloads":         preloads,
		"LiveReload":       liveReload,
		"LiveReloadScript": template.JS(liveReloadScript),
	}

	buf := new(bytes.Buffer)
	if err := pageTemplate.Execute(buf, data); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(b.outdir, indexPage), buf.Bytes(), 0o644) //nolint:gosec
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
