package bundler

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

const (
	virtualNamespace = "buildmerge-entry"
	virtualPrefix    = virtualNamespace + ":"
)

// virtualEntryPlugin serves entries made of several files or module names
// as a generated module importing each member in order.
func virtualEntryPlugin(root string, entries []entry) api.Plugin {
	contents := make(map[string]string, len(entries))
	for _, e := range entries {
		contents[e.name] = entrySource(e.members)
	}

	return api.Plugin{
		Name: "buildmerge-virtual-entries",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^" + regexp.QuoteMeta(virtualPrefix)},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{
						Path:      strings.TrimPrefix(args.Path, virtualPrefix),
						Namespace: virtualNamespace,
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: virtualNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					source := contents[args.Path]
					return api.OnLoadResult{
						Contents:   &source,
						ResolveDir: root,
						Loader:     api.LoaderJS,
					}, nil
				})
		},
	}
}

func entrySource(members []string) string {
	var sb strings.Builder
	for _, m := range members {
		sb.WriteString("import ")
		sb.WriteString(strconv.Quote(m))
		sb.WriteString(";\n")
	}
	return sb.String()
}
