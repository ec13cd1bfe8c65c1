// Package schema validates a merged configuration against the shape the
// bundler accepts. Validation decodes the configuration strictly, so an
// unknown key anywhere is rejected, then checks the values themselves.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wolfeidau/buildmerge/internal/merge"
)

// ErrInvalidConfiguration is matched by every *ValidationError.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration:\n  - %s", strings.Join(e.Problems, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// Config is the validated bundler configuration.
type Config struct {
	Context   string           `yaml:"context,omitempty"`
	Entry     map[string]Entry `yaml:"entry"`
	Output    Output           `yaml:"output"`
	Module    Module           `yaml:"module,omitempty"`
	Plugins   []Plugin         `yaml:"plugins,omitempty"`
	DevServer *DevServer       `yaml:"devServer,omitempty"`
	Devtool   string           `yaml:"devtool,omitempty"`
}

// Entry is one named entry. It may be a single path or module name, or a
// list of them bundled together.
type Entry []string

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*e = Entry{value.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*e = list
		return nil
	default:
		return fmt.Errorf("line %d: entry must be a path or a list of paths", value.Line)
	}
}

// Output describes where and how bundles are written.
type Output struct {
	Path          string `yaml:"path"`
	Filename      string `yaml:"filename"`
	ChunkFilename string `yaml:"chunkFilename,omitempty"`
	PublicPath    string `yaml:"publicPath,omitempty"`
}

// Module holds the loader rules.
type Module struct {
	Loaders []Loader `yaml:"loaders,omitempty"`
}

// Loader applies a loader chain to files matching Test.
type Loader struct {
	Test    string   `yaml:"test"`
	Loaders []string `yaml:"loaders,omitempty"`
	Loader  string   `yaml:"loader,omitempty"`
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// Chain returns the loader chain whether it was given as a list or a single
// "!"-separated string.
func (l Loader) Chain() []string {
	if len(l.Loaders) > 0 {
		return l.Loaders
	}
	if l.Loader == "" {
		return nil
	}
	return strings.Split(l.Loader, "!")
}

// Plugin is a plugin descriptor.
type Plugin struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options,omitempty"`
}

// DevServer configures the development server.
type DevServer struct {
	HistoryAPIFallback bool   `yaml:"historyApiFallback,omitempty"`
	Hot                bool   `yaml:"hot,omitempty"`
	Inline             bool   `yaml:"inline,omitempty"`
	Host               string `yaml:"host,omitempty"`
	Port               string `yaml:"port,omitempty"`
	ContentBase        string `yaml:"contentBase,omitempty"`
}

// Plugin returns the first plugin named name.
func (c *Config) Plugin(name string) (Plugin, bool) {
	for _, p := range c.Plugins {
		if p.Name == name {
			return p, true
		}
	}
	return Plugin{}, false
}

// PluginsNamed returns every plugin named name in order.
func (c *Config) PluginsNamed(name string) []Plugin {
	var out []Plugin
	for _, p := range c.Plugins {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out
}

var knownDevtools = map[string]bool{
	"":                             true,
	"eval":                         true,
	"eval-source-map":              true,
	"cheap-eval-source-map":        true,
	"cheap-module-eval-source-map": true,
	"source-map":                   true,
	"cheap-source-map":             true,
	"cheap-module-source-map":      true,
	"inline-source-map":            true,
	"hidden-source-map":            true,
	"nosources-source-map":         true,
}

// Validate decodes cfg into a Config, rejecting unknown keys, then checks
// the decoded values. Every problem found is reported in one
// *ValidationError.
func Validate(cfg merge.Config) (*Config, error) {
	data, err := yaml.Marshal(map[string]any(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}

	var out Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&out); err != nil && err != io.EOF {
		return nil, &ValidationError{Problems: []string{err.Error()}}
	}

	if problems := out.check(); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	return &out, nil
}

func (c *Config) check() []string {
	var problems []string

	if len(c.Entry) == 0 {
		problems = append(problems, "entry: at least one entry is required")
	}
	for _, name := range slices.Sorted(maps.Keys(c.Entry)) {
		entry := c.Entry[name]
		if name == "" {
			problems = append(problems, "entry: entry names must not be empty")
		}
		if len(entry) == 0 {
			problems = append(problems, fmt.Sprintf("entry.%s: no paths given", name))
		}
		for _, p := range entry {
			if strings.TrimSpace(p) == "" {
				problems = append(problems, fmt.Sprintf("entry.%s: empty path", name))
			}
		}
	}

	if c.Output.Path == "" {
		problems = append(problems, "output.path: required")
	} else if !filepath.IsAbs(c.Output.Path) {
		problems = append(problems, fmt.Sprintf("output.path: %q must be absolute", c.Output.Path))
	}
	if c.Output.Filename == "" {
		problems = append(problems, "output.filename: required")
	} else if !isRelativeFilename(c.Output.Filename) {
		problems = append(problems, fmt.Sprintf("output.filename: %q must stay inside output.path", c.Output.Filename))
	}

	for i, l := range c.Module.Loaders {
		if l.Test == "" {
			problems = append(problems, fmt.Sprintf("module.loaders[%d].test: required", i))
		} else if _, err := regexp.Compile(l.Test); err != nil {
			problems = append(problems, fmt.Sprintf("module.loaders[%d].test: %v", i, err))
		}
		if len(l.Loaders) > 0 && l.Loader != "" {
			problems = append(problems, fmt.Sprintf("module.loaders[%d]: set loader or loaders, not both", i))
		}
		if len(l.Chain()) == 0 {
			problems = append(problems, fmt.Sprintf("module.loaders[%d]: no loaders given", i))
		}
	}

	for i, p := range c.Plugins {
		if p.Name == "" {
			problems = append(problems, fmt.Sprintf("plugins[%d].name: required", i))
		}
		if p.Name == "Define" {
			problems = append(problems, checkDefinitions(i, p.Options["definitions"])...)
		}
	}

	if !knownDevtools[c.Devtool] {
		problems = append(problems, fmt.Sprintf("devtool: unknown value %q", c.Devtool))
	}

	if c.DevServer != nil && c.DevServer.Port != "" {
		if !isPort(c.DevServer.Port) {
			problems = append(problems, fmt.Sprintf("devServer.port: %q is not a port number", c.DevServer.Port))
		}
	}

	return problems
}

func checkDefinitions(i int, raw any) []string {
	definitions, ok := raw.(map[string]any)
	if !ok {
		return []string{fmt.Sprintf("plugins[%d].options.definitions: expected a mapping", i)}
	}

	var problems []string
	for _, key := range slices.Sorted(maps.Keys(definitions)) {
		if value, ok := definitions[key].(string); !ok || value == "" {
			problems = append(problems, fmt.Sprintf("plugins[%d].options.definitions.%s: expected a JSON expression", i, key))
		}
	}
	return problems
}

// isRelativeFilename allows subdirectories such as js/[name].js but nothing
// absolute or climbing out with "..".
func isRelativeFilename(name string) bool {
	name = strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(name) || filepath.IsAbs(name) {
		return false
	}
	return !slices.Contains(strings.Split(name, "/"), "..")
}

func isPort(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n > 0 && n <= 65535
}
