// Package project loads the project file describing where sources live and
// how each mode should be adjusted, and turns it into composer options.
//
// Project files may be YAML (.yaml, .yml), TOML (.toml) or JSON with
// comments (.json, .jsonc). Unknown keys are rejected in every format.
package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/wolfeidau/buildmerge/internal/compose"
	"github.com/wolfeidau/buildmerge/internal/merge"
)

// ErrUnsupportedFormat is returned for project files with an unknown
// extension.
var ErrUnsupportedFormat = errors.New("unsupported project file format")

// Config is the on-disk project description. Relative paths are resolved
// against the directory holding the project file.
type Config struct {
	// Title of the generated index page
	Title string `yaml:"title" toml:"title" json:"title"`
	// App is the application entry point
	App string `yaml:"app" toml:"app" json:"app"`
	// Style lists stylesheets bundled into the style entry
	Style []string `yaml:"style" toml:"style" json:"style"`
	// Build is the output directory
	Build string `yaml:"build" toml:"build" json:"build"`
	// Package is the package.json whose dependencies form the vendor bundle
	Package string `yaml:"package" toml:"package" json:"package"`
	// VendorBundle names the extracted dependency bundle
	VendorBundle string `yaml:"vendorBundle" toml:"vendorBundle" json:"vendorBundle"`
	// Vendor replaces the package.json dependency list when set
	Vendor []string `yaml:"vendor" toml:"vendor" json:"vendor"`
	// Compression lists pre-compression algorithms used by build mode
	Compression []string `yaml:"compression" toml:"compression" json:"compression"`
	// Overrides are folded after the built-in fragments of each mode
	Overrides Overrides `yaml:"overrides" toml:"overrides" json:"overrides"`

	root string
}

// Overrides holds one configuration fragment per mode.
type Overrides struct {
	Development map[string]any `yaml:"development" toml:"development" json:"development"`
	Build       map[string]any `yaml:"build" toml:"build" json:"build"`
}

// DefaultConfig returns the conventional project layout rooted at root.
func DefaultConfig(root string) *Config {
	return &Config{
		Title:        "Webpack Demo",
		App:          "app",
		Style:        []string{filepath.Join("node_modules", "purecss"), filepath.Join("app", "main.css")},
		Build:        "build",
		Package:      "package.json",
		VendorBundle: "vendor",
		root:         root,
	}
}

// Load reads the project file at path. Fields it leaves empty keep their
// DefaultConfig values.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project file %s: %w", path, err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	cfg := DefaultConfig(filepath.Dir(abs))
	if err := decode(abs, data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse project file %s: %w", path, err)
	}

	return cfg, nil
}

func decode(path string, data []byte, out *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(out); err != nil && err != io.EOF {
			return err
		}
		return nil
	case ".toml":
		return toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(out)
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		return decoder.Decode(out)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Root is the directory relative paths are resolved against.
func (c *Config) Root() string {
	return c.root
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.root, p)
}

// Paths returns the absolute source and output locations.
func (c *Config) Paths() compose.Paths {
	style := make([]string, len(c.Style))
	for i, s := range c.Style {
		style[i] = c.resolve(s)
	}

	return compose.Paths{
		App:   c.resolve(c.App),
		Style: style,
		Build: c.resolve(c.Build),
	}
}

// VendorEntries returns the modules extracted into the vendor bundle: the
// explicit Vendor list when given, otherwise the package.json dependencies.
// A missing package.json yields no vendor bundle.
func (c *Config) VendorEntries() ([]string, error) {
	if len(c.Vendor) > 0 {
		return c.Vendor, nil
	}
	if c.Package == "" {
		return nil, nil
	}

	deps, err := ReadDependencies(c.resolve(c.Package))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return deps, err
}

// ComposeOptions converts the project into composer options. Host, port and
// the conflict policy come from the command line and are filled in by the
// caller.
func (c *Config) ComposeOptions() (compose.Options, error) {
	vendor, err := c.VendorEntries()
	if err != nil {
		return compose.Options{}, err
	}

	opts := compose.Options{
		Root:         c.root,
		Paths:        c.Paths(),
		Title:        c.Title,
		VendorBundle: c.VendorBundle,
		Vendor:       vendor,
		Compression:  c.Compression,
		Overrides:    map[compose.Mode][]merge.Fragment{},
	}

	if len(c.Overrides.Development) > 0 {
		opts.Overrides[compose.ModeDevelopment] = []merge.Fragment{
			merge.Named("project:development", merge.Config(c.Overrides.Development)),
		}
	}
	if len(c.Overrides.Build) > 0 {
		opts.Overrides[compose.ModeBuild] = []merge.Fragment{
			merge.Named("project:build", merge.Config(c.Overrides.Build)),
		}
	}

	return opts, nil
}
