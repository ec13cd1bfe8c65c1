package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wolfeidau/buildmerge/internal/compose"
)

// PrintCmd writes the composed configuration without building anything.
type PrintCmd struct {
	ProjectFlags `embed:""`

	Mode   string `help:"mode to compose" default:"development" enum:"development,build"`
	Format string `help:"output format" default:"yaml" enum:"yaml,json"`

	out io.Writer
}

func (c *PrintCmd) Run(ctx context.Context, globals *Globals) error {
	stop := setup(ctx, globals)
	defer stop()

	mode := compose.ModeDevelopment
	if c.Mode == compose.ModeBuild.String() {
		mode = compose.ModeBuild
	}

	result, _, err := c.compose(ctx, mode)
	if err != nil {
		return err
	}

	out := c.out
	if out == nil {
		out = os.Stdout
	}

	switch c.Format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result.Config)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]any(result.Config)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", c.Format)
	}
}
