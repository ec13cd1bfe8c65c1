package project

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/tidwall/jsonc"
)

type packageJSON struct {
	Name         string            `json:"name"`
	Dependencies map[string]string `json:"dependencies"`
}

// ReadDependencies returns the dependency names declared in a package.json,
// sorted so the vendor bundle is stable between runs.
func ReadDependencies(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var pkg packageJSON
	if err := json.Unmarshal(jsonc.ToJSON(data), &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return slices.Sorted(maps.Keys(pkg.Dependencies)), nil
}
