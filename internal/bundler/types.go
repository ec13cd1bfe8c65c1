package bundler

// BuildMetadata is the subset of the esbuild metafile the adapter reads.
type BuildMetadata struct {
	Outputs map[string]OutputInfo `json:"outputs"`
}

type OutputInfo struct {
	EntryPoint string       `json:"entryPoint"`
	CSSBundle  string       `json:"cssBundle"`
	Imports    []ImportInfo `json:"imports"`
	Bytes      int64        `json:"bytes"`
}

type ImportInfo struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// EntryOutputs lists the files produced for one entry, relative to the
// output directory.
type EntryOutputs struct {
	Scripts     []string `json:"scripts"`
	Stylesheets []string `json:"stylesheets,omitempty"`
	// Preloads are the shared chunks the scripts import statically
	Preloads []string `json:"preloads,omitempty"`
}

// Manifest is written next to the bundles when bundle extraction is enabled.
type Manifest struct {
	BuildID string                  `json:"buildId"`
	Entries map[string]EntryOutputs `json:"entries"`
	Chunks  []string                `json:"chunks,omitempty"`
}
