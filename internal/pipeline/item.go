package pipeline

import "reeldex/internal/fileutil"

// Item is one unit of work flowing through the pipeline, typically a single
// episode. ID must be stable across runs since checkpoints are keyed on it.
// Notes carries optional step-discovered metadata for downstream steps.
type Item struct {
	ID         string
	SourcePath string
	Notes      map[string]string
}

// OutputSpec names one file a step is expected to produce for an item. Only
// required outputs gate the skip decision; optional ones are byproducts the
// step may or may not emit.
type OutputSpec struct {
	Path     string
	Required bool
}

// Missing filters specs down to the required outputs absent from disk.
// Empty files count as missing so half-written artifacts from a crashed run
// are redone rather than trusted.
func Missing(specs []OutputSpec) []OutputSpec {
	var missing []OutputSpec
	for _, spec := range specs {
		if spec.Required && !fileutil.OutputExists(spec.Path) {
			missing = append(missing, spec)
		}
	}
	return missing
}

func missingPaths(specs []OutputSpec) []string {
	paths := make([]string, len(specs))
	for i, spec := range specs {
		paths[i] = spec.Path
	}
	return paths
}
