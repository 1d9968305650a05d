package pipeline

import (
	"strings"

	"reeldex/internal/config"
)

// NormalizeStepName canonicalizes a user-supplied step name so "Detect-Scenes"
// and "detect scenes" both match the detect_scenes step.
func NormalizeStepName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ReplaceAll(name, "-", "_")
}

// ResolveSkips merges the CLI skip list with the per-series skip list into
// the set of step names to bypass. Series skip lists apply only when the
// series runs in selective mode; in full mode they are configuration noise
// and are ignored.
func ResolveSkips(cliSkips []string, series config.Series) map[string]struct{} {
	skips := make(map[string]struct{})
	add := func(names []string) {
		for _, name := range names {
			if name = NormalizeStepName(name); name != "" {
				skips[name] = struct{}{}
			}
		}
	}
	add(cliSkips)
	if series.Mode == config.ModeSelective {
		add(series.SkipSteps)
	}
	return skips
}
