// Package library enumerates the source episodes of a series from disk.
package library

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Supported media file extensions (lowercase, with leading dot).
var mediaExtensions = map[string]bool{
	".mkv":  true,
	".mp4":  true,
	".avi":  true,
	".m4v":  true,
	".mov":  true,
	".webm": true,
	".ts":   true,
	".m2ts": true,
	".mpg":  true,
	".mpeg": true,
}

var episodePattern = regexp.MustCompile(`(?i)s(\d{1,2})[ ._-]?e(\d{1,3})`)

// Episode is one source file recognized as an episode.
type Episode struct {
	Key     string
	Season  int
	Episode int
	Path    string
}

// EpisodeKey formats a deterministic key for an episode.
func EpisodeKey(season, episode int) string {
	if season <= 0 && episode <= 0 {
		return ""
	}
	if season <= 0 {
		season = 1
	}
	return fmt.Sprintf("s%02de%02d", season, episode)
}

// ParseEpisode extracts season and episode numbers from a filename.
func ParseEpisode(name string) (season, episode int, ok bool) {
	m := episodePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	season, _ = strconv.Atoi(m[1])
	episode, _ = strconv.Atoi(m[2])
	if episode <= 0 {
		return 0, 0, false
	}
	return season, episode, true
}

// Scan walks sourceDir and returns the episodes found, ordered by season and
// episode. Directories named "extras" (case-insensitive) are pruned, files
// without a media extension or a parseable SxxEyy tag are ignored, and when
// two files claim the same episode the lexicographically first path wins so
// the result is deterministic.
func Scan(sourceDir string) ([]Episode, error) {
	var episodes []Episode
	err := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.EqualFold(d.Name(), "extras") {
				return filepath.SkipDir
			}
			return nil
		}
		if !mediaExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		season, episode, ok := ParseEpisode(d.Name())
		if !ok {
			return nil
		}
		episodes = append(episodes, Episode{
			Key:     EpisodeKey(season, episode),
			Season:  season,
			Episode: episode,
			Path:    path,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", sourceDir, err)
	}

	sort.Slice(episodes, func(i, j int) bool {
		if episodes[i].Season != episodes[j].Season {
			return episodes[i].Season < episodes[j].Season
		}
		if episodes[i].Episode != episodes[j].Episode {
			return episodes[i].Episode < episodes[j].Episode
		}
		return episodes[i].Path < episodes[j].Path
	})

	deduped := episodes[:0]
	var lastKey string
	for _, ep := range episodes {
		if ep.Key == lastKey {
			continue
		}
		deduped = append(deduped, ep)
		lastKey = ep.Key
	}
	return deduped, nil
}
