// Package textutil holds small text transforms shared by state files,
// catalog rows, and CLI output.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Slug converts a series name into a filesystem-safe lowercase token.
// Runs of non-alphanumeric characters collapse into a single hyphen so
// "The Expanse: Season 1" and "the expanse season 1" map to the same slug.
func Slug(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "series"
	}
	var b strings.Builder
	b.Grow(len(value))
	prevHyphen := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
			prevHyphen = false
		default:
			if !prevHyphen && b.Len() > 0 {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "series"
	}
	return slug
}

// DisplayTitle derives a human-readable title from a series or directory
// name. Separator runs become single spaces and words are title-cased.
func DisplayTitle(value string) string {
	if value == "" {
		return "Unknown Series"
	}
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return "Unknown Series"
	}
	return cases.Title(language.Und).String(title)
}
