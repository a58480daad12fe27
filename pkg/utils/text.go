// Package utils provides shared utilities for text, math, and logging.
package utils

import (
	"strings"
	"unicode/utf8"
)

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}

// Clip returns at most maxLen runes of s without a suffix.
func Clip(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}

// NormalizeKey lowercases and trims s. Tag keys are stored in this form.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DedupeFold trims each term, drops empties and keeps the first occurrence of
// every case-insensitive duplicate.
func DedupeFold(terms ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range terms {
		for _, t := range list {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			k := strings.ToLower(t)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
