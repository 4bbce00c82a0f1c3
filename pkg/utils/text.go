// Package utils provides shared utilities for text, math, and logging.
package utils

import "strings"

// Truncate returns s truncated to maxLen bytes, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// WordCount returns the number of whitespace-separated words in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Snippet produces a short plain-text preview of markdown content:
// the first 200 characters with heading markers and emphasis stripped,
// newlines collapsed to spaces.
func Snippet(content string) string {
	runes := []rune(content)
	if len(runes) > 250 {
		runes = runes[:250]
	}
	lines := strings.Split(string(runes), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimLeft(line, "#"))
		line = strings.ReplaceAll(line, "**", "")
		line = strings.ReplaceAll(line, "*", "")
		lines[i] = line
	}
	stripped := strings.Join(lines, " ")
	// Cap on runes, not bytes, so multibyte content is never cut mid-rune.
	if out := []rune(stripped); len(out) > 200 {
		return string(out[:200]) + "..."
	}
	return stripped
}
