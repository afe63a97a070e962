package release

import (
	"os"
	"strings"
)

const (
	DefaultChangelogLines = 80
	minChangelogLines     = 5
)

// ReadChangelogExcerpt returns the first maxLines lines of the file at path
// with trailing whitespace removed. It returns "" when the file is missing,
// unreadable or blank.
func ReadChangelogExcerpt(path string, maxLines int) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if n := max(minChangelogLines, maxLines); len(lines) > n {
		lines = lines[:n]
	}
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
