package engine

import (
	"os"
	"strings"
)

// readLines reads path as newline-terminated lines; a missing file reads
// as an empty document rather than an error, per spec §7 "File I/O".
func readLines(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	content := string(data)
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

// writeLines writes lines to path, one newline-terminated line each.
func writeLines(path string, lines []string) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
