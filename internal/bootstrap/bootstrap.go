// Package bootstrap seeds the master file with default content on first
// run and initializes (or refreshes) a peer's local file from the master
// file, per spec §6 "Files".
package bootstrap

import (
	"os"
	"time"
)

var defaultDocument = []string{
	"Hello World",
	"This is a collaborative editor",
	"Welcome to AtomEdit",
	"Edit this document and see real-time updates",
}

// EnsureMasterFile writes defaultDocument to masterFile if it is absent or
// empty, leaving any existing content untouched otherwise.
func EnsureMasterFile(masterFile string) error {
	info, err := os.Stat(masterFile)
	if err == nil && info.Size() > 0 {
		return nil
	}
	return writeLines(masterFile, defaultDocument)
}

// EnsureLocalFile initializes localFile from masterFile if localFile is
// missing or older than masterFile, and returns the local file's resulting
// content.
func EnsureLocalFile(masterFile, localFile string) ([]string, error) {
	localInfo, localErr := os.Stat(localFile)
	masterInfo, masterErr := os.Stat(masterFile)

	needsInit := localErr != nil
	if !needsInit && masterErr == nil && localInfo.ModTime().Before(masterInfo.ModTime()) {
		needsInit = true
	}

	if needsInit {
		content := readLines(masterFile)
		if err := writeLines(localFile, content); err != nil {
			return nil, err
		}
		return content, nil
	}
	return readLines(localFile), nil
}

func readLines(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return nil
	}
	s := string(data)
	if s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func writeLines(path string, lines []string) error {
	var out []byte
	for _, l := range lines {
		out = append(out, []byte(l)...)
		out = append(out, '\n')
	}
	return os.WriteFile(path, out, 0o644)
}

// touch is used only by tests that need to force a local file to look
// older than the master file.
func touch(path string, t time.Time) error {
	return os.Chtimes(path, t, t)
}
