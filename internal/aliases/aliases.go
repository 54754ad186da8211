// Package aliases merges the two reserved entries this tool owns into the
// system alias file while leaving every other line untouched.
package aliases

import (
	"os"
	"strings"

	"github.com/postfixrelay/relayconf/internal/fileio"
)

const devnullLine = "devnull:       /dev/null\n"

// Update rewrites the alias file at path in a single pass: root: lines are
// dropped (re-added at the end when adminEmail is set), exactly one
// devnull mapping is guaranteed, and all other lines keep their relative
// order. A missing file is treated as empty input. Returns whether the
// file changed.
func Update(path, adminEmail string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	addDevnull := true
	var kept []string
	for _, line := range splitLines(string(data)) {
		if addDevnull && strings.HasPrefix(line, "devnull:") {
			addDevnull = false
		}
		if !strings.HasPrefix(line, "root:") {
			kept = append(kept, line)
		}
	}

	if addDevnull {
		kept = append(kept, devnullLine)
	}
	if adminEmail != "" {
		kept = append(kept, "root:          "+adminEmail+"\n")
	}

	return fileio.Write(strings.Join(kept, ""), path)
}

// splitLines splits on newlines keeping the terminators, so unchanged
// lines round-trip byte for byte.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
