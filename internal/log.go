package internal

import (
	"fmt"
	"log"
	"os"
	"path"
	"strings"
)

// Prefix creates a consistent prefix for all per-installer commands to use.
//
// i and n are the zero-based ordinal and expected count. name can be a local path or a URL; only its base name is
// used.
func Prefix(i, n int, name string) string {
	return fmt.Sprintf(`[%d/%d] "%s" - `, i+1, n, truncateRight(baseName(name), 30, "..."))
}

// NewLogger creates a new logger to stderr using Prefix.
func NewLogger(i, n int, name string) *log.Logger {
	return log.New(os.Stderr, Prefix(i, n, name), 0)
}

// baseName returns the last element of a local path or a URL, ignoring any query string.
func baseName(name string) string {
	if before, _, ok := strings.Cut(name, "?"); ok && strings.Contains(name, "://") {
		name = before
	}

	return path.Base(strings.ReplaceAll(name, `\`, "/"))
}

// truncateRight keeps at most n runes of text, appending suffix if anything was removed.
func truncateRight(text string, n int, suffix string) string {
	rs := []rune(text)
	if len(rs) <= n {
		return text
	}

	return string(rs[:n]) + suffix
}
