//go:build unix

package gogextract

import "os"

// scriptPerm makes the shell script executable by its owner.
const scriptPerm os.FileMode = 0744

// chmod sets the exact permission regardless of umask.
func chmod(f *os.File, perm os.FileMode) error {
	return f.Chmod(perm)
}
