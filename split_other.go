//go:build !unix

package gogextract

import "os"

const scriptPerm os.FileMode = 0666

// chmod is a no-op since there are no owner/group/other execute bits to set.
func chmod(_ *os.File, _ os.FileMode) error {
	return nil
}
