// Package installertest builds small synthetic installers for tests.
package installertest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// File is a member of the payload archive.
type File struct {
	Name    string
	Content string
	Method  uint16
}

// Build creates an installer consisting of a shell script header, the given bootstrap bytes, and a ZIP payload with
// the given files in that order.
func Build(t testing.TB, bootstrap []byte, files ...File) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: f.Method})
		require.NoErrorf(t, err, "CreateHeader(%s) error = %v", f.Name, err)
		_, err = w.Write([]byte(f.Content))
		require.NoErrorf(t, err, "Write(%s) error = %v", f.Name, err)
	}
	require.NoError(t, zw.Close())

	return bytes.Join([][]byte{Script(len(bootstrap)), bootstrap, buf.Bytes()}, nil)
}

// Script creates a makeself-style shell script header that declares its own line count and the bootstrap size.
func Script(bootstrapLen int) []byte {
	lines := []string{
		"#!/bin/sh",
		"# This script was generated using Makeself 2.4.0",
		fmt.Sprintf(`filesizes="%d"`, bootstrapLen),
		"offset=`head -n 5 \"$0\" | wc -c | tr -d \" \"`",
		"exit 0",
	}

	return []byte(strings.Join(lines, "\n") + "\n")
}
