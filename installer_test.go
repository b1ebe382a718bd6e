package gogextract

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nguyengg/gogextract/zip/scan"
	"github.com/stretchr/testify/require"
)

// installer is a synthetic MojoSetup installer.
type installer struct {
	script, bootstrap, payload []byte
}

func (i installer) bytes() []byte {
	return bytes.Join([][]byte{i.script, i.bootstrap, i.payload}, nil)
}

func (i installer) layout() Layout {
	return Layout{ScriptLen: int64(len(i.script)), BootstrapLen: int64(len(i.bootstrap)), Size: int64(len(i.bytes()))}
}

// makeScript creates a makeself-style shell script header whose markers declare its own line count and the given
// bootstrap size.
func makeScript(bootstrapLen int) []byte {
	lines := []string{
		"#!/bin/sh",
		"# This script was generated using Makeself 2.4.0",
		"ORIG_UMASK=`umask`",
		`CRCsum="0000000000"`,
		`MD5="00000000000000000000000000000000"`,
		`label="Test Installer"`,
		`script="./startmojo.sh"`,
		fmt.Sprintf(`filesizes="%d"`, bootstrapLen),
		"offset=`head -n %d \"$0\" | wc -c | tr -d \" \"`",
		`if test -n "$1"; then`,
		`    echo "$1"`,
		`fi`,
		`exit 0`,
	}
	lines[8] = fmt.Sprintf(lines[8], len(lines))

	return []byte(strings.Join(lines, "\n") + "\n")
}

// makeZip creates a ZIP archive with the given files in that order, alternating between store and deflate.
func makeZip(t *testing.T, names []string, contents map[string]string) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for i, name := range names {
		method := zip.Store
		if i%2 == 1 {
			method = zip.Deflate
		}

		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		require.NoErrorf(t, err, "CreateHeader(%s) error = %v", name, err)
		_, err = w.Write([]byte(contents[name]))
		require.NoErrorf(t, err, "Write(%s) error = %v", name, err)
	}
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

var testFiles = map[string]string{
	"data/noarch/start.sh":          "#!/bin/bash\nexec ./game.x86_64 \"$@\"\n",
	"data/noarch/game/game.x86_64":  strings.Repeat("\x7fELF", 1000),
	"data/noarch/game/data/a.pak":   strings.Repeat("a", 4096),
	"data/noarch/support/icon.png":  "\x89PNG\r\n\x1a\n",
	"data/noarch/docs/README.txt":   "hello, world\n",
	"data/noarch/gameinfo":          "Test Game\n1.0\n",
	"data/noarch/support/yad/yad.x": "",
}

var testOrder = []string{
	"data/noarch/start.sh",
	"data/noarch/game/game.x86_64",
	"data/noarch/game/data/a.pak",
	"data/noarch/support/icon.png",
	"data/noarch/docs/README.txt",
	"data/noarch/gameinfo",
	"data/noarch/support/yad/yad.x",
}

func newInstaller(t *testing.T) installer {
	t.Helper()

	bootstrap := bytes.Repeat([]byte{0x1f, 0x8b, 0x08, 0x00}, 300)
	return installer{
		script:    makeScript(len(bootstrap)),
		bootstrap: bootstrap,
		payload:   makeZip(t, testOrder, testFiles),
	}
}

// countingFetcher counts FetchRange calls and the number of bytes requested.
type countingFetcher struct {
	f            scan.RangeFetcher
	calls, bytes atomic.Int64
}

func newFetcher(data []byte) *countingFetcher {
	return &countingFetcher{f: scan.ReaderAtFetcher{ReaderAt: bytes.NewReader(data)}}
}

func (c *countingFetcher) FetchRange(ctx context.Context, start, end int64) ([]byte, error) {
	c.calls.Add(1)
	c.bytes.Add(end - start)
	return c.f.FetchRange(ctx, start, end)
}
