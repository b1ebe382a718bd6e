package gogextract

import (
	"bytes"
	"compress/flate"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchEntry(t *testing.T) {
	data := newInstaller(t).bytes()

	idx, err := Index(t.Context(), newFetcher(data), "", int64(len(data)))
	require.NoErrorf(t, err, "Index() error = %v", err)

	for k, name := range testOrder {
		t.Run(name, func(t *testing.T) {
			f := newFetcher(data)

			raw, err := FetchEntry(t.Context(), f, idx, name)
			require.NoErrorf(t, err, "FetchEntry(%s) error = %v", name, err)
			assert.Equal(t, int64(1), f.calls.Load())
			assert.Equal(t, name, raw.Header.Name)
			assert.Equal(t, idx.Range(k).Len(), f.bytes.Load())

			// odd entries are deflated.
			got := raw.Data
			if k%2 == 1 {
				got, err = io.ReadAll(flate.NewReader(bytes.NewReader(raw.Data)))
				require.NoErrorf(t, err, "inflate(%s) error = %v", name, err)
			}
			assert.Equal(t, testFiles[name], string(got))
		})
	}
}

func TestFetchEntry_NotFound(t *testing.T) {
	data := newInstaller(t).bytes()

	idx, err := Index(t.Context(), newFetcher(data), "", int64(len(data)))
	require.NoErrorf(t, err, "Index() error = %v", err)

	_, err = FetchEntry(t.Context(), newFetcher(data), idx, "does/not/exist")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	e, ok := idx.Lookup("data/noarch/gameinfo")
	assert.True(t, ok)
	assert.Equal(t, "data/noarch/gameinfo", e.Name)

	_, ok = idx.Lookup("does/not/exist")
	assert.False(t, ok)
}

func TestFetchEntry_NameMismatch(t *testing.T) {
	data := newInstaller(t).bytes()

	idx, err := Index(t.Context(), newFetcher(data), "", int64(len(data)))
	require.NoErrorf(t, err, "Index() error = %v", err)

	// swapping the first two names makes the index disagree with the local file headers.
	idx.Entries[0].Name, idx.Entries[1].Name = idx.Entries[1].Name, idx.Entries[0].Name

	_, err = FetchEntry(t.Context(), newFetcher(data), idx, idx.Entries[0].Name)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestWriteEntry(t *testing.T) {
	data := newInstaller(t).bytes()

	idx, err := Index(t.Context(), newFetcher(data), "", int64(len(data)))
	require.NoErrorf(t, err, "Index() error = %v", err)

	buf := &bytes.Buffer{}
	_, err = WriteEntry(t.Context(), newFetcher(data), idx, "data/noarch/start.sh", buf)
	assert.NoErrorf(t, err, "WriteEntry() error = %v", err)
	assert.Equal(t, testFiles["data/noarch/start.sh"], buf.String())
}

func TestFetchEntry_SizeOverflow(t *testing.T) {
	data := newInstaller(t).bytes()

	idx, err := Index(t.Context(), newFetcher(data), "", int64(len(data)))
	require.NoErrorf(t, err, "Index() error = %v", err)

	for _, size := range []uint64{math.MaxUint64, math.MaxUint64 - 10, uint64(idx.Range(0).Len())} {
		idx.Entries[0].CompressedSize64 = size

		assert.NotPanics(t, func() {
			_, err = FetchEntry(t.Context(), newFetcher(data), idx, idx.Entries[0].Name)
		})
		assert.ErrorIsf(t, err, ErrFormat, "FetchEntry() with compressed size %d error = %v", size, err)
	}
}

func TestArchiveIndex_IndexOf(t *testing.T) {
	idx := &ArchiveIndex{Entries: []Entry{{}, {}, {}}}
	idx.Entries[0].Name = "a"
	idx.Entries[1].Name = "b"
	idx.Entries[2].Name = "a"

	assert.Equal(t, 0, idx.IndexOf("a"))
	assert.Equal(t, 1, idx.IndexOf("b"))
	assert.Equal(t, -1, idx.IndexOf("c"))
}
