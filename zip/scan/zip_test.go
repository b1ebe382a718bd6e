package scan

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newZip creates an in-memory stored (uncompressed) ZIP archive with the given files in that order.
func newZip(t *testing.T, files map[string]string, order []string, comment string) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, name := range order {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		require.NoErrorf(t, err, "CreateHeader(%s) error = %v", name, err)

		_, err = w.Write([]byte(files[name]))
		require.NoErrorf(t, err, "Write(%s) error = %v", name, err)
	}

	if comment != "" {
		require.NoError(t, zw.SetComment(comment))
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestCDEntry_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		e    CDEntry
	}{
		{
			name: "minimal",
			e: CDEntry{
				FileHeader: zip.FileHeader{Name: "a.txt"},
			},
		},
		{
			name: "everything",
			e: CDEntry{
				FileHeader: zip.FileHeader{
					Name:               "data/noarch/game/data.pak",
					Comment:            "some comment",
					CreatorVersion:     0x031e,
					ReaderVersion:      20,
					Flags:              0x8,
					Method:             zip.Deflate,
					ModifiedTime:       0x6a4f,
					ModifiedDate:       0x5a21,
					CRC32:              0xdeadbeef,
					CompressedSize:     1234,
					UncompressedSize:   5678,
					CompressedSize64:   1234,
					UncompressedSize64: 5678,
					Extra:              []byte{0x55, 0x54, 0x05, 0x00, 0x03, 0x01, 0x02, 0x03, 0x04},
					ExternalAttrs:      0o100744 << 16,
				},
				DiskNumber:    0,
				InternalAttrs: 1,
				Offset:        4096,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.e.Modified = msDosTimeToTime(tt.e.ModifiedDate, tt.e.ModifiedTime)

			b, err := tt.e.MarshalBinary()
			require.NoErrorf(t, err, "MarshalBinary() error = %v", err)
			assert.Len(t, b, 46+len(tt.e.Name)+len(tt.e.Extra)+len(tt.e.Comment))

			got, n, err := UnmarshalCDEntry(b)
			assert.NoErrorf(t, err, "UnmarshalCDEntry() error = %v", err)
			assert.Equal(t, len(b), n)
			assert.Equal(t, tt.e, got)
		})
	}
}

func TestUnmarshalCDEntry_Zip64Extra(t *testing.T) {
	// an unrelated extended timestamp block precedes the zip64 block.
	extra := []byte{0x55, 0x54, 0x05, 0x00, 0x03, 0x01, 0x02, 0x03, 0x04}
	extra = binary.LittleEndian.AppendUint16(extra, zip64ExtraID)
	extra = binary.LittleEndian.AppendUint16(extra, 24)
	extra = binary.LittleEndian.AppendUint64(extra, 5<<30)
	extra = binary.LittleEndian.AppendUint64(extra, 4<<30)
	extra = binary.LittleEndian.AppendUint64(extra, 6<<30)

	b, err := CDEntry{
		FileHeader: zip.FileHeader{
			Name:             "big.bin",
			CompressedSize:   uint32max,
			UncompressedSize: uint32max,
			Extra:            extra,
		},
		Offset: 6 << 30,
	}.MarshalBinary()
	require.NoErrorf(t, err, "MarshalBinary() error = %v", err)

	got, _, err := UnmarshalCDEntry(b)
	require.NoErrorf(t, err, "UnmarshalCDEntry() error = %v", err)
	assert.Equal(t, uint32(uint32max), got.CompressedSize)
	assert.Equal(t, uint32(uint32max), got.UncompressedSize)
	assert.Equal(t, uint64(4<<30), got.CompressedSize64)
	assert.Equal(t, uint64(5<<30), got.UncompressedSize64)
	assert.Equal(t, uint64(6<<30), got.Offset)
}

func TestUnmarshalCDEntry_Zip64ExtraOnlyOffset(t *testing.T) {
	extra := binary.LittleEndian.AppendUint16(nil, zip64ExtraID)
	extra = binary.LittleEndian.AppendUint16(extra, 8)
	extra = binary.LittleEndian.AppendUint64(extra, 1<<33)

	b, err := CDEntry{
		FileHeader: zip.FileHeader{Name: "a", CompressedSize: 10, UncompressedSize: 20, Extra: extra},
		Offset:     uint32max,
	}.MarshalBinary()
	require.NoErrorf(t, err, "MarshalBinary() error = %v", err)

	got, _, err := UnmarshalCDEntry(b)
	require.NoErrorf(t, err, "UnmarshalCDEntry() error = %v", err)
	assert.Equal(t, uint64(10), got.CompressedSize64)
	assert.Equal(t, uint64(20), got.UncompressedSize64)
	assert.Equal(t, uint64(1<<33), got.Offset)
}

func TestUnmarshalCDEntry_Errors(t *testing.T) {
	valid, err := CDEntry{FileHeader: zip.FileHeader{Name: "abc"}}.MarshalBinary()
	require.NoErrorf(t, err, "MarshalBinary() error = %v", err)

	tests := []struct {
		name string
		b    []byte
	}{
		{
			name: "short fixed part",
			b:    valid[:45],
		},
		{
			name: "truncated name",
			b:    valid[:47],
		},
		{
			name: "bad signature",
			b:    append(bytes.Clone(lfhSigBytes), valid[4:]...),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := UnmarshalCDEntry(tt.b)
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestDecodeEntries(t *testing.T) {
	files := map[string]string{
		"unpacker.sh":            "#!/bin/sh\necho hello\n",
		"data/noarch/start.sh":   "#!/bin/bash\n",
		"data/noarch/game/a.pak": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
	order := []string{"unpacker.sh", "data/noarch/start.sh", "data/noarch/game/a.pak"}
	data := newZip(t, files, order, "")

	loc, err := Locate(t.Context(), newFetcher(data), int64(len(data)))
	require.NoErrorf(t, err, "Locate() error = %v", err)

	r, err := UnmarshalEOCD(data[loc.Offset:])
	require.NoErrorf(t, err, "UnmarshalEOCD() error = %v", err)
	assert.Equal(t, uint16(3), r.CDCount)

	entries, err := DecodeEntries(data[r.CDOffset:r.CDOffset+r.CDSize], int(r.CDCount))
	require.NoErrorf(t, err, "DecodeEntries() error = %v", err)
	require.Len(t, entries, 3)

	for i, e := range entries {
		assert.Equal(t, order[i], e.Name)
		assert.Equal(t, uint64(len(files[e.Name])), e.UncompressedSize64)
		assert.Equal(t, uint64(len(files[e.Name])), e.CompressedSize64)

		// every offset points to the matching local file header followed by the stored content.
		lfh, n, err := UnmarshalLocalFileHeader(data[e.Offset:])
		assert.NoErrorf(t, err, "UnmarshalLocalFileHeader(%s) error = %v", e.Name, err)
		assert.Equal(t, e.Name, lfh.Name)
		assert.Equal(t, files[e.Name], string(data[int(e.Offset)+n:int(e.Offset)+n+len(files[e.Name])]))
	}

	// trailing bytes are ignored.
	_, err = DecodeEntries(data[r.CDOffset:], int(r.CDCount))
	assert.NoError(t, err)

	// zero entries never reads.
	entries, err = DecodeEntries(nil, 0)
	assert.NoError(t, err)
	assert.Empty(t, entries)

	// asking for more entries than present fails.
	_, err = DecodeEntries(data[r.CDOffset:r.CDOffset+r.CDSize], 4)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestUnmarshalLocalFileHeader_Errors(t *testing.T) {
	_, _, err := UnmarshalLocalFileHeader(lfhSigBytes)
	assert.ErrorIs(t, err, ErrFormat)

	_, _, err = UnmarshalLocalFileHeader(append(bytes.Clone(cdfhSigBytes), make([]byte, 26)...))
	assert.ErrorIs(t, err, ErrFormat)
}
