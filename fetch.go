package gogextract

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nguyengg/gogextract/zip/scan"
)

// ErrEntryNotFound is returned by FetchEntry and WriteEntry if the archive has no entry with the requested name.
var ErrEntryNotFound = errors.New("entry not found")

// RawEntry is an archive member as stored: its local file header and its still-compressed data.
type RawEntry struct {
	// Header is the local file header.
	Header scan.LocalFileHeader
	// Entry is the central directory entry from the index.
	Entry Entry
	// Data is the compressed data, exactly Entry.CompressedSize64 bytes. Decompressing it is up to the caller.
	Data []byte
}

// FetchEntry downloads the named entry with exactly one ranged read.
//
// The local file header at the start of the range must have the same name as the central directory entry, otherwise
// a FormatError is returned.
func FetchEntry(ctx context.Context, f scan.RangeFetcher, idx *ArchiveIndex, name string) (*RawEntry, error) {
	i := idx.IndexOf(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	e, r := idx.Entries[i], idx.Range(i)
	if r.Len() <= 0 {
		return nil, formatError("local file header", "entry %s has empty range %s", name, r)
	}

	b, err := checked(f).FetchRange(ctx, r.Start, r.End)
	if err != nil {
		return nil, err
	}

	lfh, n, err := scan.UnmarshalLocalFileHeader(b)
	if err != nil {
		return nil, err
	}
	if lfh.Name != e.Name {
		return nil, formatError("local file header", "name mismatch, got %q, expected %q", lfh.Name, e.Name)
	}

	if e.CompressedSize64 > uint64(len(b)-n) {
		return nil, formatError("local file header", "entry %s needs %d bytes but range %s only has %d after its header", name, e.CompressedSize64, r, len(b)-n)
	}

	return &RawEntry{
		Header: lfh,
		Entry:  e,
		Data:   b[n : n+int(e.CompressedSize64)],
	}, nil
}

// WriteEntry is a convenient wrapper around FetchEntry that writes the compressed data to w.
func WriteEntry(ctx context.Context, f scan.RangeFetcher, idx *ArchiveIndex, name string, w io.Writer) (*RawEntry, error) {
	e, err := FetchEntry(ctx, f, idx, name)
	if err != nil {
		return nil, err
	}

	if _, err = w.Write(e.Data); err != nil {
		return nil, fmt.Errorf("write %s error: %w", name, err)
	}

	return e, nil
}
