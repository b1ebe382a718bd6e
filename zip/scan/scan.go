package scan

import (
	"context"
	"fmt"
)

// DecodeEntries decodes count consecutive central directory file headers from b.
//
// The entries are returned in the order they appear in the central directory. Bytes left over after the last entry
// are ignored; the number of bytes consumed is not cross-checked against the declared central directory size.
func DecodeEntries(b []byte, count int) ([]CDEntry, error) {
	entries := make([]CDEntry, 0, count)

	for i := range count {
		e, n, err := UnmarshalCDEntry(b)
		if err != nil {
			return nil, fmt.Errorf("decode entry %d/%d error: %w", i+1, count, err)
		}

		entries = append(entries, e)
		b = b[n:]
	}

	return entries, nil
}

// Directory describes where the central directory lives, as declared by either EOCD variant.
type Directory struct {
	// Offset is the start of the central directory relative to the start of the ZIP archive.
	Offset uint64
	// Size is the size of the central directory in bytes.
	Size uint64
	// Count is the total number of entries.
	Count uint64
	// Comment is the archive comment. Only the standard EOCD record carries one.
	Comment string
}

// ReadDirectory decodes the EOCD record at loc and returns where the central directory lives.
//
// The bytes [loc.Offset, size) are fetched in one request. If loc is a standard record whose fields are saturated and
// a ZIP64 EOCD locator precedes it, the ZIP64 EOCD record it points to is used instead; the locator's offset is
// relative to the archive, so base is added to it to get the absolute position.
func ReadDirectory(ctx context.Context, f RangeFetcher, size int64, loc Location, base int64) (Directory, error) {
	b, err := f.FetchRange(ctx, loc.Offset, size)
	if err != nil {
		return Directory{}, fmt.Errorf("read EOCD at %d error: %w", loc.Offset, err)
	}

	if loc.Zip64 {
		r, err := UnmarshalEOCD64(b)
		if err != nil {
			return Directory{}, err
		}

		return Directory{Offset: r.CDOffset, Size: r.CDSize, Count: r.CDCount}, nil
	}

	r, err := UnmarshalEOCD(b)
	if err != nil {
		return Directory{}, err
	}

	d := Directory{Offset: uint64(r.CDOffset), Size: uint64(r.CDSize), Count: uint64(r.CDCount), Comment: r.Comment}
	if !r.NeedsZip64() || loc.Offset < eocd64LocatorLen {
		return d, nil
	}

	lb, err := f.FetchRange(ctx, loc.Offset-eocd64LocatorLen, loc.Offset)
	if err != nil {
		return Directory{}, fmt.Errorf("read ZIP64 EOCD locator error: %w", err)
	}
	l, err := UnmarshalEOCD64Locator(lb)
	if err != nil {
		// saturated fields without a locator are taken at face value.
		return d, nil
	}

	start := base + int64(l.Offset)
	if start < 0 || start+eocd64Len > size {
		return Directory{}, &FormatError{Record: "ZIP64 EOCD locator", Err: fmt.Errorf("record offset %d out of bounds", start)}
	}

	b, err = f.FetchRange(ctx, start, start+eocd64Len)
	if err != nil {
		return Directory{}, fmt.Errorf("read ZIP64 EOCD at %d error: %w", start, err)
	}
	r64, err := UnmarshalEOCD64(b)
	if err != nil {
		return Directory{}, err
	}

	return Directory{Offset: r64.CDOffset, Size: r64.CDSize, Count: r64.CDCount, Comment: r.Comment}, nil
}
