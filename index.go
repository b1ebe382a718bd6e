package gogextract

import (
	"context"
	"fmt"
	"log"

	"github.com/dustin/go-humanize"
	"github.com/nguyengg/gogextract/zip/scan"
)

// IndexOptions customises Index.
type IndexOptions struct {
	// ScanMode chooses how the EOCD signature is searched.
	//
	// By default, scan.Window is used which reads the trailer in one request.
	ScanMode scan.Mode

	// MaxTrailerBytes limits how many bytes from the end are searched for the EOCD signature.
	//
	// By default, scan.MaxTrailerSize is used.
	MaxTrailerBytes int64

	// ProbeBufferSize is the chunk size used to read the shell script header.
	//
	// By default, DefaultSequentialBufferSize is used.
	ProbeBufferSize int

	// Logger if given will receive progress messages.
	Logger *log.Logger
}

// Entry is a central directory entry with its absolute location within the installer.
type Entry struct {
	scan.CDEntry

	// StartOffset is the absolute offset of the entry's local file header within the installer.
	StartOffset int64
	// EndOffset is the StartOffset of the next entry in central directory order, or one byte before the start of the
	// central directory for the last entry.
	EndOffset int64
}

// ArchiveIndex lists the absolute byte ranges of every file in the payload ZIP archive of an installer.
//
// An ArchiveIndex is not modified after Index returns and holds no payload bytes.
type ArchiveIndex struct {
	// URL identifies the resource that was indexed.
	URL string
	// Size is the total size of the installer.
	Size int64
	// ScriptLen is the length of the shell script header.
	ScriptLen int64
	// BootstrapLen is the length of the bootstrap archive.
	BootstrapLen int64
	// Location is where the EOCD record was found.
	Location scan.Location
	// CDStart is the absolute offset of the central directory.
	CDStart int64
	// CDSize is the size of the central directory.
	CDSize int64
	// Comment is the archive comment.
	Comment string
	// Entries is in central directory order.
	Entries []Entry
}

// Layout returns the segment layout of the indexed installer.
func (idx *ArchiveIndex) Layout() Layout {
	return Layout{ScriptLen: idx.ScriptLen, BootstrapLen: idx.BootstrapLen, Size: idx.Size}
}

// Range returns the half-open range that contains the i-th entry's local file header and data.
//
// For every entry but the last, this is [StartOffset, EndOffset). The last entry ends right where the central
// directory begins.
func (idx *ArchiveIndex) Range(i int) Range {
	e := idx.Entries[i]
	if i == len(idx.Entries)-1 {
		return Range{e.StartOffset, idx.CDStart}
	}

	return Range{e.StartOffset, e.EndOffset}
}

// Lookup returns the first entry with the given name.
func (idx *ArchiveIndex) Lookup(name string) (Entry, bool) {
	if i := idx.IndexOf(name); i >= 0 {
		return idx.Entries[i], true
	}

	return Entry{}, false
}

// IndexOf returns the position of the first entry with the given name, or -1 if there is none.
func (idx *ArchiveIndex) IndexOf(name string) int {
	for i, e := range idx.Entries {
		if e.Name == name {
			return i
		}
	}

	return -1
}

// Index builds the ArchiveIndex of the installer by reading only its header, trailer, and central directory.
//
// url is only used to identify the resource in the returned ArchiveIndex. All reads go through f, strictly one after
// another: the shell script header is read sequentially, then the trailer is scanned for the EOCD signature, then the
// EOCD record and the central directory are fetched. No entry data is read.
func Index(ctx context.Context, f scan.RangeFetcher, url string, size int64, optFns ...func(*IndexOptions)) (*ArchiveIndex, error) {
	opts := &IndexOptions{
		ScanMode:        scan.Window,
		MaxTrailerBytes: scan.MaxTrailerSize,
		ProbeBufferSize: DefaultSequentialBufferSize,
	}
	for _, fn := range optFns {
		fn(opts)
	}

	f = checked(f)
	scriptLen, bootstrapLen, err := ProbeSizes(NewSequentialReader(ctx, f, size, opts.ProbeBufferSize))
	if err != nil {
		return nil, err
	}

	l := Layout{ScriptLen: scriptLen, BootstrapLen: bootstrapLen, Size: size}
	if err = l.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger != nil {
		opts.Logger.Printf("script is %s, bootstrap is %s, payload is %s",
			humanize.IBytes(uint64(scriptLen)), humanize.IBytes(uint64(bootstrapLen)), humanize.IBytes(uint64(l.Payload().Len())))
	}

	loc, err := scan.Locate(ctx, f, size, func(o *scan.Options) {
		o.Mode = opts.ScanMode
		o.MaxBytes = opts.MaxTrailerBytes
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	dir, err := scan.ReadDirectory(ctx, f, size, loc, l.PayloadOffset())
	if err != nil {
		return nil, err
	}

	cdStart := l.PayloadOffset() + int64(dir.Offset)
	cdEnd := cdStart + int64(dir.Size)
	if dir.Offset > uint64(size) || dir.Size > uint64(size) || cdEnd > size {
		return nil, formatError("EOCD", "central directory [%d, %d) out of bounds (size %d)", cdStart, cdEnd, size)
	}
	if opts.Logger != nil {
		opts.Logger.Printf("found EOCD record %s, central directory has %d entries (%s)",
			loc, dir.Count, humanize.IBytes(dir.Size))
	}

	idx := &ArchiveIndex{
		URL:          url,
		Size:         size,
		ScriptLen:    scriptLen,
		BootstrapLen: bootstrapLen,
		Location:     loc,
		CDStart:      cdStart,
		CDSize:       int64(dir.Size),
		Comment:      dir.Comment,
		Entries:      []Entry{},
	}
	if dir.Count == 0 {
		return idx, nil
	}

	// each entry takes at least 46 bytes so a count larger than that can only come from a corrupt record.
	if dir.Count > dir.Size/46 {
		return nil, formatError("EOCD", "%d entries cannot fit in %d bytes of central directory", dir.Count, dir.Size)
	}

	b, err := f.FetchRange(ctx, cdStart, cdEnd)
	if err != nil {
		return nil, err
	}

	entries, err := scan.DecodeEntries(b, int(dir.Count))
	if err != nil {
		return nil, err
	}

	idx.Entries = ResolveOffsets(entries, l.PayloadOffset(), cdStart)
	return idx, nil
}

// ResolveOffsets computes the absolute offsets of the given entries.
//
// For entry k, StartOffset is payloadOffset plus its local header offset. EndOffset is the StartOffset of entry k+1,
// or cdStart-1 for the last entry.
//
// The entries must be in physical storage order, which is true for the central directory of an archive that was
// neither split nor reordered. The ZIP format does not guarantee this, and the entries are not sorted.
func ResolveOffsets(entries []scan.CDEntry, payloadOffset, cdStart int64) []Entry {
	resolved := make([]Entry, len(entries))
	for i, e := range entries {
		resolved[i] = Entry{CDEntry: e, StartOffset: payloadOffset + int64(e.Offset)}
	}

	for i := range resolved {
		if i+1 < len(resolved) {
			resolved[i].EndOffset = resolved[i+1].StartOffset
		} else {
			resolved[i].EndOffset = cdStart - 1
		}
	}

	return resolved
}

func (e Entry) String() string {
	return fmt.Sprintf("%s [%d, %d)", e.Name, e.StartOffset, e.EndOffset)
}
