package scan

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

// MaxTrailerSize is the default value of [Options.MaxBytes].
//
// It is the largest possible ZIP comment plus the fixed sizes of the standard EOCD, ZIP64 EOCD, and ZIP64 EOCD locator
// records, so a well-formed archive always has its EOCD signature within this many bytes from the end.
const MaxTrailerSize int64 = uint16max + eocdLen + eocd64Len + eocd64LocatorLen

// ErrNotAvailable is returned if no EOCD signature was found within the scanned range.
var ErrNotAvailable = errors.New("end of central directory not found; most likely not a ZIP-terminated installer or the archive is truncated")

// Mode controls how FindSignature reads from the RangeFetcher.
type Mode int

const (
	// Window fetches the whole trailer in one request and scans it in memory.
	Window Mode = iota
	// ProbeEach fetches one 4-byte window per candidate position, from the end inward.
	ProbeEach
)

func (m Mode) String() string {
	switch m {
	case Window:
		return "window"
	case ProbeEach:
		return "probe-each"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "window":
		return Window, nil
	case "probe-each":
		return ProbeEach, nil
	default:
		return Window, fmt.Errorf("unknown scan mode %q", s)
	}
}

// Options customises how the signature is searched.
type Options struct {
	// Mode chooses between fetching the trailer at once or probing each position.
	//
	// By default, Window is used. Both modes return the same result.
	Mode Mode

	// MaxBytes limits the number of trailing bytes scanned.
	//
	// By default, MaxTrailerSize is used. Set this to 0 or to the file size to force scanning the entire file.
	MaxBytes int64

	// Logger if given will receive throttled progress messages in ProbeEach mode.
	Logger *log.Logger
}

// Location is the position of an EOCD record.
//
// Exactly one of the two variants is found for a valid archive: the standard record (Zip64 is false) or the ZIP64
// record (Zip64 is true).
type Location struct {
	// Offset is the absolute position of the record's 4-byte signature within the whole resource.
	Offset int64
	// Zip64 is true if the signature belongs to the ZIP64 EOCD record.
	Zip64 bool
}

func (l Location) String() string {
	if l.Zip64 {
		return fmt.Sprintf("Zip64(%d)", l.Offset)
	}

	return fmt.Sprintf("Standard(%d)", l.Offset)
}

// Locate scans backwards from the end of the resource for the standard or ZIP64 EOCD signature.
//
// The match closest to the end wins. ErrNotAvailable is returned if neither signature is found within
// [Options.MaxBytes] bytes of the end.
func Locate(ctx context.Context, f RangeFetcher, size int64, optFns ...func(*Options)) (Location, error) {
	opts := &Options{
		Mode:     Window,
		MaxBytes: MaxTrailerSize,
	}
	for _, fn := range optFns {
		fn(opts)
	}

	off, sig, err := FindSignature(ctx, f, size, []uint32{EOCDSignature, EOCD64Signature}, opts)
	if err != nil {
		return Location{}, err
	}

	return Location{Offset: off, Zip64: sig == EOCD64Signature}, nil
}

// FindSignature searches backwards for the first of sigs, 4-byte little-endian values, closest to the end of the
// resource.
//
// For i from 4 upward, the 4 bytes at size-i are compared against every signature. Returns the absolute offset of the
// match and the signature that matched.
func FindSignature(ctx context.Context, f RangeFetcher, size int64, sigs []uint32, opts *Options) (int64, uint32, error) {
	limit := size
	if opts.MaxBytes > 0 {
		limit = min(size, opts.MaxBytes)
	}
	if limit < 4 {
		return 0, 0, ErrNotAvailable
	}

	switch opts.Mode {
	case ProbeEach:
		return probeEach(ctx, f, size, limit, sigs, opts.Logger)
	default:
		return window(ctx, f, size, limit, sigs)
	}
}

func window(ctx context.Context, f RangeFetcher, size, limit int64, sigs []uint32) (int64, uint32, error) {
	start := size - limit
	b, err := f.FetchRange(ctx, start, size)
	if err != nil {
		return 0, 0, fmt.Errorf("find EOCD: read last %d bytes error: %w", limit, err)
	}
	if int64(len(b)) != limit {
		return 0, 0, fmt.Errorf("find EOCD: insufficient read: expected %d bytes, got %d", limit, len(b))
	}

	for i := int64(4); i <= limit; i++ {
		pos := limit - i
		v := binary.LittleEndian.Uint32(b[pos : pos+4])
		for _, sig := range sigs {
			if v == sig {
				return start + pos, sig, nil
			}
		}
	}

	return 0, 0, ErrNotAvailable
}

func probeEach(ctx context.Context, f RangeFetcher, size, limit int64, sigs []uint32, logger *log.Logger) (int64, uint32, error) {
	sometimes := rate.Sometimes{Interval: 5 * time.Second}

	for i := int64(4); i <= limit; i++ {
		pos := size - i
		b, err := f.FetchRange(ctx, pos, pos+4)
		if err != nil {
			return 0, 0, fmt.Errorf("find EOCD: read 4 bytes at %d error: %w", pos, err)
		}
		if len(b) != 4 {
			return 0, 0, fmt.Errorf("find EOCD: insufficient read at %d: expected 4 bytes, got %d", pos, len(b))
		}

		v := binary.LittleEndian.Uint32(b)
		for _, sig := range sigs {
			if v == sig {
				return pos, sig, nil
			}
		}

		if logger != nil {
			sometimes.Do(func() {
				logger.Printf("scanned %s / %s from end so far", humanize.IBytes(uint64(i)), humanize.IBytes(uint64(limit)))
			})
		}
	}

	return 0, 0, ErrNotAvailable
}
