// Package scan locates and decodes the end of central directory records and central directory entries of a ZIP
// archive using only ranged reads.
package scan

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	lfhSig           = 0x04034b50
	cdfhSig          = 0x02014b50
	eocd64LocatorSig = 0x07064b50

	// EOCDSignature is the signature of the standard end of central directory record.
	EOCDSignature uint32 = 0x06054b50
	// EOCD64Signature is the signature of the ZIP64 end of central directory record.
	EOCD64Signature uint32 = 0x06064b50

	lfhLen           = 30
	cdfhLen          = 46
	eocdLen          = 22
	eocd64Len        = 56
	eocd64LocatorLen = 20

	zip64ExtraID = 0x0001
	uint16max    = 0xffff
	uint32max    = 0xffffffff
)

var (
	lfhSigBytes  = putUint32(lfhSig)
	cdfhSigBytes = putUint32(cdfhSig)
)

func putUint32(v uint32) (b []byte) {
	b = make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// ErrFormat is matched by every FormatError.
var ErrFormat = errors.New("invalid format")

// FormatError is returned when a record cannot be decoded or a required marker is missing.
type FormatError struct {
	// Record names the structure that failed to decode, such as "EOCD" or "CD file header".
	Record string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("decode %s error: %v", e.Record, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrFormat) true for every FormatError.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

func insufficientData(record string, want, got int) error {
	return &FormatError{Record: record, Err: fmt.Errorf("insufficient data: expected at least %d bytes, got %d", want, got)}
}

func mismatchedSignature(record string, got []byte, want []byte) error {
	return &FormatError{Record: record, Err: fmt.Errorf("mismatched signature, got 0x%x, expected 0x%x", got, want)}
}

// LocalFileHeader models the local file header that precedes every file's data in a ZIP archive.
type LocalFileHeader struct {
	zip.FileHeader
}

// UnmarshalLocalFileHeader decodes the local file header at the start of b.
//
// Returns the header and the number of bytes it occupies (30 + name + extra), which is also the offset of the file's
// compressed data relative to b.
func UnmarshalLocalFileHeader(b []byte) (fh LocalFileHeader, n int, err error) {
	if len(b) < lfhLen {
		return fh, 0, insufficientData("local file header", lfhLen, len(b))
	}

	data := &struct {
		Signature        uint32
		ReaderVersion    uint16
		Flags            uint16
		Method           uint16
		ModifiedTime     uint16
		ModifiedDate     uint16
		CRC32            uint32
		CompressedSize   uint32
		UncompressedSize uint32
		FileNameLength   uint16
		ExtraFieldLength uint16
	}{}

	if !bytes.Equal(lfhSigBytes, b[:4]) {
		return fh, 0, mismatchedSignature("local file header", b[:4], lfhSigBytes)
	}

	if err = binary.Read(bytes.NewReader(b[:lfhLen]), binary.LittleEndian, data); err != nil {
		return fh, 0, &FormatError{Record: "local file header", Err: err}
	}

	fh = LocalFileHeader{
		FileHeader: zip.FileHeader{
			ReaderVersion:      data.ReaderVersion,
			Flags:              data.Flags,
			Method:             data.Method,
			ModifiedTime:       data.ModifiedTime,
			ModifiedDate:       data.ModifiedDate,
			CRC32:              data.CRC32,
			CompressedSize:     data.CompressedSize,
			UncompressedSize:   data.UncompressedSize,
			CompressedSize64:   uint64(data.CompressedSize),
			UncompressedSize64: uint64(data.UncompressedSize),
		},
	}
	fh.Modified = msDosTimeToTime(fh.ModifiedDate, fh.ModifiedTime)

	k, m := int(data.FileNameLength), int(data.ExtraFieldLength)
	if n = lfhLen + k + m; len(b) < n {
		return fh, 0, insufficientData("local file header", n, len(b))
	}

	if fh.Name = string(b[lfhLen : lfhLen+k]); m > 0 {
		fh.Extra = bytes.Clone(b[lfhLen+k : n])
	}

	return fh, n, nil
}

// CDEntry is a central directory file header.
//
// The embedded zip.FileHeader's 32-bit sizes are kept exactly as stored. CompressedSize64 and UncompressedSize64 are
// taken from the ZIP64 extra field if the 32-bit value is saturated and the extra field carries the wider value;
// otherwise they equal the 32-bit values.
type CDEntry struct {
	zip.FileHeader

	// DiskNumber is the disk number where file starts.
	DiskNumber uint16

	// InternalAttrs is the internal file attributes.
	InternalAttrs uint16

	// Offset is the offset of the local file header relative to the start of the ZIP archive.
	Offset uint64
}

// UnmarshalCDEntry decodes the central directory file header at the start of b.
//
// Returns the entry and the number of bytes consumed (46 + name + extra + comment). The extra field is kept as raw
// bytes and is only interpreted for the ZIP64 extended information block.
func UnmarshalCDEntry(b []byte) (e CDEntry, n int, err error) {
	if len(b) < cdfhLen {
		return e, 0, insufficientData("CD file header", cdfhLen, len(b))
	}

	data := &struct {
		Signature         uint32
		CreatorVersion    uint16
		ReaderVersion     uint16
		Flags             uint16
		Method            uint16
		ModifiedTime      uint16
		ModifiedDate      uint16
		CRC32             uint32
		CompressedSize    uint32
		UncompressedSize  uint32
		FileNameLength    uint16
		ExtraFieldLength  uint16
		FileCommentLength uint16
		DiskNumber        uint16
		InternalAttrs     uint16
		ExternalAttrs     uint32
		Offset            uint32
	}{}

	if !bytes.Equal(cdfhSigBytes, b[:4]) {
		return e, 0, mismatchedSignature("CD file header", b[:4], cdfhSigBytes)
	}

	if err = binary.Read(bytes.NewReader(b[:cdfhLen]), binary.LittleEndian, data); err != nil {
		return e, 0, &FormatError{Record: "CD file header", Err: err}
	}

	e = CDEntry{
		FileHeader: zip.FileHeader{
			CreatorVersion:     data.CreatorVersion,
			ReaderVersion:      data.ReaderVersion,
			Flags:              data.Flags,
			Method:             data.Method,
			ModifiedTime:       data.ModifiedTime,
			ModifiedDate:       data.ModifiedDate,
			CRC32:              data.CRC32,
			CompressedSize:     data.CompressedSize,
			UncompressedSize:   data.UncompressedSize,
			CompressedSize64:   uint64(data.CompressedSize),
			UncompressedSize64: uint64(data.UncompressedSize),
			ExternalAttrs:      data.ExternalAttrs,
		},
		DiskNumber:    data.DiskNumber,
		InternalAttrs: data.InternalAttrs,
		Offset:        uint64(data.Offset),
	}
	e.Modified = msDosTimeToTime(e.ModifiedDate, e.ModifiedTime)

	k, m, c := int(data.FileNameLength), int(data.ExtraFieldLength), int(data.FileCommentLength)
	if n = cdfhLen + k + m + c; len(b) < n {
		return e, 0, insufficientData("CD file header", n, len(b))
	}

	v := b[cdfhLen:n]
	e.Name, e.Comment = string(v[:k]), string(v[k+m:])
	if m > 0 {
		e.Extra = bytes.Clone(v[k : k+m])
		e.readZip64Extra(data.Offset)
	}

	return e, n, nil
}

// readZip64Extra widens the saturated 32-bit fields from the ZIP64 extended information extra field.
//
// The block lists only the fields whose 32-bit counterpart is 0xffffffff, in the order uncompressed size, compressed
// size, local header offset. A malformed extra area is ignored.
func (e *CDEntry) readZip64Extra(offset32 uint32) {
	for extra := e.Extra; len(extra) >= 4; {
		id := binary.LittleEndian.Uint16(extra[:2])
		size := int(binary.LittleEndian.Uint16(extra[2:4]))
		if extra = extra[4:]; size > len(extra) {
			return
		}

		block := extra[:size]
		extra = extra[size:]
		if id != zip64ExtraID {
			continue
		}

		if e.UncompressedSize == uint32max && len(block) >= 8 {
			e.UncompressedSize64 = binary.LittleEndian.Uint64(block)
			block = block[8:]
		}
		if e.CompressedSize == uint32max && len(block) >= 8 {
			e.CompressedSize64 = binary.LittleEndian.Uint64(block)
			block = block[8:]
		}
		if offset32 == uint32max && len(block) >= 8 {
			e.Offset = binary.LittleEndian.Uint64(block)
		}

		return
	}
}

// MarshalBinary encodes the entry as a central directory file header.
//
// The 32-bit size fields are written as stored; the offset is saturated to 0xffffffff if it does not fit.
func (e CDEntry) MarshalBinary() ([]byte, error) {
	if len(e.Name) > uint16max || len(e.Extra) > uint16max || len(e.Comment) > uint16max {
		return nil, fmt.Errorf("variable-size fields must each be at most %d bytes", uint16max)
	}

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, &struct {
		Signature         uint32
		CreatorVersion    uint16
		ReaderVersion     uint16
		Flags             uint16
		Method            uint16
		ModifiedTime      uint16
		ModifiedDate      uint16
		CRC32             uint32
		CompressedSize    uint32
		UncompressedSize  uint32
		FileNameLength    uint16
		ExtraFieldLength  uint16
		FileCommentLength uint16
		DiskNumber        uint16
		InternalAttrs     uint16
		ExternalAttrs     uint32
		Offset            uint32
	}{
		Signature:         cdfhSig,
		CreatorVersion:    e.CreatorVersion,
		ReaderVersion:     e.ReaderVersion,
		Flags:             e.Flags,
		Method:            e.Method,
		ModifiedTime:      e.ModifiedTime,
		ModifiedDate:      e.ModifiedDate,
		CRC32:             e.CRC32,
		CompressedSize:    e.CompressedSize,
		UncompressedSize:  e.UncompressedSize,
		FileNameLength:    uint16(len(e.Name)),
		ExtraFieldLength:  uint16(len(e.Extra)),
		FileCommentLength: uint16(len(e.Comment)),
		DiskNumber:        e.DiskNumber,
		InternalAttrs:     e.InternalAttrs,
		ExternalAttrs:     e.ExternalAttrs,
		Offset:            uint32(min(e.Offset, uint32max)),
	}); err != nil {
		return nil, err
	}

	buf.WriteString(e.Name)
	buf.Write(e.Extra)
	buf.WriteString(e.Comment)
	return buf.Bytes(), nil
}

// msDosTimeToTime converts an MS-DOS date and time into a time.Time.
// The resolution is 2s.
// See: https://learn.microsoft.com/en-us/windows/win32/api/winbase/nf-winbase-dosdatetimetofiletime
//
// taken from https://go.dev/src/archive/zip/struct.go.
func msDosTimeToTime(dosDate, dosTime uint16) time.Time {
	return time.Date(
		// date bits 0-4: day of month; 5-8: month; 9-15: years since 1980
		int(dosDate>>9+1980),
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),

		// time bits 0-4: second/2; 5-10: minute; 11-15: hour
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f*2),
		0, // nanoseconds

		time.UTC,
	)
}
