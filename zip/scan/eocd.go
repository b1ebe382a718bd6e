package scan

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// EOCDRecord models the end of central directory record of a ZIP file.
//
// See https://en.wikipedia.org/wiki/ZIP_(file_format)#End_of_central_directory_record_(EOCD).
type EOCDRecord struct {
	// DiskNumber is number of this disk (or 0xffff for ZIP64).
	DiskNumber uint16
	// CDDiskOffset is disk where central directory starts (or 0xffff for ZIP64).
	CDDiskOffset uint16
	// CDCountOnDisk is the number of central directory records on this disk (or 0xffff for ZIP64).
	CDCountOnDisk uint16
	// CDCount is the total number of central directory records (or 0xffff for ZIP64).
	CDCount uint16
	// CDSize is size of central directory (bytes) (or 0xffffffff for ZIP64).
	CDSize uint32
	// CDOffset is offset of start of central directory, relative to start of archive (or 0xffffffff for ZIP64).
	CDOffset uint32
	// Comment is the comment section of the EOCD.
	Comment string
}

// NeedsZip64 returns true if any field is saturated, meaning the real value lives in the ZIP64 EOCD record.
func (r EOCDRecord) NeedsZip64() bool {
	return r.CDCount == uint16max || r.CDCountOnDisk == uint16max || r.CDSize == uint32max || r.CDOffset == uint32max
}

// UnmarshalEOCD decodes the standard EOCD record at the start of b.
//
// b is usually everything from the EOCD signature to the end of the file. The comment is read using its declared
// length; trailing bytes past the comment are ignored.
func UnmarshalEOCD(b []byte) (r EOCDRecord, err error) {
	if len(b) < eocdLen {
		return r, insufficientData("EOCD", eocdLen, len(b))
	}

	data := &struct {
		Signature     uint32
		DiskNumber    uint16
		CDDiskOffset  uint16
		CDCountOnDisk uint16
		CDCount       uint16
		CDSize        uint32
		CDOffset      uint32
		CommentLength uint16
	}{}

	if sig := putUint32(EOCDSignature); !bytes.Equal(sig, b[:4]) {
		return r, mismatchedSignature("EOCD", b[:4], sig)
	}

	if err = binary.Read(bytes.NewReader(b[:eocdLen]), binary.LittleEndian, data); err != nil {
		return r, &FormatError{Record: "EOCD", Err: err}
	}

	r = EOCDRecord{
		DiskNumber:    data.DiskNumber,
		CDDiskOffset:  data.CDDiskOffset,
		CDCountOnDisk: data.CDCountOnDisk,
		CDCount:       data.CDCount,
		CDSize:        data.CDSize,
		CDOffset:      data.CDOffset,
	}

	if n := eocdLen + int(data.CommentLength); len(b) < n {
		return r, insufficientData("EOCD", n, len(b))
	} else {
		r.Comment = string(b[eocdLen:n])
	}

	return r, nil
}

// MarshalBinary encodes the record including its comment.
func (r EOCDRecord) MarshalBinary() ([]byte, error) {
	if len(r.Comment) > uint16max {
		return nil, fmt.Errorf("comment must be at most %d bytes, got %d", uint16max, len(r.Comment))
	}

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, &struct {
		Signature     uint32
		DiskNumber    uint16
		CDDiskOffset  uint16
		CDCountOnDisk uint16
		CDCount       uint16
		CDSize        uint32
		CDOffset      uint32
		CommentLength uint16
	}{
		Signature:     EOCDSignature,
		DiskNumber:    r.DiskNumber,
		CDDiskOffset:  r.CDDiskOffset,
		CDCountOnDisk: r.CDCountOnDisk,
		CDCount:       r.CDCount,
		CDSize:        r.CDSize,
		CDOffset:      r.CDOffset,
		CommentLength: uint16(len(r.Comment)),
	}); err != nil {
		return nil, err
	}

	buf.WriteString(r.Comment)
	return buf.Bytes(), nil
}

// EOCD64Record models the ZIP64 end of central directory record.
//
// See https://pkware.cachefly.net/webdocs/casestudies/APPNOTE.TXT section 4.3.14.
type EOCD64Record struct {
	// RecordSize is the size of the remaining record, not counting the signature and this field.
	RecordSize     uint64
	CreatorVersion uint16
	ReaderVersion  uint16
	DiskNumber     uint32
	CDDiskOffset   uint32
	CDCountOnDisk  uint64
	CDCount        uint64
	CDSize         uint64
	// CDOffset is offset of start of central directory, relative to start of archive.
	CDOffset uint64
}

type eocd64Data struct {
	Signature      uint32
	RecordSize     uint64
	CreatorVersion uint16
	ReaderVersion  uint16
	DiskNumber     uint32
	CDDiskOffset   uint32
	CDCountOnDisk  uint64
	CDCount        uint64
	CDSize         uint64
	CDOffset       uint64
}

// UnmarshalEOCD64 decodes the fixed part of the ZIP64 EOCD record at the start of b.
//
// The extensible data sector that may follow is not interpreted.
func UnmarshalEOCD64(b []byte) (r EOCD64Record, err error) {
	if len(b) < eocd64Len {
		return r, insufficientData("ZIP64 EOCD", eocd64Len, len(b))
	}

	if sig := putUint32(EOCD64Signature); !bytes.Equal(sig, b[:4]) {
		return r, mismatchedSignature("ZIP64 EOCD", b[:4], sig)
	}

	data := &eocd64Data{}
	if err = binary.Read(bytes.NewReader(b[:eocd64Len]), binary.LittleEndian, data); err != nil {
		return r, &FormatError{Record: "ZIP64 EOCD", Err: err}
	}

	return EOCD64Record{
		RecordSize:     data.RecordSize,
		CreatorVersion: data.CreatorVersion,
		ReaderVersion:  data.ReaderVersion,
		DiskNumber:     data.DiskNumber,
		CDDiskOffset:   data.CDDiskOffset,
		CDCountOnDisk:  data.CDCountOnDisk,
		CDCount:        data.CDCount,
		CDSize:         data.CDSize,
		CDOffset:       data.CDOffset,
	}, nil
}

// MarshalBinary encodes the fixed part of the record.
//
// A zero RecordSize is replaced with 44, the size of the fixed part that follows the RecordSize field.
func (r EOCD64Record) MarshalBinary() ([]byte, error) {
	if r.RecordSize == 0 {
		r.RecordSize = eocd64Len - 12
	}

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, &eocd64Data{
		Signature:      EOCD64Signature,
		RecordSize:     r.RecordSize,
		CreatorVersion: r.CreatorVersion,
		ReaderVersion:  r.ReaderVersion,
		DiskNumber:     r.DiskNumber,
		CDDiskOffset:   r.CDDiskOffset,
		CDCountOnDisk:  r.CDCountOnDisk,
		CDCount:        r.CDCount,
		CDSize:         r.CDSize,
		CDOffset:       r.CDOffset,
	}); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// EOCD64Locator models the ZIP64 end of central directory locator that sits right before the standard EOCD record.
type EOCD64Locator struct {
	// DiskNumber is the disk with the start of the ZIP64 EOCD record.
	DiskNumber uint32
	// Offset is the offset of the ZIP64 EOCD record, relative to start of archive.
	Offset uint64
	// TotalDisks is the total number of disks.
	TotalDisks uint32
}

// UnmarshalEOCD64Locator decodes the 20-byte ZIP64 EOCD locator at the start of b.
func UnmarshalEOCD64Locator(b []byte) (l EOCD64Locator, err error) {
	if len(b) < eocd64LocatorLen {
		return l, insufficientData("ZIP64 EOCD locator", eocd64LocatorLen, len(b))
	}

	if sig := putUint32(eocd64LocatorSig); !bytes.Equal(sig, b[:4]) {
		return l, mismatchedSignature("ZIP64 EOCD locator", b[:4], sig)
	}

	return EOCD64Locator{
		DiskNumber: binary.LittleEndian.Uint32(b[4:8]),
		Offset:     binary.LittleEndian.Uint64(b[8:16]),
		TotalDisks: binary.LittleEndian.Uint32(b[16:20]),
	}, nil
}

// MarshalBinary encodes the locator.
func (l EOCD64Locator) MarshalBinary() ([]byte, error) {
	b := make([]byte, eocd64LocatorLen)
	binary.LittleEndian.PutUint32(b[0:4], eocd64LocatorSig)
	binary.LittleEndian.PutUint32(b[4:8], l.DiskNumber)
	binary.LittleEndian.PutUint64(b[8:16], l.Offset)
	binary.LittleEndian.PutUint32(b[16:20], l.TotalDisks)
	return b, nil
}

// EOCD64LocatorSize is the size of the ZIP64 EOCD locator.
//
// The locator of a ZIP64 archive ends exactly where the standard EOCD record begins.
const EOCD64LocatorSize = eocd64LocatorLen
