package scan

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingFetcher counts the number of FetchRange calls.
type countingFetcher struct {
	RangeFetcher
	calls atomic.Int64
}

func (f *countingFetcher) FetchRange(ctx context.Context, start, end int64) ([]byte, error) {
	f.calls.Add(1)
	return f.RangeFetcher.FetchRange(ctx, start, end)
}

func newFetcher(b []byte) *countingFetcher {
	return &countingFetcher{RangeFetcher: ReaderAtFetcher{bytes.NewReader(b)}}
}

func withMode(mode Mode) func(*Options) {
	return func(opts *Options) {
		opts.Mode = mode
	}
}

func TestLocate_WithComment(t *testing.T) {
	alphabet := "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	tests := []struct {
		commentLength int
	}{
		{
			commentLength: 0,
		},
		{
			commentLength: 8 * 1024,
		},
		{
			commentLength: 32 * 1024,
		},
		{
			commentLength: 65535 - 4,
		},
	}

	for _, tt := range tests {
		for _, delta := range []int{0, 1, 2, 3, 4} {
			t.Run(fmt.Sprintf("%d with delta=%d", tt.commentLength, delta), func(t *testing.T) {
				n := tt.commentLength + delta
				comment := make([]byte, n)
				for i := range n {
					comment[i] = alphabet[rand.IntN(len(alphabet))]
				}

				buf := &bytes.Buffer{}
				zw := zip.NewWriter(buf)

				err := zw.SetComment(string(comment))
				require.NoErrorf(t, err, "SetComment(...) error = %v", err)

				err = zw.Close()
				require.NoErrorf(t, err, "Close() error = %v", err)
				require.Equalf(t, n+22, buf.Len(), "Mismatched buffer size; got = %d, want = %d", buf.Len(), n+22)

				for _, mode := range []Mode{Window, ProbeEach} {
					loc, err := Locate(context.Background(), newFetcher(buf.Bytes()), int64(buf.Len()), withMode(mode))
					assert.NoErrorf(t, err, "Locate(%s) error = %v", mode, err)
					assert.Equal(t, Location{Offset: 0}, loc)

					r, err := UnmarshalEOCD(buf.Bytes()[loc.Offset:])
					assert.NoErrorf(t, err, "UnmarshalEOCD() error = %v", err)
					assert.Equal(t, string(comment), r.Comment)
				}
			})
		}
	}
}

func TestLocate_ClosestToEndWins(t *testing.T) {
	std, eocd64 := putUint32(EOCDSignature), putUint32(EOCD64Signature)

	tests := []struct {
		name     string
		data     []byte
		expected Location
	}{
		{
			name:     "standard only",
			data:     bytes.Join([][]byte{[]byte("hello"), std, make([]byte, 18)}, nil),
			expected: Location{Offset: 5},
		},
		{
			name:     "zip64 only",
			data:     bytes.Join([][]byte{[]byte("hello"), eocd64, make([]byte, 52)}, nil),
			expected: Location{Offset: 5, Zip64: true},
		},
		{
			name:     "standard after zip64",
			data:     bytes.Join([][]byte{eocd64, make([]byte, 52), std, make([]byte, 18)}, nil),
			expected: Location{Offset: 56},
		},
		{
			name:     "zip64 after standard",
			data:     bytes.Join([][]byte{std, make([]byte, 18), eocd64, make([]byte, 52)}, nil),
			expected: Location{Offset: 22, Zip64: true},
		},
		{
			name:     "signature at the very end",
			data:     bytes.Join([][]byte{[]byte("hello"), std}, nil),
			expected: Location{Offset: 5},
		},
		{
			name:     "signature at the very start",
			data:     std,
			expected: Location{Offset: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, mode := range []Mode{Window, ProbeEach} {
				got, err := Locate(context.Background(), newFetcher(tt.data), int64(len(tt.data)), withMode(mode))
				assert.NoErrorf(t, err, "Locate(%s) error = %v", mode, err)
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}

func TestLocate_NotAvailable(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "empty",
			data: nil,
		},
		{
			name: "too short",
			data: []byte{0x50, 0x4b, 0x05},
		},
		{
			name: "no signature",
			data: bytes.Repeat([]byte("#!/bin/sh\n"), 1000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, mode := range []Mode{Window, ProbeEach} {
				_, err := Locate(context.Background(), newFetcher(tt.data), int64(len(tt.data)), withMode(mode))
				assert.ErrorIsf(t, err, ErrNotAvailable, "Locate(%s) error = %v", mode, err)
			}
		})
	}
}

func TestLocate_MaxBytes(t *testing.T) {
	data := bytes.Join([][]byte{putUint32(EOCDSignature), make([]byte, 100)}, nil)

	_, err := Locate(context.Background(), newFetcher(data), int64(len(data)), func(opts *Options) {
		opts.MaxBytes = 50
	})
	assert.ErrorIs(t, err, ErrNotAvailable)

	loc, err := Locate(context.Background(), newFetcher(data), int64(len(data)), func(opts *Options) {
		opts.MaxBytes = 0
	})
	assert.NoErrorf(t, err, "Locate() error = %v", err)
	assert.Equal(t, Location{Offset: 0}, loc)
}

func TestLocate_RequestCount(t *testing.T) {
	data := bytes.Join([][]byte{[]byte("prefix"), putUint32(EOCDSignature), make([]byte, 26)}, nil)

	f := newFetcher(data)
	_, err := Locate(context.Background(), f, int64(len(data)))
	require.NoErrorf(t, err, "Locate() error = %v", err)
	assert.Equal(t, int64(1), f.calls.Load())

	// the signature starts 30 bytes from the end so positions i=4..30 are probed.
	f = newFetcher(data)
	_, err = Locate(context.Background(), f, int64(len(data)), withMode(ProbeEach))
	require.NoErrorf(t, err, "Locate() error = %v", err)
	assert.Equal(t, int64(27), f.calls.Load())
}

func TestLocate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := make([]byte, 100)
	_, err := Locate(ctx, newFetcher(data), int64(len(data)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEOCDRecord_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		r    EOCDRecord
	}{
		{
			name: "no comment",
			r:    EOCDRecord{CDCountOnDisk: 3, CDCount: 3, CDSize: 258, CDOffset: 888},
		},
		{
			name: "with comment",
			r:    EOCDRecord{CDCountOnDisk: 1, CDCount: 1, CDSize: 46, CDOffset: 1 << 20, Comment: "hello, world"},
		},
		{
			name: "saturated",
			r:    EOCDRecord{DiskNumber: 0xffff, CDDiskOffset: 0xffff, CDCountOnDisk: 0xffff, CDCount: 0xffff, CDSize: 0xffffffff, CDOffset: 0xffffffff},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.r.MarshalBinary()
			require.NoErrorf(t, err, "MarshalBinary() error = %v", err)
			assert.Len(t, b, 22+len(tt.r.Comment))

			got, err := UnmarshalEOCD(b)
			assert.NoErrorf(t, err, "UnmarshalEOCD() error = %v", err)
			assert.Equal(t, tt.r, got)
		})
	}
}

func TestUnmarshalEOCD_Errors(t *testing.T) {
	valid, err := EOCDRecord{Comment: "abc"}.MarshalBinary()
	require.NoErrorf(t, err, "MarshalBinary() error = %v", err)

	tests := []struct {
		name string
		b    []byte
	}{
		{
			name: "short",
			b:    valid[:21],
		},
		{
			name: "truncated comment",
			b:    valid[:23],
		},
		{
			name: "bad signature",
			b:    append([]byte{0x50, 0x4b, 0x01, 0x02}, valid[4:]...),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalEOCD(tt.b)
			assert.ErrorIs(t, err, ErrFormat)

			var fe *FormatError
			assert.ErrorAs(t, err, &fe)
			assert.Equal(t, "EOCD", fe.Record)
		})
	}
}

func TestEOCD64Record_RoundTrip(t *testing.T) {
	r := EOCD64Record{
		RecordSize:     44,
		CreatorVersion: 45,
		ReaderVersion:  45,
		CDCountOnDisk:  70000,
		CDCount:        70000,
		CDSize:         5 << 30,
		CDOffset:       6 << 30,
	}

	b, err := r.MarshalBinary()
	require.NoErrorf(t, err, "MarshalBinary() error = %v", err)
	assert.Len(t, b, 56)

	got, err := UnmarshalEOCD64(b)
	assert.NoErrorf(t, err, "UnmarshalEOCD64() error = %v", err)
	assert.Equal(t, r, got)

	_, err = UnmarshalEOCD64(b[:55])
	assert.ErrorIs(t, err, ErrFormat)
}

func TestEOCD64Locator_RoundTrip(t *testing.T) {
	l := EOCD64Locator{Offset: 1234567890123, TotalDisks: 1}

	b, err := l.MarshalBinary()
	require.NoErrorf(t, err, "MarshalBinary() error = %v", err)
	assert.Len(t, b, EOCD64LocatorSize)

	got, err := UnmarshalEOCD64Locator(b)
	assert.NoErrorf(t, err, "UnmarshalEOCD64Locator() error = %v", err)
	assert.Equal(t, l, got)
}

func TestParseMode(t *testing.T) {
	for _, mode := range []Mode{Window, ProbeEach} {
		got, err := ParseMode(mode.String())
		assert.NoErrorf(t, err, "ParseMode(%s) error = %v", mode, err)
		assert.Equal(t, mode, got)
	}

	_, err := ParseMode("bogus")
	assert.Error(t, err)
}
