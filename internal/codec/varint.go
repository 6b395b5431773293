package codec

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/multiformats/go-varint"
)

// TagSize is the width of the presence tag used for optional values.
const TagSize = 4

// MaxUvarint is the largest value a wire varint can carry.
const MaxUvarint = varint.MaxValueUvarint63

const (
	tagAbsent  uint32 = 0
	tagPresent uint32 = 1
)

// AppendUvarint appends v as a minimal unsigned varint.
func AppendUvarint(dst []byte, v uint64) ([]byte, error) {
	if v > MaxUvarint {
		return dst, ErrLengthOverflow
	}
	var buf [varint.MaxLenUvarint63]byte
	n := varint.PutUvarint(buf[:], v)
	return append(dst, buf[:n]...), nil
}

// UvarintSize is the number of bytes AppendUvarint writes for v.
func UvarintSize(v uint64) int {
	return varint.UvarintSize(v)
}

// AppendCount appends a collection length prefix. Lengths are u32 on the
// wire.
func AppendCount(dst []byte, n int) ([]byte, error) {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return dst, ErrLengthOverflow
	}
	return AppendUvarint(dst, uint64(n))
}

// AppendUint32BE appends v as 4 big-endian bytes.
func AppendUint32BE(dst []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(dst, v)
}

// AppendPresence appends the fixed-width optional tag.
func AppendPresence(dst []byte, present bool) []byte {
	if present {
		return AppendUint32BE(dst, tagPresent)
	}
	return AppendUint32BE(dst, tagAbsent)
}

func uvarint(buf []byte) (uint64, int, error) {
	v, n, err := varint.FromUvarint(buf)
	switch {
	case err == nil:
		return v, n, nil
	case errors.Is(err, varint.ErrUnderflow):
		return 0, 0, ErrTruncated
	default:
		return 0, 0, ErrMalformedVarint
	}
}
