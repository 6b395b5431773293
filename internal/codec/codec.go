// Package codec holds the primitives of the compact binary format: varints,
// fixed-width fields, the optional-value tag and count-prefixed collections
// whose length is checked against a caller supplied bound before anything is
// allocated.
package codec

import "strconv"

const initialSliceCap = 128

// Encodable is implemented by every object that has a compact encoding.
type Encodable interface {
	AppendCompact(dst []byte) ([]byte, error)
}

// Marshal returns the compact encoding of e in a fresh slice.
func Marshal(e Encodable) ([]byte, error) {
	return e.AppendCompact(make([]byte, 0, initialSliceCap))
}

// Unmarshal runs a reader-based decoder over buf and reports how many bytes
// it consumed.
func Unmarshal[T any](buf []byte, read func(*Reader) (T, error)) (T, int, error) {
	r := NewReader(buf)
	v, err := read(r)
	if err != nil {
		var zero T
		return zero, 0, err
	}
	return v, r.Offset(), nil
}

// EncodeList appends a count prefix followed by every item in order.
func EncodeList[T any](dst []byte, items []T, encodeItem func([]byte, T) ([]byte, error)) ([]byte, error) {
	dst, err := AppendCount(dst, len(items))
	if err != nil {
		return dst, err
	}
	for i, item := range items {
		if dst, err = encodeItem(dst, item); err != nil {
			return dst, Field(strconv.Itoa(i), err)
		}
	}
	return dst, nil
}

// DecodeList reads a count bounded by bound, then exactly that many items.
// An empty list decodes as nil.
func DecodeList[T any](r *Reader, bound uint32, decodeItem func(*Reader) (T, error)) ([]T, error) {
	n, err := r.ReadBoundedUvarint(uint64(bound))
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	// every item takes at least one byte
	items := make([]T, 0, min(n, uint64(r.Len())))
	for i := uint64(0); i < n; i++ {
		item, err := decodeItem(r)
		if err != nil {
			return nil, Field(strconv.FormatUint(i, 10), err)
		}
		items = append(items, item)
	}
	return items, nil
}
