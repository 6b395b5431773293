package codec

import (
	"encoding/binary"
	"fmt"
)

// Reader is a cursor over an untrusted byte slice. Every read checks the
// remaining length first; a failed read leaves the cursor where it was.
type Reader struct {
	buf []byte
	off int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset is the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

// Len is the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.off }

func (r *Reader) ReadByte() (byte, error) {
	if r.Len() < 1 {
		return 0, ErrTruncated
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// ReadFixed returns the next n bytes. The result aliases the underlying
// buffer; callers copy it into their own arrays.
func (r *Reader) ReadFixed(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, ErrTruncated
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// ReadInto fills dst completely.
func (r *Reader) ReadInto(dst []byte) error {
	b, err := r.ReadFixed(len(dst))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

func (r *Reader) ReadUvarint() (uint64, error) {
	v, n, err := uvarint(r.buf[r.off:])
	if err != nil {
		return 0, err
	}
	r.off += n
	return v, nil
}

// ReadBoundedUvarint reads a varint and rejects it when it exceeds bound.
// The varint itself is at most 9 bytes, so the check happens before the
// caller can act on the value.
func (r *Reader) ReadBoundedUvarint(bound uint64) (uint64, error) {
	v, n, err := uvarint(r.buf[r.off:])
	if err != nil {
		return 0, err
	}
	if v > bound {
		return 0, fmt.Errorf("%w: %d > %d", ErrBoundExceeded, v, bound)
	}
	r.off += n
	return v, nil
}

// ReadUint32 reads a varint that must fit in 32 bits.
func (r *Reader) ReadUint32() (uint32, error) {
	v, err := r.ReadBoundedUvarint(1<<32 - 1)
	return uint32(v), err
}

func (r *Reader) ReadUint32BE() (uint32, error) {
	b, err := r.ReadFixed(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadPresence reads the fixed-width optional tag written by
// AppendPresence.
func (r *Reader) ReadPresence() (bool, error) {
	if r.Len() < TagSize {
		return false, ErrTruncated
	}
	switch tag := binary.BigEndian.Uint32(r.buf[r.off:]); tag {
	case tagAbsent:
		r.off += TagSize
		return false, nil
	case tagPresent:
		r.off += TagSize
		return true, nil
	default:
		return false, fmt.Errorf("%w: presence tag %d", ErrInvalidTag, tag)
	}
}
