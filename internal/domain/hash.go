package domain

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"

	"github.com/joseferreira/stakenet/internal/codec"
)

const (
	HashSize     = 32
	checksumSize = 4
)

var (
	errMissingChecksum = errors.New("input string is smaller than the checksum size")
	errBadChecksum     = errors.New("invalid input checksum")
)

// Hash is a blake3 digest.
type Hash [HashSize]byte

func HashBytes(data []byte) Hash {
	return blake3.Sum256(data)
}

func (h Hash) Bytes() []byte { return h[:] }

// String is base58 over the hash followed by a 4 byte checksum.
func (h Hash) String() string {
	sum := blake3.Sum256(h[:])
	checked := make([]byte, 0, HashSize+checksumSize)
	checked = append(checked, h[:]...)
	checked = append(checked, sum[:checksumSize]...)
	return base58.Encode(checked)
}

func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := base58.Decode(s)
	if err != nil {
		return h, err
	}
	if len(b) < checksumSize {
		return h, errMissingChecksum
	}
	raw, checksum := b[:len(b)-checksumSize], b[len(b)-checksumSize:]
	sum := blake3.Sum256(raw)
	if !bytes.Equal(checksum, sum[:checksumSize]) {
		return h, errBadChecksum
	}
	if len(raw) != HashSize {
		return h, fmt.Errorf("expected %d bytes, got %d", HashSize, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

func (h Hash) AppendCompact(dst []byte) ([]byte, error) {
	return append(dst, h[:]...), nil
}

func ReadHash(r *codec.Reader) (Hash, error) {
	var h Hash
	err := r.ReadInto(h[:])
	return h, err
}
