package domain

import (
	"bytes"

	"github.com/joseferreira/stakenet/internal/codec"
)

const (
	BlockIDSize       = HashSize
	OperationIDSize   = HashSize
	EndorsementIDSize = HashSize
	AddressSize       = HashSize
)

// BlockID is the hash of a block's full header encoding.
type BlockID Hash

// OperationID is the hash of an operation's full encoding.
type OperationID Hash

// EndorsementID is the hash of an endorsement's full encoding.
type EndorsementID Hash

// Address identifies an account: the hash of its public key.
type Address Hash

func (id BlockID) String() string       { return Hash(id).String() }
func (id OperationID) String() string   { return Hash(id).String() }
func (id EndorsementID) String() string { return Hash(id).String() }
func (a Address) String() string        { return Hash(a).String() }

func (id BlockID) AppendCompact(dst []byte) ([]byte, error) {
	return append(dst, id[:]...), nil
}

func (id OperationID) AppendCompact(dst []byte) ([]byte, error) {
	return append(dst, id[:]...), nil
}

func (id EndorsementID) AppendCompact(dst []byte) ([]byte, error) {
	return append(dst, id[:]...), nil
}

func (a Address) AppendCompact(dst []byte) ([]byte, error) {
	return append(dst, a[:]...), nil
}

// Compare orders operation ids by their bytes.
func (id OperationID) Compare(other OperationID) int {
	return bytes.Compare(id[:], other[:])
}

func ParseBlockID(s string) (BlockID, error) {
	h, err := ParseHash(s)
	return BlockID(h), err
}

func ParseOperationID(s string) (OperationID, error) {
	h, err := ParseHash(s)
	return OperationID(h), err
}

func ParseAddress(s string) (Address, error) {
	h, err := ParseHash(s)
	return Address(h), err
}

func ReadBlockID(r *codec.Reader) (BlockID, error) {
	h, err := ReadHash(r)
	return BlockID(h), err
}

func ReadOperationID(r *codec.Reader) (OperationID, error) {
	h, err := ReadHash(r)
	return OperationID(h), err
}

func ReadAddress(r *codec.Reader) (Address, error) {
	h, err := ReadHash(r)
	return Address(h), err
}

// AddressFromPublicKey derives the account address controlled by pk.
func AddressFromPublicKey(pk PublicKey) Address {
	return Address(HashBytes(pk[:]))
}
