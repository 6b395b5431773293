package domain

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/mr-tron/base58"

	"github.com/joseferreira/stakenet/internal/codec"
)

const (
	PublicKeySize = 32
	SignatureSize = 64
)

var ErrInvalidSignature = errors.New("invalid signature")

// PublicKey is a raw Ed25519 public key.
type PublicKey [PublicKeySize]byte

// Signature is a raw Ed25519 signature.
type Signature [SignatureSize]byte

// PrivateKey signs node and account data. It wraps a libp2p key so the
// same key can serve as the node's network identity.
type PrivateKey struct {
	key crypto.PrivKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}
	return &PrivateKey{key: priv}, nil
}

// PrivateKeyFromLibp2p adopts an existing libp2p key. Only Ed25519 keys
// are accepted.
func PrivateKeyFromLibp2p(key crypto.PrivKey) (*PrivateKey, error) {
	if key.Type() != crypto.Ed25519 {
		return nil, fmt.Errorf("unsupported key type %s", key.Type())
	}
	return &PrivateKey{key: key}, nil
}

// Libp2p returns the key in libp2p form, for use as host identity.
func (k *PrivateKey) Libp2p() crypto.PrivKey { return k.key }

func (k *PrivateKey) PublicKey() PublicKey {
	var pk PublicKey
	// ed25519 public keys are always PublicKeySize bytes
	raw, _ := k.key.GetPublic().Raw()
	copy(pk[:], raw)
	return pk
}

// Sign signs the blake3 hash of data.
func (k *PrivateKey) Sign(data []byte) (Signature, error) {
	var sig Signature
	digest := HashBytes(data)
	raw, err := k.key.Sign(digest[:])
	if err != nil {
		return sig, err
	}
	if len(raw) != SignatureSize {
		return sig, fmt.Errorf("unexpected signature length %d", len(raw))
	}
	copy(sig[:], raw)
	return sig, nil
}

// Verify checks sig against the blake3 hash of data.
func (pk PublicKey) Verify(data []byte, sig Signature) error {
	pub, err := crypto.UnmarshalEd25519PublicKey(pk[:])
	if err != nil {
		return err
	}
	digest := HashBytes(data)
	ok, err := pub.Verify(digest[:], sig[:])
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidSignature
	}
	return nil
}

func (pk PublicKey) String() string { return base58.Encode(pk[:]) }

func (pk PublicKey) AppendCompact(dst []byte) ([]byte, error) {
	return append(dst, pk[:]...), nil
}

func (sig Signature) AppendCompact(dst []byte) ([]byte, error) {
	return append(dst, sig[:]...), nil
}

func ReadPublicKey(r *codec.Reader) (PublicKey, error) {
	var pk PublicKey
	err := r.ReadInto(pk[:])
	return pk, err
}

func ReadSignature(r *codec.Reader) (Signature, error) {
	var sig Signature
	err := r.ReadInto(sig[:])
	return sig, err
}
