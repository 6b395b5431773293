package domain

import (
	"fmt"

	"github.com/joseferreira/stakenet/internal/codec"
)

// EndorsementContent is the signed part of an endorsement: the sender
// attests that EndorsedBlock is the best block it knows in Slot's thread.
type EndorsementContent struct {
	SenderPublicKey PublicKey
	Slot            Slot
	Index           uint32
	EndorsedBlock   BlockID
}

type Endorsement struct {
	Content   EndorsementContent
	Signature Signature
}

// NewEndorsement signs content with key.
func NewEndorsement(content EndorsementContent, key *PrivateKey) (*Endorsement, error) {
	b, err := codec.Marshal(content)
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(b)
	if err != nil {
		return nil, err
	}
	return &Endorsement{Content: content, Signature: sig}, nil
}

func (c EndorsementContent) AppendCompact(dst []byte) ([]byte, error) {
	dst = append(dst, c.SenderPublicKey[:]...)
	dst, err := c.Slot.AppendCompact(dst)
	if err != nil {
		return dst, codec.Field("slot", err)
	}
	if dst, err = codec.AppendUvarint(dst, uint64(c.Index)); err != nil {
		return dst, codec.Field("index", err)
	}
	return append(dst, c.EndorsedBlock[:]...), nil
}

func (e *Endorsement) AppendCompact(dst []byte) ([]byte, error) {
	if e == nil {
		return dst, codec.ErrNilObject
	}
	dst, err := e.Content.AppendCompact(dst)
	if err != nil {
		return dst, err
	}
	return append(dst, e.Signature[:]...), nil
}

func (e *Endorsement) MarshalCompact() ([]byte, error) { return codec.Marshal(e) }

func (e *Endorsement) ID() (EndorsementID, error) {
	b, err := e.MarshalCompact()
	if err != nil {
		return EndorsementID{}, err
	}
	return EndorsementID(HashBytes(b)), nil
}

// VerifySignature checks the signature against the sender key.
func (e *Endorsement) VerifySignature() error {
	b, err := codec.Marshal(e.Content)
	if err != nil {
		return err
	}
	return e.Content.SenderPublicKey.Verify(b, e.Signature)
}

func ReadEndorsement(r *codec.Reader, ctx *SerializationContext) (*Endorsement, error) {
	var e Endorsement
	var err error
	if e.Content.SenderPublicKey, err = ReadPublicKey(r); err != nil {
		return nil, codec.Field("sender_public_key", err)
	}
	if e.Content.Slot, err = ReadSlot(r, ctx); err != nil {
		return nil, codec.Field("slot", err)
	}
	if e.Content.Index, err = r.ReadUint32(); err != nil {
		return nil, codec.Field("index", err)
	}
	if e.Content.Index >= ctx.EndorsementCount {
		return nil, codec.Field("index", fmt.Errorf("%w: index %d >= %d", codec.ErrBoundExceeded, e.Content.Index, ctx.EndorsementCount))
	}
	if e.Content.EndorsedBlock, err = ReadBlockID(r); err != nil {
		return nil, codec.Field("endorsed_block", err)
	}
	if e.Signature, err = ReadSignature(r); err != nil {
		return nil, codec.Field("signature", err)
	}
	return &e, nil
}

func UnmarshalEndorsement(buf []byte, ctx *SerializationContext) (*Endorsement, int, error) {
	return codec.Unmarshal(buf, func(r *codec.Reader) (*Endorsement, error) {
		return ReadEndorsement(r, ctx)
	})
}
