package domain

import (
	"errors"
	"fmt"

	"github.com/joseferreira/stakenet/internal/codec"
)

var ErrInvalidParents = errors.New("invalid parent count")

const (
	noParents  byte = 0
	hasParents byte = 1
)

// BlockHeaderContent is the signed part of a block header. Parents is
// empty for genesis blocks and otherwise holds one block per thread.
type BlockHeaderContent struct {
	Creator             PublicKey
	Slot                Slot
	Parents             []BlockID
	OperationMerkleRoot Hash
	Endorsements        []*Endorsement
}

type BlockHeader struct {
	Content   BlockHeaderContent
	Signature Signature
}

// Block is a header plus the operations it commits to.
type Block struct {
	Header     *BlockHeader
	Operations []*Operation
}

// NewBlockHeader signs content with key. Content that could not be
// decoded under ctx is rejected.
func NewBlockHeader(content BlockHeaderContent, key *PrivateKey, ctx *SerializationContext) (*BlockHeader, error) {
	if err := content.Validate(ctx); err != nil {
		return nil, err
	}
	b, err := codec.Marshal(content)
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(b)
	if err != nil {
		return nil, err
	}
	return &BlockHeader{Content: content, Signature: sig}, nil
}

// Validate checks the parts of the content whose encoding depends on ctx:
// the slot thread, the parent count and the endorsement count.
func (c BlockHeaderContent) Validate(ctx *SerializationContext) error {
	if ctx == nil {
		return codec.ErrMissingContext
	}
	if c.Slot.Thread >= ctx.ThreadCount {
		return codec.Field("slot.thread", fmt.Errorf("%w: thread %d >= %d", codec.ErrBoundExceeded, c.Slot.Thread, ctx.ThreadCount))
	}
	if n := len(c.Parents); n != 0 && n != int(ctx.ThreadCount) {
		return codec.Field("parents", fmt.Errorf("%w: %d parents for %d threads", ErrInvalidParents, n, ctx.ThreadCount))
	}
	if n := len(c.Endorsements); n > int(ctx.EndorsementCount) {
		return codec.Field("endorsements", fmt.Errorf("%w: %d > %d", codec.ErrBoundExceeded, n, ctx.EndorsementCount))
	}
	return nil
}

func (c BlockHeaderContent) AppendCompact(dst []byte) ([]byte, error) {
	dst = append(dst, c.Creator[:]...)
	dst, err := c.Slot.AppendCompact(dst)
	if err != nil {
		return dst, codec.Field("slot", err)
	}
	if len(c.Parents) == 0 {
		dst = append(dst, noParents)
	} else {
		dst = append(dst, hasParents)
		for _, parent := range c.Parents {
			dst = append(dst, parent[:]...)
		}
	}
	dst = append(dst, c.OperationMerkleRoot[:]...)
	dst, err = codec.EncodeList(dst, c.Endorsements, func(dst []byte, e *Endorsement) ([]byte, error) {
		return e.AppendCompact(dst)
	})
	if err != nil {
		return dst, codec.Field("endorsements", err)
	}
	return dst, nil
}

func (h *BlockHeader) AppendCompact(dst []byte) ([]byte, error) {
	if h == nil {
		return dst, codec.ErrNilObject
	}
	dst, err := h.Content.AppendCompact(dst)
	if err != nil {
		return dst, err
	}
	return append(dst, h.Signature[:]...), nil
}

func (h *BlockHeader) MarshalCompact() ([]byte, error) { return codec.Marshal(h) }

func (h *BlockHeader) ID() (BlockID, error) {
	b, err := h.MarshalCompact()
	if err != nil {
		return BlockID{}, err
	}
	return BlockID(HashBytes(b)), nil
}

// VerifySignature checks the signature against the creator key.
func (h *BlockHeader) VerifySignature() error {
	b, err := codec.Marshal(h.Content)
	if err != nil {
		return err
	}
	return h.Content.Creator.Verify(b, h.Signature)
}

func ReadBlockHeader(r *codec.Reader, ctx *SerializationContext) (*BlockHeader, error) {
	var h BlockHeader
	var err error
	if h.Content.Creator, err = ReadPublicKey(r); err != nil {
		return nil, codec.Field("creator", err)
	}
	if h.Content.Slot, err = ReadSlot(r, ctx); err != nil {
		return nil, codec.Field("slot", err)
	}
	flag, err := r.ReadByte()
	if err != nil {
		return nil, codec.Field("parents", err)
	}
	switch flag {
	case noParents:
	case hasParents:
		h.Content.Parents = make([]BlockID, 0, ctx.ThreadCount)
		for i := 0; i < int(ctx.ThreadCount); i++ {
			parent, err := ReadBlockID(r)
			if err != nil {
				return nil, codec.Field("parents", err)
			}
			h.Content.Parents = append(h.Content.Parents, parent)
		}
	default:
		return nil, codec.Field("parents", fmt.Errorf("%w: parents flag %d", codec.ErrInvalidTag, flag))
	}
	if h.Content.OperationMerkleRoot, err = ReadHash(r); err != nil {
		return nil, codec.Field("operation_merkle_root", err)
	}
	h.Content.Endorsements, err = codec.DecodeList(r, ctx.EndorsementCount, func(r *codec.Reader) (*Endorsement, error) {
		return ReadEndorsement(r, ctx)
	})
	if err != nil {
		return nil, codec.Field("endorsements", err)
	}
	if h.Signature, err = ReadSignature(r); err != nil {
		return nil, codec.Field("signature", err)
	}
	return &h, nil
}

func UnmarshalBlockHeader(buf []byte, ctx *SerializationContext) (*BlockHeader, int, error) {
	return codec.Unmarshal(buf, func(r *codec.Reader) (*BlockHeader, error) {
		return ReadBlockHeader(r, ctx)
	})
}

func (b *Block) AppendCompact(dst []byte) ([]byte, error) {
	if b == nil {
		return dst, codec.ErrNilObject
	}
	dst, err := b.Header.AppendCompact(dst)
	if err != nil {
		return dst, codec.Field("header", err)
	}
	dst, err = codec.EncodeList(dst, b.Operations, func(dst []byte, op *Operation) ([]byte, error) {
		return op.AppendCompact(dst)
	})
	if err != nil {
		return dst, codec.Field("operations", err)
	}
	return dst, nil
}

func (b *Block) MarshalCompact() ([]byte, error) { return codec.Marshal(b) }

// ID is the id of the block's header.
func (b *Block) ID() (BlockID, error) {
	if b == nil || b.Header == nil {
		return BlockID{}, codec.ErrNilObject
	}
	return b.Header.ID()
}

// OperationIDs returns the ids of the block's operations in order.
func (b *Block) OperationIDs() ([]OperationID, error) {
	ids := make([]OperationID, 0, len(b.Operations))
	for _, op := range b.Operations {
		id, err := op.ID()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func ReadBlock(r *codec.Reader, ctx *SerializationContext) (*Block, error) {
	start := r.Offset()
	header, err := ReadBlockHeader(r, ctx)
	if err != nil {
		return nil, codec.Field("header", err)
	}
	ops, err := codec.DecodeList(r, ctx.MaxOperationsPerBlock, ReadOperation)
	if err != nil {
		return nil, codec.Field("operations", err)
	}
	if size := r.Offset() - start; size > int(ctx.MaxBlockSize) {
		return nil, fmt.Errorf("%w: block size %d > %d", codec.ErrBoundExceeded, size, ctx.MaxBlockSize)
	}
	return &Block{Header: header, Operations: ops}, nil
}

func UnmarshalBlock(buf []byte, ctx *SerializationContext) (*Block, int, error) {
	return codec.Unmarshal(buf, func(r *codec.Reader) (*Block, error) {
		return ReadBlock(r, ctx)
	})
}
