package message

import (
	"fmt"

	"github.com/joseferreira/stakenet/internal/codec"
	"github.com/joseferreira/stakenet/internal/domain"
)

// Decode parses one message from the front of buf and reports how many
// bytes it used, so a stream of messages can be walked by advancing past
// each one. Every list count is checked against ctx before the list is
// allocated. On error nothing is returned; there is no partial message.
func Decode(buf []byte, ctx *domain.SerializationContext) (Message, int, error) {
	if ctx == nil {
		return nil, 0, codec.ErrMissingContext
	}
	return codec.Unmarshal(buf, func(r *codec.Reader) (Message, error) {
		return read(r, ctx)
	})
}

// DecodeAll decodes back-to-back messages until buf is exhausted.
func DecodeAll(buf []byte, ctx *domain.SerializationContext) ([]Message, error) {
	var msgs []Message
	for offset := 0; offset < len(buf); {
		m, n, err := Decode(buf[offset:], ctx)
		if err != nil {
			return nil, fmt.Errorf("message %d at offset %d: %w", len(msgs), offset, err)
		}
		msgs = append(msgs, m)
		offset += n
	}
	return msgs, nil
}

func read(r *codec.Reader, ctx *domain.SerializationContext) (Message, error) {
	raw, err := r.ReadUvarint()
	if err != nil {
		return nil, codec.Field("type", err)
	}
	t, err := ParseType(raw)
	if err != nil {
		return nil, err
	}

	switch t {
	case HandshakeInitiationType:
		return readHandshakeInitiation(r)
	case HandshakeReplyType:
		sig, err := domain.ReadSignature(r)
		if err != nil {
			return nil, codec.Field("signature", err)
		}
		return &HandshakeReply{Signature: sig}, nil
	case BlockType:
		block, err := domain.ReadBlock(r, ctx)
		if err != nil {
			return nil, codec.Field("block", err)
		}
		return &Block{Block: block}, nil
	case BlockHeaderType:
		header, err := domain.ReadBlockHeader(r, ctx)
		if err != nil {
			return nil, codec.Field("header", err)
		}
		return &BlockHeader{Header: header}, nil
	case AskForBlocksType:
		ids, err := codec.DecodeList(r, ctx.MaxAskBlocksPerMessage, domain.ReadBlockID)
		if err != nil {
			return nil, codec.Field("block_ids", err)
		}
		return &AskForBlocks{BlockIDs: ids}, nil
	case AskPeerListType:
		return &AskPeerList{}, nil
	case PeerListType:
		peers, err := codec.DecodeList(r, ctx.MaxAdvertiseLength, domain.ReadIP)
		if err != nil {
			return nil, codec.Field("peers", err)
		}
		return &PeerList{Peers: peers}, nil
	case BlockNotFoundType:
		id, err := domain.ReadBlockID(r)
		if err != nil {
			return nil, codec.Field("block_id", err)
		}
		return &BlockNotFound{BlockID: id}, nil
	case OperationsType:
		ops, err := readOperations(r, ctx.MaxOperationsPerMessage)
		if err != nil {
			return nil, codec.Field("operations", err)
		}
		return &Operations{Operations: ops}, nil
	case EndorsementsType:
		endorsements, err := codec.DecodeList(r, ctx.MaxEndorsementsPerMessage, func(r *codec.Reader) (*domain.Endorsement, error) {
			return domain.ReadEndorsement(r, ctx)
		})
		if err != nil {
			return nil, codec.Field("endorsements", err)
		}
		return &Endorsements{Endorsements: endorsements}, nil
	case AskForOperationsType:
		ids, err := codec.DecodeList(r, ctx.MaxOperationsPerMessage, domain.ReadOperationID)
		if err != nil {
			return nil, codec.Field("operation_ids", err)
		}
		return &AskForOperations{OperationIDs: ids}, nil
	case OperationsBatchType:
		ids, err := codec.DecodeList(r, ctx.MaxOperationsPerMessage, domain.ReadOperationID)
		if err != nil {
			return nil, codec.Field("operation_ids", err)
		}
		return &OperationsBatch{OperationIDs: ids}, nil
	default:
		// ParseType only returns registered types
		return nil, fmt.Errorf("%w: %d", codec.ErrUnknownMessageType, t)
	}
}

func readHandshakeInitiation(r *codec.Reader) (*HandshakeInitiation, error) {
	var m HandshakeInitiation
	var err error
	if m.PublicKey, err = domain.ReadPublicKey(r); err != nil {
		return nil, codec.Field("public_key", err)
	}
	if err = r.ReadInto(m.RandomBytes[:]); err != nil {
		return nil, codec.Field("random_bytes", err)
	}
	if m.Version, err = domain.ReadVersion(r); err != nil {
		return nil, codec.Field("version", err)
	}
	return &m, nil
}

type operationEntry struct {
	id domain.OperationID
	op *domain.Operation
}

func readOperationEntry(r *codec.Reader) (operationEntry, error) {
	var entry operationEntry
	var err error
	if entry.id, err = domain.ReadOperationID(r); err != nil {
		return entry, codec.Field("id", err)
	}
	present, err := r.ReadPresence()
	if err != nil {
		return entry, codec.Field("tag", err)
	}
	if present {
		if entry.op, err = domain.ReadOperation(r); err != nil {
			return entry, codec.Field("operation", err)
		}
	}
	return entry, nil
}

func readOperations(r *codec.Reader, bound uint32) (map[domain.OperationID]*domain.Operation, error) {
	entries, err := codec.DecodeList(r, bound, readOperationEntry)
	if err != nil {
		return nil, err
	}
	ops := make(map[domain.OperationID]*domain.Operation, len(entries))
	for _, entry := range entries {
		if _, ok := ops[entry.id]; ok {
			return nil, fmt.Errorf("%w: operation %s", codec.ErrDuplicateEntry, entry.id)
		}
		ops[entry.id] = entry.op
	}
	return ops, nil
}
