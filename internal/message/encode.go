package message

import (
	"fmt"
	"slices"

	"github.com/joseferreira/stakenet/internal/codec"
	"github.com/joseferreira/stakenet/internal/domain"
)

const initialBufferCap = 256

// Encode returns the wire form of m.
func Encode(m Message) ([]byte, error) {
	return AppendEncoded(make([]byte, 0, initialBufferCap), m)
}

// AppendEncoded appends the wire form of m to dst.
func AppendEncoded(dst []byte, m Message) ([]byte, error) {
	if m == nil {
		return dst, codec.ErrNilObject
	}
	dst, err := codec.AppendUvarint(dst, uint64(m.Type()))
	if err != nil {
		return dst, err
	}

	switch m := m.(type) {
	case *HandshakeInitiation:
		dst = append(dst, m.PublicKey[:]...)
		dst = append(dst, m.RandomBytes[:]...)
		dst, err = m.Version.AppendCompact(dst)
		return dst, codec.Field("version", err)
	case *HandshakeReply:
		return append(dst, m.Signature[:]...), nil
	case *Block:
		dst, err = m.Block.AppendCompact(dst)
		return dst, codec.Field("block", err)
	case *BlockHeader:
		dst, err = m.Header.AppendCompact(dst)
		return dst, codec.Field("header", err)
	case *AskForBlocks:
		dst, err = codec.EncodeList(dst, m.BlockIDs, appendBlockID)
		return dst, codec.Field("block_ids", err)
	case *AskPeerList:
		return dst, nil
	case *PeerList:
		dst, err = codec.EncodeList(dst, m.Peers, domain.AppendIPCompact)
		return dst, codec.Field("peers", err)
	case *BlockNotFound:
		return append(dst, m.BlockID[:]...), nil
	case *OperationsBatch:
		dst, err = codec.EncodeList(dst, m.OperationIDs, appendOperationID)
		return dst, codec.Field("operation_ids", err)
	case *AskForOperations:
		dst, err = codec.EncodeList(dst, m.OperationIDs, appendOperationID)
		return dst, codec.Field("operation_ids", err)
	case *Operations:
		dst, err = appendOperations(dst, m.Operations)
		return dst, codec.Field("operations", err)
	case *Endorsements:
		dst, err = codec.EncodeList(dst, m.Endorsements, appendEndorsement)
		return dst, codec.Field("endorsements", err)
	default:
		return dst, fmt.Errorf("%w: %T", codec.ErrUnknownMessageType, m)
	}
}

func appendBlockID(dst []byte, id domain.BlockID) ([]byte, error) {
	return append(dst, id[:]...), nil
}

func appendOperationID(dst []byte, id domain.OperationID) ([]byte, error) {
	return append(dst, id[:]...), nil
}

func appendEndorsement(dst []byte, e *domain.Endorsement) ([]byte, error) {
	return e.AppendCompact(dst)
}

// appendOperations writes the entries sorted by id so that equal maps
// always produce equal bytes. Each entry is the id, the 4 byte presence tag
// and, when present, the operation.
func appendOperations(dst []byte, ops map[domain.OperationID]*domain.Operation) ([]byte, error) {
	ids := make([]domain.OperationID, 0, len(ops))
	for id := range ops {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, domain.OperationID.Compare)

	return codec.EncodeList(dst, ids, func(dst []byte, id domain.OperationID) ([]byte, error) {
		dst = append(dst, id[:]...)
		op := ops[id]
		dst = codec.AppendPresence(dst, op != nil)
		if op == nil {
			return dst, nil
		}
		return op.AppendCompact(dst)
	})
}
