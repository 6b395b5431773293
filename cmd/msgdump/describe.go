package main

import (
	"encoding/hex"
	"fmt"

	"github.com/multiformats/go-varint"
	"github.com/sirupsen/logrus"

	"github.com/joseferreira/stakenet/internal/domain"
	"github.com/joseferreira/stakenet/internal/message"
)

// unframe splits one [varint length][payload] frame off buf. n counts the
// prefix and the payload.
func unframe(buf []byte, maxSize uint32) (payload []byte, n int, err error) {
	length, prefix, err := varint.FromUvarint(buf)
	if err != nil {
		return nil, 0, fmt.Errorf("frame length: %w", err)
	}
	if length > uint64(maxSize) {
		return nil, 0, fmt.Errorf("frame length %d exceeds %d", length, maxSize)
	}
	if uint64(len(buf)-prefix) < length {
		return nil, 0, fmt.Errorf("frame truncated: want %d bytes, have %d", length, len(buf)-prefix)
	}
	end := prefix + int(length)
	return buf[prefix:end], end, nil
}

func describe(msg message.Message) logrus.Fields {
	switch m := msg.(type) {
	case *message.HandshakeInitiation:
		return logrus.Fields{
			"public_key":   m.PublicKey.String(),
			"random_bytes": hex.EncodeToString(m.RandomBytes[:]),
			"version":      m.Version.String(),
		}
	case *message.HandshakeReply:
		return logrus.Fields{"signature": hex.EncodeToString(m.Signature[:])}
	case *message.Block:
		fields := describeHeader(m.Block.Header)
		fields["operations"] = len(m.Block.Operations)
		return fields
	case *message.BlockHeader:
		return describeHeader(m.Header)
	case *message.AskForBlocks:
		return logrus.Fields{"block_ids": stringList(m.BlockIDs)}
	case *message.AskPeerList:
		return logrus.Fields{}
	case *message.PeerList:
		return logrus.Fields{"peers": stringList(m.Peers)}
	case *message.BlockNotFound:
		return logrus.Fields{"block_id": m.BlockID.String()}
	case *message.OperationsBatch:
		return logrus.Fields{"operation_ids": stringList(m.OperationIDs)}
	case *message.AskForOperations:
		return logrus.Fields{"operation_ids": stringList(m.OperationIDs)}
	case *message.Operations:
		present := make(map[string]bool, len(m.Operations))
		for id, op := range m.Operations {
			present[id.String()] = op != nil
		}
		return logrus.Fields{"operations": present}
	case *message.Endorsements:
		slots := make([]string, 0, len(m.Endorsements))
		for _, e := range m.Endorsements {
			slots = append(slots, fmt.Sprintf("%s#%d", e.Content.Slot, e.Content.Index))
		}
		return logrus.Fields{"endorsements": slots}
	default:
		return logrus.Fields{}
	}
}

func describeHeader(h *domain.BlockHeader) logrus.Fields {
	fields := logrus.Fields{
		"creator":      h.Content.Creator.String(),
		"slot":         h.Content.Slot.String(),
		"parents":      stringList(h.Content.Parents),
		"endorsements": len(h.Content.Endorsements),
	}
	if id, err := h.ID(); err == nil {
		fields["block_id"] = id.String()
	}
	return fields
}

func stringList[T fmt.Stringer](items []T) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.String())
	}
	return out
}
