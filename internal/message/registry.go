package message

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/joseferreira/stakenet/internal/codec"
)

// Type is the wire discriminant of a message. Values are assigned by hand
// and must never be reused or reordered: a peer running another release
// relies on them byte for byte.
type Type uint32

const (
	HandshakeInitiationType Type = 0
	HandshakeReplyType      Type = 1
	BlockType               Type = 2
	BlockHeaderType         Type = 3
	AskForBlocksType        Type = 4
	AskPeerListType         Type = 5
	PeerListType            Type = 6
	BlockNotFoundType       Type = 7
	OperationsType          Type = 8
	EndorsementsType        Type = 9
	AskForOperationsType    Type = 10
	OperationsBatchType     Type = 11
)

var typeNames = map[Type]string{
	HandshakeInitiationType: "handshake_initiation",
	HandshakeReplyType:      "handshake_reply",
	BlockType:               "block",
	BlockHeaderType:         "block_header",
	AskForBlocksType:        "ask_for_blocks",
	AskPeerListType:         "ask_peer_list",
	PeerListType:            "peer_list",
	BlockNotFoundType:       "block_not_found",
	OperationsType:          "operations",
	EndorsementsType:        "endorsements",
	AskForOperationsType:    "ask_for_operations",
	OperationsBatchType:     "operations_batch",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown(" + strconv.FormatUint(uint64(t), 10) + ")"
}

// ParseType maps a raw discriminant read off the wire to a known Type.
func ParseType(v uint64) (Type, error) {
	if v <= 1<<32-1 {
		if _, ok := typeNames[Type(v)]; ok {
			return Type(v), nil
		}
	}
	return 0, fmt.Errorf("%w: %d", codec.ErrUnknownMessageType, v)
}

// Types lists every known message type in discriminant order.
func Types() []Type {
	types := make([]Type, 0, len(typeNames))
	for t := range typeNames {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
