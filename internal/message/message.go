// Package message defines every message two nodes exchange and the compact
// codec that turns them into bytes and back.
//
// Wire layout: a varint discriminant (see Type) followed by the variant's
// payload. Lists are a varint count followed by the items; on decode the
// count is checked against the SerializationContext before any allocation.
// Entries of an Operations message carry a 4 byte big-endian presence tag.
package message

import (
	"net/netip"

	"github.com/joseferreira/stakenet/internal/domain"
)

// HandshakeRandomnessSize is the size of the nonce a peer must sign.
const HandshakeRandomnessSize = 32

// Message is one of the concrete message structs in this package. The set
// is closed; Encode and Decode switch over it exhaustively.
type Message interface {
	Type() Type
	isMessage()
}

// HandshakeInitiation starts mutual authentication. The receiver signs
// RandomBytes with the key matching its own initiation.
type HandshakeInitiation struct {
	PublicKey   domain.PublicKey
	RandomBytes [HandshakeRandomnessSize]byte
	Version     domain.Version
}

// HandshakeReply carries the signature over the counterpart's nonce.
type HandshakeReply struct {
	Signature domain.Signature
}

type Block struct {
	Block *domain.Block
}

type BlockHeader struct {
	Header *domain.BlockHeader
}

// AskForBlocks requests full blocks by id.
type AskForBlocks struct {
	BlockIDs []domain.BlockID
}

// AskPeerList requests the peer's advertisable addresses.
type AskPeerList struct{}

// PeerList answers AskPeerList. Peers are ordered from most to least
// reliable; the sender's own address comes first when it is routable.
type PeerList struct {
	Peers []netip.Addr
}

type BlockNotFound struct {
	BlockID domain.BlockID
}

// OperationsBatch announces operation ids the sender knows.
type OperationsBatch struct {
	OperationIDs []domain.OperationID
}

// AskForOperations requests operation contents by id.
type AskForOperations struct {
	OperationIDs []domain.OperationID
}

// Operations answers AskForOperations. A nil value means the sender does
// not have that operation.
type Operations struct {
	Operations map[domain.OperationID]*domain.Operation
}

type Endorsements struct {
	Endorsements []*domain.Endorsement
}

func (*HandshakeInitiation) Type() Type { return HandshakeInitiationType }
func (*HandshakeReply) Type() Type      { return HandshakeReplyType }
func (*Block) Type() Type               { return BlockType }
func (*BlockHeader) Type() Type         { return BlockHeaderType }
func (*AskForBlocks) Type() Type        { return AskForBlocksType }
func (*AskPeerList) Type() Type         { return AskPeerListType }
func (*PeerList) Type() Type            { return PeerListType }
func (*BlockNotFound) Type() Type       { return BlockNotFoundType }
func (*OperationsBatch) Type() Type     { return OperationsBatchType }
func (*AskForOperations) Type() Type    { return AskForOperationsType }
func (*Operations) Type() Type          { return OperationsType }
func (*Endorsements) Type() Type        { return EndorsementsType }

func (*HandshakeInitiation) isMessage() {}
func (*HandshakeReply) isMessage()      {}
func (*Block) isMessage()               {}
func (*BlockHeader) isMessage()         {}
func (*AskForBlocks) isMessage()        {}
func (*AskPeerList) isMessage()         {}
func (*PeerList) isMessage()            {}
func (*BlockNotFound) isMessage()       {}
func (*OperationsBatch) isMessage()     {}
func (*AskForOperations) isMessage()    {}
func (*Operations) isMessage()          {}
func (*Endorsements) isMessage()        {}
