package service

import (
	"context"
	"net/netip"
	"path/filepath"
	"sync"
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/joseferreira/stakenet/internal/codec"
	"github.com/joseferreira/stakenet/internal/domain"
	"github.com/joseferreira/stakenet/internal/domain/domaintest"
	"github.com/joseferreira/stakenet/internal/infra"
	"github.com/joseferreira/stakenet/internal/message"
	"github.com/joseferreira/stakenet/internal/persistence"
)

type fakeTransport struct {
	mu     sync.Mutex
	sent   map[peer.ID][]message.Message
	ips    []netip.Addr
	listen []netip.Addr
}

func (f *fakeTransport) Send(to peer.ID, msg message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = make(map[peer.ID][]message.Message)
	}
	f.sent[to] = append(f.sent[to], msg)
	return nil
}

func (f *fakeTransport) ConnectedPeerIPs() []netip.Addr { return f.ips }
func (f *fakeTransport) ListenIPs() []netip.Addr        { return f.listen }

// take returns and forgets everything sent to p.
func (f *fakeTransport) take(p peer.ID) []message.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.sent[p]
	delete(f.sent, p)
	return msgs
}

type testNode struct {
	*NodeService
	transport *fakeTransport
}

func newTestNode(t *testing.T) *testNode {
	logger := infra.NewTestLogger(t)
	sctx := domaintest.Context()

	repo, err := persistence.NewBlockRepository(filepath.Join(t.TempDir(), "blocks.db"), sctx, logger)
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	pool := NewPoolService(logger)
	blocks, err := NewBlockService(repo, pool, sctx, logger)
	require.NoError(t, err)

	transport := &fakeTransport{}
	handshakes := NewHandshakes(domaintest.Key(t), testVersion(t, "TEST.1.0"))
	ns := NewNodeService(context.Background(), blocks, pool, handshakes, transport, sctx, logger)
	t.Cleanup(ns.Close)
	return &testNode{NodeService: ns, transport: transport}
}

// authenticate runs the handshake between the node and a remote peer
// played by its own Handshakes.
func (n *testNode) authenticate(t *testing.T, remote peer.ID) {
	require := require.New(t)

	n.PeerConnected(remote)
	sent := n.transport.take(remote)
	require.Len(sent, 1)

	peerSide := NewHandshakes(domaintest.Key(t), testVersion(t, "TEST.1.0"))
	replies, err := peerSide.HandleInitiation("node", sent[0].(*message.HandshakeInitiation))
	require.NoError(err)
	for _, reply := range replies {
		require.NoError(n.HandleMessage(reply, remote))
	}
	require.True(n.Handshakes.IsAuthenticated(remote))

	// the node's reply to the peer's initiation
	sent = n.transport.take(remote)
	require.Len(sent, 1)
	require.IsType(&message.HandshakeReply{}, sent[0])
}

func TestDropsUnauthenticated(t *testing.T) {
	n := newTestNode(t)

	require.NoError(t, n.HandleMessage(&message.AskPeerList{}, "stranger"))
	require.Empty(t, n.transport.take("stranger"))
}

func TestAskPeerList(t *testing.T) {
	require := require.New(t)

	n := newTestNode(t)
	n.transport.listen = []netip.Addr{
		netip.MustParseAddr("0.0.0.0"),
		netip.MustParseAddr("192.0.2.10"),
	}
	n.transport.ips = []netip.Addr{
		netip.MustParseAddr("203.0.113.1"),
		netip.MustParseAddr("127.0.0.1"),
	}
	n.authenticate(t, "remote")

	require.NoError(n.HandleMessage(&message.PeerList{Peers: []netip.Addr{
		netip.MustParseAddr("198.51.100.9"),
		netip.MustParseAddr("203.0.113.1"),
		netip.MustParseAddr("fe80::1"),
	}}, "remote"))

	require.NoError(n.HandleMessage(&message.AskPeerList{}, "remote"))
	sent := n.transport.take("remote")
	require.Equal([]message.Message{&message.PeerList{Peers: []netip.Addr{
		netip.MustParseAddr("192.0.2.10"),
		netip.MustParseAddr("203.0.113.1"),
		netip.MustParseAddr("198.51.100.9"),
	}}}, sent)
}

func TestAdvertisablePeersSkipPrivateAddresses(t *testing.T) {
	require := require.New(t)

	n := newTestNode(t)
	n.transport.listen = []netip.Addr{
		netip.MustParseAddr("10.0.0.5"),
		netip.MustParseAddr("192.168.1.2"),
		netip.MustParseAddr("fd00::1"),
		netip.MustParseAddr("192.0.2.10"),
	}
	n.transport.ips = []netip.Addr{
		netip.MustParseAddr("172.16.4.4"),
		netip.MustParseAddr("203.0.113.1"),
	}
	n.authenticate(t, "remote")

	require.NoError(n.HandleMessage(&message.PeerList{Peers: []netip.Addr{
		netip.MustParseAddr("10.1.1.1"),
		netip.MustParseAddr("2001:db8::7"),
	}}, "remote"))

	require.Equal([]netip.Addr{
		netip.MustParseAddr("192.0.2.10"),
		netip.MustParseAddr("203.0.113.1"),
		netip.MustParseAddr("2001:db8::7"),
	}, n.AdvertisablePeers())
	require.Equal([]netip.Addr{netip.MustParseAddr("2001:db8::7")}, n.KnownPeers())
}

func TestAdvertiseLimit(t *testing.T) {
	n := newTestNode(t)
	n.sctx.MaxAdvertiseLength = 1
	n.transport.ips = []netip.Addr{
		netip.MustParseAddr("203.0.113.1"),
		netip.MustParseAddr("203.0.113.2"),
	}
	require.Len(t, n.AdvertisablePeers(), 1)
}

func TestAskForBlocks(t *testing.T) {
	require := require.New(t)

	n := newTestNode(t)
	n.authenticate(t, "remote")

	key := domaintest.Key(t)
	block := domaintest.Block(t, key, domaintest.Transaction(t, key, 3))
	require.NoError(n.HandleMessage(&message.Block{Block: block}, "remote"))

	id, err := block.ID()
	require.NoError(err)
	missing := domain.BlockID(domaintest.ID("missing"))

	require.NoError(n.HandleMessage(&message.AskForBlocks{BlockIDs: []domain.BlockID{id, missing}}, "remote"))
	sent := n.transport.take("remote")
	require.Equal([]message.Message{
		&message.Block{Block: block},
		&message.BlockNotFound{BlockID: missing},
	}, sent)
}

func TestBlockIsAnnounced(t *testing.T) {
	require := require.New(t)

	n := newTestNode(t)
	n.authenticate(t, "a")
	n.authenticate(t, "b")

	key := domaintest.Key(t)
	op := domaintest.RollBuy(t, key, 1)
	_, _, err := n.Pool.AddOperation(op)
	require.NoError(err)

	block := domaintest.Block(t, key, op)
	require.NoError(n.HandleMessage(&message.Block{Block: block}, "a"))

	require.Empty(n.transport.take("a"))
	require.Equal([]message.Message{&message.BlockHeader{Header: block.Header}}, n.transport.take("b"))

	// the included operation leaves the pool
	ops, _ := n.Pool.Sizes()
	require.Zero(ops)

	// a second copy is ignored
	require.NoError(n.HandleMessage(&message.Block{Block: block}, "b"))
	require.Empty(n.transport.take("a"))
}

func TestBlockWithWrongMerkleRoot(t *testing.T) {
	n := newTestNode(t)
	n.authenticate(t, "remote")

	key := domaintest.Key(t)
	block := domaintest.Block(t, key)
	block.Operations = []*domain.Operation{domaintest.RollBuy(t, key, 1)}

	err := n.HandleMessage(&message.Block{Block: block}, "remote")
	require.ErrorIs(t, err, ErrMerkleRootMismatch)
}

func TestBlockHeader(t *testing.T) {
	require := require.New(t)

	n := newTestNode(t)
	n.authenticate(t, "remote")

	block := domaintest.Block(t, domaintest.Key(t))
	id, err := block.ID()
	require.NoError(err)

	require.NoError(n.HandleMessage(&message.BlockHeader{Header: block.Header}, "remote"))
	require.Equal([]message.Message{&message.AskForBlocks{BlockIDs: []domain.BlockID{id}}}, n.transport.take("remote"))

	require.NoError(n.HandleMessage(&message.Block{Block: block}, "remote"))
	require.NoError(n.HandleMessage(&message.BlockHeader{Header: block.Header}, "remote"))
	require.Empty(n.transport.take("remote"))

	forged := *block.Header
	forged.Content.Slot.Period++
	require.ErrorIs(n.HandleMessage(&message.BlockHeader{Header: &forged}, "remote"), domain.ErrInvalidSignature)
}

func TestOperationPropagation(t *testing.T) {
	require := require.New(t)

	n := newTestNode(t)
	n.authenticate(t, "a")
	n.authenticate(t, "b")

	key := domaintest.Key(t)
	op := domaintest.Transaction(t, key, 9)
	id, err := op.ID()
	require.NoError(err)

	// a announces, the node asks for what it lacks
	require.NoError(n.HandleMessage(&message.OperationsBatch{OperationIDs: []domain.OperationID{id}}, "a"))
	require.Equal([]message.Message{&message.AskForOperations{OperationIDs: []domain.OperationID{id}}}, n.transport.take("a"))

	// a delivers, the node announces to everyone else
	require.NoError(n.HandleMessage(&message.Operations{Operations: map[domain.OperationID]*domain.Operation{id: op}}, "a"))
	require.Empty(n.transport.take("a"))
	require.Equal([]message.Message{&message.OperationsBatch{OperationIDs: []domain.OperationID{id}}}, n.transport.take("b"))

	// known ids are not requested again
	require.NoError(n.HandleMessage(&message.OperationsBatch{OperationIDs: []domain.OperationID{id}}, "b"))
	require.Empty(n.transport.take("b"))

	missing := domain.OperationID(domaintest.ID("missing"))
	require.NoError(n.HandleMessage(&message.AskForOperations{OperationIDs: []domain.OperationID{id, missing}}, "b"))
	require.Equal([]message.Message{&message.Operations{Operations: map[domain.OperationID]*domain.Operation{
		id:      op,
		missing: nil,
	}}}, n.transport.take("b"))
}

func TestOperationsWithWrongID(t *testing.T) {
	n := newTestNode(t)
	n.authenticate(t, "remote")

	op := domaintest.Transaction(t, domaintest.Key(t), 9)
	wrong := domain.OperationID(domaintest.ID("wrong"))
	err := n.HandleMessage(&message.Operations{Operations: map[domain.OperationID]*domain.Operation{wrong: op}}, "remote")
	require.ErrorIs(t, err, ErrOperationIDMismatch)
}

func TestAddOperationAnnounces(t *testing.T) {
	require := require.New(t)

	n := newTestNode(t)
	n.authenticate(t, "remote")

	op := domaintest.RollBuy(t, domaintest.Key(t), 2)
	id, err := n.AddOperation(op)
	require.NoError(err)
	require.Equal([]message.Message{&message.OperationsBatch{OperationIDs: []domain.OperationID{id}}}, n.transport.take("remote"))

	_, err = n.AddOperation(op)
	require.NoError(err)
	require.Empty(n.transport.take("remote"))
}

func TestEndorsementsAddedToPool(t *testing.T) {
	require := require.New(t)

	n := newTestNode(t)
	n.authenticate(t, "remote")

	key := domaintest.Key(t)
	require.NoError(n.HandleMessage(&message.Endorsements{Endorsements: []*domain.Endorsement{
		domaintest.Endorsement(t, key, 0),
		domaintest.Endorsement(t, key, 1),
	}}, "remote"))

	_, endorsements := n.Pool.Sizes()
	require.Equal(2, endorsements)
}

func TestPeerDisconnected(t *testing.T) {
	n := newTestNode(t)
	n.authenticate(t, "remote")

	n.PeerDisconnected("remote")
	require.False(t, n.Handshakes.IsAuthenticated("remote"))
}

func TestSecondConnectionKeepsPeerAuthenticated(t *testing.T) {
	require := require.New(t)
	n := newTestNode(t)
	n.authenticate(t, "remote")

	// a simultaneous dial opens a second connection to the same peer
	n.PeerConnected("remote")
	require.Empty(n.transport.take("remote"))

	n.PeerDisconnected("remote")
	require.True(n.Handshakes.IsAuthenticated("remote"))

	require.NoError(n.HandleMessage(&message.AskPeerList{}, "remote"))
	require.Len(n.transport.take("remote"), 1)

	n.PeerDisconnected("remote")
	require.False(n.Handshakes.IsAuthenticated("remote"))
}

func TestReconnectStartsNewHandshake(t *testing.T) {
	require := require.New(t)
	n := newTestNode(t)
	n.authenticate(t, "remote")

	n.PeerDisconnected("remote")
	n.PeerConnected("remote")

	sent := n.transport.take("remote")
	require.Len(sent, 1)
	require.IsType(&message.HandshakeInitiation{}, sent[0])
	require.False(n.Handshakes.IsAuthenticated("remote"))
}

func TestBlockHeaderWithWrongParentCount(t *testing.T) {
	require := require.New(t)
	n := newTestNode(t)
	n.authenticate(t, "remote")

	key := domaintest.Key(t)
	content := domaintest.Block(t, key).Header.Content
	content.Parents = content.Parents[:1]

	// signed directly, since NewBlockHeader refuses this content
	b, err := codec.Marshal(content)
	require.NoError(err)
	sig, err := key.Sign(b)
	require.NoError(err)
	header := &domain.BlockHeader{Content: content, Signature: sig}

	require.ErrorIs(n.HandleMessage(&message.BlockHeader{Header: header}, "remote"), domain.ErrInvalidParents)
	require.Empty(n.transport.take("remote"))
}
