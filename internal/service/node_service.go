package service

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"

	"github.com/joseferreira/stakenet/internal/domain"
	"github.com/joseferreira/stakenet/internal/message"
	"github.com/joseferreira/stakenet/internal/persistence"
)

var ErrOperationIDMismatch = errors.New("operation does not match its id")

// Transport is the part of P2PService the node logic depends on.
type Transport interface {
	Send(to peer.ID, msg message.Message) error
	ConnectedPeerIPs() []netip.Addr
	ListenIPs() []netip.Addr
}

type NodeService struct {
	Blocks     *BlockService
	Pool       *PoolService
	Handshakes *Handshakes
	transport  Transport
	sctx       *domain.SerializationContext
	log        *logrus.Entry

	knownMu    sync.Mutex
	knownPeers []netip.Addr

	// open connections per peer; handshake state lives until the last closes
	connMu sync.Mutex
	conns  map[peer.ID]int

	ctx    context.Context
	cancel context.CancelFunc
}

func NewNodeService(ctx context.Context, blocks *BlockService, pool *PoolService, handshakes *Handshakes, transport Transport, sctx *domain.SerializationContext, logger *logrus.Logger) *NodeService {
	childCtx, cancel := context.WithCancel(ctx)
	return &NodeService{
		Blocks:     blocks,
		Pool:       pool,
		Handshakes: handshakes,
		transport:  transport,
		sctx:       sctx,
		log:        logger.WithField("service", "node"),
		conns:      make(map[peer.ID]int),
		ctx:        childCtx,
		cancel:     cancel,
	}
}

// Start asks authenticated peers for their peer lists every interval.
func (ns *NodeService) Start(peerDiscoveryInterval time.Duration) {
	go ns.runPeerMaintenance(peerDiscoveryInterval)
}

func (ns *NodeService) Close() {
	ns.cancel()
}

func (ns *NodeService) runPeerMaintenance(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := ns.Broadcast(&message.AskPeerList{}); err != nil {
				ns.log.WithError(err).Warn("Failed to broadcast AskPeerList message")
			}
		case <-ns.ctx.Done():
			return
		}
	}
}

// Broadcast sends msg to every authenticated peer not in excludePeers.
func (ns *NodeService) Broadcast(msg message.Message, excludePeers ...peer.ID) error {
	excludeMap := make(map[peer.ID]struct{})
	for _, pID := range excludePeers {
		excludeMap[pID] = struct{}{}
	}

	var errs []error
	for _, pID := range ns.Handshakes.Authenticated() {
		if _, ok := excludeMap[pID]; ok {
			continue
		}
		if err := ns.transport.Send(pID, msg); err != nil {
			ns.log.WithError(err).WithField("peer_id", pID.String()).Error("Failed to broadcast message to peer")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PeerConnected is called once per new connection. Only the first
// connection to a peer starts a handshake.
func (ns *NodeService) PeerConnected(p peer.ID) {
	ns.connMu.Lock()
	ns.conns[p]++
	ns.connMu.Unlock()

	initiation, err := ns.Handshakes.Initiate(p)
	if err != nil {
		ns.log.WithError(err).WithField("peer_id", p.String()).Error("Failed to start handshake")
		return
	}
	if initiation == nil {
		return
	}
	if err := ns.transport.Send(p, initiation); err != nil {
		ns.log.WithError(err).WithField("peer_id", p.String()).Warn("Failed to send handshake initiation")
	}
}

// PeerDisconnected is called once per closed connection. The peer's
// handshake state is dropped with its last connection.
func (ns *NodeService) PeerDisconnected(p peer.ID) {
	ns.connMu.Lock()
	ns.conns[p]--
	remaining := ns.conns[p]
	if remaining <= 0 {
		delete(ns.conns, p)
	}
	ns.connMu.Unlock()

	if remaining > 0 {
		ns.log.WithFields(logrus.Fields{
			"peer_id":     p.String(),
			"connections": remaining,
		}).Debug("Connection closed, peer still connected")
		return
	}
	ns.Handshakes.Remove(p)
}

// HandleMessage dispatches one decoded message. Apart from the handshake
// itself, messages from peers that have not completed the handshake are
// dropped.
func (ns *NodeService) HandleMessage(msg message.Message, from peer.ID) error {
	switch m := msg.(type) {
	case *message.HandshakeInitiation:
		return ns.handleHandshakeInitiation(m, from)
	case *message.HandshakeReply:
		return ns.handleHandshakeReply(m, from)
	}

	if !ns.Handshakes.IsAuthenticated(from) {
		ns.log.WithFields(logrus.Fields{
			"peer_id": from.String(),
			"type":    msg.Type().String(),
		}).Debug("Dropping message from unauthenticated peer")
		return nil
	}

	switch m := msg.(type) {
	case *message.AskPeerList:
		return ns.transport.Send(from, &message.PeerList{Peers: ns.AdvertisablePeers()})
	case *message.PeerList:
		ns.addKnownPeers(m.Peers)
	case *message.AskForBlocks:
		return ns.handleAskForBlocks(m, from)
	case *message.Block:
		return ns.handleBlock(m, from)
	case *message.BlockHeader:
		return ns.handleBlockHeader(m, from)
	case *message.BlockNotFound:
		ns.log.WithFields(logrus.Fields{
			"peer_id":  from.String(),
			"block_id": m.BlockID.String(),
		}).Debug("Peer does not have block")
	case *message.OperationsBatch:
		unknown := ns.Pool.UnknownOperationIDs(m.OperationIDs)
		if len(unknown) == 0 {
			return nil
		}
		return ns.transport.Send(from, &message.AskForOperations{OperationIDs: unknown})
	case *message.AskForOperations:
		return ns.transport.Send(from, &message.Operations{Operations: ns.Pool.LookupOperations(m.OperationIDs)})
	case *message.Operations:
		return ns.handleOperations(m, from)
	case *message.Endorsements:
		for _, e := range m.Endorsements {
			if _, err := ns.Pool.AddEndorsement(e); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unexpected message type: %s", msg.Type())
	}
	return nil
}

func (ns *NodeService) handleHandshakeInitiation(m *message.HandshakeInitiation, from peer.ID) error {
	replies, err := ns.Handshakes.HandleInitiation(from, m)
	for _, reply := range replies {
		if sendErr := ns.transport.Send(from, reply); sendErr != nil {
			return sendErr
		}
	}
	if err != nil {
		return fmt.Errorf("handshake with %s failed: %w", from, err)
	}
	if ns.Handshakes.IsAuthenticated(from) {
		ns.log.WithField("peer_id", from.String()).Info("Peer authenticated")
	}
	return nil
}

func (ns *NodeService) handleHandshakeReply(m *message.HandshakeReply, from peer.ID) error {
	authenticated, err := ns.Handshakes.HandleReply(from, m)
	if err != nil {
		return fmt.Errorf("handshake with %s failed: %w", from, err)
	}
	if authenticated {
		ns.log.WithField("peer_id", from.String()).Info("Peer authenticated")
	}
	return nil
}

func (ns *NodeService) handleAskForBlocks(m *message.AskForBlocks, from peer.ID) error {
	for _, id := range m.BlockIDs {
		block, err := ns.Blocks.GetBlock(id)
		var reply message.Message
		switch {
		case errors.Is(err, persistence.ErrBlockNotFound):
			reply = &message.BlockNotFound{BlockID: id}
		case err != nil:
			return err
		default:
			reply = &message.Block{Block: block}
		}
		if err := ns.transport.Send(from, reply); err != nil {
			return err
		}
	}
	return nil
}

func (ns *NodeService) handleBlock(m *message.Block, from peer.ID) error {
	added, err := ns.Blocks.AddBlockFromNetwork(m.Block)
	if err != nil || !added {
		return err
	}
	// the header is enough for peers to ask for the block if they want it
	if err := ns.Broadcast(&message.BlockHeader{Header: m.Block.Header}, from); err != nil {
		ns.log.WithError(err).Warn("Failed to announce block header")
	}
	return nil
}

func (ns *NodeService) handleBlockHeader(m *message.BlockHeader, from peer.ID) error {
	if err := ns.Blocks.ValidateHeader(m.Header); err != nil {
		return err
	}
	id, err := m.Header.ID()
	if err != nil {
		return err
	}
	known, err := ns.Blocks.HasBlock(id)
	if err != nil || known {
		return err
	}
	return ns.transport.Send(from, &message.AskForBlocks{BlockIDs: []domain.BlockID{id}})
}

func (ns *NodeService) handleOperations(m *message.Operations, from peer.ID) error {
	var added []domain.OperationID
	for claimed, op := range m.Operations {
		if op == nil {
			continue
		}
		if id, err := op.ID(); err != nil || id != claimed {
			return fmt.Errorf("%w: %s", ErrOperationIDMismatch, claimed)
		}
		id, isNew, err := ns.Pool.AddOperation(op)
		if err != nil {
			return err
		}
		if isNew {
			added = append(added, id)
		}
	}
	if len(added) == 0 {
		return nil
	}
	return ns.Broadcast(&message.OperationsBatch{OperationIDs: added}, from)
}

// AddOperation adds a locally submitted operation and announces it.
func (ns *NodeService) AddOperation(op *domain.Operation) (domain.OperationID, error) {
	id, isNew, err := ns.Pool.AddOperation(op)
	if err != nil || !isNew {
		return id, err
	}
	if err := ns.Broadcast(&message.OperationsBatch{OperationIDs: []domain.OperationID{id}}); err != nil {
		ns.log.WithError(err).Warn("Failed to announce operation")
	}
	return id, nil
}

// AdvertisablePeers lists publicly routable addresses, capped at
// MaxAdvertiseLength: our own listen addresses, then connected peers, then
// addresses learned from peer lists.
func (ns *NodeService) AdvertisablePeers() []netip.Addr {
	limit := int(ns.sctx.MaxAdvertiseLength)
	seen := make(map[netip.Addr]struct{})
	var peers []netip.Addr

	add := func(ip netip.Addr) {
		if len(peers) >= limit || !isAdvertisable(ip) {
			return
		}
		if _, ok := seen[ip]; ok {
			return
		}
		seen[ip] = struct{}{}
		peers = append(peers, ip)
	}

	for _, ip := range ns.transport.ListenIPs() {
		add(ip)
	}
	for _, ip := range ns.transport.ConnectedPeerIPs() {
		add(ip)
	}
	for _, ip := range ns.KnownPeers() {
		add(ip)
	}
	return peers
}

// isAdvertisable reports whether ip is reachable from the public internet.
// Private ranges (RFC 1918, RFC 4193) are left out.
func isAdvertisable(ip netip.Addr) bool {
	return ip.IsValid() &&
		!ip.IsUnspecified() &&
		!ip.IsLoopback() &&
		!ip.IsPrivate() &&
		!ip.IsLinkLocalUnicast() &&
		!ip.IsMulticast()
}

func (ns *NodeService) addKnownPeers(ips []netip.Addr) {
	ns.knownMu.Lock()
	defer ns.knownMu.Unlock()

	for _, ip := range ips {
		if len(ns.knownPeers) >= int(ns.sctx.MaxAdvertiseLength) {
			return
		}
		if !isAdvertisable(ip) || slices.Contains(ns.knownPeers, ip) {
			continue
		}
		ns.knownPeers = append(ns.knownPeers, ip)
	}
}

// KnownPeers returns the addresses learned from peer lists.
func (ns *NodeService) KnownPeers() []netip.Addr {
	ns.knownMu.Lock()
	defer ns.knownMu.Unlock()
	return append([]netip.Addr(nil), ns.knownPeers...)
}
