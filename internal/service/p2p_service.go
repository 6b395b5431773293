package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strings"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"

	"github.com/joseferreira/stakenet/internal/domain"
	"github.com/joseferreira/stakenet/internal/infra"
	"github.com/joseferreira/stakenet/internal/message"
)

const ProtocolID = "/stakenet/1.0.0"

type MessageHandler interface {
	HandleMessage(message.Message, peer.ID) error
	PeerConnected(peer.ID)
	PeerDisconnected(peer.ID)
}

// P2PService moves encoded messages between libp2p peers. Each stream
// carries length-prefixed frames; a frame longer than the context's
// MaxMessageSize resets the stream.
type P2PService struct {
	Host    host.Host
	handler MessageHandler
	events  *peerEventQueue
	sctx    *domain.SerializationContext
	log     *logrus.Entry
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewP2PService(ctx context.Context, config *infra.Config, sctx *domain.SerializationContext, key *domain.PrivateKey, logger *logrus.Logger) (*P2PService, error) {
	sourceMultiAddr, err := multiaddr.NewMultiaddr(config.P2PListenAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listen address: %w", err)
	}

	h, err := libp2p.New(
		libp2p.ListenAddrs(sourceMultiAddr),
		libp2p.Identity(key.Libp2p()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	childCtx, cancel := context.WithCancel(ctx)
	p2p := &P2PService{
		Host:   h,
		events: newPeerEventQueue(),
		sctx:   sctx,
		log:    logger.WithField("service", "p2p"),
		ctx:    childCtx,
		cancel: cancel,
	}

	p2p.log.WithFields(logrus.Fields{
		"peer_id": h.ID().String(),
		"addrs":   h.Addrs(),
	}).Info("LibP2P Host created")

	return p2p, nil
}

// SetHandler installs the message handler and starts accepting streams.
// libp2p reports connection events per connection, not per peer. They are
// queued and handed to the handler one at a time, in order, since libp2p
// notifiees must not block.
func (p *P2PService) SetHandler(handler MessageHandler) {
	p.handler = handler
	go p.events.run(p.ctx, handler)

	p.Host.SetStreamHandler(ProtocolID, p.handleNewStream)
	p.Host.Network().Notify(&network.NotifyBundle{
		ConnectedF: func(_ network.Network, conn network.Conn) {
			p.log.WithField("peer_id", conn.RemotePeer().String()).Info("Connection opened")
			infra.PeerCount.Set(float64(len(p.Host.Network().Peers())))
			p.events.push(peerEvent{peer: conn.RemotePeer(), connected: true})
		},
		DisconnectedF: func(_ network.Network, conn network.Conn) {
			p.log.WithField("peer_id", conn.RemotePeer().String()).Info("Connection closed")
			infra.PeerCount.Set(float64(len(p.Host.Network().Peers())))
			p.events.push(peerEvent{peer: conn.RemotePeer(), connected: false})
		},
	})
}

func (p *P2PService) Start() {
	p.log.WithFields(logrus.Fields{
		"peer_id": p.Host.ID().String(),
		"addrs":   p.Host.Addrs(),
	}).Info("P2P Service started and listening for connections")
}

func (p *P2PService) Close() error {
	p.cancel()
	p.log.Info("Shutting down libp2p host...")
	return p.Host.Close()
}

func (p *P2PService) handleNewStream(s network.Stream) {
	defer s.Close()

	from := s.Conn().RemotePeer()
	log := p.log.WithField("remote_peer", from.String())
	r := bufio.NewReader(s)

	for {
		payload, err := readFrame(r, p.sctx.MaxMessageSize)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				infra.DecodeFailures.WithLabelValues(failureReason(err)).Inc()
				log.WithError(err).Warn("Error reading frame from stream")
				s.Reset()
			}
			return
		}
		infra.BytesReceived.Add(float64(len(payload)))

		msg, err := decodeFrame(payload, p.sctx)
		if err != nil {
			infra.DecodeFailures.WithLabelValues(failureReason(err)).Inc()
			log.WithError(err).Warn("Error decoding message from stream")
			s.Reset()
			return
		}
		infra.MessagesReceived.WithLabelValues(msg.Type().String()).Inc()

		if p.handler != nil {
			if err := p.handler.HandleMessage(msg, from); err != nil {
				log.WithError(err).WithField("type", msg.Type().String()).Error("Error handling message")
			}
		}
	}
}

func (p *P2PService) Send(to peer.ID, msg message.Message) error {
	s, err := p.Host.NewStream(p.ctx, to, ProtocolID)
	if err != nil {
		return fmt.Errorf("failed to open stream to %s: %w", to.String(), err)
	}
	defer s.Close()

	n, err := writeFrame(s, msg, p.sctx.MaxMessageSize)
	if err != nil {
		s.Reset()
		return fmt.Errorf("failed to send %s to %s: %w", msg.Type(), to.String(), err)
	}
	infra.MessagesSent.WithLabelValues(msg.Type().String()).Inc()
	infra.BytesSent.Add(float64(n))
	return nil
}

// ConnectedPeerIPs returns the remote IP of every open connection, one
// entry per address.
func (p *P2PService) ConnectedPeerIPs() []netip.Addr {
	seen := make(map[netip.Addr]struct{})
	var ips []netip.Addr

	for _, pID := range p.Host.Network().Peers() {
		if pID == p.Host.ID() {
			continue
		}
		for _, conn := range p.Host.Network().ConnsToPeer(pID) {
			ip, ok := multiaddrIP(conn.RemoteMultiaddr())
			if !ok {
				continue
			}
			if _, dup := seen[ip]; dup {
				continue
			}
			seen[ip] = struct{}{}
			ips = append(ips, ip)
		}
	}
	return ips
}

// ListenIPs returns the IPs the host is listening on.
func (p *P2PService) ListenIPs() []netip.Addr {
	var ips []netip.Addr
	for _, addr := range p.Host.Addrs() {
		if ip, ok := multiaddrIP(addr); ok {
			ips = append(ips, ip)
		}
	}
	return ips
}

func multiaddrIP(addr multiaddr.Multiaddr) (netip.Addr, bool) {
	for _, code := range []int{multiaddr.P_IP4, multiaddr.P_IP6} {
		value, err := addr.ValueForProtocol(code)
		if err != nil {
			continue
		}
		ip, err := netip.ParseAddr(value)
		if err != nil {
			return netip.Addr{}, false
		}
		return ip, true
	}
	return netip.Addr{}, false
}

func (p *P2PService) Connect(addr string) error {
	if strings.Contains(addr, p.Host.ID().String()) {
		return nil
	}

	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("invalid multiaddress: %w", err)
	}

	info, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return fmt.Errorf("failed to get peer info from multiaddress: %w", err)
	}

	if p.Host.Network().Connectedness(info.ID) == network.Connected {
		return nil
	}

	p.Host.Peerstore().AddAddrs(info.ID, info.Addrs, 24*time.Hour)

	if err := p.Host.Connect(p.ctx, *info); err != nil {
		return fmt.Errorf("failed to connect to peer %s: %w", info.ID.String(), err)
	}

	p.log.WithField("peer_id", info.ID.String()).Info("Successfully connected to peer")
	return nil
}

func (p *P2PService) PeerID() string {
	return p.Host.ID().String()
}

func (p *P2PService) ListenAddresses() []string {
	addrs := make([]string, 0)
	for _, addr := range p.Host.Addrs() {
		addrs = append(addrs, addr.String())
	}
	return addrs
}
