package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/joseferreira/stakenet/internal/domain"
	"github.com/joseferreira/stakenet/internal/infra"
	"github.com/joseferreira/stakenet/internal/message"
)

var (
	ErrIncompatibleVersion = errors.New("incompatible version")
	ErrUnexpectedReply     = errors.New("handshake reply without initiation")
	ErrKeyChanged          = errors.New("peer changed its public key")
)

type handshakeState struct {
	nonce         [message.HandshakeRandomnessSize]byte
	sent          bool
	publicKey     *domain.PublicKey
	pendingReply  *domain.Signature
	authenticated bool
}

// Handshakes tracks mutual authentication with every connected peer. Both
// sides send an initiation carrying a nonce and answer the other's nonce
// with a signature. A peer is authenticated once its signature over our
// nonce verifies against the key from its initiation. Streams are not
// ordered relative to each other, so a reply that arrives before the
// initiation is kept until the key is known.
type Handshakes struct {
	mu      sync.Mutex
	key     *domain.PrivateKey
	version domain.Version
	peers   map[peer.ID]*handshakeState
}

func NewHandshakes(key *domain.PrivateKey, version domain.Version) *Handshakes {
	return &Handshakes{
		key:     key,
		version: version,
		peers:   make(map[peer.ID]*handshakeState),
	}
}

func (h *Handshakes) state(p peer.ID) *handshakeState {
	st, ok := h.peers[p]
	if !ok {
		st = &handshakeState{}
		h.peers[p] = st
	}
	return st
}

// Initiate returns our initiation for p, or nil if one was already sent.
func (h *Handshakes) Initiate(p peer.ID) (*message.HandshakeInitiation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initiateLocked(h.state(p))
}

func (h *Handshakes) initiateLocked(st *handshakeState) (*message.HandshakeInitiation, error) {
	if st.sent {
		return nil, nil
	}
	if _, err := rand.Read(st.nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate handshake nonce: %w", err)
	}
	st.sent = true
	return &message.HandshakeInitiation{
		PublicKey:   h.key.PublicKey(),
		RandomBytes: st.nonce,
		Version:     h.version,
	}, nil
}

// HandleInitiation records the peer's key and returns the messages to send
// back: our own initiation when it has not gone out yet, then the reply.
func (h *Handshakes) HandleInitiation(p peer.ID, m *message.HandshakeInitiation) ([]message.Message, error) {
	if !h.version.IsCompatible(m.Version) {
		return nil, fmt.Errorf("%w: ours %s, theirs %s", ErrIncompatibleVersion, h.version, m.Version)
	}
	sig, err := h.key.Sign(m.RandomBytes[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign handshake nonce: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.state(p)
	if st.publicKey != nil && *st.publicKey != m.PublicKey {
		return nil, fmt.Errorf("%w: %s", ErrKeyChanged, p)
	}
	key := m.PublicKey
	st.publicKey = &key

	var out []message.Message
	initiation, err := h.initiateLocked(st)
	if err != nil {
		return nil, err
	}
	if initiation != nil {
		out = append(out, initiation)
	}
	out = append(out, &message.HandshakeReply{Signature: sig})

	if st.pendingReply != nil {
		pending := *st.pendingReply
		st.pendingReply = nil
		if err := h.verifyLocked(st, pending); err != nil {
			return out, err
		}
	}
	return out, nil
}

// HandleReply checks the peer's signature over our nonce. It reports
// whether the peer is now authenticated.
func (h *Handshakes) HandleReply(p peer.ID, m *message.HandshakeReply) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.peers[p]
	if !ok || !st.sent {
		return false, fmt.Errorf("%w: %s", ErrUnexpectedReply, p)
	}
	if st.publicKey == nil {
		sig := m.Signature
		st.pendingReply = &sig
		return false, nil
	}
	if err := h.verifyLocked(st, m.Signature); err != nil {
		return false, err
	}
	return true, nil
}

func (h *Handshakes) verifyLocked(st *handshakeState, sig domain.Signature) error {
	if err := st.publicKey.Verify(st.nonce[:], sig); err != nil {
		return err
	}
	if !st.authenticated {
		st.authenticated = true
		infra.AuthenticatedPeerCount.Inc()
	}
	return nil
}

func (h *Handshakes) IsAuthenticated(p peer.ID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.peers[p]
	return ok && st.authenticated
}

// PublicKey returns the key p announced, if any.
func (h *Handshakes) PublicKey(p peer.ID) (domain.PublicKey, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.peers[p]
	if !ok || st.publicKey == nil {
		return domain.PublicKey{}, false
	}
	return *st.publicKey, true
}

// Authenticated lists every authenticated peer.
func (h *Handshakes) Authenticated() []peer.ID {
	h.mu.Lock()
	defer h.mu.Unlock()
	var peers []peer.ID
	for p, st := range h.peers {
		if st.authenticated {
			peers = append(peers, p)
		}
	}
	return peers
}

func (h *Handshakes) Remove(p peer.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.peers[p]; ok && st.authenticated {
		infra.AuthenticatedPeerCount.Dec()
	}
	delete(h.peers, p)
}
