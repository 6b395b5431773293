package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/joseferreira/stakenet/internal/message"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []peerEvent
}

func (h *recordingHandler) HandleMessage(message.Message, peer.ID) error { return nil }

func (h *recordingHandler) PeerConnected(p peer.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, peerEvent{peer: p, connected: true})
}

func (h *recordingHandler) PeerDisconnected(p peer.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, peerEvent{peer: p, connected: false})
}

func (h *recordingHandler) recorded() []peerEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]peerEvent(nil), h.events...)
}

func TestPeerEventsDeliveredInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := newPeerEventQueue()
	handler := &recordingHandler{}

	var want []peerEvent
	for i := 0; i < 100; i++ {
		want = append(want,
			peerEvent{peer: "remote", connected: true},
			peerEvent{peer: "remote", connected: false},
		)
	}
	for _, ev := range want[:50] {
		queue.push(ev)
	}
	go queue.run(ctx, handler)
	for _, ev := range want[50:] {
		queue.push(ev)
	}

	require.Eventually(t, func() bool {
		return len(handler.recorded()) == len(want)
	}, time.Second, time.Millisecond)
	require.Equal(t, want, handler.recorded())
}

func TestPeerEventsFeedConnectionCount(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := newTestNode(t)
	n.authenticate(t, "remote")

	queue := newPeerEventQueue()
	go queue.run(ctx, n)

	queue.push(peerEvent{peer: "remote", connected: true})
	queue.push(peerEvent{peer: "remote", connected: false})
	queue.push(peerEvent{peer: "other", connected: true})

	// the event for "other" is handled last
	require.Eventually(t, func() bool {
		return len(n.transport.take("other")) == 1
	}, time.Second, time.Millisecond)
	require.True(t, n.Handshakes.IsAuthenticated("remote"))
}
