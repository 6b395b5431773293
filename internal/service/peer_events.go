package service

import (
	"context"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

type peerEvent struct {
	peer      peer.ID
	connected bool
}

// peerEventQueue hands connection events to a MessageHandler from a single
// goroutine in the order libp2p reported them. push never blocks, so it is
// safe to call from a libp2p notifiee.
type peerEventQueue struct {
	mu      sync.Mutex
	pending []peerEvent
	wake    chan struct{}
}

func newPeerEventQueue() *peerEventQueue {
	return &peerEventQueue{wake: make(chan struct{}, 1)}
}

func (q *peerEventQueue) push(ev peerEvent) {
	q.mu.Lock()
	q.pending = append(q.pending, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *peerEventQueue) run(ctx context.Context, handler MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}

		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, ev := range batch {
			if ev.connected {
				handler.PeerConnected(ev.peer)
			} else {
				handler.PeerDisconnected(ev.peer)
			}
		}
	}
}
