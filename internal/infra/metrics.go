package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PeerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "p2p_peer_count",
		Help: "The current number of connected peers.",
	})

	AuthenticatedPeerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "p2p_authenticated_peer_count",
		Help: "The number of peers that completed the handshake.",
	})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "p2p_messages_sent_total",
		Help: "Messages written to peers, by message type.",
	}, []string{"type"})

	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "p2p_messages_received_total",
		Help: "Messages decoded from peers, by message type.",
	}, []string{"type"})

	DecodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "p2p_decode_failures_total",
		Help: "Frames that could not be decoded, by reason.",
	}, []string{"reason"})

	BytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "p2p_bytes_sent_total",
		Help: "Bytes of encoded messages written to peers.",
	})

	BytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "p2p_bytes_received_total",
		Help: "Bytes of encoded messages read from peers.",
	})

	StoredBlocks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stored_blocks",
		Help: "The number of blocks in the local store.",
	})

	OperationPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "operation_pool_size",
		Help: "The number of operations in the pool.",
	})

	EndorsementPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "endorsement_pool_size",
		Help: "The number of endorsements in the pool.",
	})

	OperationsPerBlock = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "operations_per_block",
		Help:    "The number of operations included in each stored block.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})
)
