package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/joseferreira/stakenet/internal/domain"
	"github.com/joseferreira/stakenet/internal/persistence"
	"github.com/joseferreira/stakenet/internal/service"
)

// maxOperationBody bounds POST /operations; a hex operation is far smaller.
const maxOperationBody = 64 << 10

// NetworkInfo is what the API reads from the transport.
type NetworkInfo interface {
	PeerID() string
	ListenAddresses() []string
	ConnectedPeerIPs() []netip.Addr
}

// NodeInfoResponse defines the structure for the node information response.
type NodeInfoResponse struct {
	PeerID             string   `json:"peer_id"`
	ListenAddresses    []string `json:"listen_addresses"`
	AuthenticatedPeers int      `json:"authenticated_peers"`
	PooledOperations   int      `json:"pooled_operations"`
	PooledEndorsements int      `json:"pooled_endorsements"`
}

type PeersResponse struct {
	Connected     []string `json:"connected"`
	Authenticated []string `json:"authenticated"`
	Known         []string `json:"known"`
}

type BlockResponse struct {
	ID                  string   `json:"id"`
	Creator             string   `json:"creator"`
	Period              uint64   `json:"period"`
	Thread              uint8    `json:"thread"`
	Parents             []string `json:"parents"`
	OperationMerkleRoot string   `json:"operation_merkle_root"`
	Endorsements        int      `json:"endorsements"`
	Operations          []string `json:"operations"`
}

type OperationResponse struct {
	OperationID string `json:"operation_id"`
}

type Server struct {
	node       *service.NodeService
	network    NetworkInfo
	listenAddr string
	log        *logrus.Entry
}

func NewServer(listenAddr string, node *service.NodeService, network NetworkInfo, logger *logrus.Logger) *Server {
	return &Server{
		listenAddr: listenAddr,
		node:       node,
		network:    network,
		log:        logger.WithField("service", "api"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /node/info", s.nodeInfoHandler)
	mux.HandleFunc("GET /peers", s.peersHandler)
	mux.HandleFunc("GET /block/{id}", s.getBlockHandler)
	mux.HandleFunc("POST /operations", s.operationsHandler)
	return mux
}

func (s *Server) Start() error {
	s.log.WithField("address", s.listenAddr).Info("API server running")
	return http.ListenAndServe(s.listenAddr, s.Handler())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("Failed to write response")
	}
}

func (s *Server) nodeInfoHandler(w http.ResponseWriter, r *http.Request) {
	ops, endorsements := s.node.Pool.Sizes()
	s.writeJSON(w, http.StatusOK, NodeInfoResponse{
		PeerID:             s.network.PeerID(),
		ListenAddresses:    s.network.ListenAddresses(),
		AuthenticatedPeers: len(s.node.Handshakes.Authenticated()),
		PooledOperations:   ops,
		PooledEndorsements: endorsements,
	})
}

func (s *Server) peersHandler(w http.ResponseWriter, r *http.Request) {
	response := PeersResponse{
		Connected:     addrStrings(s.network.ConnectedPeerIPs()),
		Authenticated: make([]string, 0),
		Known:         addrStrings(s.node.KnownPeers()),
	}
	for _, p := range s.node.Handshakes.Authenticated() {
		response.Authenticated = append(response.Authenticated, p.String())
	}
	s.writeJSON(w, http.StatusOK, response)
}

func addrStrings(addrs []netip.Addr) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

func (s *Server) getBlockHandler(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseBlockID(r.PathValue("id"))
	if err != nil {
		s.log.WithError(err).Warn("Invalid block id")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Invalid block id: %v", err)
		return
	}

	block, err := s.node.Blocks.GetBlock(id)
	if errors.Is(err, persistence.ErrBlockNotFound) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "Block not found")
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("block_id", id.String()).Error("Failed to load block")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	opIDs, err := block.OperationIDs()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	content := block.Header.Content
	response := BlockResponse{
		ID:                  id.String(),
		Creator:             content.Creator.String(),
		Period:              content.Slot.Period,
		Thread:              content.Slot.Thread,
		Parents:             make([]string, 0, len(content.Parents)),
		OperationMerkleRoot: content.OperationMerkleRoot.String(),
		Endorsements:        len(content.Endorsements),
		Operations:          make([]string, 0, len(opIDs)),
	}
	for _, parent := range content.Parents {
		response.Parents = append(response.Parents, parent.String())
	}
	for _, opID := range opIDs {
		response.Operations = append(response.Operations, opID.String())
	}
	s.writeJSON(w, http.StatusOK, response)
}

// operationsHandler takes a hex encoded compact operation, adds it to the
// pool and announces it to peers.
func (s *Server) operationsHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxOperationBody+1))
	if err != nil || len(body) > maxOperationBody {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "Error reading request body")
		return
	}

	raw, err := hex.DecodeString(strings.TrimSpace(string(body)))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Invalid hex: %v", err)
		return
	}

	op, n, err := domain.UnmarshalOperation(raw)
	if err == nil && n != len(raw) {
		err = fmt.Errorf("%d trailing bytes", len(raw)-n)
	}
	if err != nil {
		s.log.WithError(err).Warn("Invalid operation submitted")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Invalid operation: %v", err)
		return
	}

	id, err := s.node.AddOperation(op)
	if err != nil {
		s.log.WithError(err).Warn("Operation rejected")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Operation rejected: %v", err)
		return
	}

	s.log.WithField("operation_id", id.String()).Info("Operation submitted")
	s.writeJSON(w, http.StatusCreated, OperationResponse{OperationID: id.String()})
}
