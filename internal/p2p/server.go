package p2p

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/crankycoin/crankycoin-go/internal/chain"
	"github.com/crankycoin/crankycoin-go/internal/consensus"
	klog "github.com/crankycoin/crankycoin-go/internal/log"
	"github.com/crankycoin/crankycoin-go/internal/mempool"
	"github.com/crankycoin/crankycoin-go/pkg/tx"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// Server exposes the node-to-node sync protocol over HTTP: peer discovery,
// status handshake, and the block/transaction inventory endpoints the
// Client and Syncer use to talk to other nodes.
type Server struct {
	network  consensus.Network
	chain    *chain.Chain
	pool     *mempool.Pool
	registry *Registry
	bans     *BanManager
	syncer   *Syncer
}

// NewServer creates the peer-protocol HTTP handler set.
func NewServer(network consensus.Network, c *chain.Chain, pool *mempool.Pool, registry *Registry, bans *BanManager, syncer *Syncer) *Server {
	return &Server{network: network, chain: c, pool: pool, registry: registry, bans: bans, syncer: syncer}
}

// Handler builds the ServeMux for the peer protocol's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status/", s.handleStatus)
	mux.HandleFunc("GET /nodes/", s.handleNodes)
	mux.HandleFunc("POST /connect/", s.handleConnect)
	mux.HandleFunc("POST /inbox/", s.handleInbox)
	mux.HandleFunc("GET /blocks/height/{height}", s.handleBlockByHeight)
	mux.HandleFunc("GET /blocks/hash/{hash}", s.handleBlockByHash)
	mux.HandleFunc("GET /blocks/start/{start}/end/{end}", s.handleBlocksRange)
	mux.HandleFunc("GET /transactions/block_hash/{hash}", s.handleTransactionsByBlockHash)
	mux.HandleFunc("GET /transactions/{hash}", s.handleTransaction)
	return s.withBanCheck(mux)
}

// withBanCheck rejects every request from a banned host before it reaches
// a route handler — the closest HTTP analogue to a transport-level
// connection gater.
func (s *Server) withBanCheck(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.RemoteAddr
		if s.bans != nil && s.bans.IsBanned(host) {
			http.Error(w, "banned", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.network)
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"full_nodes": s.registry.List()})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Host string `json:"host"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Host == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	added := s.registry.Add(body.Host, "inbound")
	writeJSON(w, http.StatusAccepted, map[string]bool{"success": added})
}

// handleInbox dispatches a typed peer message. Unknown types are rejected
// with 400, matching the original node's enqueue/reject-on-unknown-type
// behavior.
func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	var env inboxEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	peer := peerIdentity(env.Host, r)

	switch env.Type {
	case MessageBlockHeader, MessageBlockInv:
		var inv blockInvData
		if err := json.Unmarshal(env.Data, &inv); err != nil {
			http.Error(w, "bad block inventory", http.StatusBadRequest)
			return
		}
		hash, err := types.HexToHash(inv.Hash)
		if err != nil {
			http.Error(w, "bad hash", http.StatusBadRequest)
			return
		}
		s.syncer.OnBlockHeaderAnnounced(peer, hash, inv.Height)

	case MessageUnconfirmedTransaction:
		var t tx.Transaction
		if err := json.Unmarshal(env.Data, &t); err != nil {
			http.Error(w, "bad transaction", http.StatusBadRequest)
			return
		}
		s.syncer.OnTransactionReceived(peer, &t)

	case MessageTransactionInv:
		var inv txInvData
		if err := json.Unmarshal(env.Data, &inv); err != nil {
			http.Error(w, "bad transaction inventory", http.StatusBadRequest)
			return
		}
		hash, err := types.HexToHash(inv.Hash)
		if err != nil {
			http.Error(w, "bad hash", http.StatusBadRequest)
			return
		}
		s.syncer.OnTransactionInvReceived(peer, hash)

	default:
		http.Error(w, "unknown message type", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleBlockByHeight(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("height")
	height := s.chain.State().Height
	if raw != "latest" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "bad height", http.StatusBadRequest)
			return
		}
		height = parsed
	}
	b, err := s.chain.GetBlockByHeight(height)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleBlockByHash(w http.ResponseWriter, r *http.Request) {
	hash, err := types.HexToHash(r.PathValue("hash"))
	if err != nil {
		http.Error(w, "bad hash", http.StatusBadRequest)
		return
	}
	b, err := s.chain.GetBlock(hash)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleBlocksRange(w http.ResponseWriter, r *http.Request) {
	start, err1 := strconv.ParseUint(r.PathValue("start"), 10, 64)
	end, err2 := strconv.ParseUint(r.PathValue("end"), 10, 64)
	if err1 != nil || err2 != nil {
		http.Error(w, "bad range", http.StatusBadRequest)
		return
	}
	hashes, err := s.chain.GetHashesRange(start, end)
	if err != nil {
		http.Error(w, "bad range", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]types.Hash{"block_hashes": hashes})
}

// handleTransactionsByBlockHash returns the transaction hashes contained in
// a known block, used by peers reconciling a fork without re-downloading
// full transaction bodies up front.
func (s *Server) handleTransactionsByBlockHash(w http.ResponseWriter, r *http.Request) {
	hash, err := types.HexToHash(r.PathValue("hash"))
	if err != nil {
		http.Error(w, "bad hash", http.StatusBadRequest)
		return
	}
	b, err := s.chain.GetBlock(hash)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	hashes := make([]types.Hash, len(b.Transactions))
	for i, t := range b.Transactions {
		hashes[i] = t.Hash()
	}
	writeJSON(w, http.StatusOK, map[string][]types.Hash{"tx_hashes": hashes})
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	hash, err := types.HexToHash(r.PathValue("hash"))
	if err != nil {
		http.Error(w, "bad hash", http.StatusBadRequest)
		return
	}
	t, ok := s.pool.Get(hash)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.P2P.Error().Err(err).Msg("encode response")
	}
}

// peerIdentity prefers the sender's self-advertised host (as the original
// node's "host" request field does) and falls back to the raw connection
// address when the body omits it.
func peerIdentity(advertised string, r *http.Request) string {
	if advertised != "" {
		return advertised
	}
	return r.RemoteAddr
}
