package rpc

import (
	"context"
	"encoding/json"
	"net/http"

	klog "github.com/crankycoin/crankycoin-go/internal/log"
	"github.com/crankycoin/crankycoin-go/pkg/tx"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.RPC.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.network)
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	var hosts []string
	if s.registry != nil {
		hosts = s.registry.List()
	}
	writeJSON(w, http.StatusOK, map[string][]string{"full_nodes": hosts})
}

func (s *Server) handleAddressBalance(w http.ResponseWriter, r *http.Request) {
	account := types.Account(r.PathValue("addr"))
	if err := account.Validate(); err != nil {
		http.Error(w, "bad address", http.StatusBadRequest)
		return
	}
	balance := s.chain.GetBalance(account, tx.DefaultAsset)
	writeJSON(w, http.StatusOK, balance)
}

func (s *Server) handleAddressTransactions(w http.ResponseWriter, r *http.Request) {
	account := types.Account(r.PathValue("addr"))
	if err := account.Validate(); err != nil {
		http.Error(w, "bad address", http.StatusBadRequest)
		return
	}
	history, err := s.chain.GetTransactionHistory(account)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	dicts := make([]txDict, len(history))
	for i, t := range history {
		dicts[i] = newTxDict(t)
	}
	writeJSON(w, http.StatusOK, dicts)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	hash, err := types.HexToHash(r.PathValue("hash"))
	if err != nil {
		http.Error(w, "bad hash", http.StatusBadRequest)
		return
	}
	t, ok := s.chain.GetTransactionByHash(hash)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newTxDict(t))
}

func (s *Server) handleUnconfirmedList(w http.ResponseWriter, r *http.Request) {
	txs := s.pool.IterAll()
	dicts := make([]txDict, len(txs))
	for i, t := range txs {
		dicts[i] = newTxDict(t)
	}
	writeJSON(w, http.StatusOK, dicts)
}

func (s *Server) handleUnconfirmedCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Count())
}

func (s *Server) handleUnconfirmedByHash(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, newTxDict(t))
}

// handleSubmitTransaction admits a client-submitted transaction into the
// mempool and, once accepted, announces it to known peers. It never blocks
// on gossip — only admission determines the response status.
func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Transaction *tx.Transaction `json:"transaction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Transaction == nil {
		writeJSON(w, http.StatusNotAcceptable, submitResult{Success: false, Reason: "malformed transaction body"})
		return
	}

	added, err := s.pool.Push(body.Transaction)
	if err != nil {
		writeJSON(w, http.StatusNotAcceptable, submitResult{Success: false, Reason: err.Error()})
		return
	}
	if !added {
		writeJSON(w, http.StatusNotAcceptable, submitResult{Success: false, Reason: "transaction already pending"})
		return
	}

	if s.registry != nil && s.peerClient != nil {
		hash := body.Transaction.Hash()
		for _, host := range s.registry.List() {
			go s.announceTransaction(host, hash)
		}
	}

	writeJSON(w, http.StatusOK, submitResult{Success: true})
}

// announceTransaction notifies a single peer that a transaction has entered
// this node's mempool, letting the peer decide whether to fetch it.
func (s *Server) announceTransaction(host string, hash types.Hash) {
	if err := s.peerClient.AnnounceTransaction(context.Background(), host, hash); err != nil {
		s.logger.Debug().Err(err).Str("peer", host).Str("tx", hash.String()).Msg("announce transaction")
	}
}
