package rpc

import (
	"github.com/crankycoin/crankycoin-go/pkg/block"
	"github.com/crankycoin/crankycoin-go/pkg/tx"
)

// txDict wraps a transaction with its precomputed hash, matching the
// "tx dict" shape spec.md's external interface calls for.
type txDict struct {
	Hash string `json:"hash"`
	*tx.Transaction
}

func newTxDict(t *tx.Transaction) txDict {
	return txDict{Hash: t.Hash().String(), Transaction: t}
}

// headerDict wraps a block header with its precomputed hash and height.
type headerDict struct {
	Hash   string        `json:"hash"`
	Height uint64        `json:"height"`
	Header *block.Header `json:"header"`
}

func newHeaderDict(height uint64, h *block.Header) headerDict {
	return headerDict{Hash: h.Hash().String(), Height: height, Header: h}
}

// submitResult is the response body for POST /transactions/.
type submitResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}
