// Package block defines the block type, Merkle root computation, and
// structural block validation.
package block

import (
	"time"

	"github.com/crankycoin/crankycoin-go/pkg/tx"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// Block represents a block in the chain.
type Block struct {
	Header       *Header           `json:"header"`
	Height       uint64            `json:"height"`
	Transactions []*tx.Transaction `json:"transactions"`
}

// New builds a block from its height, transactions and previous hash. The
// merkle root is computed immediately; call RecomputeMerkleRoot again if
// Transactions is mutated afterward (e.g. while the miner assembles a
// candidate block).
func New(height uint64, transactions []*tx.Transaction, previousHash types.Hash, timestamp time.Time) *Block {
	b := &Block{
		Header: &Header{
			Version:      CurrentVersion,
			PreviousHash: previousHash,
			Timestamp:    uint64(timestamp.Unix()),
		},
		Height:       height,
		Transactions: transactions,
	}
	b.RecomputeMerkleRoot()
	return b
}

// RecomputeMerkleRoot recomputes and stores the header's merkle root over
// the block's current transactions. Everything in the header besides
// Timestamp and Nonce is meant to be frozen once this has been called.
func (b *Block) RecomputeMerkleRoot() types.Hash {
	hashes := make([]types.Hash, len(b.Transactions))
	for i, t := range b.Transactions {
		hashes[i] = t.Hash()
	}
	root := ComputeMerkleRoot(hashes)
	b.Header.MerkleRoot = root
	return root
}

// Hash returns the block header hash.
func (b *Block) Hash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	return b.Header.Hash()
}

// HashDifficulty returns the block header hash's leading-zero hex count.
func (b *Block) HashDifficulty() int {
	if b.Header == nil {
		return 0
	}
	return b.Header.HashDifficulty()
}

// Coinbase returns the block's coinbase transaction, or nil if the block
// has no transactions.
func (b *Block) Coinbase() *tx.Transaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return b.Transactions[0]
}
