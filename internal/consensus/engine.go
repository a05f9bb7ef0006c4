package consensus

import (
	"github.com/crankycoin/crankycoin-go/pkg/block"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// ChainReader is the read-only chain state the validator needs to check a
// block against consensus rules. Implemented by internal/chain.Chain; kept
// as an interface here so this package never imports chain (chain imports
// consensus, not the other way around).
type ChainReader interface {
	// HeaderByHash returns the header for hash and its height on the
	// branch it belongs to, or ok=false if hash is unknown.
	HeaderByHash(hash types.Hash) (header *block.Header, height uint64, branchID uint64, ok bool)

	// TimestampAndDifficulty returns the timestamp and hash difficulty
	// (leading-zero hex count) of the main-chain block at height, for
	// PoW.RequiredDifficulty's retarget lookback.
	TimestampAndDifficulty(height uint64) (timestamp uint64, difficulty int, err error)

	// IsConfirmed reports whether a transaction hash is already included
	// in a block on the given branch (replay protection).
	IsConfirmed(branchID uint64, hash types.Hash) bool

	// Balance returns an account's confirmed balance of asset on the given
	// branch.
	Balance(branchID uint64, account types.Account, asset string) uint64
}

// Network holds the consensus-critical parameters every node must agree on.
// Two nodes with differing Network values cannot usefully peer: their
// blocks would fail each other's validation, so a peer handshake compares
// this struct verbatim (see internal/p2p's status check).
type Network struct {
	Version                  uint32 `json:"version"`
	InitialCoinsPerBlock     uint64 `json:"initial_coins_per_block"`
	HalvingFrequency         uint64 `json:"halving_frequency"`
	MaxTransactionsPerBlock  int    `json:"max_transactions_per_block"`
	MinimumHashDifficulty    int    `json:"minimum_hash_difficulty"`
	TargetTimePerBlock       int64  `json:"target_time_per_block"`
	DifficultyAdjustmentSpan uint64 `json:"difficulty_adjustment_span"`
	SignificantDigits        uint   `json:"significant_digits"`
}

// PoW builds the PoW engine described by these network parameters.
func (n Network) PoW() *PoW {
	return NewPoW(n.MinimumHashDifficulty, n.TargetTimePerBlock, n.DifficultyAdjustmentSpan)
}

// Reward computes the coinbase reward for height under this network.
func (n Network) Reward(height uint64) uint64 {
	return Reward(height, n.InitialCoinsPerBlock, n.HalvingFrequency, n.SignificantDigits)
}
