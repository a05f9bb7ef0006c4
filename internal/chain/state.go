package chain

import "github.com/crankycoin/crankycoin-go/pkg/types"

// State holds the current main-chain tip state.
type State struct {
	Height  uint64
	TipHash types.Hash
	Supply  uint64 // Total coins ever minted by coinbase transactions.
}

// IsGenesis returns true if no blocks have been processed yet.
func (s *State) IsGenesis() bool {
	return s.Height == 0 && s.TipHash.IsZero()
}
