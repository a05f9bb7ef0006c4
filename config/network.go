package config

import (
	"fmt"
	"time"

	"github.com/crankycoin/crankycoin-go/internal/consensus"
)

// Genesis timestamps are fixed per network so every node computes the
// identical genesis block hash. Pick once, never change — altering either
// would fork the network from every existing chain.
var (
	mainnetGenesisTimestamp = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	testnetGenesisTimestamp = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// NetworkParams returns the consensus-critical parameter set for network.
// Two nodes must agree on these exactly to usefully peer; see
// consensus.Network's own doc comment.
func NetworkParams(network NetworkType) (consensus.Network, error) {
	switch network {
	case Mainnet:
		return consensus.Network{
			Version:                  1,
			InitialCoinsPerBlock:     50_00000000, // 50 coins, 8 decimal places
			HalvingFrequency:         210_000,
			MaxTransactionsPerBlock:  2_000,
			MinimumHashDifficulty:    4,
			TargetTimePerBlock:       600, // 10 minutes
			DifficultyAdjustmentSpan: 2016,
			SignificantDigits:        8,
		}, nil
	case Testnet:
		return consensus.Network{
			Version:                  1,
			InitialCoinsPerBlock:     50_00000000,
			HalvingFrequency:         210_000,
			MaxTransactionsPerBlock:  2_000,
			MinimumHashDifficulty:    1,
			TargetTimePerBlock:       60, // 1 minute, faster blocks for testing
			DifficultyAdjustmentSpan: 144,
			SignificantDigits:        8,
		}, nil
	default:
		return consensus.Network{}, fmt.Errorf("unknown network %q", network)
	}
}

// GenesisTimestamp returns the fixed genesis block timestamp for network.
func GenesisTimestamp(network NetworkType) (time.Time, error) {
	switch network {
	case Mainnet:
		return mainnetGenesisTimestamp, nil
	case Testnet:
		return testnetGenesisTimestamp, nil
	default:
		return time.Time{}, fmt.Errorf("unknown network %q", network)
	}
}
