package chain

import (
	"time"

	"github.com/crankycoin/crankycoin-go/pkg/block"
	"github.com/crankycoin/crankycoin-go/pkg/tx"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// Genesis hard-codes the two founding allocations: distinct compressed
// secp256k1 public keys that predate any wallet this node can derive keys
// for. Changing these would fork every existing chain, so they are
// constants rather than configuration.
const (
	genesisAllocationOne = types.Account("03dd1e57d05d9cab1d8d9b727568ad951ac2d9ecd082bc36f69e021b8427812924")
	genesisAllocationTwo = types.Account("03dd1eff6aa6cfb98d8a93782d7a4f933dbd2cd7d7af72c97349ae21816cfc85ed")
	genesisAllocation    = 500_000
)

// CreateGenesisBlock builds the fixed genesis block: height 0, zero
// previous_hash, and two tx_type=0 allocation transactions paying the
// hard-coded founding accounts.
func CreateGenesisBlock(timestamp time.Time) *block.Block {
	txs := []*tx.Transaction{
		genesisAllocationTx(genesisAllocationOne, timestamp),
		genesisAllocationTx(genesisAllocationTwo, timestamp),
	}
	return block.New(0, txs, types.Hash{}, timestamp)
}

func genesisAllocationTx(destination types.Account, timestamp time.Time) *tx.Transaction {
	return &tx.Transaction{
		Source:      types.CoinbaseSource,
		Destination: destination,
		Amount:      genesisAllocation,
		Fee:         0,
		Timestamp:   timestamp.Unix(),
		TxType:      tx.TxTypeGenesis,
		Asset:       tx.DefaultAsset,
		PrevHash:    "0",
	}
}
