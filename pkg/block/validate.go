package block

import (
	"errors"
	"fmt"

	"github.com/crankycoin/crankycoin-go/pkg/tx"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// Validation errors.
var (
	ErrNilHeader        = errors.New("block has nil header")
	ErrNoTransactions   = errors.New("block has no transactions")
	ErrBadMerkleRoot    = errors.New("merkle root mismatch")
	ErrBadVersion       = errors.New("unsupported block version")
	ErrZeroTimestamp    = errors.New("block timestamp is zero")
	ErrNoCoinbase       = errors.New("first transaction must be coinbase")
	ErrMultipleCoinbase = errors.New("multiple coinbase transactions in block")
	ErrTooManyTxs       = errors.New("too many transactions in block")
	ErrDuplicateTxHash  = errors.New("duplicate transaction hash in block")
)

// Block version constants.
const (
	CurrentVersion = 1 // The current block version produced by this software.
	MaxVersion     = 1 // Bump when a fork introduces a new block version.
)

// MaxTransactionsPerBlock is a hard structural ceiling on block size,
// independent of the network's configurable miner chunk cap. It bounds the
// cost of validating an attacker-supplied block before any height-aware
// consensus rule is consulted.
const MaxTransactionsPerBlock = 100_000

// Validate checks block structure and internal consistency: the invariants
// checkable from the block alone, with no chain state. Rules that depend on
// chain height or account balances — required difficulty, coinbase amount,
// previous-hash continuity, per-source balance — are enforced by the
// consensus validator, which has access to that state.
func (b *Block) Validate() error {
	if b.Header == nil {
		return ErrNilHeader
	}
	if b.Header.Version < 1 || b.Header.Version > MaxVersion {
		return fmt.Errorf("%w: got %d, want 1..%d", ErrBadVersion, b.Header.Version, MaxVersion)
	}
	if b.Header.Timestamp == 0 {
		return ErrZeroTimestamp
	}
	if len(b.Transactions) == 0 {
		return ErrNoTransactions
	}
	if len(b.Transactions) > MaxTransactionsPerBlock {
		return fmt.Errorf("%w: %d txs, max %d", ErrTooManyTxs, len(b.Transactions), MaxTransactionsPerBlock)
	}

	if b.Height == 0 {
		// The genesis block allocates founding balances directly; every
		// transaction is a tx_type=0 allocation rather than a reward.
		for i, t := range b.Transactions {
			if !t.IsCoinbase() || t.TxType != tx.TxTypeGenesis {
				return fmt.Errorf("genesis tx %d: %w", i, ErrNoCoinbase)
			}
		}
	} else {
		if !b.Transactions[0].IsCoinbase() || b.Transactions[0].TxType != tx.TxTypeCoinbase {
			return ErrNoCoinbase
		}
		for i, t := range b.Transactions[1:] {
			if t.IsCoinbase() {
				return fmt.Errorf("tx %d: %w", i+1, ErrMultipleCoinbase)
			}
		}
	}

	txHashes := make([]types.Hash, len(b.Transactions))
	seen := make(map[types.Hash]int, len(b.Transactions))
	for i, t := range b.Transactions {
		h := t.Hash()
		txHashes[i] = h
		if prev, exists := seen[h]; exists {
			return fmt.Errorf("tx %d: %w: also at index %d", i, ErrDuplicateTxHash, prev)
		}
		seen[h] = i
	}

	expectedRoot := ComputeMerkleRoot(txHashes)
	if b.Header.MerkleRoot != expectedRoot {
		return fmt.Errorf("%w: header=%s computed=%s", ErrBadMerkleRoot, b.Header.MerkleRoot, expectedRoot)
	}

	for i, t := range b.Transactions {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}

	return nil
}
