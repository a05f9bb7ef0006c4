package consensus

import (
	"errors"
	"fmt"

	"github.com/crankycoin/crankycoin-go/pkg/block"
)

// Block validation failure taxonomy. All are reasons a block was rejected;
// the validator never mutates state, it only judges.
var (
	ErrBadVersion          = errors.New("header version does not match network version")
	ErrInvalidHash         = errors.New("header hash does not meet required difficulty")
	ErrChainContinuity     = errors.New("previous hash does not resolve to a known header at the expected height")
	ErrInvalidCoinbase     = errors.New("coinbase source, type, or amount is invalid")
	ErrReplayedTx          = errors.New("transaction already confirmed on this branch")
	ErrInsufficientBalance = errors.New("source account balance insufficient for amount plus fee")
	ErrInvalidTxSignature  = errors.New("transaction signature does not verify")
)

// Validator runs the block validation pipeline against chain state. It
// never mutates state — ValidateBlock only judges whether a block would be
// acceptable to append.
type Validator struct {
	network Network
	pow     *PoW
	chain   ChainReader
}

// NewValidator creates a block validator bound to the given network rules
// and chain state.
func NewValidator(network Network, chain ChainReader) *Validator {
	return &Validator{network: network, pow: network.PoW(), chain: chain}
}

// ValidateBlock runs the ordered pipeline from spec.md §4.5; the first
// failing step short-circuits the rest.
func (v *Validator) ValidateBlock(blk *block.Block) error {
	if err := blk.Validate(); err != nil {
		return fmt.Errorf("structure: %w", err)
	}

	if blk.Height == 0 {
		// Genesis is trust-anchored by the node's own fixed allocation
		// block, not produced through mining — no difficulty, coinbase
		// reward, or balance rule applies. The chain store separately
		// rejects any peer-supplied genesis that doesn't hash-match ours.
		return nil
	}

	if blk.Header.Version != v.network.Version {
		return fmt.Errorf("%w: got %d, want %d", ErrBadVersion, blk.Header.Version, v.network.Version)
	}

	required, err := v.pow.RequiredDifficulty(blk.Height, v.chain.TimestampAndDifficulty)
	if err != nil {
		return fmt.Errorf("required difficulty: %w", err)
	}
	if blk.HashDifficulty() < required {
		return fmt.Errorf("%w: has %d, need %d", ErrInvalidHash, blk.HashDifficulty(), required)
	}

	_, prevHeight, branchID, ok := v.chain.HeaderByHash(blk.Header.PreviousHash)
	if blk.Height > 0 && (!ok || prevHeight != blk.Height-1) {
		return fmt.Errorf("%w: previous_hash=%s", ErrChainContinuity, blk.Header.PreviousHash)
	}

	coinbase := blk.Coinbase()
	var fees uint64
	for _, t := range blk.Transactions[1:] {
		fees += t.Fee
	}
	expectedReward := v.network.Reward(blk.Height) + fees
	if !coinbase.Source.IsCoinbase() || coinbase.TxType != 1 || coinbase.Amount != expectedReward {
		return fmt.Errorf("%w: amount=%d want=%d", ErrInvalidCoinbase, coinbase.Amount, expectedReward)
	}

	spent := make(map[string]uint64)
	for i, t := range blk.Transactions[1:] {
		if !t.VerifySignature() {
			return fmt.Errorf("tx %d: %w", i+1, ErrInvalidTxSignature)
		}
		if v.chain.IsConfirmed(branchID, t.Hash()) {
			return fmt.Errorf("tx %d: %w: %s", i+1, ErrReplayedTx, t.Hash())
		}
		key := string(t.Source) + ":" + t.Asset
		spent[key] += t.Amount + t.Fee
		if spent[key] > v.chain.Balance(branchID, t.Source, t.Asset) {
			return fmt.Errorf("tx %d: %w: source=%s", i+1, ErrInsufficientBalance, t.Source)
		}
	}

	return nil
}
