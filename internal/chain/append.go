package chain

import (
	"fmt"

	"github.com/crankycoin/crankycoin-go/internal/consensus"
	"github.com/crankycoin/crankycoin-go/pkg/block"
	"github.com/crankycoin/crankycoin-go/pkg/tx"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// Append validates blk against the rules in effect for the branch it
// extends and, on success, persists it. See AppendStatus for the possible
// outcomes; a reorg is triggered automatically when a non-main branch
// overtakes the current main chain in height.
func (c *Chain) Append(blk *block.Block) (AppendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if blk == nil || blk.Header == nil {
		return AppendResult{Status: Rejected, Reason: fmt.Errorf("nil block or header")}, nil
	}
	hash := blk.Hash()

	if known, err := c.store.HasBlock(hash); err != nil {
		return AppendResult{}, fmt.Errorf("check known: %w", err)
	} else if known {
		return AppendResult{Status: Applied}, nil
	}

	if blk.Height == 0 {
		if hash != c.genesisHash {
			return AppendResult{Status: Rejected, Reason: ErrGenesisMismatch}, nil
		}
		return AppendResult{Status: Applied}, nil
	}

	_, prevHeight, prevBranch, ok := c.headerByHashLocked(blk.Header.PreviousHash)
	if !ok {
		return AppendResult{Status: Orphan}, nil
	}
	if blk.Height != prevHeight+1 {
		return AppendResult{Status: Rejected, Reason: fmt.Errorf("height %d does not follow parent height %d", blk.Height, prevHeight)}, nil
	}

	branchID, forkHeight, err := c.resolveBranch(prevBranch, blk.Header.PreviousHash, prevHeight)
	if err != nil {
		return AppendResult{}, fmt.Errorf("resolve branch: %w", err)
	}

	validator := consensus.NewValidator(c.network, unlockedReader{c})
	if err := validator.ValidateBlock(blk); err != nil {
		return AppendResult{Status: Rejected, Reason: err}, nil
	}

	if err := c.store.PutBlock(blk, branchID); err != nil {
		return AppendResult{}, fmt.Errorf("store block: %w", err)
	}
	if err := c.store.PutBranch(branchRecord{
		ID:         branchID,
		ParentID:   prevBranch,
		ForkHeight: forkHeight,
		TipHash:    hash,
		Height:     blk.Height,
	}); err != nil {
		return AppendResult{}, fmt.Errorf("update branch record: %w", err)
	}

	if branchID == c.mainBranch {
		if err := c.extendMainChain(blk, hash); err != nil {
			return AppendResult{}, fmt.Errorf("extend main chain: %w", err)
		}
		return AppendResult{Status: Applied, Removed: nonCoinbaseTxs(blk)}, nil
	}

	if blk.Height > c.state.Height {
		result, err := c.reorgTo(branchID, hash)
		if err != nil {
			return AppendResult{}, fmt.Errorf("reorg: %w", err)
		}
		return result, nil
	}

	return AppendResult{Status: Applied}, nil
}

// resolveBranch decides which branch id a block whose parent is
// (prevBranch, prevHash, prevHeight) belongs to: it extends prevBranch if
// prevHash is still that branch's current tip, otherwise the block forks a
// new branch rooted at prevHash.
func (c *Chain) resolveBranch(prevBranch uint64, prevHash types.Hash, prevHeight uint64) (branchID uint64, forkHeight uint64, err error) {
	rec, ok, err := c.store.GetBranch(prevBranch)
	if err != nil {
		return 0, 0, err
	}
	if ok && rec.TipHash == prevHash {
		return prevBranch, rec.ForkHeight, nil
	}
	id, err := c.store.NextBranchID()
	if err != nil {
		return 0, 0, err
	}
	return id, prevHeight, nil
}

// extendMainChain applies blk directly onto the live main-chain indexes:
// height index, confirmed-tx index, balance table, tip, and supply.
func (c *Chain) extendMainChain(blk *block.Block, hash types.Hash) error {
	if err := c.store.SetMainHeight(blk.Height, hash); err != nil {
		return fmt.Errorf("index height: %w", err)
	}
	var minted uint64
	for i, t := range blk.Transactions {
		if err := c.confirmTx(t, hash, blk.Height, i); err != nil {
			return fmt.Errorf("confirm tx %d: %w", i, err)
		}
		if t.Source.IsCoinbase() {
			minted += t.Amount
		}
	}
	newSupply := c.state.Supply + minted
	if err := c.store.SetTip(hash, blk.Height, newSupply); err != nil {
		return fmt.Errorf("set tip: %w", err)
	}
	c.state.TipHash = hash
	c.state.Height = blk.Height
	c.state.Supply = newSupply
	return nil
}

// nonCoinbaseTxs returns blk's transactions excluding the reward/allocation
// transaction, which was never a mempool candidate.
func nonCoinbaseTxs(blk *block.Block) []*tx.Transaction {
	if len(blk.Transactions) == 0 {
		return nil
	}
	out := make([]*tx.Transaction, 0, len(blk.Transactions)-1)
	for _, t := range blk.Transactions {
		if t.Source.IsCoinbase() {
			continue
		}
		out = append(out, t)
	}
	return out
}
