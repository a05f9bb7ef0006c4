package chain

import (
	"fmt"

	"github.com/crankycoin/crankycoin-go/pkg/block"
	"github.com/crankycoin/crankycoin-go/pkg/tx"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// collectBranch walks backward from tipHash via previous_hash pointers
// until it reaches a block that is itself the current main-chain block at
// that height (the fork point) — or genesis, which is always shared.
// Returns the blocks exclusive to the new branch in ascending height order,
// and the height of the shared ancestor.
func (c *Chain) collectBranch(tipHash types.Hash) ([]*block.Block, uint64, error) {
	var branch []*block.Block
	hash := tipHash
	var forkHeight uint64

	for {
		blk, err := c.store.GetBlock(hash)
		if err != nil {
			return nil, 0, fmt.Errorf("load block %s: %w", hash, err)
		}

		if blk.Height == 0 {
			if blk.Hash() != c.genesisHash {
				return nil, 0, ErrGenesisReorg
			}
			forkHeight = 0
			break
		}

		mainAtHeight, err := c.store.GetBlockByHeight(blk.Height)
		if err == nil && mainAtHeight.Hash() == hash {
			forkHeight = blk.Height
			break // blk is the shared ancestor; it is not part of the new branch.
		}

		branch = append(branch, blk)
		if len(branch) > MaxReorgDepth {
			return nil, 0, fmt.Errorf("branch exceeds max reorg depth of %d", MaxReorgDepth)
		}
		hash = blk.Header.PreviousHash
	}

	for i, j := 0, len(branch)-1; i < j; i, j = i+1, j-1 {
		branch[i], branch[j] = branch[j], branch[i]
	}
	return branch, forkHeight, nil
}

// reorgTo switches the main chain to newBranchID, whose tip is newTipHash.
// It reverts main-chain blocks down to the common ancestor, then replays
// the new branch's blocks onto the live indexes.
func (c *Chain) reorgTo(newBranchID uint64, newTipHash types.Hash) (AppendResult, error) {
	newBranch, forkHeight, err := c.collectBranch(newTipHash)
	if err != nil {
		return AppendResult{}, fmt.Errorf("collect branch: %w", err)
	}

	if err := c.store.PutReorgCheckpoint(forkHeight); err != nil {
		return AppendResult{}, fmt.Errorf("write reorg checkpoint: %w", err)
	}

	var reentering []*tx.Transaction
	for h := c.state.Height; h > forkHeight; h-- {
		blk, err := c.store.GetBlockByHeight(h)
		if err != nil {
			return AppendResult{}, fmt.Errorf("load old main block at height %d: %w", h, err)
		}
		for i, t := range blk.Transactions {
			if err := c.unconfirmTx(t, h, i); err != nil {
				return AppendResult{}, fmt.Errorf("revert tx at height %d: %w", h, err)
			}
			if !t.Source.IsCoinbase() {
				reentering = append(reentering, t)
			}
		}
		if err := c.store.DeleteMainHeight(h); err != nil {
			return AppendResult{}, fmt.Errorf("unindex height %d: %w", h, err)
		}
		if h > 0 {
			c.state.Supply -= coinbaseAmount(blk)
		}
	}

	var removed []*tx.Transaction
	newBranchTxs := make(map[types.Hash]bool)
	for _, blk := range newBranch {
		hash := blk.Hash()
		if err := c.store.SetMainHeight(blk.Height, hash); err != nil {
			return AppendResult{}, fmt.Errorf("index new main height %d: %w", blk.Height, err)
		}
		for i, t := range blk.Transactions {
			if err := c.confirmTx(t, hash, blk.Height, i); err != nil {
				return AppendResult{}, fmt.Errorf("confirm tx at height %d: %w", blk.Height, err)
			}
			newBranchTxs[t.Hash()] = true
			if !t.Source.IsCoinbase() {
				removed = append(removed, t)
			}
		}
		c.state.Supply += coinbaseAmount(blk)
	}

	newTip := newBranch[len(newBranch)-1]
	c.state.TipHash = newTip.Hash()
	c.state.Height = newTip.Height
	if err := c.store.SetTip(c.state.TipHash, c.state.Height, c.state.Supply); err != nil {
		return AppendResult{}, fmt.Errorf("set tip: %w", err)
	}
	if err := c.store.SetMainBranch(newBranchID); err != nil {
		return AppendResult{}, fmt.Errorf("set main branch: %w", err)
	}
	c.mainBranch = newBranchID

	if err := c.store.DeleteReorgCheckpoint(); err != nil {
		return AppendResult{}, fmt.Errorf("clear reorg checkpoint: %w", err)
	}

	var filteredReentering []*tx.Transaction
	for _, t := range reentering {
		if !newBranchTxs[t.Hash()] {
			filteredReentering = append(filteredReentering, t)
		}
	}

	return AppendResult{Status: Applied, Reentering: filteredReentering, Removed: removed}, nil
}

func coinbaseAmount(blk *block.Block) uint64 {
	var total uint64
	for _, t := range blk.Transactions {
		if t.Source.IsCoinbase() {
			total += t.Amount
		}
	}
	return total
}

// rebuildMainChain recovers from a crash mid-reorg by recomputing the
// entire main-chain balance table and tx index from genesis through the
// current persisted tip height. It is the same technique the teacher falls
// back to when undo data is unavailable, promoted here to the sole
// recovery path since the account-balance model has no per-block undo
// record to replay instead.
func (c *Chain) rebuildMainChain() error {
	tip, height, _, err := c.store.GetTip()
	if err != nil {
		return fmt.Errorf("read tip: %w", err)
	}
	if tip.IsZero() {
		return c.store.DeleteReorgCheckpoint()
	}

	for _, prefix := range [][]byte{prefixBalance, prefixTx, []byte("g/")} {
		var stale [][]byte
		if err := c.store.db.ForEach(prefix, func(key, _ []byte) error {
			stale = append(stale, append([]byte{}, key...))
			return nil
		}); err != nil {
			return fmt.Errorf("scan stale index under %s: %w", prefix, err)
		}
		for _, key := range stale {
			if err := c.store.db.Delete(key); err != nil {
				return fmt.Errorf("clear stale index entry: %w", err)
			}
		}
	}

	var supply uint64
	for h := uint64(0); h <= height; h++ {
		blk, err := c.store.GetBlockByHeight(h)
		if err != nil {
			return fmt.Errorf("load block at height %d: %w", h, err)
		}
		hash := blk.Hash()
		for i, t := range blk.Transactions {
			if err := c.confirmTx(t, hash, h, i); err != nil {
				return fmt.Errorf("replay tx at height %d: %w", h, err)
			}
		}
		supply += coinbaseAmount(blk)
	}

	c.state.Supply = supply
	if err := c.store.SetTip(tip, height, supply); err != nil {
		return fmt.Errorf("set tip after rebuild: %w", err)
	}
	return c.store.DeleteReorgCheckpoint()
}
