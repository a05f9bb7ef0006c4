package chain

import (
	"fmt"
	"sync"
	"time"

	"github.com/crankycoin/crankycoin-go/internal/consensus"
	"github.com/crankycoin/crankycoin-go/internal/storage"
	"github.com/crankycoin/crankycoin-go/pkg/block"
	"github.com/crankycoin/crankycoin-go/pkg/tx"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// MaxReorgDepth bounds how far back a branch walk or reorg may reach,
// guarding against pathological or corrupt chain data.
const MaxReorgDepth = 1000

// MaxHashesRange is the server-enforced cap on get_hashes_range span.
const MaxHashesRange = 500

// AppendStatus is the outcome of appending a candidate block to the chain.
type AppendStatus int

const (
	// Applied means the block was valid and is now persisted (whether or
	// not it became the new main-chain tip).
	Applied AppendStatus = iota
	// Orphan means the block's previous_hash is not yet known; the caller
	// may hold it and retry once the parent arrives.
	Orphan
	// Rejected means the block failed validation or is otherwise unusable.
	Rejected
)

func (s AppendStatus) String() string {
	switch s {
	case Applied:
		return "Applied"
	case Orphan:
		return "Orphan"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// AppendResult reports the outcome of Append, including any mempool
// membership changes caused by a reorg.
type AppendResult struct {
	Status AppendStatus
	Reason error

	// Reentering holds transactions that were confirmed on the old main
	// chain but are not in the new one — the mempool should accept them
	// again.
	Reentering []*tx.Transaction
	// Removed holds transactions newly confirmed by this append — the
	// mempool should drop them.
	Removed []*tx.Transaction
}

var (
	ErrGenesisMismatch = fmt.Errorf("genesis block does not match this chain's genesis")
	ErrGenesisReorg     = fmt.Errorf("reorg would replace the genesis block")
)

// Chain is the account-model blockchain state machine: block storage,
// branch tracking, live main-chain balances, and reorg.
type Chain struct {
	mu      sync.Mutex
	store   *Store
	network consensus.Network
	state   *State

	genesisHash types.Hash
	mainBranch  uint64
}

// Open recovers a chain from db, creating the fixed genesis block if the
// store is empty.
func Open(db storage.DB, network consensus.Network, genesisTimestamp time.Time) (*Chain, error) {
	store := NewStore(db)

	tipHash, height, supply, err := store.GetTip()
	if err != nil {
		return nil, fmt.Errorf("recover tip: %w", err)
	}
	mainBranch, err := store.GetMainBranch()
	if err != nil {
		return nil, fmt.Errorf("recover main branch: %w", err)
	}

	c := &Chain{
		store:      store,
		network:    network,
		state:      &State{TipHash: tipHash, Height: height, Supply: supply},
		mainBranch: mainBranch,
	}

	if c.state.IsGenesis() {
		if err := c.initGenesis(genesisTimestamp); err != nil {
			return nil, fmt.Errorf("init genesis: %w", err)
		}
	} else {
		genesisBlk, err := store.GetBlockByHeight(0)
		if err != nil {
			return nil, fmt.Errorf("load genesis: %w", err)
		}
		c.genesisHash = genesisBlk.Hash()
	}

	if _, inProgress := store.GetReorgCheckpoint(); inProgress {
		if err := c.rebuildMainChain(); err != nil {
			return nil, fmt.Errorf("recover from interrupted reorg: %w", err)
		}
	}

	return c, nil
}

func (c *Chain) initGenesis(timestamp time.Time) error {
	genesisBlk := CreateGenesisBlock(timestamp)
	hash := genesisBlk.Hash()

	if err := c.store.PutBlock(genesisBlk, 0); err != nil {
		return fmt.Errorf("store genesis block: %w", err)
	}
	if err := c.store.SetMainHeight(0, hash); err != nil {
		return fmt.Errorf("index genesis height: %w", err)
	}
	if err := c.store.PutBranch(branchRecord{ID: 0, TipHash: hash, Height: 0}); err != nil {
		return fmt.Errorf("index genesis branch: %w", err)
	}

	var supply uint64
	for i, t := range genesisBlk.Transactions {
		if err := c.confirmTx(t, hash, 0, i); err != nil {
			return fmt.Errorf("confirm genesis tx %d: %w", i, err)
		}
		supply += t.Amount
	}

	if err := c.store.SetTip(hash, 0, supply); err != nil {
		return fmt.Errorf("set genesis tip: %w", err)
	}
	if err := c.store.SetMainBranch(0); err != nil {
		return fmt.Errorf("set main branch: %w", err)
	}

	c.genesisHash = hash
	c.mainBranch = 0
	c.state.TipHash = hash
	c.state.Height = 0
	c.state.Supply = supply
	return nil
}

// State returns a snapshot of the current main-chain tip state.
func (c *Chain) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.state
}

// GetTip returns the header at the current main-chain tip.
func (c *Chain) GetTip() (*block.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	blk, err := c.store.GetBlock(c.state.TipHash)
	if err != nil {
		return nil, fmt.Errorf("load tip block: %w", err)
	}
	return blk.Header, nil
}

// GetHeaderByHash returns the header, branch id, and height for any known
// block, regardless of branch.
func (c *Chain) GetHeaderByHash(hash types.Hash) (*block.Header, uint64, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headerByHashLocked(hash)
}

func (c *Chain) headerByHashLocked(hash types.Hash) (*block.Header, uint64, uint64, bool) {
	rec, ok, err := c.store.HeaderRecord(hash)
	if err != nil || !ok {
		return nil, 0, 0, false
	}
	blk, err := c.store.GetBlock(hash)
	if err != nil {
		return nil, 0, 0, false
	}
	return blk.Header, rec.Height, rec.BranchID, true
}

// GetHeaderByHeight returns the main-chain header at height, or false if
// the chain is not yet that tall.
func (c *Chain) GetHeaderByHeight(height uint64) (*block.Header, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	blk, err := c.store.GetBlockByHeight(height)
	if err != nil {
		return nil, false
	}
	return blk.Header, true
}

// GetBlock returns a full block by hash, regardless of branch.
func (c *Chain) GetBlock(hash types.Hash) (*block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.GetBlock(hash)
}

// GetBlockByHeight returns a full main-chain block by height.
func (c *Chain) GetBlockByHeight(height uint64) (*block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.GetBlockByHeight(height)
}

// GetHashesRange returns main-chain block hashes for heights [start, end],
// capped at MaxHashesRange entries.
func (c *Chain) GetHashesRange(start, end uint64) ([]types.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if end < start {
		return nil, fmt.Errorf("invalid range: start=%d end=%d", start, end)
	}
	if end-start+1 > MaxHashesRange {
		end = start + MaxHashesRange - 1
	}
	if end > c.state.Height {
		end = c.state.Height
	}

	var hashes []types.Hash
	for h := start; h <= end; h++ {
		blk, err := c.store.GetBlockByHeight(h)
		if err != nil {
			break
		}
		hashes = append(hashes, blk.Hash())
	}
	return hashes, nil
}

// GetTransactionByHash returns a confirmed main-chain transaction.
func (c *Chain) GetTransactionByHash(hash types.Hash) (*tx.Transaction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	loc, ok, err := c.store.GetTxLocation(hash)
	if err != nil || !ok {
		return nil, false
	}
	blk, err := c.store.GetBlock(loc.BlockHash)
	if err != nil {
		return nil, false
	}
	for _, t := range blk.Transactions {
		if t.Hash() == hash {
			return t, true
		}
	}
	return nil, false
}

// GetTransactionHashesByBlockHash returns the ordered transaction hashes of
// a known block.
func (c *Chain) GetTransactionHashesByBlockHash(hash types.Hash) ([]types.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	blk, err := c.store.GetBlock(hash)
	if err != nil {
		return nil, err
	}
	hashes := make([]types.Hash, len(blk.Transactions))
	for i, t := range blk.Transactions {
		hashes[i] = t.Hash()
	}
	return hashes, nil
}

// GetBalance returns an account's main-chain balance of asset.
func (c *Chain) GetBalance(account types.Account, asset string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.GetBalance(account, asset)
}

// GetTransactionHistory returns every confirmed main-chain transaction
// touching account, oldest first.
func (c *Chain) GetTransactionHistory(account types.Account) ([]*tx.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var history []*tx.Transaction
	prefix := historyPrefix(account)
	err := c.store.db.ForEach(prefix, func(_ []byte, value []byte) error {
		var hash types.Hash
		if len(value) != types.HashSize {
			return nil
		}
		copy(hash[:], value)
		loc, ok, err := c.store.GetTxLocation(hash)
		if err != nil || !ok {
			return nil
		}
		blk, err := c.store.GetBlock(loc.BlockHash)
		if err != nil {
			return nil
		}
		for _, t := range blk.Transactions {
			if t.Hash() == hash {
				history = append(history, t)
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan history for %s: %w", account, err)
	}
	return history, nil
}

// --- consensus.ChainReader ---

// HeaderByHash implements consensus.ChainReader.
func (c *Chain) HeaderByHash(hash types.Hash) (*block.Header, uint64, uint64, bool) {
	return c.GetHeaderByHash(hash)
}

// TimestampAndDifficulty implements consensus.ChainReader, returning the
// main-chain timestamp and hash-difficulty at height.
func (c *Chain) TimestampAndDifficulty(height uint64) (uint64, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timestampAndDifficultyLocked(height)
}

func (c *Chain) timestampAndDifficultyLocked(height uint64) (uint64, int, error) {
	blk, err := c.store.GetBlockByHeight(height)
	if err != nil {
		return 0, 0, fmt.Errorf("height %d: %w", height, err)
	}
	return blk.Header.Timestamp, blk.HashDifficulty(), nil
}

// IsConfirmed implements consensus.ChainReader: whether txHash is already
// included in a block on branchID's ancestry.
func (c *Chain) IsConfirmed(branchID uint64, hash types.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConfirmedLocked(branchID, hash)
}

func (c *Chain) isConfirmedLocked(branchID uint64, hash types.Hash) bool {
	if branchID == c.mainBranch {
		_, ok, err := c.store.GetTxLocation(hash)
		return err == nil && ok
	}
	found := false
	c.walkBranch(branchID, func(blk *block.Block) bool {
		for _, t := range blk.Transactions {
			if t.Hash() == hash {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// Balance implements consensus.ChainReader: an account's confirmed balance
// of asset along branchID's ancestry.
func (c *Chain) Balance(branchID uint64, account types.Account, asset string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balanceLocked(branchID, account, asset)
}

func (c *Chain) balanceLocked(branchID uint64, account types.Account, asset string) uint64 {
	if branchID == c.mainBranch {
		return c.store.GetBalance(account, asset)
	}
	var credits, debits uint64
	c.walkBranch(branchID, func(blk *block.Block) bool {
		for _, t := range blk.Transactions {
			if t.Asset != asset || t.TxType >= tx.TxTypeAssetCreation {
				continue
			}
			if t.Destination == account {
				credits += t.Amount
			}
			if t.Source == account {
				debits += t.Amount + t.Fee
			}
		}
		return true
	})
	if credits < debits {
		return 0
	}
	return credits - debits
}

// unlockedReader adapts Chain's already-locked internal helpers to
// consensus.ChainReader for callers that already hold c.mu, such as
// Append — going through the public methods there would re-lock the
// (non-reentrant) mutex and deadlock.
type unlockedReader struct{ c *Chain }

func (r unlockedReader) HeaderByHash(hash types.Hash) (*block.Header, uint64, uint64, bool) {
	return r.c.headerByHashLocked(hash)
}

func (r unlockedReader) TimestampAndDifficulty(height uint64) (uint64, int, error) {
	return r.c.timestampAndDifficultyLocked(height)
}

func (r unlockedReader) IsConfirmed(branchID uint64, hash types.Hash) bool {
	return r.c.isConfirmedLocked(branchID, hash)
}

func (r unlockedReader) Balance(branchID uint64, account types.Account, asset string) uint64 {
	return r.c.balanceLocked(branchID, account, asset)
}

// walkBranch visits every block of branchID's ancestry, tip to genesis, via
// PreviousHash pointers, stopping early if visit returns false. Used for
// side branches, which have no live incremental balance/tx index — the
// main branch has one and never walks.
func (c *Chain) walkBranch(branchID uint64, visit func(*block.Block) bool) {
	rec, ok, err := c.store.GetBranch(branchID)
	if err != nil || !ok {
		return
	}
	hash := rec.TipHash
	for i := 0; i < MaxReorgDepth*2; i++ {
		blk, err := c.store.GetBlock(hash)
		if err != nil {
			return
		}
		if !visit(blk) {
			return
		}
		if blk.Height == 0 {
			return
		}
		hash = blk.Header.PreviousHash
	}
}

func historyPrefix(account types.Account) []byte {
	return []byte("g/" + string(account) + "/")
}

func historyKey(account types.Account, height uint64, txIndex int) []byte {
	return []byte(fmt.Sprintf("g/%s/%020d/%08d", account, height, txIndex))
}

// confirmTx indexes a confirmed transaction into the main-chain tx index,
// per-account history index, and live balance table.
func (c *Chain) confirmTx(t *tx.Transaction, blockHash types.Hash, height uint64, txIndex int) error {
	hash := t.Hash()
	if err := c.store.PutTxLocation(hash, blockHash, height); err != nil {
		return fmt.Errorf("index tx: %w", err)
	}
	if !t.Source.IsCoinbase() {
		if err := c.store.db.Put(historyKey(t.Source, height, txIndex), hash[:]); err != nil {
			return fmt.Errorf("index source history: %w", err)
		}
	}
	if err := c.store.db.Put(historyKey(t.Destination, height, txIndex), hash[:]); err != nil {
		return fmt.Errorf("index destination history: %w", err)
	}
	if t.TxType >= tx.TxTypeAssetCreation {
		return nil // Asset-creation transactions don't move native balance.
	}
	if !t.Source.IsCoinbase() {
		bal := c.store.GetBalance(t.Source, t.Asset)
		if bal < t.Amount+t.Fee {
			return fmt.Errorf("confirmTx: source %s balance %d underflows by %d", t.Source, bal, t.Amount+t.Fee)
		}
		if err := c.store.SetBalance(t.Source, t.Asset, bal-(t.Amount+t.Fee)); err != nil {
			return fmt.Errorf("debit source: %w", err)
		}
	}
	destBal := c.store.GetBalance(t.Destination, t.Asset)
	return c.store.SetBalance(t.Destination, t.Asset, destBal+t.Amount)
}

// unconfirmTx reverses confirmTx, used when a block leaves the main chain.
func (c *Chain) unconfirmTx(t *tx.Transaction, height uint64, txIndex int) error {
	hash := t.Hash()
	if err := c.store.DeleteTxLocation(hash); err != nil {
		return fmt.Errorf("unindex tx: %w", err)
	}
	if !t.Source.IsCoinbase() {
		if err := c.store.db.Delete(historyKey(t.Source, height, txIndex)); err != nil {
			return fmt.Errorf("unindex source history: %w", err)
		}
	}
	if err := c.store.db.Delete(historyKey(t.Destination, height, txIndex)); err != nil {
		return fmt.Errorf("unindex destination history: %w", err)
	}
	if t.TxType < tx.TxTypeAssetCreation {
		destBal := c.store.GetBalance(t.Destination, t.Asset)
		if destBal < t.Amount {
			return fmt.Errorf("unconfirmTx: destination %s balance %d underflows by %d", t.Destination, destBal, t.Amount)
		}
		if err := c.store.SetBalance(t.Destination, t.Asset, destBal-t.Amount); err != nil {
			return fmt.Errorf("un-credit destination: %w", err)
		}
		if !t.Source.IsCoinbase() {
			bal := c.store.GetBalance(t.Source, t.Asset)
			if err := c.store.SetBalance(t.Source, t.Asset, bal+t.Amount+t.Fee); err != nil {
				return fmt.Errorf("un-debit source: %w", err)
			}
		}
	}
	return nil
}
