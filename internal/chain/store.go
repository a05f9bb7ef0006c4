// Package chain implements the account-balance blockchain state machine:
// block storage, branch/fork tracking, balance accounting, and reorg.
package chain

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/crankycoin/crankycoin-go/internal/storage"
	"github.com/crankycoin/crankycoin-go/pkg/block"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

var (
	prefixBlock   = []byte("b/") // hash -> block JSON
	prefixHeader  = []byte("i/") // hash -> headerRecord JSON (height, branch, on every known block)
	prefixHeight  = []byte("h/") // height (8 BE) -> hash, MAIN CHAIN ONLY
	prefixTx      = []byte("x/") // tx hash -> txLocation JSON, MAIN CHAIN ONLY
	prefixBalance = []byte("a/") // account:asset -> uint64 (8 BE), MAIN CHAIN ONLY
	prefixBranch  = []byte("f/") // branch id (8 BE) -> branchRecord JSON

	keyTipHash         = []byte("tip_hash")
	keyTipHeight       = []byte("tip_height")
	keySupply          = []byte("supply")
	keyMainBranch      = []byte("main_branch")
	keyNextBranch      = []byte("next_branch")
	keyReorgCheckpoint = []byte("reorg_checkpoint")
)

// headerRecord is the minimal per-block index entry kept for every block
// this node has ever seen, on any branch.
type headerRecord struct {
	Height   uint64     `json:"height"`
	BranchID uint64     `json:"branch_id"`
	PrevHash types.Hash `json:"prev_hash"`
}

// txLocation records where a confirmed (main-chain) transaction lives.
type txLocation struct {
	Height    uint64     `json:"height"`
	BlockHash types.Hash `json:"block_hash"`
}

// branchRecord describes one branch of the block tree. Branch 0 is always
// the chain containing genesis; it is not necessarily the main branch
// forever, but genesis itself can never be reorged away.
type branchRecord struct {
	ID         uint64     `json:"id"`
	ParentID   uint64     `json:"parent_id"`
	ForkHeight uint64     `json:"fork_height"` // height of the last block shared with the parent branch
	TipHash    types.Hash `json:"tip_hash"`
	Height     uint64     `json:"height"`
}

// Store persists blocks, the header/branch index, the main-chain height and
// transaction indexes, and the live main-chain balance table.
type Store struct {
	db storage.DB
}

// NewStore wraps db with the chain's key layout.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

func heightKey(height uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, height)
	return b
}

func branchKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func balanceKey(account types.Account, asset string) []byte {
	return []byte(string(account) + ":" + asset)
}

// PutBlock persists a block's body and header index entry. It does not
// touch the main-chain height/tx indexes or balances — callers update those
// explicitly when a block joins the main chain.
func (s *Store) PutBlock(blk *block.Block, branchID uint64) error {
	hash := blk.Hash()
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}
	if err := s.db.Put(append(append([]byte{}, prefixBlock...), hash[:]...), data); err != nil {
		return fmt.Errorf("put block: %w", err)
	}
	rec := headerRecord{Height: blk.Height, BranchID: branchID, PrevHash: blk.Header.PreviousHash}
	recData, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal header record: %w", err)
	}
	if err := s.db.Put(append(append([]byte{}, prefixHeader...), hash[:]...), recData); err != nil {
		return fmt.Errorf("put header record: %w", err)
	}
	return nil
}

// GetBlock loads a block by hash, regardless of which branch it belongs to.
func (s *Store) GetBlock(hash types.Hash) (*block.Block, error) {
	data, err := s.db.Get(append(append([]byte{}, prefixBlock...), hash[:]...))
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", hash, err)
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("unmarshal block %s: %w", hash, err)
	}
	return &blk, nil
}

// HasBlock reports whether a block with the given hash is known.
func (s *Store) HasBlock(hash types.Hash) (bool, error) {
	return s.db.Has(append(append([]byte{}, prefixBlock...), hash[:]...))
}

// HeaderRecord returns the height/branch/prev-hash index entry for a known
// block hash.
func (s *Store) HeaderRecord(hash types.Hash) (headerRecord, bool, error) {
	data, err := s.db.Get(append(append([]byte{}, prefixHeader...), hash[:]...))
	if err != nil {
		return headerRecord{}, false, nil
	}
	var rec headerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return headerRecord{}, false, fmt.Errorf("unmarshal header record %s: %w", hash, err)
	}
	return rec, true, nil
}

// GetBlockByHeight loads the main-chain block at height.
func (s *Store) GetBlockByHeight(height uint64) (*block.Block, error) {
	hashData, err := s.db.Get(append(append([]byte{}, prefixHeight...), heightKey(height)...))
	if err != nil {
		return nil, fmt.Errorf("height %d: %w", height, err)
	}
	var hash types.Hash
	copy(hash[:], hashData)
	return s.GetBlock(hash)
}

// SetMainHeight indexes hash as the main-chain block at height.
func (s *Store) SetMainHeight(height uint64, hash types.Hash) error {
	return s.db.Put(append(append([]byte{}, prefixHeight...), heightKey(height)...), hash[:])
}

// DeleteMainHeight removes the main-chain height index entry, used when a
// reorg shortens the active branch below a previously indexed height.
func (s *Store) DeleteMainHeight(height uint64) error {
	return s.db.Delete(append(append([]byte{}, prefixHeight...), heightKey(height)...))
}

// PutTxLocation indexes a confirmed (main-chain) transaction.
func (s *Store) PutTxLocation(txHash, blockHash types.Hash, height uint64) error {
	loc := txLocation{Height: height, BlockHash: blockHash}
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("marshal tx location: %w", err)
	}
	return s.db.Put(append(append([]byte{}, prefixTx...), txHash[:]...), data)
}

// GetTxLocation looks up a confirmed transaction's block location.
func (s *Store) GetTxLocation(txHash types.Hash) (txLocation, bool, error) {
	data, err := s.db.Get(append(append([]byte{}, prefixTx...), txHash[:]...))
	if err != nil {
		return txLocation{}, false, nil
	}
	var loc txLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return txLocation{}, false, fmt.Errorf("unmarshal tx location: %w", err)
	}
	return loc, true, nil
}

// DeleteTxLocation removes a confirmed transaction index entry, used when a
// block leaves the main chain during a reorg.
func (s *Store) DeleteTxLocation(txHash types.Hash) error {
	return s.db.Delete(append(append([]byte{}, prefixTx...), txHash[:]...))
}

// GetBalance returns an account's live main-chain balance of asset.
func (s *Store) GetBalance(account types.Account, asset string) uint64 {
	data, err := s.db.Get(append(append([]byte{}, prefixBalance...), balanceKey(account, asset)...))
	if err != nil {
		return 0
	}
	if len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

// SetBalance writes an account's live main-chain balance of asset.
func (s *Store) SetBalance(account types.Account, asset string, amount uint64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, amount)
	return s.db.Put(append(append([]byte{}, prefixBalance...), balanceKey(account, asset)...), b)
}

// PutBranch persists a branch record.
func (s *Store) PutBranch(rec branchRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal branch record: %w", err)
	}
	return s.db.Put(append(append([]byte{}, prefixBranch...), branchKey(rec.ID)...), data)
}

// GetBranch loads a branch record by id.
func (s *Store) GetBranch(id uint64) (branchRecord, bool, error) {
	data, err := s.db.Get(append(append([]byte{}, prefixBranch...), branchKey(id)...))
	if err != nil {
		return branchRecord{}, false, nil
	}
	var rec branchRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return branchRecord{}, false, fmt.Errorf("unmarshal branch record: %w", err)
	}
	return rec, true, nil
}

// GetTip returns the persisted main-chain tip hash, height, and supply.
func (s *Store) GetTip() (types.Hash, uint64, uint64, error) {
	hashData, err := s.db.Get(keyTipHash)
	if err != nil {
		return types.Hash{}, 0, 0, nil // Fresh store — no tip yet.
	}
	var hash types.Hash
	copy(hash[:], hashData)

	heightData, err := s.db.Get(keyTipHeight)
	if err != nil {
		return types.Hash{}, 0, 0, fmt.Errorf("get tip height: %w", err)
	}
	height := binary.BigEndian.Uint64(heightData)

	supplyData, err := s.db.Get(keySupply)
	if err != nil {
		return types.Hash{}, 0, 0, fmt.Errorf("get supply: %w", err)
	}
	supply := binary.BigEndian.Uint64(supplyData)

	return hash, height, supply, nil
}

// SetTip persists the main-chain tip hash, height, and total supply.
func (s *Store) SetTip(hash types.Hash, height, supply uint64) error {
	if err := s.db.Put(keyTipHash, hash[:]); err != nil {
		return fmt.Errorf("set tip hash: %w", err)
	}
	h := make([]byte, 8)
	binary.BigEndian.PutUint64(h, height)
	if err := s.db.Put(keyTipHeight, h); err != nil {
		return fmt.Errorf("set tip height: %w", err)
	}
	sup := make([]byte, 8)
	binary.BigEndian.PutUint64(sup, supply)
	return s.db.Put(keySupply, sup)
}

// GetMainBranch returns the id of the branch currently designated main.
func (s *Store) GetMainBranch() (uint64, error) {
	data, err := s.db.Get(keyMainBranch)
	if err != nil {
		return 0, nil // Fresh store — branch 0 by convention.
	}
	return binary.BigEndian.Uint64(data), nil
}

// SetMainBranch persists which branch id is currently designated main.
func (s *Store) SetMainBranch(id uint64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return s.db.Put(keyMainBranch, b)
}

// NextBranchID allocates and persists the next unused branch id.
func (s *Store) NextBranchID() (uint64, error) {
	data, err := s.db.Get(keyNextBranch)
	var next uint64 = 1 // 0 is reserved for the genesis branch.
	if err == nil {
		next = binary.BigEndian.Uint64(data)
	}
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, next+1)
	if err := s.db.Put(keyNextBranch, b); err != nil {
		return 0, fmt.Errorf("persist next branch id: %w", err)
	}
	return next, nil
}

// PutReorgCheckpoint marks that a reorg to forkHeight is in progress, so a
// crash mid-reorg can be detected and the balance table rebuilt on restart.
func (s *Store) PutReorgCheckpoint(forkHeight uint64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, forkHeight)
	return s.db.Put(keyReorgCheckpoint, b)
}

// GetReorgCheckpoint reports whether a reorg checkpoint is present.
func (s *Store) GetReorgCheckpoint() (uint64, bool) {
	data, err := s.db.Get(keyReorgCheckpoint)
	if err != nil {
		return 0, false
	}
	return binary.BigEndian.Uint64(data), true
}

// DeleteReorgCheckpoint clears the crash-recovery marker once a reorg (or
// its post-crash rebuild) completes.
func (s *Store) DeleteReorgCheckpoint() error {
	return s.db.Delete(keyReorgCheckpoint)
}
