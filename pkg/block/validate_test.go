package block

import (
	"errors"
	"testing"
	"time"

	"github.com/crankycoin/crankycoin-go/pkg/crypto"
	"github.com/crankycoin/crankycoin-go/pkg/tx"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// testCoinbase returns a minimal coinbase transaction paying dest.
func testCoinbase(dest types.Account, amount uint64) *tx.Transaction {
	return &tx.Transaction{
		Source:      types.CoinbaseSource,
		Destination: dest,
		Amount:      amount,
		Timestamp:   1700000000,
		TxType:      tx.TxTypeCoinbase,
		Asset:       tx.DefaultAsset,
		PrevHash:    "0",
	}
}

func minerAccount(t *testing.T) types.Account {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return types.AccountFromPubKey(key.PublicKey())
}

// validBlock creates a minimal valid block with a correctly computed merkle root.
func validBlock(t *testing.T) *Block {
	t.Helper()
	coinbase := testCoinbase(minerAccount(t), 1000)
	return New(1, []*tx.Transaction{coinbase}, types.Hash{0xaa}, time.Unix(1700000000, 0))
}

func TestBlockValidateValid(t *testing.T) {
	blk := validBlock(t)
	if err := blk.Validate(); err != nil {
		t.Errorf("valid block should pass: %v", err)
	}
}

func TestBlockValidateNilHeader(t *testing.T) {
	blk := &Block{Header: nil}
	if err := blk.Validate(); !errors.Is(err, ErrNilHeader) {
		t.Errorf("expected ErrNilHeader, got: %v", err)
	}
}

func TestBlockValidateBadVersion(t *testing.T) {
	blk := validBlock(t)
	blk.Header.Version = 99
	if err := blk.Validate(); !errors.Is(err, ErrBadVersion) {
		t.Errorf("expected ErrBadVersion, got: %v", err)
	}
}

func TestBlockValidateVersionZero(t *testing.T) {
	blk := validBlock(t)
	blk.Header.Version = 0
	if err := blk.Validate(); !errors.Is(err, ErrBadVersion) {
		t.Errorf("expected ErrBadVersion for version 0, got: %v", err)
	}
}

func TestBlockValidateVersionAboveMax(t *testing.T) {
	blk := validBlock(t)
	blk.Header.Version = MaxVersion + 1
	if err := blk.Validate(); !errors.Is(err, ErrBadVersion) {
		t.Errorf("expected ErrBadVersion for version %d, got: %v", MaxVersion+1, err)
	}
}

func TestBlockValidateZeroTimestamp(t *testing.T) {
	blk := validBlock(t)
	blk.Header.Timestamp = 0
	if err := blk.Validate(); !errors.Is(err, ErrZeroTimestamp) {
		t.Errorf("expected ErrZeroTimestamp, got: %v", err)
	}
}

func TestBlockValidateNoTransactions(t *testing.T) {
	blk := &Block{
		Header: &Header{Version: CurrentVersion, Timestamp: 1700000000},
	}
	if err := blk.Validate(); !errors.Is(err, ErrNoTransactions) {
		t.Errorf("expected ErrNoTransactions, got: %v", err)
	}
}

func TestBlockValidateBadMerkleRoot(t *testing.T) {
	blk := validBlock(t)
	blk.Header.MerkleRoot = types.Hash{0xde, 0xad}
	if err := blk.Validate(); !errors.Is(err, ErrBadMerkleRoot) {
		t.Errorf("expected ErrBadMerkleRoot, got: %v", err)
	}
}

func TestBlockValidateInvalidTransaction(t *testing.T) {
	coinbase := testCoinbase(minerAccount(t), 1000)
	// Standard transaction with no signature — fails tx.Validate.
	badTx := &tx.Transaction{
		Source:      minerAccount(t),
		Destination: minerAccount(t),
		Amount:      10,
		Timestamp:   1700000000,
		TxType:      tx.TxTypeStandard,
		Asset:       tx.DefaultAsset,
		PrevHash:    "0",
	}

	txs := []*tx.Transaction{coinbase, badTx}
	blk := New(1, txs, types.Hash{}, time.Unix(1700000000, 0))

	if err := blk.Validate(); err == nil {
		t.Error("block with invalid tx should fail validation")
	}
}

func TestBlockValidateMultipleTxs(t *testing.T) {
	key, _ := crypto.GenerateKey()
	dest1 := minerAccount(t)
	dest2 := minerAccount(t)

	t1 := tx.New(types.Account(""), dest1, 1000, 1)
	if err := t1.Sign(key); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	t2 := tx.New(types.Account(""), dest2, 2000, 1)
	if err := t2.Sign(key); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	coinbase := testCoinbase(minerAccount(t), 1000)
	txs := []*tx.Transaction{coinbase, t1, t2}

	blk := New(5, txs, types.Hash{}, time.Unix(1700000000, 0))
	if err := blk.Validate(); err != nil {
		t.Errorf("multi-tx block should validate: %v", err)
	}
}

func TestBlockValidateNoCoinbase(t *testing.T) {
	key, _ := crypto.GenerateKey()
	transaction := tx.New(types.Account(""), minerAccount(t), 1000, 1)
	if err := transaction.Sign(key); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	blk := New(1, []*tx.Transaction{transaction}, types.Hash{}, time.Unix(1700000000, 0))
	if err := blk.Validate(); !errors.Is(err, ErrNoCoinbase) {
		t.Errorf("expected ErrNoCoinbase, got: %v", err)
	}
}

func TestBlockValidateMultipleCoinbase(t *testing.T) {
	c1 := testCoinbase(minerAccount(t), 1000)
	c2 := testCoinbase(minerAccount(t), 1000)
	blk := New(1, []*tx.Transaction{c1, c2}, types.Hash{}, time.Unix(1700000000, 0))
	if err := blk.Validate(); !errors.Is(err, ErrMultipleCoinbase) {
		t.Errorf("expected ErrMultipleCoinbase, got: %v", err)
	}
}

func TestBlockValidateDuplicateTxHash(t *testing.T) {
	key, _ := crypto.GenerateKey()
	transaction := tx.New(types.Account(""), minerAccount(t), 1000, 1)
	if err := transaction.Sign(key); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	coinbase := testCoinbase(minerAccount(t), 1000)

	blk := New(1, []*tx.Transaction{coinbase, transaction, transaction}, types.Hash{}, time.Unix(1700000000, 0))
	if err := blk.Validate(); !errors.Is(err, ErrDuplicateTxHash) {
		t.Errorf("expected ErrDuplicateTxHash, got: %v", err)
	}
}

func TestHeaderHashDeterministic(t *testing.T) {
	h := &Header{Version: 1, PreviousHash: types.Hash{0x01}, Timestamp: 1700000000}
	if h.Hash() != h.Hash() {
		t.Error("Header.Hash() should be deterministic")
	}
	if h.Hash().IsZero() {
		t.Error("Header.Hash() should not be zero")
	}
}

func TestHeaderHashChangesWithNonce(t *testing.T) {
	h := &Header{Version: 1, PreviousHash: types.Hash{0x01}, Timestamp: 1700000000}
	h1 := h.Hash()
	h.Nonce = 1
	if h.Hash() == h1 {
		t.Error("Header.Hash() should change when Nonce changes")
	}
}

func TestBlockHash(t *testing.T) {
	blk := validBlock(t)
	if blk.Hash().IsZero() {
		t.Error("Block.Hash() should not be zero")
	}

	blk2 := &Block{}
	if !blk2.Hash().IsZero() {
		t.Error("Block.Hash() with nil header should be zero")
	}
}

func TestLeadingZeroHexChars(t *testing.T) {
	var h types.Hash
	if LeadingZeroHexChars(h) != 64 {
		t.Errorf("all-zero hash should have 64 leading zero hex chars, got %d", LeadingZeroHexChars(h))
	}
	h[0] = 0x01
	if LeadingZeroHexChars(h) != 1 {
		t.Errorf("0x01... should have 1 leading zero hex char, got %d", LeadingZeroHexChars(h))
	}
	h[0] = 0xff
	if LeadingZeroHexChars(h) != 0 {
		t.Errorf("0xff... should have 0 leading zero hex chars, got %d", LeadingZeroHexChars(h))
	}
}
