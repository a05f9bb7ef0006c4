// Package tx defines the transaction type, its canonical signing form, and
// structural validation.
package tx

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/crankycoin/crankycoin-go/pkg/crypto"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// Transaction type markers.
const (
	TxTypeGenesis       = 0 // genesis allocation, appears only in the genesis block
	TxTypeCoinbase      = 1 // block reward, paid to the miner
	TxTypeStandard      = 2 // ordinary account-to-account transfer
	TxTypeAssetCreation = 3 // mints a new asset identifier; does not affect native balances
)

// DefaultAsset is the native asset identifier used when a transaction does
// not specify one explicitly. Carried over from the asset-tagging scheme of
// the prototype this node's wire format descends from; only the native
// asset is ever minted by this implementation.
const DefaultAsset = "29bb7eb4fa78fc709e1b8b88362b7f8cb61d9379667ad4aedc8ec9f664e16680"

// Transaction represents a single transfer of value between two accounts.
// Source and Destination are raw hex-encoded public keys, used directly as
// account identifiers rather than hashed addresses.
type Transaction struct {
	Source      types.Account `json:"source"`
	Destination types.Account `json:"destination"`
	Amount      uint64        `json:"amount"`
	Fee         uint64        `json:"fee"`
	Timestamp   int64         `json:"timestamp"`
	TxType      int           `json:"tx_type"`
	Asset       string        `json:"asset"`
	Data        string        `json:"data"`
	PrevHash    string        `json:"prev_hash"`
	Signature   string        `json:"signature"` // hex-encoded DER signature, empty until signed
}

// New builds an unsigned, timestamped standard transaction.
func New(source, destination types.Account, amount, fee uint64) *Transaction {
	return &Transaction{
		Source:      source,
		Destination: destination,
		Amount:      amount,
		Fee:         fee,
		Timestamp:   time.Now().Unix(),
		TxType:      TxTypeStandard,
		Asset:       DefaultAsset,
		PrevHash:    "0",
	}
}

// Signable returns the canonical colon-joined string that is signed and
// verified. It excludes the signature itself, since the signature commits
// to this string.
func (t *Transaction) Signable() string {
	return strings.Join([]string{
		string(t.Source),
		string(t.Destination),
		strconv.FormatUint(t.Amount, 10),
		strconv.FormatUint(t.Fee, 10),
		strconv.FormatInt(t.Timestamp, 10),
		strconv.Itoa(t.TxType),
		t.Asset,
		t.Data,
		t.PrevHash,
	}, ":")
}

// canonicalFields returns the transaction's fields as a map, so that
// json.Marshal (which sorts map keys) produces the canonical encoding Hash
// hashes over.
func (t *Transaction) canonicalFields() map[string]any {
	return map[string]any{
		"source":      string(t.Source),
		"destination": string(t.Destination),
		"amount":      t.Amount,
		"fee":         t.Fee,
		"timestamp":   t.Timestamp,
		"tx_type":     t.TxType,
		"asset":       t.Asset,
		"data":        t.Data,
		"prev_hash":   t.PrevHash,
		"signature":   t.Signature,
	}
}

// Hash returns the transaction hash: SHA-256 over the transaction's fields
// — including the signature — marshaled with sorted keys.
func (t *Transaction) Hash() types.Hash {
	data, err := json.Marshal(t.canonicalFields())
	if err != nil {
		// canonicalFields contains only marshalable primitives; this cannot happen.
		panic(fmt.Sprintf("tx: marshal canonical fields: %v", err))
	}
	return crypto.Hash(data)
}

// Sign signs the transaction with the given key and sets Source to the
// key's own public key — an account can only spend its own balance, so the
// signer and the source are always the same account.
func (t *Transaction) Sign(key *crypto.PrivateKey) error {
	t.Source = types.AccountFromPubKey(key.PublicKey())
	h := crypto.Hash([]byte(t.Signable()))
	sig, err := key.Sign(h[:])
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	t.Signature = hex.EncodeToString(sig)
	return nil
}

// VerifySignature checks the transaction's signature against its source
// account's public key. Coinbase and genesis transactions have no source
// key to verify against and always pass.
func (t *Transaction) VerifySignature() bool {
	if t.Source.IsCoinbase() {
		return true
	}
	pub, err := t.Source.Bytes()
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(t.Signature)
	if err != nil {
		return false
	}
	h := crypto.Hash([]byte(t.Signable()))
	return crypto.VerifySignature(h[:], sig, pub)
}

// IsCoinbase reports whether this transaction creates coins rather than
// transferring them from an existing balance.
func (t *Transaction) IsCoinbase() bool {
	return t.Source.IsCoinbase()
}
