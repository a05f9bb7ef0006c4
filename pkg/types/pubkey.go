package types

import (
	"encoding/hex"
	"fmt"
)

// Account identifies a transaction party by the hex encoding of its
// compressed secp256k1 public key. Unlike a bitcoin-style address, an
// Account is not a hash of the key — it is the key itself, used directly
// as both the spending credential and the balance index key.
type Account string

// CoinbaseSource is the sentinel source used by block-reward transactions,
// which create coins rather than spend them.
const CoinbaseSource Account = "0"

// PubKeySize is the length of a compressed secp256k1 public key in bytes.
const PubKeySize = 33

// AccountFromPubKey builds an Account from a compressed public key.
func AccountFromPubKey(pubKey []byte) Account {
	return Account(hex.EncodeToString(pubKey))
}

// IsCoinbase reports whether this account is the coinbase sentinel.
func (a Account) IsCoinbase() bool {
	return a == CoinbaseSource
}

// Bytes decodes the account's hex string into raw public key bytes.
// Returns an error for the coinbase sentinel or malformed hex.
func (a Account) Bytes() ([]byte, error) {
	if a.IsCoinbase() {
		return nil, fmt.Errorf("coinbase source has no public key")
	}
	b, err := hex.DecodeString(string(a))
	if err != nil {
		return nil, fmt.Errorf("invalid account hex: %w", err)
	}
	return b, nil
}

// Validate checks that a non-coinbase account decodes to a plausible
// compressed public key length.
func (a Account) Validate() error {
	if a.IsCoinbase() {
		return nil
	}
	b, err := a.Bytes()
	if err != nil {
		return err
	}
	if len(b) != PubKeySize {
		return fmt.Errorf("account must encode a %d-byte public key, got %d", PubKeySize, len(b))
	}
	return nil
}

func (a Account) String() string {
	return string(a)
}
