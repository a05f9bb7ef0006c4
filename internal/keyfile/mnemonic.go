package keyfile

import (
	"fmt"

	"github.com/crankycoin/crankycoin-go/pkg/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// MnemonicEntropyBits is the entropy size for 24-word mnemonics.
const MnemonicEntropyBits = 256

// SeedSize is the length of a BIP-39 derived seed in bytes (512 bits).
const SeedSize = 64

// BIP-44-style derivation path constants. Full path:
// m/44'/CoinType'/account'/change/index
const (
	PurposeBIP44 = bip32.FirstHardenedChild + 44

	// CoinTypeCrankycoin is a placeholder coin type pending SLIP-44
	// registration.
	CoinTypeCrankycoin = bip32.FirstHardenedChild + 2286

	ChangeExternal = 0
	ChangeInternal = 1
)

// GenerateMnemonic creates a new 24-word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic checks if a mnemonic is valid per BIP-39 (correct word
// count, valid words, valid checksum).
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// seedFromMnemonic derives a 512-bit seed from a mnemonic and optional
// passphrase using PBKDF2-SHA512 as specified in BIP-39.
func seedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	return bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
}

// DeriveFromMnemonic derives a signing key at
// m/44'/CoinTypeCrankycoin'/account'/change/index from a BIP-39 mnemonic,
// so a key can be reproduced from the mnemonic words alone rather than
// requiring the keyfile itself.
func DeriveFromMnemonic(mnemonic, passphrase string, account, change, index uint32) (*crypto.PrivateKey, error) {
	seed, err := seedFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}

	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}

	child := master
	for _, idx := range []uint32{PurposeBIP44, CoinTypeCrankycoin, bip32.FirstHardenedChild + account, change, index} {
		child, err = child.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("derive key: %w", err)
		}
	}

	raw := child.Key
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	return crypto.PrivateKeyFromBytes(raw)
}
