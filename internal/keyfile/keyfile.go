package keyfile

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/crankycoin/crankycoin-go/pkg/crypto"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// fileVersion is bumped if the on-disk JSON shape ever changes.
const fileVersion = 1

// onDisk is the JSON envelope written to the keyfile. Account is stored
// in the clear alongside the encrypted key material so tooling can report
// which account a keyfile belongs to without prompting for the passphrase.
type onDisk struct {
	Version int           `json:"version"`
	Account types.Account `json:"account"`
	Params  EncryptionParams `json:"params"`
	Data    []byte        `json:"data"`
}

// Load reads and decrypts the signing key stored at path.
func Load(path string, passphrase []byte) (*crypto.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyfile: %w", err)
	}

	var f onDisk
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse keyfile: %w", err)
	}
	if f.Version != fileVersion {
		return nil, fmt.Errorf("unsupported keyfile version %d", f.Version)
	}

	plaintext, err := Decrypt(f.Data, passphrase)
	if err != nil {
		return nil, err
	}
	defer zero(plaintext)

	key, err := crypto.PrivateKeyFromBytes(plaintext)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if types.AccountFromPubKey(key.PublicKey()) != f.Account {
		return nil, fmt.Errorf("keyfile account mismatch: file corrupt or tampered")
	}
	return key, nil
}

// Save encrypts key with passphrase and writes it to path with permissions
// that keep the file readable only by its owner. The parent directory is
// not created.
func Save(path string, key *crypto.PrivateKey, passphrase []byte, params EncryptionParams) error {
	secret := key.Serialize()
	defer zero(secret)

	data, err := Encrypt(secret, passphrase, params)
	if err != nil {
		return fmt.Errorf("encrypt keyfile: %w", err)
	}

	f := onDisk{
		Version: fileVersion,
		Account: types.AccountFromPubKey(key.PublicKey()),
		Params:  params,
		Data:    data,
	}
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keyfile: %w", err)
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return fmt.Errorf("write keyfile: %w", err)
	}
	return nil
}

// Generate creates a fresh random signing key, persists it at path
// encrypted under passphrase, and returns it.
func Generate(path string, passphrase []byte) (*crypto.PrivateKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := Save(path, key, passphrase, DefaultEncryptionParams()); err != nil {
		return nil, err
	}
	return key, nil
}

// AccountOf peeks at a keyfile's account without decrypting it.
func AccountOf(path string) (types.Account, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read keyfile: %w", err)
	}
	var f onDisk
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", fmt.Errorf("parse keyfile: %w", err)
	}
	return f.Account, nil
}

// Exists reports whether a keyfile is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
