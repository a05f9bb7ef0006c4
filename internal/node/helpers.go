package node

import (
	"fmt"
	"os"

	"github.com/crankycoin/crankycoin-go/config"
	"github.com/crankycoin/crankycoin-go/internal/keyfile"
	"github.com/crankycoin/crankycoin-go/pkg/crypto"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// advertisedAddr builds the host:port a peer should use to reach this
// node. A listen address of 0.0.0.0 is not dialable by other hosts, so
// it's rewritten to localhost for the advertised form.
func advertisedAddr(listenAddr string, port int) string {
	host := listenAddr
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// loadOrGenerateSigningKey loads the node's signing key from its
// keyfile, generating one on first run. The passphrase is read from
// the configured environment variable if set, otherwise prompted on
// the TTY.
func loadOrGenerateSigningKey(cfg *config.Config) (*crypto.PrivateKey, error) {
	passphrase, err := keyfilePassphrase(cfg, !keyfile.Exists(cfg.Keyfile.Path))
	if err != nil {
		return nil, err
	}
	defer zeroBytes(passphrase)

	if keyfile.Exists(cfg.Keyfile.Path) {
		return keyfile.Load(cfg.Keyfile.Path, passphrase)
	}
	return keyfile.Generate(cfg.Keyfile.Path, passphrase)
}

// keyfilePassphrase resolves the passphrase used to encrypt/decrypt
// the node signing key: the configured environment variable takes
// precedence, falling back to an interactive TTY prompt.
func keyfilePassphrase(cfg *config.Config, confirm bool) ([]byte, error) {
	if cfg.Keyfile.PassphraseEnvVar != "" {
		if v, ok := os.LookupEnv(cfg.Keyfile.PassphraseEnvVar); ok {
			return []byte(v), nil
		}
	}

	passphrase, err := keyfile.PromptPassphrase("Enter keyfile passphrase: ")
	if err != nil {
		return nil, err
	}
	if !confirm {
		return passphrase, nil
	}

	confirmation, err := keyfile.PromptPassphrase("Confirm keyfile passphrase: ")
	if err != nil {
		zeroBytes(passphrase)
		return nil, err
	}
	defer zeroBytes(confirmation)

	if string(passphrase) != string(confirmation) {
		zeroBytes(passphrase)
		return nil, fmt.Errorf("passphrases do not match")
	}
	return passphrase, nil
}

// resolveCoinbase determines the account that receives block rewards:
// an explicitly configured coinbase takes precedence, otherwise the
// node's own signing key account is used.
func (n *Node) resolveCoinbase() (types.Account, error) {
	if n.cfg.Mining.Coinbase != "" {
		account := types.Account(n.cfg.Mining.Coinbase)
		if err := account.Validate(); err != nil {
			return "", fmt.Errorf("mining.coinbase: %w", err)
		}
		return account, nil
	}
	if n.signingKey == nil {
		return "", fmt.Errorf("mining enabled but no coinbase configured and no signing key loaded")
	}
	return types.AccountFromPubKey(n.signingKey.PublicKey()), nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
