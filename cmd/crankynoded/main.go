// Crankycoin full node daemon.
//
// Usage:
//
//	crankynoded [--mine --coinbase=...]  Run node
//	crankynoded --generate-keyfile       Generate a signing key and exit
//	crankynoded --help                   Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/crankycoin/crankycoin-go/config"
	"github.com/crankycoin/crankycoin-go/internal/keyfile"
	"github.com/crankycoin/crankycoin-go/internal/node"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

func main() {
	cfg, flags, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if flags.GenerateKeyfile {
		generateKeyfileAndExit(cfg)
	}

	n, err := node.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting node: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	n.Stop()
}

// generateKeyfileAndExit creates a new encrypted signing key at the
// configured keyfile path without starting the node, so operators can
// provision a coinbase account before their first run.
func generateKeyfileAndExit(cfg *config.Config) {
	path := cfg.Keyfile.Path
	if path == "" {
		path = cfg.DefaultKeyfilePath()
	}
	if keyfile.Exists(path) {
		fmt.Fprintf(os.Stderr, "Error: keyfile already exists at %s\n", path)
		os.Exit(1)
	}

	passphrase, err := keyfile.PromptPassphrase("Enter new keyfile passphrase: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	confirmation, err := keyfile.PromptPassphrase("Confirm passphrase: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if string(passphrase) != string(confirmation) {
		fmt.Fprintln(os.Stderr, "Error: passphrases do not match")
		os.Exit(1)
	}

	key, err := keyfile.Generate(path, passphrase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating keyfile: %v\n", err)
		os.Exit(1)
	}
	defer key.Zero()

	account := types.AccountFromPubKey(key.PublicKey())
	fmt.Printf("Keyfile written to %s\n", path)
	fmt.Printf("Account: %s\n", account)
	os.Exit(0)
}
