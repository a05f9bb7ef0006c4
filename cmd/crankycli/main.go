// Crankycoin command-line client for a node's public REST API.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/crankycoin/crankycoin-go/internal/keyfile"
	"github.com/crankycoin/crankycoin-go/internal/rpcclient"
	"github.com/crankycoin/crankycoin-go/pkg/tx"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	rpcURL := "http://127.0.0.1:8545"
	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client := rpcclient.New(rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		cmdStatus(client)
	case "balance":
		cmdBalance(client, cmdArgs)
	case "tx":
		cmdTx(client, cmdArgs)
	case "send":
		cmdSend(client, cmdArgs)
	case "mempool":
		cmdMempool(client)
	case "peers":
		cmdPeers(client)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: crankycli [global flags] <command> [flags]

Global flags:
  --rpc <url>    Node REST endpoint (default: http://127.0.0.1:8545)

Commands:
  status                              Show the node's consensus parameters
  balance <account>                   Show an account's confirmed balance
  tx <hash>                           Show a confirmed transaction
  send --keyfile <path> --to <account> --amount <amt> [--fee <amt>]
                                      Sign and submit a transaction
  mempool                             Show pending transaction count
  peers                               List the node's known peers
`)
}

func cmdStatus(client *rpcclient.Client) {
	network, err := client.Status()
	if err != nil {
		fatal(err)
	}
	fmt.Printf("version:               %d\n", network.Version)
	fmt.Printf("minimum difficulty:    %d\n", network.MinimumHashDifficulty)
	fmt.Printf("target time per block: %ds\n", network.TargetTimePerBlock)
	fmt.Printf("halving frequency:     %d\n", network.HalvingFrequency)
}

func cmdBalance(client *rpcclient.Client, args []string) {
	if len(args) != 1 {
		fatal(fmt.Errorf("usage: crankycli balance <account>"))
	}
	balance, err := client.Balance(args[0])
	if err != nil {
		fatal(err)
	}
	fmt.Println(balance)
}

func cmdTx(client *rpcclient.Client, args []string) {
	if len(args) != 1 {
		fatal(fmt.Errorf("usage: crankycli tx <hash>"))
	}
	t, err := client.Transaction(args[0])
	if err != nil {
		if uncPending, uncErr := client.UnconfirmedTransaction(args[0]); uncErr == nil {
			t = uncPending
		} else {
			fatal(err)
		}
	}
	fmt.Printf("hash:        %s\n", t.Hash)
	fmt.Printf("source:      %s\n", t.Source)
	fmt.Printf("destination: %s\n", t.Destination)
	fmt.Printf("amount:      %d\n", t.Amount)
	fmt.Printf("fee:         %d\n", t.Fee)
}

func cmdSend(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	keyfilePath := fs.String("keyfile", "", "path to the signing key")
	to := fs.String("to", "", "destination account")
	amount := fs.Uint64("amount", 0, "amount to send")
	fee := fs.Uint64("fee", 0, "transaction fee")
	fs.Parse(args)

	if *keyfilePath == "" || *to == "" || *amount == 0 {
		fatal(fmt.Errorf("usage: crankycli send --keyfile <path> --to <account> --amount <amt> [--fee <amt>]"))
	}

	passphrase, err := keyfile.PromptPassphrase("Enter keyfile passphrase: ")
	if err != nil {
		fatal(err)
	}
	key, err := keyfile.Load(*keyfilePath, passphrase)
	if err != nil {
		fatal(err)
	}
	defer key.Zero()

	source := types.AccountFromPubKey(key.PublicKey())
	transaction := tx.New(source, types.Account(*to), *amount, *fee)
	if err := transaction.Sign(key); err != nil {
		fatal(err)
	}

	result, err := client.SubmitTransaction(transaction)
	if err != nil {
		fatal(err)
	}
	if !result.Success {
		fatal(fmt.Errorf("rejected: %s", result.Reason))
	}
	fmt.Printf("submitted: %s\n", transaction.Hash())
}

func cmdMempool(client *rpcclient.Client) {
	count, err := client.UnconfirmedCount()
	if err != nil {
		fatal(err)
	}
	fmt.Println(strconv.Itoa(count) + " pending transaction(s)")
}

func cmdPeers(client *rpcclient.Client) {
	hosts, err := client.Nodes()
	if err != nil {
		fatal(err)
	}
	if len(hosts) == 0 {
		fmt.Println("no known peers")
		return
	}
	for _, h := range hosts {
		fmt.Println(h)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
