package keyfile

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

// PromptPassphrase reads a passphrase from the terminal without echoing it.
func PromptPassphrase(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return passphrase, nil
}
