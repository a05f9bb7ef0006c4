// Package rpcclient is an HTTP client for a crankycoin node's public REST API.
package rpcclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/crankycoin/crankycoin-go/internal/consensus"
	"github.com/crankycoin/crankycoin-go/pkg/tx"
)

// Client is an HTTP client for a single node's public REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a new client targeting the given node base URL, e.g.
// "http://127.0.0.1:8545".
func New(baseURL string) *Client {
	return NewWithTimeout(baseURL, 10*time.Second)
}

// NewWithTimeout creates a new client with a custom HTTP timeout.
func NewWithTimeout(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// APIError is returned when the server responds with a non-2xx status.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Status, e.Body)
}

func (c *Client) get(path string, out any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("http get %s: %w", path, err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *Client) post(path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("http post %s: %w", path, err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Status returns the remote node's consensus parameter set.
func (c *Client) Status() (consensus.Network, error) {
	var network consensus.Network
	err := c.get("/status/", &network)
	return network, err
}

// Nodes returns the remote node's known peer host list.
func (c *Client) Nodes() ([]string, error) {
	var body struct {
		FullNodes []string `json:"full_nodes"`
	}
	if err := c.get("/nodes/", &body); err != nil {
		return nil, err
	}
	return body.FullNodes, nil
}

// Balance returns the confirmed balance of an account.
func (c *Client) Balance(account string) (uint64, error) {
	var balance uint64
	err := c.get("/address/"+account+"/balance", &balance)
	return balance, err
}

// Transactions returns the confirmed transaction history of an account.
func (c *Client) Transactions(account string) ([]TxDict, error) {
	var dicts []TxDict
	err := c.get("/address/"+account+"/transactions", &dicts)
	return dicts, err
}

// Transaction fetches a single confirmed transaction by hash.
func (c *Client) Transaction(hash string) (*TxDict, error) {
	var dict TxDict
	if err := c.get("/transactions/"+hash, &dict); err != nil {
		return nil, err
	}
	return &dict, nil
}

// UnconfirmedTransactions lists every transaction currently sitting in the
// remote node's mempool.
func (c *Client) UnconfirmedTransactions() ([]TxDict, error) {
	var dicts []TxDict
	err := c.get("/unconfirmed_tx/", &dicts)
	return dicts, err
}

// UnconfirmedCount returns the size of the remote node's mempool.
func (c *Client) UnconfirmedCount() (int, error) {
	var count int
	err := c.get("/unconfirmed_tx/count", &count)
	return count, err
}

// UnconfirmedTransaction fetches a single pending transaction by hash.
func (c *Client) UnconfirmedTransaction(hash string) (*TxDict, error) {
	var dict TxDict
	if err := c.get("/unconfirmed_tx/"+hash, &dict); err != nil {
		return nil, err
	}
	return &dict, nil
}

// SubmitTransaction submits a signed transaction for admission into the
// remote node's mempool.
func (c *Client) SubmitTransaction(t *tx.Transaction) (*SubmitResult, error) {
	var result SubmitResult
	body := struct {
		Transaction *tx.Transaction `json:"transaction"`
	}{Transaction: t}
	if err := c.post("/transactions/", body, &result); err != nil {
		if apiErr, ok := err.(*APIError); ok {
			if decodeErr := json.Unmarshal([]byte(apiErr.Body), &result); decodeErr == nil {
				return &result, nil
			}
		}
		return nil, err
	}
	return &result, nil
}

// TxDict mirrors the node's "transaction dict" response shape: a
// transaction alongside its precomputed hash.
type TxDict struct {
	Hash string `json:"hash"`
	*tx.Transaction
}

// SubmitResult mirrors the node's POST /transactions/ response body.
type SubmitResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}
