package p2p

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/crankycoin/crankycoin-go/internal/consensus"
	"github.com/crankycoin/crankycoin-go/pkg/block"
	"github.com/crankycoin/crankycoin-go/pkg/tx"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// requestTimeout bounds every outbound peer request; an unresponsive peer
// must never stall the sync loop.
const requestTimeout = 10 * time.Second

// Client makes outbound requests against peers' HTTP sync endpoints.
type Client struct {
	self       string
	httpClient *http.Client
}

// NewClient creates a peer client. self is this node's own advertised
// host:port, sent as the body of /connect/ requests.
func NewClient(self string) *Client {
	return &Client{
		self:       self,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

func (c *Client) get(ctx context.Context, peerHost, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+peerHost+path, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) post(ctx context.Context, peerHost, path string, body, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+peerHost+path, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Status fetches a peer's advertised network parameters, used to decide
// whether it is worth peering with at all.
func (c *Client) Status(ctx context.Context, peerHost string) (consensus.Network, error) {
	var network consensus.Network
	status, err := c.get(ctx, peerHost, "/status/", &network)
	if err != nil {
		return consensus.Network{}, err
	}
	if status != http.StatusOK {
		return consensus.Network{}, fmt.Errorf("status %d", status)
	}
	return network, nil
}

// Nodes asks a peer for the full-node hosts it knows about.
func (c *Client) Nodes(ctx context.Context, peerHost string) ([]string, error) {
	var payload struct {
		FullNodes []string `json:"full_nodes"`
	}
	status, err := c.get(ctx, peerHost, "/nodes/", &payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("status %d", status)
	}
	return payload.FullNodes, nil
}

// Connect asks a peer to add this node to its registry. Returns whether
// the peer accepted.
func (c *Client) Connect(ctx context.Context, peerHost string) (bool, error) {
	var result struct {
		Success bool `json:"success"`
	}
	status, err := c.post(ctx, peerHost, "/connect/", map[string]string{"host": c.self}, &result)
	if err != nil {
		return false, err
	}
	return status == http.StatusAccepted && result.Success, nil
}

// BlockByHeight fetches a full block by height; height == "latest" asks
// for the peer's current tip.
func (c *Client) BlockByHeight(ctx context.Context, peerHost, height string) (*block.Block, error) {
	var blk block.Block
	status, err := c.get(ctx, peerHost, "/blocks/height/"+height, &blk)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("status %d", status)
	}
	return &blk, nil
}

// BlockByHash fetches a full block by hash.
func (c *Client) BlockByHash(ctx context.Context, peerHost string, hash types.Hash) (*block.Block, error) {
	var blk block.Block
	status, err := c.get(ctx, peerHost, "/blocks/hash/"+hash.String(), &blk)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("status %d", status)
	}
	return &blk, nil
}

// HashesRange fetches the main-chain block hashes for heights [start, end]
// from a peer, capped server-side at chain.MaxHashesRange entries.
func (c *Client) HashesRange(ctx context.Context, peerHost string, start, end uint64) ([]types.Hash, error) {
	var payload struct {
		BlockHashes []types.Hash `json:"block_hashes"`
	}
	path := fmt.Sprintf("/blocks/start/%d/end/%d", start, end)
	status, err := c.get(ctx, peerHost, path, &payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("status %d", status)
	}
	return payload.BlockHashes, nil
}

// Transaction fetches an unconfirmed transaction by hash from a peer's
// mempool.
func (c *Client) Transaction(ctx context.Context, peerHost string, hash types.Hash) (*tx.Transaction, error) {
	var t tx.Transaction
	status, err := c.get(ctx, peerHost, "/transactions/"+hash.String(), &t)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("status %d", status)
	}
	return &t, nil
}

// sendInbox posts a typed message envelope to a peer's /inbox/, carrying
// this node's own advertised host, mirroring the original node's "host"
// field convention (peers identify each other by an advertised address,
// not by the TCP connection's source port).
func (c *Client) sendInbox(ctx context.Context, peerHost string, kind MessageType, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal inbox payload: %w", err)
	}
	body := inboxEnvelope{Host: c.self, Type: kind, Data: raw}
	status, err := c.post(ctx, peerHost, "/inbox/", body, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("status %d", status)
	}
	return nil
}

// SubmitTransaction gossips a full transaction to a peer for mempool
// admission.
func (c *Client) SubmitTransaction(ctx context.Context, peerHost string, t *tx.Transaction) error {
	return c.sendInbox(ctx, peerHost, MessageUnconfirmedTransaction, t)
}

// AnnounceBlockHeader sends a lightweight inventory notice that a new
// block exists; the peer fetches the full block itself if it doesn't
// already have it.
func (c *Client) AnnounceBlockHeader(ctx context.Context, peerHost string, hash types.Hash, height uint64) error {
	return c.sendInbox(ctx, peerHost, MessageBlockInv, blockInvData{Hash: hash.String(), Height: height})
}

// AnnounceTransaction sends a lightweight inventory notice that an
// unconfirmed transaction exists; the peer fetches it by hash if it
// doesn't already have it.
func (c *Client) AnnounceTransaction(ctx context.Context, peerHost string, hash types.Hash) error {
	return c.sendInbox(ctx, peerHost, MessageTransactionInv, txInvData{Hash: hash.String()})
}
