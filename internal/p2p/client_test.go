package p2p

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/crankycoin/crankycoin-go/internal/consensus"
	"github.com/crankycoin/crankycoin-go/pkg/block"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

func peerHostFromURL(t *testing.T, rawURL string) string {
	t.Helper()
	return strings.TrimPrefix(rawURL, "http://")
}

func TestClientStatus(t *testing.T) {
	network := consensus.Network{Version: 1, InitialCoinsPerBlock: 50, MaxTransactionsPerBlock: 64}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(network)
	}))
	defer srv.Close()

	client := NewClient("self:0")
	got, err := client.Status(context.Background(), peerHostFromURL(t, srv.URL))
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got != network {
		t.Fatalf("status mismatch: got %+v want %+v", got, network)
	}
}

func TestClientNodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string][]string{"full_nodes": {"a:1", "b:1"}})
	}))
	defer srv.Close()

	client := NewClient("self:0")
	nodes, err := client.Nodes(context.Background(), peerHostFromURL(t, srv.URL))
	if err != nil {
		t.Fatalf("Nodes: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
}

func TestClientConnect(t *testing.T) {
	var gotHost string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Host string `json:"host"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		gotHost = body.Host
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}))
	defer srv.Close()

	client := NewClient("myhost:9000")
	ok, err := client.Connect(context.Background(), peerHostFromURL(t, srv.URL))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !ok {
		t.Fatal("expected success")
	}
	if gotHost != "myhost:9000" {
		t.Fatalf("expected self host sent, got %q", gotHost)
	}
}

func TestClientBlockByHash(t *testing.T) {
	blk := block.New(1, nil, types.Hash{}, time.Unix(1_700_000_000, 0))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(blk)
	}))
	defer srv.Close()

	client := NewClient("self:0")
	got, err := client.BlockByHash(context.Background(), peerHostFromURL(t, srv.URL), blk.Header.Hash())
	if err != nil {
		t.Fatalf("BlockByHash: %v", err)
	}
	if got.Height != blk.Height {
		t.Fatalf("height mismatch: got %d want %d", got.Height, blk.Height)
	}
}

func TestClientHashesRangeSendsStartEnd(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string][]types.Hash{"block_hashes": {{1}, {2}}})
	}))
	defer srv.Close()

	client := NewClient("self:0")
	hashes, err := client.HashesRange(context.Background(), peerHostFromURL(t, srv.URL), 10, 20)
	if err != nil {
		t.Fatalf("HashesRange: %v", err)
	}
	if len(hashes) != 2 {
		t.Fatalf("expected 2 hashes, got %d", len(hashes))
	}
	if gotPath != "/blocks/start/10/end/20" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
}

func TestClientAnnounceBlockHeaderPostsInboxEnvelope(t *testing.T) {
	var gotEnvelope inboxEnvelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inbox/" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotEnvelope)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient("myhost:9000")
	hash := types.Hash{9}
	if err := client.AnnounceBlockHeader(context.Background(), peerHostFromURL(t, srv.URL), hash, 7); err != nil {
		t.Fatalf("AnnounceBlockHeader: %v", err)
	}
	if gotEnvelope.Host != "myhost:9000" {
		t.Fatalf("expected self host sent, got %q", gotEnvelope.Host)
	}
	if gotEnvelope.Type != MessageBlockInv {
		t.Fatalf("expected MessageBlockInv, got %d", gotEnvelope.Type)
	}
	var inv blockInvData
	if err := json.Unmarshal(gotEnvelope.Data, &inv); err != nil {
		t.Fatalf("decode inv data: %v", err)
	}
	if inv.Height != 7 || inv.Hash != hash.String() {
		t.Fatalf("unexpected inv data: %+v", inv)
	}
}

func TestClientSubmitTransactionFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown message type", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient("self:0")
	err := client.SubmitTransaction(context.Background(), peerHostFromURL(t, srv.URL), nil)
	if err == nil {
		t.Fatal("expected error on non-200 response")
	}
}
