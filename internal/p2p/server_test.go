package p2p

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crankycoin/crankycoin-go/internal/chain"
	"github.com/crankycoin/crankycoin-go/internal/consensus"
	"github.com/crankycoin/crankycoin-go/internal/mempool"
	"github.com/crankycoin/crankycoin-go/internal/storage"
	"github.com/crankycoin/crankycoin-go/pkg/crypto"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *chain.Chain, consensus.Network) {
	t.Helper()
	network := syncTestNetwork()
	c, err := chain.Open(storage.NewMemory(), network, time.Unix(1_700_000_000, 0))
	if err != nil {
		t.Fatalf("open chain: %v", err)
	}
	pool := mempool.New(c, 0)
	registry := NewRegistry("self:0", nil, 1, 8)
	bans := NewBanManager(nil, registry)
	client := NewClient("self:0")
	syncer := NewSyncer("self:0", c, pool, registry, client, bans)
	return NewServer(network, c, pool, registry, bans, syncer), c, network
}

func TestServerHandleStatusReturnsNetwork(t *testing.T) {
	s, _, network := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status/")
	if err != nil {
		t.Fatalf("GET /status/: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got consensus.Network
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != network {
		t.Fatalf("status mismatch: got %+v want %+v", got, network)
	}
}

func TestServerHandleConnectAddsPeer(t *testing.T) {
	s, _, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"host": "peer:9000"})
	resp, err := http.Post(srv.URL+"/connect/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /connect/: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	found := false
	for _, h := range s.registry.List() {
		if h == "peer:9000" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected peer:9000 to be registered")
	}
}

func TestServerHandleNodesListsKnownPeers(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.registry.Add("peer:1", "seed")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/nodes/")
	if err != nil {
		t.Fatalf("GET /nodes/: %v", err)
	}
	defer resp.Body.Close()
	var payload struct {
		FullNodes []string `json:"full_nodes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.FullNodes) != 1 || payload.FullNodes[0] != "peer:1" {
		t.Fatalf("unexpected node list: %v", payload.FullNodes)
	}
}

func TestServerHandleBlockByHeightLatest(t *testing.T) {
	s, c, network := newTestServer(t)
	mineTo(t, c, network, genesisLikeAccount(t), 1)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/blocks/height/latest")
	if err != nil {
		t.Fatalf("GET /blocks/height/latest: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestServerHandleBlockByHeightNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/blocks/height/999")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestServerHandleBlocksRangeIsInclusive(t *testing.T) {
	s, c, network := newTestServer(t)
	mineTo(t, c, network, genesisLikeAccount(t), 3)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/blocks/start/0/end/3")
	if err != nil {
		t.Fatalf("GET /blocks/start/0/end/3: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload struct {
		BlockHashes []types.Hash `json:"block_hashes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.BlockHashes) != 4 {
		t.Fatalf("expected 4 hashes (heights 0-3), got %d", len(payload.BlockHashes))
	}
}

func TestServerHandleInboxRejectsUnknownMessageType(t *testing.T) {
	s, _, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"host": "peer:1", "type": 99, "data": map[string]any{}})
	resp, err := http.Post(srv.URL+"/inbox/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /inbox/: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown message type, got %d", resp.StatusCode)
	}
}

func TestServerHandleInboxEnqueuesBlockInv(t *testing.T) {
	s, _, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{
		"host": "peer:1",
		"type": MessageBlockInv,
		"data": blockInvData{Hash: types.Hash{1}.String(), Height: 1},
	})
	resp, err := http.Post(srv.URL+"/inbox/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /inbox/: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on enqueue, got %d", resp.StatusCode)
	}
}

func TestServerWithBanCheckRejectsBannedHost(t *testing.T) {
	s, _, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	client := &http.Client{}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/status/", nil)

	// Ban whatever host:port this client will connect from isn't directly
	// observable here, so this test instead exercises the handler wrapper
	// directly to confirm it rejects an explicitly banned identity.
	s.bans.RecordOffense("127.0.0.1:1", PenaltyStatusMismatch, "test")
	handler := s.withBanCheck(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	banned := httptest.NewRequest(http.MethodGet, "/status/", nil)
	banned.RemoteAddr = "127.0.0.1:1"
	handler.ServeHTTP(rec, banned)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for banned host, got %d", rec.Code)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("unbanned request should succeed: %v", err)
	}
	resp.Body.Close()
}

func genesisLikeAccount(t *testing.T) types.Account {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return types.AccountFromPubKey(key.PublicKey())
}
