package rpc

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
	"github.com/crankycoin/crankycoin-go/internal/p2p"
	"github.com/crankycoin/crankycoin-go/internal/storage"
	"github.com/crankycoin/crankycoin-go/pkg/block"
	"github.com/crankycoin/crankycoin-go/pkg/crypto"
	"github.com/crankycoin/crankycoin-go/pkg/tx"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

func testNetwork() consensus.Network {
	return consensus.Network{
		Version:                  1,
		InitialCoinsPerBlock:     1000,
		MaxTransactionsPerBlock:  100,
		MinimumHashDifficulty:    0,
		TargetTimePerBlock:       600,
		DifficultyAdjustmentSpan: 2016,
		SignificantDigits:        8,
	}
}

func newTestAccount(t *testing.T) (types.Account, *crypto.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return types.AccountFromPubKey(key.PublicKey()), key
}

// mineTo extends c with reward-only blocks until it reaches height.
func mineTo(t *testing.T, c *chain.Chain, network consensus.Network, coinbase types.Account, height uint64) {
	t.Helper()
	for c.State().Height < height {
		tip, err := c.GetTip()
		if err != nil {
			t.Fatalf("get tip: %v", err)
		}
		nextHeight := c.State().Height + 1
		coinbaseTx := &tx.Transaction{
			Source:      types.CoinbaseSource,
			Destination: coinbase,
			Amount:      network.Reward(nextHeight),
			Timestamp:   time.Now().Unix(),
			TxType:      tx.TxTypeCoinbase,
			Asset:       tx.DefaultAsset,
			PrevHash:    "0",
		}
		blk := block.New(nextHeight, []*tx.Transaction{coinbaseTx}, tip.Hash(), time.Now())
		if err := network.PoW().Seal(blk, network.MinimumHashDifficulty); err != nil {
			t.Fatalf("seal block at height %d: %v", nextHeight, err)
		}
		result, err := c.Append(blk)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if result.Status != chain.Applied {
			t.Fatalf("expected Applied at height %d, got %s", nextHeight, result.Status)
		}
	}
}

type testEnv struct {
	server   *Server
	chain    *chain.Chain
	pool     *mempool.Pool
	registry *p2p.Registry
	network  consensus.Network
	coinbase types.Account
	key      *crypto.PrivateKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	network := testNetwork()
	c, err := chain.Open(storage.NewMemory(), network, time.Unix(1_700_000_000, 0))
	if err != nil {
		t.Fatalf("open chain: %v", err)
	}
	pool := mempool.New(c, 0)
	registry := p2p.NewRegistry("self:0", nil, 1, 8)
	coinbase, key := newTestAccount(t)

	s := New("", network, c, pool, registry, nil, nil)
	return &testEnv{server: s, chain: c, pool: pool, registry: registry, network: network, coinbase: coinbase, key: key}
}

func TestHandleStatusReturnsNetwork(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.withMiddleware(env.server.routes()))
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
	if got != env.network {
		t.Fatalf("status mismatch: got %+v want %+v", got, env.network)
	}
}

func TestHandleNodesListsRegisteredPeers(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Add("peer:1", "seed")
	srv := httptest.NewServer(env.server.withMiddleware(env.server.routes()))
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

func TestHandleAddressBalanceReflectsMinedReward(t *testing.T) {
	env := newTestEnv(t)
	mineTo(t, env.chain, env.network, env.coinbase, 1)
	srv := httptest.NewServer(env.server.withMiddleware(env.server.routes()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/address/" + string(env.coinbase) + "/balance")
	if err != nil {
		t.Fatalf("GET balance: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var balance uint64
	if err := json.NewDecoder(resp.Body).Decode(&balance); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if balance != env.network.Reward(1) {
		t.Fatalf("expected balance %d, got %d", env.network.Reward(1), balance)
	}
}

func TestHandleAddressBalanceRejectsBadAddress(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.withMiddleware(env.server.routes()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/address/not-an-account/balance")
	if err != nil {
		t.Fatalf("GET balance: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHandleAddressTransactionsReturnsHistory(t *testing.T) {
	env := newTestEnv(t)
	mineTo(t, env.chain, env.network, env.coinbase, 1)
	srv := httptest.NewServer(env.server.withMiddleware(env.server.routes()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/address/" + string(env.coinbase) + "/transactions")
	if err != nil {
		t.Fatalf("GET transactions: %v", err)
	}
	defer resp.Body.Close()
	var dicts []txDict
	if err := json.NewDecoder(resp.Body).Decode(&dicts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(dicts) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(dicts))
	}
}

func TestHandleTransactionNotFound(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.withMiddleware(env.server.routes()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/transactions/" + types.Hash{1}.String())
	if err != nil {
		t.Fatalf("GET transaction: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func signedTestTx(t *testing.T, env *testEnv) *tx.Transaction {
	t.Helper()
	dest, _ := newTestAccount(t)
	t2 := tx.New(env.coinbase, dest, 10, 0)
	if err := t2.Sign(env.key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return t2
}

func TestHandleSubmitTransactionAcceptsValid(t *testing.T) {
	env := newTestEnv(t)
	mineTo(t, env.chain, env.network, env.coinbase, 1)
	srv := httptest.NewServer(env.server.withMiddleware(env.server.routes()))
	defer srv.Close()

	t2 := signedTestTx(t, env)
	body, _ := json.Marshal(map[string]any{"transaction": t2})
	resp, err := http.Post(srv.URL+"/transactions/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /transactions/: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result submitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got reason %q", result.Reason)
	}
	if _, ok := env.pool.Get(t2.Hash()); !ok {
		t.Fatal("expected transaction to be admitted to the mempool")
	}
}

func TestHandleSubmitTransactionRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.withMiddleware(env.server.routes()))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/transactions/", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("POST /transactions/: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotAcceptable {
		t.Fatalf("expected 406, got %d", resp.StatusCode)
	}
}

func TestHandleSubmitTransactionRejectsInvalidSignature(t *testing.T) {
	env := newTestEnv(t)
	mineTo(t, env.chain, env.network, env.coinbase, 1)
	srv := httptest.NewServer(env.server.withMiddleware(env.server.routes()))
	defer srv.Close()

	dest, _ := newTestAccount(t)
	unsigned := tx.New(env.coinbase, dest, 10, 0)
	body, _ := json.Marshal(map[string]any{"transaction": unsigned})
	resp, err := http.Post(srv.URL+"/transactions/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /transactions/: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotAcceptable {
		t.Fatalf("expected 406 for unsigned transaction, got %d", resp.StatusCode)
	}
}

func TestHandleUnconfirmedCountAndByHash(t *testing.T) {
	env := newTestEnv(t)
	mineTo(t, env.chain, env.network, env.coinbase, 1)
	t2 := signedTestTx(t, env)
	if _, err := env.pool.Push(t2); err != nil {
		t.Fatalf("push: %v", err)
	}
	srv := httptest.NewServer(env.server.withMiddleware(env.server.routes()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/unconfirmed_tx/count")
	if err != nil {
		t.Fatalf("GET count: %v", err)
	}
	defer resp.Body.Close()
	var count int
	if err := json.NewDecoder(resp.Body).Decode(&count); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}

	resp2, err := http.Get(srv.URL + "/unconfirmed_tx/" + t2.Hash().String())
	if err != nil {
		t.Fatalf("GET by hash: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp2.StatusCode)
	}
}

func TestWithMiddlewareEnforcesAllowedIPs(t *testing.T) {
	env := newTestEnv(t)
	env.server.allowedNets = parseAllowedIPs([]string{"10.0.0.0/8"})
	srv := httptest.NewServer(env.server.withMiddleware(env.server.routes()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status/")
	if err != nil {
		t.Fatalf("GET /status/: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for disallowed IP, got %d", resp.StatusCode)
	}
}
