// Package node wires together storage, chain, mempool, peer sync, mining,
// and the public REST API into a single runnable blockchain node.
package node

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/crankycoin/crankycoin-go/config"
	"github.com/crankycoin/crankycoin-go/internal/chain"
	"github.com/crankycoin/crankycoin-go/internal/consensus"
	klog "github.com/crankycoin/crankycoin-go/internal/log"
	"github.com/crankycoin/crankycoin-go/internal/mempool"
	"github.com/crankycoin/crankycoin-go/internal/miner"
	"github.com/crankycoin/crankycoin-go/internal/p2p"
	"github.com/crankycoin/crankycoin-go/internal/rpc"
	"github.com/crankycoin/crankycoin-go/internal/storage"
	"github.com/crankycoin/crankycoin-go/pkg/crypto"
	"github.com/rs/zerolog"
)

// seedRetryInterval is how often Start retries connecting to configured
// seed peers that haven't joined the registry yet.
const seedRetryInterval = 30 * time.Second

// Node is a fully-initialized blockchain node.
type Node struct {
	cfg     *config.Config
	network consensus.Network
	logger  zerolog.Logger

	// Core
	db   storage.DB
	ch   *chain.Chain
	pool *mempool.Pool

	// Peer sync
	registry   *p2p.Registry
	banManager *p2p.BanManager
	client     *p2p.Client
	syncer     *p2p.Syncer
	p2pServer  *http.Server
	p2pLn      net.Listener

	// Public REST API
	rpcServer *rpc.Server

	// Mining
	signingKey *crypto.PrivateKey

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a new Node: it opens storage, the chain,
// the mempool, and builds the peer-sync and RPC servers, but does not
// start listening or any background goroutine. Call Start for that.
func New(cfg *config.Config) (*Node, error) {
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = logsDir + "/crankynode.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	network, err := config.NetworkParams(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("network params: %w", err)
	}
	genesisTimestamp, err := config.GenesisTimestamp(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("genesis timestamp: %w", err)
	}

	logger.Info().
		Str("network", string(cfg.Network)).
		Uint32("version", network.Version).
		Int("minimum_difficulty", network.MinimumHashDifficulty).
		Msg("Starting crankycoin node")

	db, err := storage.NewBadger(cfg.ChainDBDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.ChainDBDir(), err)
	}
	logger.Info().Str("path", cfg.ChainDBDir()).Msg("Database opened")

	ch, err := chain.Open(db, network, genesisTimestamp)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open chain: %w", err)
	}
	pool := mempool.New(ch, 0)

	var signingKey *crypto.PrivateKey
	if cfg.Mining.Enabled && cfg.Mining.Coinbase == "" {
		signingKey, err = loadOrGenerateSigningKey(cfg)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("load signing key: %w", err)
		}
	}

	p2pDB := storage.NewPrefixDB(db, []byte("p2p/"))
	peerStore := p2p.NewPeerStore(p2pDB)
	banStore := p2p.NewBanStore(p2pDB)

	self := advertisedAddr(cfg.P2P.ListenAddr, cfg.P2P.Port)
	registry := p2p.NewRegistry(self, peerStore, cfg.P2P.MinPeers, cfg.P2P.MaxPeers)
	registry.LoadPersisted()
	banManager := p2p.NewBanManager(banStore, registry)
	banManager.LoadBans()
	if cfg.P2P.ClearBans {
		logger.Info().Msg("clearing peer bans on startup")
		for _, rec := range banManager.BanList() {
			banManager.Unban(rec.Host)
		}
	}
	client := p2p.NewClient(self)
	syncer := p2p.NewSyncer(self, ch, pool, registry, client, banManager)
	p2pHandler := p2p.NewServer(network, ch, pool, registry, banManager, syncer).Handler()

	rpcAddr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
	rpcServer := rpc.New(rpcAddr, network, ch, pool, registry, client, banManager, rpc.RPCConfig{
		AllowedIPs:  cfg.RPC.AllowedIPs,
		CORSOrigins: cfg.RPC.CORSOrigins,
	})

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		cfg:        cfg,
		network:    network,
		logger:     logger,
		db:         db,
		ch:         ch,
		pool:       pool,
		registry:   registry,
		banManager: banManager,
		client:     client,
		syncer:     syncer,
		p2pServer: &http.Server{
			Handler:      p2pHandler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		rpcServer:  rpcServer,
		signingKey: signingKey,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start begins listening for peer connections and RPC requests and, if
// mining is enabled, starts block production. It returns once every
// listener is bound; long-running work continues in background
// goroutines tracked by n.wg.
func (n *Node) Start() error {
	if n.cfg.P2P.Enabled {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", n.cfg.P2P.ListenAddr, n.cfg.P2P.Port))
		if err != nil {
			return fmt.Errorf("p2p listen: %w", err)
		}
		n.p2pLn = ln

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.p2pServer.Serve(ln); err != nil && err != http.ErrServerClosed {
				n.logger.Error().Err(err).Msg("p2p server error")
			}
		}()

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.syncer.Run(n.ctx)
		}()

		for _, seed := range n.cfg.P2P.Seeds {
			n.registry.Add(seed, "seed")
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runSeedLoop()
		}()
	}

	if err := n.rpcServer.Start(); err != nil {
		return fmt.Errorf("start rpc server: %w", err)
	}

	if n.cfg.Mining.Enabled {
		coinbase, err := n.resolveCoinbase()
		if err != nil {
			return fmt.Errorf("resolve coinbase: %w", err)
		}

		m := miner.New(n.ch, n.pool, n.network, coinbase, n.syncer, klog.WithComponent("miner"))
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			m.Run(n.ctx)
		}()

		n.logger.Info().Str("coinbase", string(coinbase)).Msg("block production enabled")
	}

	n.logger.Info().
		Uint64("height", n.ch.State().Height).
		Str("tip", n.ch.State().TipHash.String()).
		Bool("mining", n.cfg.Mining.Enabled).
		Msg("node started")

	return nil
}

// Stop performs graceful shutdown in reverse order: stop accepting new
// work, wait for in-flight goroutines, then tear down servers and
// storage.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()

	if err := n.rpcServer.Stop(); err != nil {
		n.logger.Warn().Err(err).Msg("rpc server shutdown")
	}
	if n.p2pServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.p2pServer.Shutdown(ctx); err != nil {
			n.logger.Warn().Err(err).Msg("p2p server shutdown")
		}
	}
	if n.signingKey != nil {
		n.signingKey.Zero()
	}
	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("node stopped")
}

// RPCAddr returns the address the public REST API is listening on.
func (n *Node) RPCAddr() string {
	return n.rpcServer.Addr()
}

// P2PAddr returns the address the peer sync server is listening on.
func (n *Node) P2PAddr() string {
	if n.p2pLn != nil {
		return n.p2pLn.Addr().String()
	}
	return ""
}

// Height returns the current chain height.
func (n *Node) Height() uint64 {
	return n.ch.State().Height
}

// runSeedLoop periodically tops up the peer registry from configured
// seeds until it reaches its minimum peer count, then backs off to a
// slow poll — peer discovery beyond the configured seed list happens
// through registry gossip (GET /nodes/), not here.
func (n *Node) runSeedLoop() {
	ticker := time.NewTicker(seedRetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
		}
		if !n.registry.NeedsMorePeers() {
			continue
		}
		for _, seed := range n.cfg.P2P.Seeds {
			if ok, err := n.client.Connect(n.ctx, seed); err == nil && ok {
				n.registry.Add(seed, "seed")
			}
		}
		n.discoverFromPeers()
	}
}

// discoverFromPeers asks every currently-registered peer for its own
// peer list and adds any newly-seen hosts, the same gossip the /nodes/
// endpoint exposes to the rest of the network.
func (n *Node) discoverFromPeers() {
	if !n.registry.NeedsMorePeers() {
		return
	}
	for _, host := range n.registry.List() {
		hosts, err := n.client.Nodes(n.ctx, host)
		if err != nil {
			continue
		}
		for _, h := range hosts {
			n.registry.Add(h, "gossip")
		}
	}
}
