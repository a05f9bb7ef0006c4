// Package rpc implements the node's public-facing REST API: balance and
// transaction history lookups, transaction submission, confirmed
// transaction lookup by hash, and mempool listing. It serves no block
// routes and never serves the peer sync protocol — that is
// internal/p2p, bound to its own port.
package rpc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/crankycoin/crankycoin-go/internal/chain"
	"github.com/crankycoin/crankycoin-go/internal/consensus"
	klog "github.com/crankycoin/crankycoin-go/internal/log"
	"github.com/crankycoin/crankycoin-go/internal/mempool"
	"github.com/crankycoin/crankycoin-go/internal/p2p"
	"github.com/rs/zerolog"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// RPCConfig controls IP filtering and CORS for the public API.
type RPCConfig struct {
	AllowedIPs  []string
	CORSOrigins []string
}

// Server is the public REST API server.
type Server struct {
	addr        string
	network     consensus.Network
	chain       *chain.Chain
	pool        *mempool.Pool
	registry    *p2p.Registry
	peerClient  *p2p.Client
	banManager  *p2p.BanManager
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet
	corsOrigins []string
}

// New creates a new RPC server. peerClient is used to gossip a
// client-submitted transaction onward to known peers once it is admitted
// (nil disables gossip, e.g. in tests that only exercise the HTTP
// surface). A zero-value RPCConfig allows all IPs and disables CORS.
func New(addr string, network consensus.Network, c *chain.Chain, pool *mempool.Pool, registry *p2p.Registry, peerClient *p2p.Client, bans *p2p.BanManager, rpcCfg ...RPCConfig) *Server {
	s := &Server{
		addr:       addr,
		network:    network,
		chain:      c,
		pool:       pool,
		registry:   registry,
		peerClient: peerClient,
		banManager: bans,
		logger:     klog.WithComponent("rpc"),
	}

	if len(rpcCfg) > 0 {
		s.allowedNets = parseAllowedIPs(rpcCfg[0].AllowedIPs)
		s.corsOrigins = rpcCfg[0].CORSOrigins
	}

	s.server = &http.Server{
		Handler:      s.withMiddleware(s.routes()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// routes builds the public REST route table.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status/", s.handleStatus)
	mux.HandleFunc("GET /nodes/", s.handleNodes)
	mux.HandleFunc("GET /address/{addr}/balance", s.handleAddressBalance)
	mux.HandleFunc("GET /address/{addr}/transactions", s.handleAddressTransactions)
	mux.HandleFunc("GET /transactions/{hash}", s.handleTransaction)
	mux.HandleFunc("GET /unconfirmed_tx/", s.handleUnconfirmedList)
	mux.HandleFunc("GET /unconfirmed_tx/count", s.handleUnconfirmedCount)
	mux.HandleFunc("GET /unconfirmed_tx/{hash}", s.handleUnconfirmedByHash)
	mux.HandleFunc("POST /transactions/", s.handleSubmitTransaction)
	return mux
}

// withMiddleware wraps next with IP filtering, CORS, and the ban check.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedNets) > 0 {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			ip := net.ParseIP(host)
			if ip == nil || !s.isIPAllowed(ip) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		if s.banManager != nil && s.banManager.IsBanned(r.RemoteAddr) {
			http.Error(w, "banned", http.StatusForbidden)
			return
		}

		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		next.ServeHTTP(w, r)
	})
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			break
		}
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// Start begins listening and serving in a background goroutine. It
// returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
