package p2p

import (
	"sync"
	"time"

	klog "github.com/crankycoin/crankycoin-go/internal/log"
)

// Registry holds the set of peers this node actively talks to, backed by a
// PeerStore for durability across restarts. All peer bookkeeping a node
// needs besides the wire protocol itself — add/remove, capacity, discovery
// of new peers through known ones — lives here.
type Registry struct {
	mu       sync.RWMutex
	self     string
	peers    map[string]*Peer
	store    *PeerStore // nil disables persistence (unit tests)
	minPeers int
	maxPeers int
}

// NewRegistry creates a peer registry. store may be nil to disable
// persistence.
func NewRegistry(self string, store *PeerStore, minPeers, maxPeers int) *Registry {
	return &Registry{
		self:     self,
		peers:    make(map[string]*Peer),
		store:    store,
		minPeers: minPeers,
		maxPeers: maxPeers,
	}
}

// LoadPersisted restores the peer set from the store, pruning entries
// older than staleThreshold first.
func (r *Registry) LoadPersisted() {
	if r.store == nil {
		return
	}
	r.store.PruneStale(staleThreshold)
	records, err := r.store.LoadAll()
	if err != nil {
		klog.P2P.Warn().Err(err).Msg("load persisted peers")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		if rec.Host == r.self {
			continue
		}
		r.peers[rec.Host] = &Peer{
			Host:        rec.Host,
			ConnectedAt: time.Unix(rec.LastSeen, 0),
			Source:      rec.Source,
		}
	}
}

// Add registers host as a known peer, unless it is this node or the
// registry is already at capacity. Returns whether it was added.
func (r *Registry) Add(host, source string) bool {
	if host == r.self {
		return false
	}
	r.mu.Lock()
	if _, exists := r.peers[host]; exists {
		r.peers[host].ConnectedAt = time.Now()
		r.mu.Unlock()
		return true
	}
	if len(r.peers) >= r.maxPeers {
		r.mu.Unlock()
		return false
	}
	r.peers[host] = &Peer{Host: host, ConnectedAt: time.Now(), Source: source}
	r.mu.Unlock()

	if r.store != nil {
		r.store.Save(PeerRecord{Host: host, LastSeen: time.Now().Unix(), Source: source})
	}
	return true
}

// Remove evicts a peer, e.g. after a ban or repeated unreachability.
func (r *Registry) Remove(host string) {
	r.mu.Lock()
	delete(r.peers, host)
	r.mu.Unlock()
	if r.store != nil {
		r.store.Delete(host)
	}
}

// List returns a snapshot of known peer hosts.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hosts := make([]string, 0, len(r.peers))
	for h := range r.peers {
		hosts = append(hosts, h)
	}
	return hosts
}

// Count returns the number of known peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// NeedsMorePeers reports whether the registry is below its configured
// minimum and discovery should run.
func (r *Registry) NeedsMorePeers() bool {
	return r.Count() < r.minPeers
}

// AtCapacity reports whether adding another peer would exceed the maximum.
func (r *Registry) AtCapacity() bool {
	return r.Count() >= r.maxPeers
}
