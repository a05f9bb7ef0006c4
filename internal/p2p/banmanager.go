package p2p

import (
	"sync"
	"time"

	klog "github.com/crankycoin/crankycoin-go/internal/log"
)

// Ban thresholds and durations.
const (
	BanThreshold = 100 // Score at which a peer gets banned.
	BanDuration  = 24 * time.Hour
)

// Penalty values for different offenses, applied when an inbound sync
// message from a peer turns out to be invalid.
const (
	PenaltyInvalidBlock       = 50  // Failed consensus validation.
	PenaltyInvalidTx          = 20  // Failed mempool admission.
	PenaltyStatusMismatch     = 100 // Instant ban (genesis/network mismatch).
	PenaltyUnresponsiveFollow = 10  // Claimed a range it couldn't serve.
)

// BanManager tracks peer offense scores and manages bans. A banned host is
// removed from the active registry and rejected at every inbound endpoint
// until its ban expires.
type BanManager struct {
	mu       sync.RWMutex
	scores   map[string]int        // In-memory scores.
	bans     map[string]*BanRecord // In-memory ban cache.
	store    *BanStore             // Persistence (nil for tests).
	registry *Registry             // For removing a newly banned peer (nil in unit tests).
}

// NewBanManager creates a new BanManager. store may be nil to disable
// persistence. registry may be nil if eviction-on-ban is not needed.
func NewBanManager(store *BanStore, registry *Registry) *BanManager {
	return &BanManager{
		scores:   make(map[string]int),
		bans:     make(map[string]*BanRecord),
		store:    store,
		registry: registry,
	}
}

// LoadBans restores persisted bans from the store into the in-memory cache.
func (bm *BanManager) LoadBans() {
	if bm.store == nil {
		return
	}
	bm.store.PruneExpired()

	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.store.ForEach(func(rec *BanRecord) error {
		if !rec.IsExpired() {
			bm.bans[rec.Host] = rec
		}
		return nil
	})
}

// RecordOffense adds a penalty score to a host. If the cumulative score
// reaches BanThreshold, the host is banned and evicted from the registry.
func (bm *BanManager) RecordOffense(host string, penalty int, reason string) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if rec, ok := bm.bans[host]; ok && !rec.IsExpired() {
		return
	}

	bm.scores[host] += penalty
	if bm.scores[host] < BanThreshold {
		return
	}

	now := time.Now()
	rec := &BanRecord{
		Host:      host,
		Reason:    reason,
		Score:     bm.scores[host],
		BannedAt:  now.Unix(),
		ExpiresAt: now.Add(BanDuration).Unix(),
	}
	bm.bans[host] = rec
	delete(bm.scores, host)

	if bm.store != nil {
		bm.store.Put(rec)
	}

	klog.P2P.Warn().
		Str("peer", host).
		Str("reason", reason).
		Int("score", rec.Score).
		Msg("peer banned")

	if bm.registry != nil {
		bm.registry.Remove(host)
	}
}

// IsBanned returns true if the host is currently banned.
func (bm *BanManager) IsBanned(host string) bool {
	bm.mu.RLock()
	rec, ok := bm.bans[host]
	bm.mu.RUnlock()

	if !ok {
		return false
	}
	if rec.IsExpired() {
		bm.mu.Lock()
		delete(bm.bans, host)
		bm.mu.Unlock()
		if bm.store != nil {
			bm.store.Delete(host)
		}
		return false
	}
	return true
}

// Unban manually removes a ban.
func (bm *BanManager) Unban(host string) {
	bm.mu.Lock()
	delete(bm.bans, host)
	delete(bm.scores, host)
	bm.mu.Unlock()

	if bm.store != nil {
		bm.store.Delete(host)
	}
}

// BanList returns a snapshot of all active bans.
func (bm *BanManager) BanList() []BanRecord {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	var list []BanRecord
	for _, rec := range bm.bans {
		if !rec.IsExpired() {
			list = append(list, *rec)
		}
	}
	return list
}

// RunPruneLoop periodically prunes expired bans until done is closed.
func (bm *BanManager) RunPruneLoop(done <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			bm.pruneExpired()
		}
	}
}

func (bm *BanManager) pruneExpired() {
	bm.mu.Lock()
	var expired []string
	for host, rec := range bm.bans {
		if rec.IsExpired() {
			expired = append(expired, host)
		}
	}
	for _, host := range expired {
		delete(bm.bans, host)
	}
	bm.mu.Unlock()

	if bm.store != nil {
		bm.store.PruneExpired()
	}
}
