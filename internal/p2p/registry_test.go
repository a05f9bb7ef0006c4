package p2p

import (
	"testing"
	"time"

	"github.com/crankycoin/crankycoin-go/internal/storage"
)

func TestRegistryAddRejectsSelf(t *testing.T) {
	r := NewRegistry("self:9000", nil, 1, 8)
	if r.Add("self:9000", "seed") {
		t.Fatal("adding self must be rejected")
	}
	if r.Count() != 0 {
		t.Fatalf("expected 0 peers, got %d", r.Count())
	}
}

func TestRegistryAddRespectsCapacity(t *testing.T) {
	r := NewRegistry("self:0", nil, 1, 2)
	if !r.Add("a:1", "seed") {
		t.Fatal("expected a:1 to be added")
	}
	if !r.Add("b:1", "seed") {
		t.Fatal("expected b:1 to be added")
	}
	if r.Add("c:1", "seed") {
		t.Fatal("expected c:1 to be rejected at capacity")
	}
	if r.Count() != 2 {
		t.Fatalf("expected 2 peers, got %d", r.Count())
	}
}

func TestRegistryAddIsIdempotent(t *testing.T) {
	r := NewRegistry("self:0", nil, 1, 8)
	r.Add("a:1", "seed")
	r.Add("a:1", "discovered")
	if r.Count() != 1 {
		t.Fatalf("re-adding a known peer must not grow the registry, got count %d", r.Count())
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry("self:0", nil, 1, 8)
	r.Add("a:1", "seed")
	r.Remove("a:1")
	if r.Count() != 0 {
		t.Fatalf("expected 0 peers after remove, got %d", r.Count())
	}
}

func TestRegistryNeedsMorePeers(t *testing.T) {
	r := NewRegistry("self:0", nil, 3, 8)
	if !r.NeedsMorePeers() {
		t.Fatal("empty registry below minimum should need more peers")
	}
	r.Add("a:1", "seed")
	r.Add("b:1", "seed")
	r.Add("c:1", "seed")
	if r.NeedsMorePeers() {
		t.Fatal("registry at minimum should not need more peers")
	}
}

func TestRegistryAtCapacity(t *testing.T) {
	r := NewRegistry("self:0", nil, 1, 1)
	if r.AtCapacity() {
		t.Fatal("empty registry should not be at capacity")
	}
	r.Add("a:1", "seed")
	if !r.AtCapacity() {
		t.Fatal("registry at max should report at capacity")
	}
}

func TestRegistryLoadPersistedSkipsSelfAndStale(t *testing.T) {
	store := NewPeerStore(storage.NewMemory())
	store.Save(PeerRecord{Host: "self:0", LastSeen: time.Now().Unix()})
	store.Save(PeerRecord{Host: "peer:1", LastSeen: time.Now().Unix()})

	r := NewRegistry("self:0", store, 1, 8)
	r.LoadPersisted()

	if r.Count() != 1 {
		t.Fatalf("expected 1 restored peer, got %d", r.Count())
	}
	list := r.List()
	if len(list) != 1 || list[0] != "peer:1" {
		t.Fatalf("unexpected restored peer list: %v", list)
	}
}
