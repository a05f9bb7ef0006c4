package p2p

import (
	"context"
	"fmt"

	"github.com/crankycoin/crankycoin-go/internal/chain"
	klog "github.com/crankycoin/crankycoin-go/internal/log"
	"github.com/crankycoin/crankycoin-go/internal/mempool"
	"github.com/crankycoin/crankycoin-go/pkg/block"
	"github.com/crankycoin/crankycoin-go/pkg/tx"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// workKind distinguishes the two inventory message types handled by the
// single inbound dispatcher goroutine.
type workKind int

const (
	workBlockInv workKind = iota
	workTxInv
)

type workItem struct {
	kind   workKind
	peer   string
	hash   types.Hash
	height uint64
	tx     *tx.Transaction
}

// inboundQueueSize bounds the dispatcher's backlog; a peer flooding
// inventory faster than this gets its sends dropped rather than blocking
// the node indefinitely.
const inboundQueueSize = 256

// reconcileBatchSize is the hash-range page size used when walking a
// peer's chain backward to find the fork point, capped at the server's
// own chain.MaxHashesRange.
const reconcileBatchSize = chain.MaxHashesRange

// Syncer implements the peer sync protocol: fork reconciliation, inbound
// inventory dispatch, and outbound broadcast. It is the node's
// miner.Broadcaster.
type Syncer struct {
	self     string
	chain    *chain.Chain
	pool     *mempool.Pool
	registry *Registry
	client   *Client
	bans     *BanManager

	queue chan workItem
}

// NewSyncer creates a syncer. self is this node's own host:port.
func NewSyncer(self string, c *chain.Chain, pool *mempool.Pool, registry *Registry, client *Client, bans *BanManager) *Syncer {
	return &Syncer{
		self:     self,
		chain:    c,
		pool:     pool,
		registry: registry,
		client:   client,
		bans:     bans,
		queue:    make(chan workItem, inboundQueueSize),
	}
}

// Run drains the inbound work queue until ctx is cancelled, processing one
// item at a time so block/tx handling never races with itself.
func (s *Syncer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-s.queue:
			s.process(ctx, item)
		}
	}
}

func (s *Syncer) process(ctx context.Context, item workItem) {
	switch item.kind {
	case workBlockInv:
		s.handleBlockInv(ctx, item.peer, item.hash, item.height)
	case workTxInv:
		s.handleTx(item.peer, item.tx)
	}
}

// enqueue adds item to the inbound queue, dropping it if the queue is
// full rather than blocking the HTTP handler that produced it.
func (s *Syncer) enqueue(item workItem) {
	select {
	case s.queue <- item:
	default:
		klog.P2P.Warn().Str("peer", item.peer).Msg("inbound queue full, dropping message")
	}
}

// OnBlockHeaderAnnounced is called by the inbound HTTP handler when a peer
// announces a new block.
func (s *Syncer) OnBlockHeaderAnnounced(peer string, hash types.Hash, height uint64) {
	s.enqueue(workItem{kind: workBlockInv, peer: peer, hash: hash, height: height})
}

// OnTransactionReceived is called by the inbound HTTP handler when a peer
// submits a transaction.
func (s *Syncer) OnTransactionReceived(peer string, t *tx.Transaction) {
	s.enqueue(workItem{kind: workTxInv, peer: peer, tx: t})
}

func (s *Syncer) handleTx(peer string, t *tx.Transaction) {
	if t == nil {
		return
	}
	ok, err := s.pool.Push(t)
	if err != nil {
		klog.P2P.Debug().Err(err).Str("peer", peer).Str("tx", t.Hash().String()).Msg("rejected peer transaction")
		if s.bans != nil {
			s.bans.RecordOffense(peer, PenaltyInvalidTx, err.Error())
		}
		return
	}
	if ok {
		hash := t.Hash()
		s.broadcastExcept(peer, func(target string) {
			s.client.AnnounceTransaction(context.Background(), target, hash)
		})
	}
}

// OnTransactionInvReceived is called by the inbound HTTP handler when a
// peer announces a transaction hash without the body; the receiver fetches
// the transaction itself before admitting it.
func (s *Syncer) OnTransactionInvReceived(peer string, hash types.Hash) {
	if _, ok := s.pool.Get(hash); ok {
		return
	}
	go func() {
		t, err := s.client.Transaction(context.Background(), peer, hash)
		if err != nil {
			klog.P2P.Debug().Err(err).Str("peer", peer).Str("tx", hash.String()).Msg("fetch announced transaction")
			return
		}
		s.enqueue(workItem{kind: workTxInv, peer: peer, tx: t})
	}()
}

func (s *Syncer) handleBlockInv(ctx context.Context, peer string, hash types.Hash, height uint64) {
	if _, _, _, known := s.chain.GetHeaderByHash(hash); known {
		return
	}

	blk, err := s.client.BlockByHash(ctx, peer, hash)
	if err != nil {
		klog.P2P.Debug().Err(err).Str("peer", peer).Msg("fetch announced block")
		return
	}

	result, err := s.chain.Append(blk)
	if err != nil {
		klog.P2P.Error().Err(err).Msg("append peer block")
		return
	}

	switch result.Status {
	case chain.Orphan:
		if err := s.reconcile(ctx, peer, height); err != nil {
			klog.P2P.Warn().Err(err).Str("peer", peer).Msg("fork reconciliation failed")
		}
	case chain.Rejected:
		if s.bans != nil {
			reason := "block failed validation"
			if result.Reason != nil {
				reason = result.Reason.Error()
			}
			s.bans.RecordOffense(peer, PenaltyInvalidBlock, reason)
		}
	case chain.Applied:
		s.pool.RemoveBatch(result.Removed)
		for _, t := range result.Reentering {
			s.pool.Push(t)
		}
		s.broadcastExcept(peer, func(target string) {
			s.client.AnnounceBlockHeader(context.Background(), target, hash, blk.Height)
		})
	}
}

// reconcile walks backward through peer's chain in batches of up to
// reconcileBatchSize hashes, looking for the first one this node already
// has, then replays every block from that common ancestor forward.
func (s *Syncer) reconcile(ctx context.Context, peer string, peerHeight uint64) error {
	localHeight := s.chain.State().Height
	if peerHeight <= localHeight {
		return nil // Peer isn't actually ahead; nothing to reconcile.
	}

	forkHeight, err := s.findForkPoint(ctx, peer, localHeight, peerHeight)
	if err != nil {
		return fmt.Errorf("find fork point: %w", err)
	}

	for h := forkHeight + 1; h <= peerHeight; h++ {
		blk, err := s.client.BlockByHeight(ctx, peer, fmt.Sprintf("%d", h))
		if err != nil {
			return fmt.Errorf("fetch block %d: %w", h, err)
		}
		result, err := s.chain.Append(blk)
		if err != nil {
			return fmt.Errorf("append block %d: %w", h, err)
		}
		if result.Status == chain.Rejected {
			if s.bans != nil {
				reason := "reconciliation block rejected"
				if result.Reason != nil {
					reason = result.Reason.Error()
				}
				s.bans.RecordOffense(peer, PenaltyInvalidBlock, reason)
			}
			return fmt.Errorf("peer served an invalid block at height %d", h)
		}
	}
	return nil
}

// findForkPoint returns the highest height at or below min(localHeight,
// peerHeight) where this node's hash matches the peer's, searching
// backward in pages of reconcileBatchSize.
func (s *Syncer) findForkPoint(ctx context.Context, peer string, localHeight, peerHeight uint64) (uint64, error) {
	end := localHeight
	if peerHeight < end {
		end = peerHeight
	}

	for {
		start := uint64(0)
		if end >= reconcileBatchSize {
			start = end - reconcileBatchSize + 1
		}

		remote, err := s.client.HashesRange(ctx, peer, start, end)
		if err != nil {
			return 0, err
		}
		local, err := s.chain.GetHashesRange(start, end)
		if err != nil {
			return 0, err
		}

		n := len(remote)
		if len(local) < n {
			n = len(local)
		}
		for i := n - 1; i >= 0; i-- {
			if remote[i] == local[i] {
				return start + uint64(i), nil
			}
		}

		if start == 0 {
			return 0, fmt.Errorf("no common ancestor found with peer %s", peer)
		}
		end = start - 1
	}
}

// broadcastExcept runs fn against every known peer other than exclude,
// concurrently and best-effort.
func (s *Syncer) broadcastExcept(exclude string, fn func(target string)) {
	for _, host := range s.registry.List() {
		if host == exclude {
			continue
		}
		go fn(host)
	}
}

// BroadcastBlockHeader implements miner.Broadcaster: it announces a
// locally mined block to every known peer.
func (s *Syncer) BroadcastBlockHeader(header *block.Header) {
	hash := header.Hash()
	for _, host := range s.registry.List() {
		go s.client.AnnounceBlockHeader(context.Background(), host, hash, 0)
	}
}
