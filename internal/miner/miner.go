// Package miner implements continuous block production: assembling a
// candidate block from the mempool, sealing it against the current
// difficulty target, and submitting it to the chain the same way a block
// received from a peer would be submitted.
package miner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/crankycoin/crankycoin-go/internal/chain"
	"github.com/crankycoin/crankycoin-go/internal/consensus"
	"github.com/crankycoin/crankycoin-go/internal/mempool"
	"github.com/crankycoin/crankycoin-go/pkg/block"
	"github.com/crankycoin/crankycoin-go/pkg/tx"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// tipPollInterval is how often a running mining attempt checks whether the
// chain tip moved out from underneath it. The wire protocol has no push
// notification for "a new block arrived"; polling this often is cheap next
// to the cost of a nonce search and keeps a stale attempt from running for
// more than a fraction of a second past the point it became wasted work.
const tipPollInterval = 200 * time.Millisecond

// Broadcaster announces a newly mined block header to peers so they can
// pull the full block. Implemented by the p2p package.
type Broadcaster interface {
	BroadcastBlockHeader(header *block.Header)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastBlockHeader(*block.Header) {}

// Miner repeatedly assembles, seals, and submits candidate blocks paying
// the reward plus mempool fees to a fixed coinbase account.
type Miner struct {
	chain       *chain.Chain
	pool        *mempool.Pool
	network     consensus.Network
	coinbase    types.Account
	broadcaster Broadcaster
	logger      zerolog.Logger
}

// New creates a miner that pays block rewards to coinbase.
func New(c *chain.Chain, pool *mempool.Pool, network consensus.Network, coinbase types.Account, broadcaster Broadcaster, logger zerolog.Logger) *Miner {
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}
	return &Miner{
		chain:       c,
		pool:        pool,
		network:     network,
		coinbase:    coinbase,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Run mines continuously until ctx is cancelled. Each cycle reads the
// current tip, seals a candidate extending it, and — if the tip hasn't
// moved by the time sealing finishes — submits the result; otherwise the
// candidate is discarded and the next cycle starts from the new tip.
func (m *Miner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		blk, err := m.mineOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error().Err(err).Msg("mining cycle failed")
			continue
		}
		if blk == nil {
			// Preempted by a tip change; restart immediately from the new tip.
			continue
		}

		result, err := m.chain.Append(blk)
		if err != nil {
			m.logger.Error().Err(err).Msg("append mined block")
			continue
		}
		if result.Status != chain.Applied {
			m.logger.Warn().Stringer("status", result.Status).Msg("mined block not applied; tip raced ahead of us")
			continue
		}

		m.pool.RemoveBatch(result.Removed)
		for _, t := range result.Reentering {
			if _, err := m.pool.Push(t); err != nil {
				m.logger.Debug().Err(err).Str("tx", t.Hash().String()).Msg("reentering transaction not re-admitted")
			}
		}

		m.logger.Info().
			Uint64("height", blk.Height).
			Str("hash", blk.Hash().String()).
			Int("txs", len(blk.Transactions)).
			Msg("mined block")
		m.broadcaster.BroadcastBlockHeader(blk.Header)
	}
}

// mineOnce assembles a candidate extending the current tip and seals it,
// returning nil if the tip changes before a valid nonce is found.
func (m *Miner) mineOnce(ctx context.Context) (*block.Block, error) {
	state := m.chain.State()
	tip, err := m.chain.GetTip()
	if err != nil {
		return nil, fmt.Errorf("read tip: %w", err)
	}
	height := state.Height + 1

	required, err := m.network.PoW().RequiredDifficulty(height, m.chain.TimestampAndDifficulty)
	if err != nil {
		return nil, fmt.Errorf("required difficulty: %w", err)
	}

	candidate, included := m.assembleCandidate(tip, height, state.Supply)

	sealCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go m.watchTip(sealCtx, cancel, state.TipHash)

	if err := m.network.PoW().SealWithCancel(sealCtx, candidate, required); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// sealCtx was cancelled by watchTip, not by the caller: the tip
		// moved under us, not a real error. Restart from the new tip.
		return nil, nil
	}

	_ = included
	return candidate, nil
}

// watchTip cancels cancel once the chain tip no longer matches baseline.
func (m *Miner) watchTip(ctx context.Context, cancel context.CancelFunc, baseline types.Hash) {
	ticker := time.NewTicker(tipPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.chain.State().TipHash != baseline {
				cancel()
				return
			}
		}
	}
}

// assembleCandidate builds an unsealed block extending tip at height,
// selecting the highest-fee mempool transactions that fit and prepending a
// coinbase paying the block reward plus their fees. It returns the
// candidate and the non-coinbase transactions it includes. Run drops
// confirmed transactions from the mempool using the chain's append result,
// not this list.
func (m *Miner) assembleCandidate(tip *block.Header, height, supply uint64) (*block.Block, []*tx.Transaction) {
	limit := m.network.MaxTransactionsPerBlock - 1
	if limit < 0 {
		limit = 0
	}
	selected := m.pool.TakeChunk(limit)

	var fees uint64
	for _, t := range selected {
		fees += t.Fee
	}

	reward := m.network.Reward(height)
	coinbase := &tx.Transaction{
		Source:      types.CoinbaseSource,
		Destination: m.coinbase,
		Amount:      reward + fees,
		Timestamp:   time.Now().Unix(),
		TxType:      tx.TxTypeCoinbase,
		Asset:       tx.DefaultAsset,
		PrevHash:    supplyMarker(supply, height),
	}

	all := make([]*tx.Transaction, 0, 1+len(selected))
	all = append(all, coinbase)
	all = append(all, selected...)

	candidate := block.New(height, all, tip.Hash(), time.Now())
	return candidate, selected
}

// supplyMarker encodes height into the coinbase's otherwise-unused
// PrevHash field so that two coinbases paying the same account at
// different heights never collide on transaction hash.
func supplyMarker(supply, height uint64) string {
	return fmt.Sprintf("%d:%d", height, supply)
}
