// Package consensus implements proof-of-work mining and block validation:
// difficulty retargeting, block reward schedule, and the full validation
// pipeline a block must pass before it is appended to the chain store.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/crankycoin/crankycoin-go/pkg/block"
)

// PoW errors.
var (
	ErrInsufficientWork = errors.New("hash does not meet required difficulty")
	ErrNilBlock         = errors.New("nil block or header")
)

// PoW implements proof-of-work mining and difficulty bookkeeping. A PoW
// value holds only network-wide constants — all per-block difficulty is
// derived from chain history via RequiredDifficulty, never stored on PoW
// itself, so one PoW instance is shared by both the miner and every
// validator goroutine.
type PoW struct {
	MinimumDifficulty  int    // floor for leading-zero hex count (network.minimum_hash_difficulty)
	TargetTimePerBlock int64  // seconds (network.target_time_per_block)
	AdjustmentSpan     uint64 // blocks per retarget (network.difficulty_adjustment_span)

	// Threads controls the number of parallel mining goroutines used by
	// Seal/SealWithCancel. 0 or 1 = single-threaded.
	Threads int
}

// NewPoW creates a PoW engine from network parameters.
func NewPoW(minimumDifficulty int, targetTimePerBlock int64, adjustmentSpan uint64) *PoW {
	return &PoW{
		MinimumDifficulty:  minimumDifficulty,
		TargetTimePerBlock: targetTimePerBlock,
		AdjustmentSpan:     adjustmentSpan,
	}
}

// HeightLookup retrieves the timestamp and hash difficulty (leading-zero hex
// count of its header hash) of the main-chain block at the given height. Implemented by the chain
// store; kept as a function type here so consensus never imports chain.
type HeightLookup func(height uint64) (timestamp uint64, difficulty int, err error)

// RequiredDifficulty computes the minimum leading-zero hex count a block at
// the given height must meet.
//
// If height is at or before the first adjustment span, the network
// minimum applies unconditionally. Otherwise the wall-clock span between
// the previous block and the block AdjustmentSpan heights before it is
// compared to the target span; blocks arriving faster than target raise
// difficulty by one, slower lowers it by one, within tolerance leaves it
// unchanged. The result never drops below MinimumDifficulty.
func (p *PoW) RequiredDifficulty(height uint64, lookup HeightLookup) (int, error) {
	if height <= p.AdjustmentSpan {
		return p.MinimumDifficulty, nil
	}

	prevHeight := height - 1
	prevTimestamp, prevDifficulty, err := lookup(prevHeight)
	if err != nil {
		return 0, fmt.Errorf("required difficulty: previous block: %w", err)
	}
	spanStartTimestamp, _, err := lookup(prevHeight - p.AdjustmentSpan)
	if err != nil {
		return 0, fmt.Errorf("required difficulty: span start block: %w", err)
	}

	timestampDelta := int64(prevTimestamp) - int64(spanStartTimestamp)
	targetSpan := p.TargetTimePerBlock * int64(p.AdjustmentSpan)

	next := prevDifficulty
	switch {
	case timestampDelta < targetSpan:
		next = prevDifficulty + 1
	case timestampDelta > targetSpan:
		next = prevDifficulty - 1
	}
	if next < p.MinimumDifficulty {
		next = p.MinimumDifficulty
	}
	return next, nil
}

// VerifyHeader checks that the block header's hash meets the required
// leading-zero hex count.
func VerifyHeader(header *block.Header, required int) error {
	if header.HashDifficulty() < required {
		return fmt.Errorf("%w: has %d, need %d", ErrInsufficientWork, header.HashDifficulty(), required)
	}
	return nil
}

// Seal mines blk by iterating its header's nonce until the header hash
// meets the required difficulty.
func (p *PoW) Seal(blk *block.Block, required int) error {
	return p.SealWithCancel(context.Background(), blk, required)
}

// SealWithCancel mines with cancellation support — the miner calls this so
// it can abandon a candidate block when the chain tip advances underneath
// it (the preemption rule).
func (p *PoW) SealWithCancel(ctx context.Context, blk *block.Block, required int) error {
	if blk == nil || blk.Header == nil {
		return ErrNilBlock
	}

	threads := p.Threads
	if threads <= 1 {
		return p.sealSingle(ctx, blk, required)
	}
	return p.sealParallel(ctx, blk, required, threads)
}

func (p *PoW) sealSingle(ctx context.Context, blk *block.Block, required int) error {
	for nonce := uint64(0); ; nonce++ {
		if nonce&0xFFFF == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		blk.Header.Nonce = nonce
		if blk.Header.HashDifficulty() >= required {
			return nil
		}
		if nonce == ^uint64(0) {
			return fmt.Errorf("nonce space exhausted")
		}
	}
}

func (p *PoW) sealParallel(ctx context.Context, blk *block.Block, required, threads int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		nonce uint64
		err   error
	}
	found := make(chan result, 1)
	header := blk.Header

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		startNonce := uint64(i)
		stride := uint64(threads)
		go func() {
			defer wg.Done()
			localHeader := *header
			for nonce := startNonce; ; nonce += stride {
				if (nonce/stride)&0xFFFF == 0 && nonce > 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}

				localHeader.Nonce = nonce
				if localHeader.HashDifficulty() >= required {
					select {
					case found <- result{nonce: nonce}:
					default:
					}
					cancel()
					return
				}

				if nonce > ^uint64(0)-stride {
					select {
					case found <- result{err: fmt.Errorf("nonce space exhausted")}:
					default:
					}
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(found)
	}()

	select {
	case r, ok := <-found:
		if !ok {
			return fmt.Errorf("nonce space exhausted")
		}
		if r.err != nil {
			return r.err
		}
		blk.Header.Nonce = r.nonce
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// rewardPrecision computes 10^digits.
func rewardPrecision(digits uint) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
}

// Reward computes the coinbase reward for a block at the given height
// using fixed-point integer arithmetic — never floating point, per the
// network's reward schedule:
//
//	reward(height) = floor(initialCoins * 10^sigDigits / 2^(height/halvingFreq)) / 10^sigDigits
func Reward(height, initialCoinsPerBlock, halvingFrequency uint64, significantDigits uint) uint64 {
	if halvingFrequency == 0 {
		return initialCoinsPerBlock
	}
	halvings := height / halvingFrequency

	precision := rewardPrecision(significantDigits)
	scaled := new(big.Int).Mul(new(big.Int).SetUint64(initialCoinsPerBlock), precision)

	divisor := new(big.Int).Lsh(big.NewInt(1), uint(halvings))
	scaled.Div(scaled, divisor)
	scaled.Div(scaled, precision)

	if !scaled.IsUint64() {
		return 0
	}
	return scaled.Uint64()
}
