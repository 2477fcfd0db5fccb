package router

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/hxuan190/evm-quote-engine/internal/aggregator/services/state"
	"github.com/hxuan190/evm-quote-engine/internal/domain"
)

// Executor simulates a swap of amount through one route or segment against ledger.
// The ledger is never mutated; the returned delta is what committing the swap would apply.
//
// Reverts, halts and swaps that settle nothing fail with an error matching domain.ErrRouteUnavailable.
// Any other error is a session-level failure such as domain.ErrOracleUnavailable.
type Executor interface {
	Execute(ctx context.Context, ledger state.Ledger, amount *uint256.Int, mode domain.SwapMode) (*domain.SwapResult, error)
}

// NewRouteExecutor returns the executor for route: the venue call itself for single-variant routes,
// a segment chain otherwise.
func NewRouteExecutor(venues *Venues, route domain.Route) (Executor, error) {
	segments := SegmentRoute(route)
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: route %q has no pools", domain.ErrInvalidRoute, route.Name())
	}

	execs := make([]Executor, len(segments))
	for i, seg := range segments {
		execs[i] = &SegmentExecutor{venues: venues, segment: seg}
	}
	if len(execs) == 1 {
		return execs[0], nil
	}
	return NewChainExecutor(execs), nil
}

// SegmentExecutor runs one homogeneous segment as a single aggregate router call.
type SegmentExecutor struct {
	venues  *Venues
	segment domain.Segment
}

func NewSegmentExecutor(venues *Venues, segment domain.Segment) *SegmentExecutor {
	return &SegmentExecutor{venues: venues, segment: segment}
}

func (e *SegmentExecutor) Segment() domain.Segment {
	return e.segment
}

func (e *SegmentExecutor) Execute(ctx context.Context, ledger state.Ledger, amount *uint256.Int, mode domain.SwapMode) (*domain.SwapResult, error) {
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("%w: zero swap amount", domain.ErrArithmeticInvalid)
	}

	caller := ledger.Caller()
	data, err := e.venues.EncodeSwap(e.segment, caller, amount, mode)
	if err != nil {
		return nil, err
	}

	receipt, err := ledger.Transact(ctx, state.Message{
		To:   e.venues.Router(),
		Data: data,
		Gas:  e.venues.GasLimit(),
	})
	if err != nil {
		return nil, err
	}
	if err := receipt.Err(); err != nil {
		return nil, fmt.Errorf("%s segment: %w", e.segment.Variant, err)
	}

	settled := e.venues.Settled(receipt.Logs, e.segment, caller, mode)
	if settled.IsZero() {
		return nil, fmt.Errorf("%w: %s segment settled no %s transfer", domain.ErrRouteUnavailable, e.segment.Variant, mode)
	}
	return &domain.SwapResult{Amount: settled, Delta: receipt.Delta}, nil
}
