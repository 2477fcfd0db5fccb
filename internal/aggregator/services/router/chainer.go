package router

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/hxuan190/evm-quote-engine/internal/aggregator/services/state"
	"github.com/hxuan190/evm-quote-engine/internal/domain"
)

// ChainExecutor runs a multi-segment route on a private branch of the ledger.
//
// In mode feeds each segment's output into the next one, first to last.
// Out mode walks last to first: each segment is asked for the output the following segment needs as input.
// Every segment's delta is committed to the branch before the next segment runs.
type ChainExecutor struct {
	segments []Executor
}

func NewChainExecutor(segments []Executor) *ChainExecutor {
	return &ChainExecutor{segments: segments}
}

func (c *ChainExecutor) Execute(ctx context.Context, ledger state.Ledger, amount *uint256.Int, mode domain.SwapMode) (*domain.SwapResult, error) {
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("%w: zero swap amount", domain.ErrArithmeticInvalid)
	}
	if len(c.segments) == 0 {
		return nil, fmt.Errorf("%w: empty segment chain", domain.ErrInvalidRoute)
	}

	branch := ledger.Branch()
	combined := domain.StateDelta{}
	current := new(uint256.Int).Set(amount)

	for step := range c.segments {
		i := step
		if mode == domain.SwapModeOut {
			i = len(c.segments) - 1 - step
		}

		res, err := c.segments[i].Execute(ctx, branch, current, mode)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		branch.Commit(res.Delta)
		combined.Merge(res.Delta)
		current = res.Amount
	}

	return &domain.SwapResult{Amount: current, Delta: combined}, nil
}
