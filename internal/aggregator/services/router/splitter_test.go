package router

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/evm-quote-engine/internal/domain"
)

var (
	poolA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	poolB = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func TestQuoteSingleRouteSingleSplitMatchesDirectExecution(t *testing.T) {
	ctx := context.Background()
	ledger := newMemLedger()
	ledger.setReserves(poolA, 1_000_000, 2_000_000)
	route := &cpmmExecutor{pool: poolA}

	direct, err := route.Execute(ctx, ledger.Branch(), uint256.NewInt(5_000), domain.SwapModeIn)
	require.NoError(t, err)

	alloc, err := NewAggregator(ledger, []Executor{route}).Quote(ctx, uint256.NewInt(5_000), domain.SwapModeIn, 1)
	require.NoError(t, err)
	require.Len(t, alloc.Amounts, 1)
	assert.Equal(t, direct.Amount, alloc.Amounts[0])
	require.Len(t, alloc.Fills, 1)
}

func TestQuoteConservesAmount(t *testing.T) {
	ctx := context.Background()
	ledger := newMemLedger()
	ledger.setReserves(poolA, 1_000_000, 1_000_000)
	ledger.setReserves(poolB, 800_000, 800_000)

	amount := uint256.NewInt(100_003)
	agg := NewAggregator(ledger, []Executor{&cpmmExecutor{pool: poolA}, &cpmmExecutor{pool: poolB}}, WithParallelism(2))
	alloc, err := agg.Quote(ctx, amount, domain.SwapModeIn, 10)
	require.NoError(t, err)

	chunk, remainder := SplitAmount(amount, 10)
	assert.Equal(t, uint64(10_000), chunk.Uint64())
	assert.Equal(t, uint64(3), remainder.Uint64())
	require.Len(t, alloc.Fills, 11)
	assert.Equal(t, amount, alloc.Specified())

	quoted := new(uint256.Int)
	for _, f := range alloc.Fills {
		quoted.Add(quoted, f.Quoted)
	}
	assert.Equal(t, quoted, alloc.Total())

	// committed reserve growth equals the input routed to each pool
	for i, pool := range []common.Address{poolA, poolB} {
		rin, err := ledger.Storage(ctx, pool, reserveInSlot)
		require.NoError(t, err)
		start := []uint64{1_000_000, 800_000}[i]
		assert.Equal(t, start+alloc.SpecifiedFor(i).Uint64(), hashU256(rin).Uint64())
	}
}

func TestQuoteBestOutputDecreasesWithRepeatedWins(t *testing.T) {
	ctx := context.Background()
	ledger := newMemLedger()
	ledger.setReserves(poolA, 500_000, 500_000)
	agg := NewAggregator(ledger, []Executor{&cpmmExecutor{pool: poolA}})

	var prev *uint256.Int
	for i := 0; i < 5; i++ {
		best, err := agg.QuoteBest(ctx, uint256.NewInt(10_000), domain.SwapModeIn)
		require.NoError(t, err)
		if prev != nil {
			assert.True(t, best.Result.Amount.Lt(prev), "round %d: %s !< %s", i, best.Result.Amount, prev)
		}
		prev = best.Result.Amount
		ledger.Commit(best.Result.Delta)
	}
}

func TestQuoteSwitchesRoutesAsImpactGrows(t *testing.T) {
	ctx := context.Background()
	ledger := newMemLedger()
	ledger.setReserves(poolA, 1000, 1000)
	ledger.setReserves(poolB, 1000, 900)

	agg := NewAggregator(ledger, []Executor{&cpmmExecutor{pool: poolA}, &cpmmExecutor{pool: poolB}})
	alloc, err := agg.Quote(ctx, uint256.NewInt(200), domain.SwapModeIn, 2)
	require.NoError(t, err)

	require.Len(t, alloc.Fills, 2)
	assert.Equal(t, 0, alloc.Fills[0].Route)
	assert.Equal(t, 1, alloc.Fills[1].Route)
	assert.Equal(t, uint64(90), alloc.Amounts[0].Uint64())
	assert.Equal(t, uint64(81), alloc.Amounts[1].Uint64())
}

func TestQuoteExactOutPrefersCheaperInput(t *testing.T) {
	ctx := context.Background()
	ledger := newMemLedger()
	ledger.setReserves(poolA, 1_000_000, 1_000_000)
	ledger.setReserves(poolB, 1_000_000, 1_200_000)

	agg := NewAggregator(ledger, []Executor{&cpmmExecutor{pool: poolA}, &cpmmExecutor{pool: poolB}})
	best, err := agg.QuoteBest(ctx, uint256.NewInt(10_000), domain.SwapModeOut)
	require.NoError(t, err)
	assert.Equal(t, 1, best.Route)

	alloc, err := agg.Quote(ctx, uint256.NewInt(40_000), domain.SwapModeOut, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(40_000), alloc.Specified().Uint64())
	assert.True(t, alloc.Amounts[0].IsZero())
	// each later chunk costs more input than the first one did
	assert.True(t, alloc.Total().Gt(uint256.NewInt(4*best.Result.Amount.Uint64())))
}

func TestQuoteBestTieKeepsEarliestRoute(t *testing.T) {
	ctx := context.Background()
	ledger := newMemLedger()
	ledger.setReserves(poolA, 10_000, 10_000)
	ledger.setReserves(poolB, 10_000, 10_000)

	agg := NewAggregator(ledger, []Executor{&cpmmExecutor{pool: poolA}, &cpmmExecutor{pool: poolB}})
	best, err := agg.QuoteBest(ctx, uint256.NewInt(100), domain.SwapModeIn)
	require.NoError(t, err)
	assert.Equal(t, 0, best.Route)
}

func TestQuoteSkipsRevertingRoute(t *testing.T) {
	ctx := context.Background()
	ledger := newMemLedger()
	ledger.setReserves(poolB, 100_000, 100_000)

	agg := NewAggregator(ledger, []Executor{reverting(), &cpmmExecutor{pool: poolB}})
	alloc, err := agg.Quote(ctx, uint256.NewInt(1_000), domain.SwapModeIn, 4)
	require.NoError(t, err)
	assert.True(t, alloc.Amounts[0].IsZero())
	assert.False(t, alloc.Amounts[1].IsZero())

	best, err := agg.QuoteBest(ctx, uint256.NewInt(10), domain.SwapModeIn)
	require.NoError(t, err)
	assert.Equal(t, 1, best.Failed)
}

func TestQuoteReturnsPartialAllocationWhenRoutesRunOut(t *testing.T) {
	ctx := context.Background()
	flaky := &scriptedExecutor{script: func(call int, amount *uint256.Int) (*domain.SwapResult, error) {
		if call >= 2 {
			return nil, &domain.ExecutionError{Failure: domain.FailureHalt, Reason: "out of gas"}
		}
		return &domain.SwapResult{Amount: new(uint256.Int).Set(amount), Delta: domain.StateDelta{}}, nil
	}}

	alloc, err := NewAggregator(newMemLedger(), []Executor{flaky, reverting()}).
		Quote(ctx, uint256.NewInt(400), domain.SwapModeIn, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAllRoutesUnavailable)
	require.NotNil(t, alloc)
	assert.Len(t, alloc.Fills, 2)
	assert.Equal(t, uint64(200), alloc.Amounts[0].Uint64())
}

func TestQuotePropagatesOracleFailure(t *testing.T) {
	ctx := context.Background()
	broken := &scriptedExecutor{script: func(int, *uint256.Int) (*domain.SwapResult, error) {
		return nil, errors.Join(domain.ErrOracleUnavailable, errors.New("dial tcp: connection refused"))
	}}
	ledger := newMemLedger()
	ledger.setReserves(poolA, 1_000, 1_000)

	_, err := NewAggregator(ledger, []Executor{&cpmmExecutor{pool: poolA}, broken}).
		Quote(ctx, uint256.NewInt(100), domain.SwapModeIn, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
	assert.NotErrorIs(t, err, domain.ErrAllRoutesUnavailable)
}

func TestQuoteRejectsInvalidArithmetic(t *testing.T) {
	ctx := context.Background()
	agg := NewAggregator(newMemLedger(), []Executor{reverting()})

	cases := []struct {
		name   string
		amount *uint256.Int
		splits int
	}{
		{name: "zero amount", amount: uint256.NewInt(0), splits: 1},
		{name: "nil amount", amount: nil, splits: 1},
		{name: "zero splits", amount: uint256.NewInt(10), splits: 0},
		{name: "negative splits", amount: uint256.NewInt(10), splits: -3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alloc, err := agg.Quote(ctx, tc.amount, domain.SwapModeIn, tc.splits)
			assert.ErrorIs(t, err, domain.ErrArithmeticInvalid)
			require.NotNil(t, alloc)
			assert.Empty(t, alloc.Fills)
		})
	}

	_, err := agg.QuoteBest(ctx, uint256.NewInt(0), domain.SwapModeIn)
	assert.ErrorIs(t, err, domain.ErrArithmeticInvalid)
}

func TestQuoteAmountBelowSplitsFillsInOneRound(t *testing.T) {
	ctx := context.Background()
	ledger := newMemLedger()
	ledger.setReserves(poolA, 1_000_000, 1_000_000)

	alloc, err := NewAggregator(ledger, []Executor{&cpmmExecutor{pool: poolA}}).
		Quote(ctx, uint256.NewInt(3_000), domain.SwapModeIn, 5_000)
	require.NoError(t, err)
	require.Len(t, alloc.Fills, 1)
	assert.Equal(t, uint64(3_000), alloc.Specified().Uint64())
	assert.Equal(t, cpmmOut(uint256.NewInt(1_000_000), uint256.NewInt(1_000_000), uint256.NewInt(3_000)), alloc.Amounts[0])
}

func TestQuoteBestWithoutCandidates(t *testing.T) {
	_, err := NewAggregator(newMemLedger(), nil).QuoteBest(context.Background(), uint256.NewInt(1), domain.SwapModeIn)
	assert.ErrorIs(t, err, domain.ErrAllRoutesUnavailable)
}

func TestShareBps(t *testing.T) {
	assert.Equal(t, uint64(2500), ShareBps(uint256.NewInt(25), uint256.NewInt(100)))
	assert.Equal(t, uint64(0), ShareBps(uint256.NewInt(25), uint256.NewInt(0)))
	assert.Equal(t, uint64(10000), ShareBps(maxUint256(), maxUint256()))
}
