package router

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/evm-quote-engine/internal/domain"
)

var (
	hop1 = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	hop2 = common.HexToAddress("0x00000000000000000000000000000000000000c2")
)

func newTwoHopLedger() *memLedger {
	ledger := newMemLedger()
	ledger.setReserves(hop1, 1_000_000, 2_000_000)
	ledger.setReserves(hop2, 3_000_000, 1_500_000)
	return ledger
}

func TestChainExecutorExactInFeedsForward(t *testing.T) {
	ctx := context.Background()
	ledger := newTwoHopLedger()
	chain := NewChainExecutor([]Executor{&cpmmExecutor{pool: hop1}, &cpmmExecutor{pool: hop2}})

	res, err := chain.Execute(ctx, ledger, uint256.NewInt(10_000), domain.SwapModeIn)
	require.NoError(t, err)

	mid := cpmmOut(uint256.NewInt(1_000_000), uint256.NewInt(2_000_000), uint256.NewInt(10_000))
	want := cpmmOut(uint256.NewInt(3_000_000), uint256.NewInt(1_500_000), mid)
	assert.Equal(t, want, res.Amount)

	_, ok := res.Delta.Slot(hop1, reserveInSlot)
	assert.True(t, ok)
	v, ok := res.Delta.Slot(hop2, reserveInSlot)
	require.True(t, ok)
	assert.Equal(t, 3_000_000+mid.Uint64(), hashU256(v).Uint64())

	// the caller's ledger is untouched
	rin, err := ledger.Storage(ctx, hop1, reserveInSlot)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), hashU256(rin).Uint64())
}

func TestChainExecutorExactOutWalksBackward(t *testing.T) {
	ctx := context.Background()
	ledger := newTwoHopLedger()
	chain := NewChainExecutor([]Executor{&cpmmExecutor{pool: hop1}, &cpmmExecutor{pool: hop2}})

	res, err := chain.Execute(ctx, ledger, uint256.NewInt(5_000), domain.SwapModeOut)
	require.NoError(t, err)

	mid := cpmmIn(uint256.NewInt(3_000_000), uint256.NewInt(1_500_000), uint256.NewInt(5_000))
	want := cpmmIn(uint256.NewInt(1_000_000), uint256.NewInt(2_000_000), mid)
	assert.Equal(t, want, res.Amount)

	v, ok := res.Delta.Slot(hop1, reserveOutSlot)
	require.True(t, ok)
	assert.Equal(t, 2_000_000-mid.Uint64(), hashU256(v).Uint64())
}

func TestChainExecutorFailsWholeRoute(t *testing.T) {
	ledger := newTwoHopLedger()
	chain := NewChainExecutor([]Executor{&cpmmExecutor{pool: hop1}, reverting()})

	_, err := chain.Execute(context.Background(), ledger, uint256.NewInt(10_000), domain.SwapModeIn)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRouteUnavailable)
	assert.Contains(t, err.Error(), "segment 1")

	_, err = chain.Execute(context.Background(), ledger, uint256.NewInt(0), domain.SwapModeIn)
	assert.ErrorIs(t, err, domain.ErrArithmeticInvalid)
}

func TestSegmentRoute(t *testing.T) {
	pools := []domain.Pool{
		{Address: hop1, TokenIn: tokenA, TokenOut: tokenB, Variant: domain.VariantKatanaV2},
		{Address: hop2, TokenIn: tokenB, TokenOut: tokenC, Variant: domain.VariantKatanaV2},
		{Address: poolA, TokenIn: tokenC, TokenOut: tokenA, Variant: domain.VariantKatanaV3, Fee: 500},
		{Address: poolB, TokenIn: tokenA, TokenOut: tokenB, Variant: domain.VariantKatanaV2},
	}
	route, err := domain.NewRoute("mixed", pools)
	require.NoError(t, err)

	segments := SegmentRoute(route)
	require.Len(t, segments, 3)
	assert.Equal(t, domain.VariantKatanaV2, segments[0].Variant)
	assert.Len(t, segments[0].Pools, 2)
	assert.Equal(t, domain.VariantKatanaV3, segments[1].Variant)
	assert.Equal(t, domain.VariantKatanaV2, segments[2].Variant)

	var joined []domain.Pool
	for i, seg := range segments {
		for _, p := range seg.Pools {
			assert.Equal(t, seg.Variant, p.Variant)
		}
		if i > 0 {
			assert.NotEqual(t, segments[i-1].Variant, seg.Variant)
			assert.Equal(t, segments[i-1].TokenOut(), seg.TokenIn())
		}
		joined = append(joined, seg.Pools...)
	}
	assert.Equal(t, pools, joined)

	single, err := domain.NewRoute("v3", pools[2:3])
	require.NoError(t, err)
	assert.Len(t, SegmentRoute(single), 1)

	assert.Empty(t, SegmentRoute(domain.Route{}))
}
