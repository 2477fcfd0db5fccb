package main

import (
	"context"
	"errors"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/evm-quote-engine/internal/domain"
)

var (
	tokenA = ethcommon.HexToAddress("0x0000000000000000000000000000000000000a0a")
	tokenB = ethcommon.HexToAddress("0x0000000000000000000000000000000000000b0b")
	tokenC = ethcommon.HexToAddress("0x0000000000000000000000000000000000000c0c")
)

type stubSnapshots struct {
	block uint64
	ok    bool
}

func (s stubSnapshots) LatestSnapshot() (uint64, bool, error) {
	return s.block, s.ok, nil
}

type stubHead uint64

func (h stubHead) Latest(context.Context) (domain.BlockRef, error) {
	if h == 0 {
		return domain.BlockRef{}, domain.ErrOracleUnavailable
	}
	return domain.BlockRef{Number: uint64(h)}, nil
}

func resetFlags(t *testing.T) {
	t.Helper()
	saved := []interface{}{tokenIn, tokenOut, amountArg, modeArg, splits, blockNumber, fromSnapshot}
	t.Cleanup(func() {
		tokenIn, tokenOut = saved[0].(string), saved[1].(string)
		amountArg, modeArg = saved[2].(string), saved[3].(string)
		splits, blockNumber = saved[4].(int), saved[5].(uint64)
		fromSnapshot = saved[6].(bool)
	})
	tokenIn, tokenOut, amountArg, modeArg = "", "", "", "ExactIn"
	splits, blockNumber, fromSnapshot = 0, 0, false
}

func TestBuildRequest(t *testing.T) {
	resetFlags(t)
	route, err := domain.NewRoute("a-b", []domain.Pool{{Address: tokenC, TokenIn: tokenA, TokenOut: tokenB}})
	require.NoError(t, err)
	routes := []domain.Route{route}

	amountArg = "2500"
	splits = 5
	req, err := buildRequest(routes)
	require.NoError(t, err)
	assert.Equal(t, tokenA, req.TokenIn, "pair defaults to the first route")
	assert.Equal(t, tokenB, req.TokenOut)
	assert.Equal(t, uint64(2500), req.Amount.Uint64())
	assert.Equal(t, 5, req.Splits)

	tokenOut = tokenC.Hex()
	modeArg = "ExactOut"
	req, err = buildRequest(routes)
	require.NoError(t, err)
	assert.Equal(t, tokenC, req.TokenOut)
	assert.Equal(t, domain.SwapModeOut, req.Mode)

	amountArg = "0"
	_, err = buildRequest(routes)
	assert.ErrorIs(t, err, domain.ErrArithmeticInvalid)

	amountArg, tokenIn = "1", "not-an-address"
	_, err = buildRequest(routes)
	assert.Error(t, err)
}

func TestResolveBlock(t *testing.T) {
	resetFlags(t)
	ctx := context.Background()

	got, err := resolveBlock(ctx, stubSnapshots{}, stubHead(900))
	require.NoError(t, err)
	assert.Equal(t, uint64(900), got)

	blockNumber = 42
	got, err = resolveBlock(ctx, stubSnapshots{}, stubHead(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got, "an explicit block never touches the node")

	blockNumber, fromSnapshot = 0, true
	got, err = resolveBlock(ctx, stubSnapshots{block: 700, ok: true}, stubHead(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(700), got)

	_, err = resolveBlock(ctx, stubSnapshots{}, stubHead(900))
	assert.Error(t, err)

	fromSnapshot = false
	_, err = resolveBlock(ctx, stubSnapshots{}, stubHead(0))
	assert.True(t, errors.Is(err, domain.ErrOracleUnavailable))
}

func TestReplayStoreNeverWrites(t *testing.T) {
	store := replayStore{}
	assert.NoError(t, store.SaveSnapshot(domain.NewSnapshot(1)))
}
