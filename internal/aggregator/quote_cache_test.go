package aggregator

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/evm-quote-engine/internal/domain"
)

func cacheKey(block, amount uint64, mode domain.SwapMode) quoteKey {
	return newQuoteKey(block, domain.QuoteRequest{
		TokenIn: tokenA, TokenOut: tokenB, Amount: uint256.NewInt(amount), Mode: mode, Splits: 4,
	})
}

func TestQuoteCacheGetSet(t *testing.T) {
	qc := NewQuoteCache(64)
	res := &domain.QuoteResult{}

	_, ok := qc.Get(cacheKey(1, 10, domain.SwapModeIn))
	assert.False(t, ok)

	qc.Set(cacheKey(1, 10, domain.SwapModeIn), res)
	got, ok := qc.Get(cacheKey(1, 10, domain.SwapModeIn))
	require.True(t, ok)
	assert.Same(t, res, got)

	for _, k := range []quoteKey{
		cacheKey(2, 10, domain.SwapModeIn),
		cacheKey(1, 11, domain.SwapModeIn),
		cacheKey(1, 10, domain.SwapModeOut),
	} {
		_, ok := qc.Get(k)
		assert.False(t, ok)
	}

	qc.Set(cacheKey(1, 10, domain.SwapModeIn), &domain.QuoteResult{Partial: true})
	assert.Equal(t, 1, qc.Size())
}

func TestQuoteCacheEvictsWhenFull(t *testing.T) {
	qc := NewQuoteCache(1) // one entry per shard
	for i := uint64(1); i <= 200; i++ {
		qc.Set(cacheKey(1, i, domain.SwapModeIn), &domain.QuoteResult{})
	}
	assert.LessOrEqual(t, qc.Size(), quoteCacheShards)

	_, ok := qc.Get(cacheKey(1, 200, domain.SwapModeIn))
	assert.True(t, ok, "latest insert survives")
}

func TestQuoteCacheReset(t *testing.T) {
	qc := NewQuoteCache(16)
	qc.Set(cacheKey(1, 10, domain.SwapModeIn), &domain.QuoteResult{})
	qc.Reset()
	assert.Equal(t, 0, qc.Size())
	_, ok := qc.Get(cacheKey(1, 10, domain.SwapModeIn))
	assert.False(t, ok)
}
