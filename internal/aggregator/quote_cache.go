package aggregator

import (
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hxuan190/evm-quote-engine/internal/domain"
	"github.com/hxuan190/evm-quote-engine/internal/metrics"
)

const quoteCacheShards = 16

// FNV-1a
const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// quoteKey identifies a quote session completely: results at a fixed block never change.
type quoteKey struct {
	block    uint64
	tokenIn  common.Address
	tokenOut common.Address
	amount   [32]byte
	mode     domain.SwapMode
	splits   int
}

func newQuoteKey(block uint64, req domain.QuoteRequest) quoteKey {
	return quoteKey{
		block:    block,
		tokenIn:  req.TokenIn,
		tokenOut: req.TokenOut,
		amount:   req.Amount.Bytes32(),
		mode:     req.Mode,
		splits:   req.Splits,
	}
}

func (k *quoteKey) hash() uint64 {
	h := uint64(fnvOffset64)
	mix := func(b byte) {
		h ^= uint64(b)
		h *= fnvPrime64
	}
	for i := 0; i < 8; i++ {
		mix(byte(k.block >> (i * 8)))
	}
	for _, b := range k.tokenIn {
		mix(b)
	}
	for _, b := range k.tokenOut {
		mix(b)
	}
	for _, b := range k.amount {
		mix(b)
	}
	mix(byte(k.mode))
	for i := 0; i < 4; i++ {
		mix(byte(k.splits >> (i * 8)))
	}
	return h
}

type cacheEntry struct {
	key    quoteKey
	result *domain.QuoteResult
	used   uint32 // clock bit
}

type cacheShard struct {
	mu      sync.RWMutex
	entries []cacheEntry
	size    int
	hand    int
}

// QuoteCache keeps completed quote results in a sharded clock cache. Entries are keyed by block,
// so the cache is reset whenever the quoter moves to a new block.
// Cached results are shared between callers and must not be mutated.
type QuoteCache struct {
	shards [quoteCacheShards]cacheShard
}

// NewQuoteCache holds up to capacity results, rounded up to a whole number per shard.
func NewQuoteCache(capacity int) *QuoteCache {
	perShard := (capacity + quoteCacheShards - 1) / quoteCacheShards
	if perShard < 1 {
		perShard = 1
	}
	qc := &QuoteCache{}
	for i := range qc.shards {
		qc.shards[i].entries = make([]cacheEntry, perShard)
	}
	return qc
}

func (qc *QuoteCache) shard(key *quoteKey) *cacheShard {
	return &qc.shards[key.hash()%quoteCacheShards]
}

func (qc *QuoteCache) Get(key quoteKey) (*domain.QuoteResult, bool) {
	shard := qc.shard(&key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	for i := 0; i < shard.size; i++ {
		entry := &shard.entries[i]
		if entry.key == key {
			atomic.StoreUint32(&entry.used, 1)
			metrics.QuoteCacheHits.Inc()
			return entry.result, true
		}
	}
	metrics.QuoteCacheMisses.Inc()
	return nil, false
}

func (qc *QuoteCache) Set(key quoteKey, result *domain.QuoteResult) {
	shard := qc.shard(&key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	for i := 0; i < shard.size; i++ {
		entry := &shard.entries[i]
		if entry.key == key {
			entry.result = result
			atomic.StoreUint32(&entry.used, 1)
			return
		}
	}

	if shard.size < len(shard.entries) {
		shard.entries[shard.size] = cacheEntry{key: key, result: result, used: 1}
		shard.size++
		metrics.QuoteCacheSize.Inc()
		return
	}

	// second chance: clear used bits until an unused entry comes round
	n := len(shard.entries)
	for attempts := 0; attempts < 2*n; attempts++ {
		entry := &shard.entries[shard.hand]
		shard.hand = (shard.hand + 1) % n
		if atomic.LoadUint32(&entry.used) == 0 {
			*entry = cacheEntry{key: key, result: result, used: 1}
			return
		}
		atomic.StoreUint32(&entry.used, 0)
	}

	shard.entries[shard.hand] = cacheEntry{key: key, result: result, used: 1}
	shard.hand = (shard.hand + 1) % n
}

// Reset drops every entry.
func (qc *QuoteCache) Reset() {
	for i := range qc.shards {
		shard := &qc.shards[i]
		shard.mu.Lock()
		clear(shard.entries)
		shard.size = 0
		shard.hand = 0
		shard.mu.Unlock()
	}
	metrics.QuoteCacheSize.Set(0)
}

func (qc *QuoteCache) Size() int {
	total := 0
	for i := range qc.shards {
		shard := &qc.shards[i]
		shard.mu.RLock()
		total += shard.size
		shard.mu.RUnlock()
	}
	return total
}
