package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/hxuan190/evm-quote-engine/internal/aggregator/services/router"
	"github.com/hxuan190/evm-quote-engine/internal/aggregator/services/state"
	"github.com/hxuan190/evm-quote-engine/internal/domain"
	"github.com/hxuan190/evm-quote-engine/internal/metrics"
)

const recorderDrainTimeout = 10 * time.Second

// SnapshotStore persists the chain state fetched while quoting at a block.
type SnapshotStore interface {
	SaveSnapshot(snap *domain.Snapshot) error
	LoadSnapshot(block uint64) (*domain.Snapshot, error)
	LatestSnapshotBlock() (uint64, bool, error)
}

// OracleFactory returns an uncached oracle reading chain state at block.
type OracleFactory func(block uint64) state.Oracle

type QuoterConfig struct {
	Routes        []domain.Route
	Venues        router.VenueConfig
	Caller        common.Address
	GasLimit      uint64
	DefaultSplits int
	MaxSplits     int
	Parallelism   int
	FetchBuffer   int
	// CacheSize bounds the per-block quote result cache. Zero disables it.
	CacheSize int
	// Store enables snapshot recording and restore. Nil disables both.
	Store  SnapshotStore
	Logger zerolog.Logger
}

// RouteQuote is a single route priced on its own, without splitting.
type RouteQuote struct {
	Block  domain.BlockRef
	Route  domain.Route
	Mode   domain.SwapMode
	Amount *uint256.Int
	Result *domain.SwapResult
}

// blockState is the cached chain view shared by every session pinned to one block.
type blockState struct {
	block    uint64
	oracle   *state.CachingOracle
	recorder *state.Recorder
}

// Quoter runs split-quote sessions. Each session gets its own fork, but sessions pinned to the
// same block share one caching oracle; moving to a new block retires the old one and saves
// what it fetched.
type Quoter struct {
	engine state.Engine
	remote OracleFactory
	config QuoterConfig
	execs  []router.Executor
	cache  *QuoteCache
	logger zerolog.Logger

	mu      sync.Mutex
	current *blockState
}

func NewQuoter(engine state.Engine, remote OracleFactory, cfg QuoterConfig) (*Quoter, error) {
	venues, err := router.NewVenues(cfg.Venues)
	if err != nil {
		return nil, err
	}
	if cfg.DefaultSplits < 1 {
		cfg.DefaultSplits = 1
	}
	if cfg.MaxSplits < cfg.DefaultSplits {
		cfg.MaxSplits = cfg.DefaultSplits
	}

	execs := make([]router.Executor, len(cfg.Routes))
	for i, route := range cfg.Routes {
		exec, err := router.NewRouteExecutor(venues, route)
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		execs[i] = exec
	}
	metrics.RouteCount.Set(float64(len(cfg.Routes)))

	q := &Quoter{
		engine: engine,
		remote: remote,
		config: cfg,
		execs:  execs,
		logger: cfg.Logger,
	}
	if cfg.CacheSize > 0 {
		q.cache = NewQuoteCache(cfg.CacheSize)
	}
	return q, nil
}

func (q *Quoter) Routes() []domain.Route {
	return append([]domain.Route(nil), q.config.Routes...)
}

func (q *Quoter) DefaultSplits() int {
	return q.config.DefaultSplits
}

// RoutesFor returns the indexes of the configured routes that trade tokenIn for tokenOut.
func (q *Quoter) RoutesFor(tokenIn, tokenOut common.Address) []int {
	var ids []int
	for i, route := range q.config.Routes {
		if route.TokenIn() == tokenIn && route.TokenOut() == tokenOut {
			ids = append(ids, i)
		}
	}
	return ids
}

// Quote splits req across the configured routes for its pair at block.
// When the routes run out mid-session the partial result is returned together with the error.
func (q *Quoter) Quote(ctx context.Context, block uint64, req domain.QuoteRequest) (*domain.QuoteResult, error) {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.QuoteRequests.WithLabelValues(req.Mode.String(), status).Inc()
		metrics.QuoteDuration.WithLabelValues(req.Mode.String()).Observe(time.Since(start).Seconds())
	}()

	if req.Splits == 0 {
		req.Splits = q.config.DefaultSplits
	}
	if req.Splits < 1 || req.Splits > q.config.MaxSplits {
		return nil, fmt.Errorf("%w: splits must be between 1 and %d, got %d", domain.ErrArithmeticInvalid, q.config.MaxSplits, req.Splits)
	}
	if req.Amount == nil || req.Amount.IsZero() {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrArithmeticInvalid)
	}

	ids := q.RoutesFor(req.TokenIn, req.TokenOut)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrNoRoute, req.TokenIn.Hex(), req.TokenOut.Hex())
	}
	routes := make([]domain.Route, len(ids))
	execs := make([]router.Executor, len(ids))
	labels := make([]string, len(ids))
	for i, id := range ids {
		routes[i] = q.config.Routes[id]
		execs[i] = q.execs[id]
		labels[i] = routes[i].Name()
	}

	key := newQuoteKey(block, req)
	if q.cache != nil {
		if cached, ok := q.cache.Get(key); ok {
			status = "cached"
			return cached, nil
		}
	}

	fork, pinned, err := q.fork(ctx, block)
	if err != nil {
		return nil, err
	}

	agg := router.NewAggregator(fork, execs,
		router.WithParallelism(q.config.Parallelism),
		router.WithLogger(q.logger),
		router.WithRouteLabels(labels),
	)
	alloc, err := agg.Quote(ctx, req.Amount, req.Mode, req.Splits)

	result := &domain.QuoteResult{
		Block:      fork.Block(),
		Request:    req,
		Routes:     routes,
		RouteIDs:   ids,
		Allocation: alloc,
	}
	switch {
	case err == nil:
		status = "success"
		if q.cache != nil && pinned {
			q.cache.Set(key, result)
		}
	case errors.Is(err, domain.ErrAllRoutesUnavailable) && len(alloc.Fills) > 0:
		status = "partial"
		result.Partial = true
		return result, err
	default:
		return nil, err
	}

	q.logger.Info().
		Uint64("block", result.Block.Number).
		Str("mode", req.Mode.String()).
		Str("amount", req.Amount.Dec()).
		Int("splits", req.Splits).
		Int("routes", len(routes)).
		Str("total", alloc.Total().Dec()).
		Dur("elapsed", time.Since(start)).
		Msg("[quoter] quote completed")
	return result, nil
}

// Simulate prices amount on one configured route against an untouched fork.
func (q *Quoter) Simulate(ctx context.Context, block uint64, routeID int, amount *uint256.Int, mode domain.SwapMode) (*RouteQuote, error) {
	if routeID < 0 || routeID >= len(q.execs) {
		return nil, fmt.Errorf("%w: route %d is not configured", domain.ErrNoRoute, routeID)
	}
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrArithmeticInvalid)
	}

	fork, _, err := q.fork(ctx, block)
	if err != nil {
		return nil, err
	}
	res, err := q.execs[routeID].Execute(ctx, fork, amount, mode)
	if err != nil {
		return nil, err
	}
	return &RouteQuote{Block: fork.Block(), Route: q.config.Routes[routeID], Mode: mode, Amount: amount, Result: res}, nil
}

func (q *Quoter) Account(ctx context.Context, block uint64, addr common.Address) (domain.Account, error) {
	oracle, _ := q.oracle(ctx, block)
	return oracle.Account(ctx, addr)
}

func (q *Quoter) Storage(ctx context.Context, block uint64, addr common.Address, slot common.Hash) (common.Hash, error) {
	oracle, _ := q.oracle(ctx, block)
	return oracle.Storage(ctx, addr, slot)
}

// LatestSnapshot reports the newest block a snapshot is stored for.
func (q *Quoter) LatestSnapshot() (uint64, bool, error) {
	if q.config.Store == nil {
		return 0, false, nil
	}
	return q.config.Store.LatestSnapshotBlock()
}

// Close retires the current block state, saving its snapshot.
func (q *Quoter) Close(ctx context.Context) error {
	q.mu.Lock()
	old := q.current
	q.current = nil
	q.mu.Unlock()
	return q.retire(ctx, old)
}

// fork opens a session ledger at block. pinned is false when block is older than the pinned one.
func (q *Quoter) fork(ctx context.Context, block uint64) (*state.Fork, bool, error) {
	oracle, pinned := q.oracle(ctx, block)
	fork, err := state.NewFork(ctx, q.engine, oracle, block, state.ForkConfig{Caller: q.config.Caller, GasLimit: q.config.GasLimit})
	return fork, pinned, err
}

// oracle returns the shared oracle for block, moving the pin forward when block is newer.
// Requests for an older block get a private oracle, neither restored nor recorded, and leave the pin alone.
func (q *Quoter) oracle(ctx context.Context, block uint64) (*state.CachingOracle, bool) {
	q.mu.Lock()
	old := q.current
	if old != nil && old.block == block {
		q.mu.Unlock()
		return old.oracle, true
	}
	if old != nil && block < old.block {
		q.mu.Unlock()
		metrics.StaleBlockRequests.Inc()
		q.logger.Debug().Uint64("block", block).Uint64("pinned", old.block).Msg("[quoter] serving stale block without repinning")
		return state.NewCachingOracle(q.remote(block), block), false
	}

	q.current = q.open(block)
	if q.cache != nil {
		q.cache.Reset()
	}
	metrics.PinnedBlock.Set(float64(block))
	next := q.current.oracle
	q.mu.Unlock()

	// drain and save outside the lock so sessions on the new block are not held up
	if err := q.retire(ctx, old); err != nil {
		q.logger.Error().Err(err).Msg("[quoter] failed to save snapshot")
	}
	return next, true
}

func (q *Quoter) open(block uint64) *blockState {
	bs := &blockState{block: block, oracle: state.NewCachingOracle(q.remote(block), block)}
	if q.config.Store == nil {
		return bs
	}

	snap, err := q.config.Store.LoadSnapshot(block)
	switch {
	case err == nil:
		if err := bs.oracle.Load(snap); err != nil {
			q.logger.Warn().Err(err).Uint64("block", block).Msg("[quoter] snapshot rejected")
		} else {
			q.logger.Info().Uint64("block", block).Int("records", snap.Size()).Msg("[quoter] restored snapshot")
		}
	case errors.Is(err, domain.ErrSnapshotMismatch):
	default:
		q.logger.Warn().Err(err).Uint64("block", block).Msg("[quoter] failed to load snapshot")
	}

	bs.recorder = state.StartRecorder(bs.oracle.EnableRecording(q.config.FetchBuffer), block)
	return bs
}

// retire closes the record stream, waits for the recorder to drain it and saves the result.
func (q *Quoter) retire(ctx context.Context, bs *blockState) error {
	if bs == nil {
		return nil
	}
	bs.oracle.Close()
	if bs.recorder == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, recorderDrainTimeout)
	defer cancel()
	snap, err := bs.recorder.Wait(ctx)
	if err != nil {
		return fmt.Errorf("drain recorder for block %d: %w", bs.block, err)
	}
	if snap.Empty() {
		q.logger.Warn().Uint64("block", bs.block).Msg("[quoter] nothing fetched, no snapshot saved")
		return nil
	}
	return q.config.Store.SaveSnapshot(snap)
}
