package router

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hxuan190/evm-quote-engine/internal/aggregator/services/state"
	"github.com/hxuan190/evm-quote-engine/internal/domain"
	"github.com/hxuan190/evm-quote-engine/internal/metrics"
)

// BestQuote is the winner of one round over all candidate routes.
type BestQuote struct {
	Route  int
	Result *domain.SwapResult
	// Failed counts candidates that were unavailable this round.
	Failed int
}

// Aggregator splits an order across candidate routes greedily: the amount is cut into equal chunks,
// each chunk goes to whichever route prices it best against the ledger as left by earlier chunks.
//
// The Aggregator owns its ledger for the whole session and is not safe for concurrent Quote calls.
type Aggregator struct {
	ledger      state.Ledger
	routes      []Executor
	labels      []string
	parallelism int
	logger      zerolog.Logger
}

type Option func(*Aggregator)

// WithParallelism bounds how many candidates are simulated at once within a round.
func WithParallelism(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.parallelism = n
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithRouteLabels names candidates in metrics and logs. labels must align with the routes.
func WithRouteLabels(labels []string) Option {
	return func(a *Aggregator) {
		if len(labels) == len(a.routes) {
			a.labels = labels
		}
	}
}

func NewAggregator(ledger state.Ledger, routes []Executor, opts ...Option) *Aggregator {
	a := &Aggregator{
		ledger:      ledger,
		routes:      routes,
		parallelism: runtime.GOMAXPROCS(0),
		logger:      zerolog.Nop(),
	}
	a.labels = make([]string, len(routes))
	for i := range routes {
		a.labels[i] = strconv.Itoa(i)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) Ledger() state.Ledger {
	return a.ledger
}

// Quote fills amount in splits equal chunks plus the remainder, committing each winner before the next round.
// Empty chunks are skipped, so an amount smaller than splits is quoted in a single round.
// The returned allocation is aligned with the candidate order. On failure the allocation filled so far is
// returned together with the error.
func (a *Aggregator) Quote(ctx context.Context, amount *uint256.Int, mode domain.SwapMode, splits int) (*domain.Allocation, error) {
	alloc := domain.NewAllocation(mode, len(a.routes))
	if amount == nil || amount.IsZero() {
		return alloc, fmt.Errorf("%w: amount must be positive", domain.ErrArithmeticInvalid)
	}
	if splits < 1 {
		return alloc, fmt.Errorf("%w: splits must be at least 1, got %d", domain.ErrArithmeticInvalid, splits)
	}

	chunk, remainder := SplitAmount(amount, splits)
	if chunk.IsZero() {
		// amount < splits: every equal part is empty and the remainder carries the whole order
		splits = 0
	}

	start := time.Now()
	rounds := 0
	defer func() {
		metrics.SplitRounds.Observe(float64(rounds))
		a.logger.Debug().
			Str("mode", mode.String()).
			Int("rounds", rounds).
			Dur("elapsed", time.Since(start)).
			Msg("[aggregator] quote finished")
	}()

	for i := 0; i < splits; i++ {
		rounds++
		if err := a.fill(ctx, alloc, i, chunk, mode); err != nil {
			return alloc, err
		}
	}
	if !remainder.IsZero() {
		rounds++
		if err := a.fill(ctx, alloc, splits, remainder, mode); err != nil {
			return alloc, err
		}
	}
	return alloc, nil
}

func (a *Aggregator) fill(ctx context.Context, alloc *domain.Allocation, split int, amount *uint256.Int, mode domain.SwapMode) error {
	best, err := a.QuoteBest(ctx, amount, mode)
	if err != nil {
		return fmt.Errorf("split %d: %w", split, err)
	}

	alloc.Record(split, best.Route, amount, best.Result.Amount)
	a.ledger.Commit(best.Result.Delta)
	metrics.SplitWins.WithLabelValues(a.labels[best.Route]).Inc()

	a.logger.Debug().
		Int("split", split).
		Str("route", a.labels[best.Route]).
		Str("specified", amount.Dec()).
		Str("quoted", best.Result.Amount.Dec()).
		Int("failed", best.Failed).
		Msg("[aggregator] split filled")
	return nil
}

// QuoteBest prices amount on every candidate against the current ledger and returns the best one.
// Candidates run concurrently; ties keep the lowest index. Unavailable candidates are skipped.
func (a *Aggregator) QuoteBest(ctx context.Context, amount *uint256.Int, mode domain.SwapMode) (*BestQuote, error) {
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrArithmeticInvalid)
	}

	results := make([]*domain.SwapResult, len(a.routes))
	failures := make([]error, len(a.routes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)
	for i, route := range a.routes {
		g.Go(func() error {
			start := time.Now()
			res, err := route.Execute(gctx, a.ledger, amount, mode)
			metrics.RouteSimulationDuration.Observe(time.Since(start).Seconds())
			if err != nil {
				if errors.Is(err, domain.ErrRouteUnavailable) {
					metrics.RouteSimulations.WithLabelValues("unavailable").Inc()
					failures[i] = err
					return nil
				}
				metrics.RouteSimulations.WithLabelValues("error").Inc()
				return fmt.Errorf("route %s: %w", a.labels[i], err)
			}
			metrics.RouteSimulations.WithLabelValues("success").Inc()
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := &BestQuote{Route: -1}
	for i, res := range results {
		if res == nil {
			best.Failed++
			if failures[i] != nil {
				a.logger.Debug().Err(failures[i]).Str("route", a.labels[i]).Msg("[aggregator] route unavailable")
			}
			continue
		}
		if best.Route < 0 || mode.Better(res.Amount, best.Result.Amount) {
			best.Route = i
			best.Result = res
		}
	}

	if best.Route < 0 {
		return nil, fmt.Errorf("%w: %d candidates failed (last: %v)", domain.ErrAllRoutesUnavailable, best.Failed, lastError(failures))
	}
	return best, nil
}

func lastError(errs []error) error {
	for i := len(errs) - 1; i >= 0; i-- {
		if errs[i] != nil {
			return errs[i]
		}
	}
	return nil
}
