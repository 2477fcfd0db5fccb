package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/evm-quote-engine/internal/adapters/persistence"
	"github.com/hxuan190/evm-quote-engine/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/evm-quote-engine/internal/aggregator/services/router"
	"github.com/hxuan190/evm-quote-engine/internal/aggregator/services/state"
	"github.com/hxuan190/evm-quote-engine/internal/config"
	"github.com/hxuan190/evm-quote-engine/internal/domain"
	"github.com/hxuan190/evm-quote-engine/internal/services"
)

const AGGREGATOR_SERVICE = "aggregator-service"

// Service serves split quotes pinned to the latest block.
type Service struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	client         *blockchain.ClientService
	blockhashCache *blockchain.BlockhashCacheService
	storage        *persistence.Storage
	quoter         *Quoter

	config *config.AggregatorConfig
	routes *config.RoutesConfig
}

func (svc *Service) ID() string {
	return AGGREGATOR_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	svc.logger = services.NewServiceLogger(svc)
	svc.config = c.GetConfig(config.AGGREGATOR_CONFIG_KEY).(*config.AggregatorConfig)
	svc.routes = c.GetConfig(config.ROUTES_CONFIG_KEY).(*config.RoutesConfig)
	svc.client = c.Instance(blockchain.RPC_CLIENT_SERVICE).(*blockchain.ClientService)
	svc.blockhashCache = c.Instance(blockchain.BLOCKHASH_CACHE_SERVICE).(*blockchain.BlockhashCacheService)
	return nil
}

func (svc *Service) Start() error {
	var store SnapshotStore
	if svc.config.PersistenceEnabled {
		storage, err := persistence.NewStorage(svc.config.DBPath)
		if err != nil {
			return err
		}
		svc.storage = storage
		store = storage
	}

	quoter, err := NewChainQuoter(svc.client, svc.blockhashCache, NewQuoterConfig(svc.config, svc.routes.Routes, store, svc.logger.Logger()))
	if err != nil {
		return fmt.Errorf("build quoter: %w", err)
	}
	svc.quoter = quoter

	if latest, ok, err := quoter.LatestSnapshot(); err != nil {
		svc.logger.Warn().Err(err).Msg("[aggregatorService] could not read stored snapshots")
	} else if ok {
		svc.logger.Info().Uint64("block", latest).Msg("[aggregatorService] stored snapshot available")
	}

	svc.logger.Info().
		Int("routes", len(svc.routes.Routes)).
		Str("router", svc.config.Router.Hex()).
		Str("caller", svc.config.Caller.Hex()).
		Bool("persistence", svc.config.PersistenceEnabled).
		Msg("[aggregatorService] started")
	return nil
}

// NewQuoterConfig maps aggregator settings onto a QuoterConfig. A nil store disables snapshots.
func NewQuoterConfig(cfg *config.AggregatorConfig, routes []domain.Route, store SnapshotStore, logger zerolog.Logger) QuoterConfig {
	return QuoterConfig{
		Routes: routes,
		Venues: router.VenueConfig{
			Router:   cfg.Router,
			Deadline: uint256.NewInt(cfg.Deadline),
			GasLimit: cfg.GasLimit,
		},
		Caller:        cfg.Caller,
		GasLimit:      cfg.GasLimit,
		DefaultSplits: cfg.DefaultSplits,
		MaxSplits:     cfg.MaxSplits,
		Parallelism:   cfg.Parallelism,
		FetchBuffer:   cfg.FetchBuffer,
		CacheSize:     cfg.QuoteCacheSize,
		Store:         store,
		Logger:        logger,
	}
}

// NewChainQuoter builds a Quoter that simulates with debug_traceCall and reads state over JSON-RPC.
func NewChainQuoter(client *blockchain.ClientService, blocks *blockchain.BlockhashCacheService, cfg QuoterConfig) (*Quoter, error) {
	return NewQuoter(
		blockchain.NewTraceEngine(client),
		func(block uint64) state.Oracle {
			return blockchain.NewRPCOracle(client, blocks, block)
		},
		cfg,
	)
}

func (svc *Service) Stop() error {
	if svc.quoter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := svc.quoter.Close(ctx); err != nil {
			svc.logger.Error().Err(err).Msg("[aggregatorService] failed to save final snapshot")
		}
	}
	if svc.storage != nil {
		return svc.storage.Close()
	}
	return nil
}

func (svc *Service) head(ctx context.Context) (uint64, error) {
	ref, err := svc.blockhashCache.Latest(ctx)
	if err != nil {
		return 0, err
	}
	return ref.Number, nil
}

func (svc *Service) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.QuoteResult, error) {
	block, err := svc.head(ctx)
	if err != nil {
		return nil, err
	}
	return svc.quoter.Quote(ctx, block, req)
}

func (svc *Service) Simulate(ctx context.Context, routeID int, amount *uint256.Int, mode domain.SwapMode) (*RouteQuote, error) {
	block, err := svc.head(ctx)
	if err != nil {
		return nil, err
	}
	return svc.quoter.Simulate(ctx, block, routeID, amount, mode)
}

func (svc *Service) Routes() []domain.Route {
	return svc.quoter.Routes()
}

func (svc *Service) Account(ctx context.Context, addr common.Address) (domain.Account, domain.BlockRef, error) {
	ref, err := svc.blockhashCache.Latest(ctx)
	if err != nil {
		return domain.Account{}, domain.BlockRef{}, err
	}
	acc, err := svc.quoter.Account(ctx, ref.Number, addr)
	return acc, ref, err
}

func (svc *Service) Storage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, domain.BlockRef, error) {
	ref, err := svc.blockhashCache.Latest(ctx)
	if err != nil {
		return common.Hash{}, domain.BlockRef{}, err
	}
	v, err := svc.quoter.Storage(ctx, ref.Number, addr, slot)
	return v, ref, err
}
