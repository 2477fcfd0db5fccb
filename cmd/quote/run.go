package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hxuan190/evm-quote-engine/internal/adapters/persistence"
	"github.com/hxuan190/evm-quote-engine/internal/aggregator"
	"github.com/hxuan190/evm-quote-engine/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/evm-quote-engine/internal/config"
	"github.com/hxuan190/evm-quote-engine/internal/domain"
	"github.com/hxuan190/evm-quote-engine/internal/http"
)

const closeTimeout = 15 * time.Second

// replayStore serves stored snapshots but never writes.
type replayStore struct {
	aggregator.SnapshotStore
}

func (replayStore) SaveSnapshot(*domain.Snapshot) error {
	return nil
}

func runQuote(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	raw, err := os.ReadFile(routesFile)
	if err != nil {
		return fmt.Errorf("read routes: %w", err)
	}
	routes, err := config.ParseRoutes(raw)
	if err != nil {
		return err
	}
	if len(routes) == 0 {
		return fmt.Errorf("no usable routes in %s", routesFile)
	}

	req, err := buildRequest(routes)
	if err != nil {
		return err
	}

	aggCfg := &config.AggregatorConfig{}
	if err := aggCfg.Load(); err != nil {
		return err
	}
	aggCfg.DBPath = dbPath
	aggCfg.PersistenceEnabled = persist
	if err := aggCfg.Validate(); err != nil {
		return err
	}

	rpcCfg := &config.RPCConfig{}
	if rpcURL != "" {
		os.Setenv("RPC_URL", rpcURL)
	}
	if err := rpcCfg.Load(); err != nil {
		return err
	}

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := blockchain.Dial(ctx, rpcCfg.RPCUrl, rpcCfg.Timeout)
	if err != nil {
		return err
	}
	defer client.Close()
	blocks := blockchain.NewBlockhashCache(client)

	quoter, err := aggregator.NewChainQuoter(client, blocks, aggregator.NewQuoterConfig(aggCfg, routes, store, log.Logger))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := quoter.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("[quote] failed to save snapshot")
		}
	}()

	block, err := resolveBlock(ctx, quoter, blocks)
	if err != nil {
		return err
	}
	log.Info().
		Uint64("block", block).
		Str("in", req.TokenIn.Hex()).
		Str("out", req.TokenOut.Hex()).
		Str("amount", req.Amount.Dec()).
		Str("mode", req.Mode.String()).
		Msg("[quote] quoting")

	result, qerr := quoter.Quote(ctx, block, req)
	if result != nil {
		if err := printJSON(cmd, http.NewQuoteResponse(result)); err != nil {
			return err
		}
	}
	return qerr
}

func buildRequest(routes []domain.Route) (domain.QuoteRequest, error) {
	amount, err := uint256.FromDecimal(amountArg)
	if err != nil || amount.IsZero() {
		return domain.QuoteRequest{}, fmt.Errorf("%w: --amount must be a positive integer", domain.ErrArithmeticInvalid)
	}
	mode, err := domain.ParseSwapMode(modeArg)
	if err != nil {
		return domain.QuoteRequest{}, err
	}

	req := domain.QuoteRequest{
		TokenIn:  routes[0].TokenIn(),
		TokenOut: routes[0].TokenOut(),
		Amount:   amount,
		Mode:     mode,
		Splits:   splits,
	}
	if tokenIn != "" {
		if !ethcommon.IsHexAddress(tokenIn) {
			return req, fmt.Errorf("invalid --in address %q", tokenIn)
		}
		req.TokenIn = ethcommon.HexToAddress(tokenIn)
	}
	if tokenOut != "" {
		if !ethcommon.IsHexAddress(tokenOut) {
			return req, fmt.Errorf("invalid --out address %q", tokenOut)
		}
		req.TokenOut = ethcommon.HexToAddress(tokenOut)
	}
	return req, nil
}

// openStore opens the snapshot database when a flag needs it. Replaying without --persist never writes.
func openStore() (aggregator.SnapshotStore, func(), error) {
	if !persist && !fromSnapshot {
		return nil, func() {}, nil
	}
	storage, err := persistence.NewStorage(dbPath)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if err := storage.Close(); err != nil {
			log.Error().Err(err).Msg("[quote] failed to close snapshot database")
		}
	}
	if !persist {
		return replayStore{storage}, closeStore, nil
	}
	return storage, closeStore, nil
}

type snapshotLister interface {
	LatestSnapshot() (uint64, bool, error)
}

type headSource interface {
	Latest(ctx context.Context) (domain.BlockRef, error)
}

func resolveBlock(ctx context.Context, quoter snapshotLister, head headSource) (uint64, error) {
	if blockNumber != 0 {
		return blockNumber, nil
	}
	if fromSnapshot {
		latest, ok, err := quoter.LatestSnapshot()
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, errors.New("--from-snapshot: no stored snapshot")
		}
		return latest, nil
	}
	ref, err := head.Latest(ctx)
	if err != nil {
		return 0, err
	}
	return ref.Number, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
