package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/evm-quote-engine/internal/aggregator"
	"github.com/hxuan190/evm-quote-engine/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/evm-quote-engine/internal/common"
	"github.com/hxuan190/evm-quote-engine/internal/config"
	"github.com/hxuan190/evm-quote-engine/internal/http"
)

// @title EVM Quote Engine API
// @version 1.0
// @description Split-quote engine for Katana V2/V3 liquidity on Ronin.
// @description
// @description ## - How quotes are built
// @description - Every configured route for the token pair is simulated through the Katana aggregate router
// @description   against the latest block with `debug_traceCall`
// @description - The order is cut into equal chunks and each chunk goes to the route that prices it best on top
// @description   of the chunks already placed
// @description - Chain state read while quoting is cached per block and can be persisted between restarts
// @description
// @description ## - Usage Tips
// @description - Amounts are decimal strings in the token's smallest unit
// @description - `splits` defaults to the server's DEFAULT_SPLITS
// @description - **Rate Limit**: HTTP_RATE_LIMIT requests/second per client (burst HTTP_RATE_BURST)
// @description
// @BasePath /
// @schemes http https
// @tag.name quote
// @tag.description Split quotes across configured routes
// @tag.name simulate
// @tag.description Price a single route without splitting
// @tag.name routes
// @tag.description Configured routes
// @tag.name state
// @tag.description Cached chain state at the latest block

func main() {
	// load env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file, using process environment")
	}

	common.InitLogger(os.Getenv("LOG_LEVEL"), os.Getenv("ENV"))
	common.InitRuntime()

	// di container config
	conf := container.NewConf(
		&config.GeneralConfig{},
		&config.RPCConfig{},
		&config.AggregatorConfig{},
		&config.RoutesConfig{},
	)

	// di container
	dic, err := container.New(
		// config
		conf,

		// services
		&blockchain.ClientService{},
		&blockchain.BlockhashCacheService{},
		&aggregator.Service{},

		&http.HTTPService{},
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to create di container")
		return
	}

	// Run waits for SIGINT/SIGTERM
	if err := dic.Run(); err != nil {
		log.Error().Err(err).Msg("failed to run di container")
		return
	}

	// Run doesn't call Stop(), we must do it manually
	log.Info().Msg("Shutting down services...")
	if err := dic.Stop(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	log.Info().Msg("Shutdown complete")
}
