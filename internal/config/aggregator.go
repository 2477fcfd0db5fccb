package config

import (
	"fmt"
	"strconv"

	"github.com/andrew-solarstorm/go-packages/common"
	ethcommon "github.com/ethereum/go-ethereum/common"

	appcommon "github.com/hxuan190/evm-quote-engine/internal/common"
)

type AggregatorConfig struct {
	// DBPath is the path to the BoltDB file holding state snapshots.
	// Default: "./data/aggregator.db"
	DBPath string

	// PersistenceEnabled controls whether fetched chain state is saved as a snapshot.
	// Default: true
	PersistenceEnabled bool

	// Router is the aggregate router every swap is sent to.
	Router ethcommon.Address

	// Caller is the sender of simulated swaps; it must hold the input token and approvals.
	Caller ethcommon.Address

	// Deadline is passed to the router as the swap deadline.
	Deadline uint64

	// GasLimit caps every simulated call.
	// Default: 5_000_000
	GasLimit uint64

	// DefaultSplits is used when a request does not name a split count.
	// Default: 10
	DefaultSplits int

	// MaxSplits bounds the split count a request may ask for.
	// Default: 100
	MaxSplits int

	// Parallelism bounds concurrent route simulations within a round. Zero means GOMAXPROCS.
	Parallelism int

	// FetchBuffer sizes the channel between the state oracle and the snapshot recorder.
	// Default: 1024
	FetchBuffer int

	// QuoteCacheSize bounds the per-block quote result cache. Zero disables it.
	// Default: 1024
	QuoteCacheSize int
}

func (c *AggregatorConfig) Key() string {
	return AGGREGATOR_CONFIG_KEY
}

func (c *AggregatorConfig) Load() error {
	c.DBPath = common.GetEnvOrDefault("AGGREGATOR_DB_PATH", "./data/aggregator.db")
	c.PersistenceEnabled = common.GetEnvOrDefault("AGGREGATOR_PERSISTENCE_ENABLED", "true") == "true"

	router := common.GetEnvOrDefault("ROUTER_ADDRESS", appcommon.DefaultRouterAddress)
	caller := common.GetEnvOrDefault("CALLER_ADDRESS", appcommon.DefaultCallerAddress)
	if !ethcommon.IsHexAddress(router) {
		return fmt.Errorf("invalid ROUTER_ADDRESS %q", router)
	}
	if !ethcommon.IsHexAddress(caller) {
		return fmt.Errorf("invalid CALLER_ADDRESS %q", caller)
	}
	c.Router = ethcommon.HexToAddress(router)
	c.Caller = ethcommon.HexToAddress(caller)

	deadline, err := strconv.ParseUint(common.GetEnvOrDefault("SWAP_DEADLINE", strconv.FormatUint(appcommon.DefaultSwapDeadline, 10)), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid SWAP_DEADLINE: %w", err)
	}
	c.Deadline = deadline

	c.GasLimit = uint64(common.GetEnvOrDefaultInt("SIM_GAS_LIMIT", 5_000_000))
	c.DefaultSplits = common.GetEnvOrDefaultInt("DEFAULT_SPLITS", 10)
	c.MaxSplits = common.GetEnvOrDefaultInt("MAX_SPLITS", 100)
	c.Parallelism = common.GetEnvOrDefaultInt("QUOTE_PARALLELISM", 0)
	c.FetchBuffer = common.GetEnvOrDefaultInt("FETCH_BUFFER", 1024)
	c.QuoteCacheSize = common.GetEnvOrDefaultInt("QUOTE_CACHE_SIZE", 1024)
	return nil
}

func (c *AggregatorConfig) Validate() error {
	if c.Router == (ethcommon.Address{}) {
		return fmt.Errorf("invalid aggregator config: router address is required")
	}
	if c.GasLimit == 0 {
		return fmt.Errorf("invalid aggregator config: gas limit must be positive")
	}
	if c.DefaultSplits < 1 || c.MaxSplits < c.DefaultSplits {
		return fmt.Errorf("invalid aggregator config: splits default %d max %d", c.DefaultSplits, c.MaxSplits)
	}
	if c.Parallelism < 0 || c.FetchBuffer < 0 || c.QuoteCacheSize < 0 {
		return fmt.Errorf("invalid aggregator config: negative parallelism, fetch buffer or cache size")
	}
	if c.PersistenceEnabled && c.DBPath == "" {
		return fmt.Errorf("invalid aggregator config: db path is required when persistence is enabled")
	}
	return nil
}
