package main

import (
	"os"

	envcommon "github.com/andrew-solarstorm/go-packages/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hxuan190/evm-quote-engine/internal/common"
)

var (
	routesFile   string
	rpcURL       string
	tokenIn      string
	tokenOut     string
	amountArg    string
	modeArg      string
	splits       int
	blockNumber  uint64
	dbPath       string
	fromSnapshot bool
	persist      bool

	rootCmd = &cobra.Command{
		Use:   "quote",
		Short: "Split one order across the configured Katana routes and print the allocation",
		Long: `quote simulates every configured route for a token pair through the Katana aggregate router
with debug_traceCall and splits the order greedily across them.

Chain state read while quoting can be saved to a local snapshot (--persist). --from-snapshot
quotes at the newest stored block and answers state reads from that snapshot; swaps are still
simulated by the node, so an RPC endpoint is always required.`,
		SilenceUsage: true,
		RunE:         runQuote,
	}
)

func init() {
	// flag defaults read the environment, so .env must be loaded first
	_ = godotenv.Load()

	rootCmd.Flags().StringVar(&routesFile, "routes", envcommon.GetEnvOrDefault("ROUTES_FILE", "./routes.yaml"), "YAML file with the candidate routes")
	rootCmd.Flags().StringVar(&rpcURL, "rpc", "", "JSON-RPC endpoint; overrides RPC_URL")
	rootCmd.Flags().StringVar(&tokenIn, "in", "", "input token; defaults to the first route's input")
	rootCmd.Flags().StringVar(&tokenOut, "out", "", "output token; defaults to the first route's output")
	rootCmd.Flags().StringVar(&amountArg, "amount", "", "amount in smallest token units")
	rootCmd.Flags().StringVar(&modeArg, "mode", "ExactIn", "swap mode: ExactIn or ExactOut")
	rootCmd.Flags().IntVar(&splits, "splits", 0, "number of chunks; 0 uses DEFAULT_SPLITS")
	rootCmd.Flags().Uint64Var(&blockNumber, "block", 0, "block to quote at; 0 means latest")
	rootCmd.Flags().StringVar(&dbPath, "db", envcommon.GetEnvOrDefault("AGGREGATOR_DB_PATH", "./data/aggregator.db"), "snapshot database")
	rootCmd.Flags().BoolVar(&fromSnapshot, "from-snapshot", false, "quote at the newest stored snapshot block, answering state reads from it")
	rootCmd.Flags().BoolVar(&persist, "persist", false, "save the chain state read while quoting")
	_ = rootCmd.MarkFlagRequired("amount")
}

func main() {
	common.InitLogger(os.Getenv("LOG_LEVEL"), os.Getenv("ENV"))

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("quote failed")
		os.Exit(1)
	}
}
