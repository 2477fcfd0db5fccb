package config

import (
	"errors"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
)

type RPCConfig struct {
	// RPCUrl is the JSON-RPC endpoint (http, https or ws). It must serve debug_traceCall.
	RPCUrl  string
	Timeout time.Duration
}

func (r *RPCConfig) Key() string {
	return RPC_CONFIG_KEY
}

func (r *RPCConfig) Load() error {
	r.RPCUrl = common.GetEnvOrDefault("RPC_URL", "")
	r.Timeout = time.Duration(common.GetEnvOrDefaultInt("RPC_TIMEOUT_MS", 10_000)) * time.Millisecond
	return nil
}

func (r *RPCConfig) Validate() error {
	if r.RPCUrl == "" {
		return errors.New("invalid rpc config: RPC_URL is required")
	}
	if r.Timeout <= 0 {
		return errors.New("invalid rpc config: RPC_TIMEOUT_MS must be positive")
	}
	return nil
}
