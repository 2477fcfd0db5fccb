package blockchain

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/evm-quote-engine/internal/config"
	"github.com/hxuan190/evm-quote-engine/internal/services"
)

const RPC_CLIENT_SERVICE = "rpc-client-service"

// ClientService owns the JSON-RPC connection shared by the oracle, the trace engine and the block cache.
type ClientService struct {
	container.BaseDIInstance

	config *config.RPCConfig
	rpc    *rpc.Client
	eth    *ethclient.Client
	logger *services.ServiceLogger
}

// Dial connects outside the container, for tools that wire components by hand.
func Dial(ctx context.Context, url string, timeout time.Duration) (*ClientService, error) {
	svc := &ClientService{config: &config.RPCConfig{RPCUrl: url, Timeout: timeout}}
	if err := svc.connect(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

func (svc *ClientService) ID() string {
	return RPC_CLIENT_SERVICE
}

func (svc *ClientService) Configure(c container.IContainer) error {
	svc.config = c.GetConfig(config.RPC_CONFIG_KEY).(*config.RPCConfig)
	svc.logger = services.NewServiceLogger(svc)
	return nil
}

func (svc *ClientService) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), svc.config.Timeout)
	defer cancel()
	if err := svc.connect(ctx); err != nil {
		return err
	}

	chainID, err := svc.eth.ChainID(ctx)
	if err != nil {
		svc.logger.Warn().Err(err).Msg("[ClientService] could not read chain id")
		return nil
	}
	svc.logger = svc.logger.With("chainID", chainID.String())
	svc.logger.Info().Msg("[ClientService] connected")
	return nil
}

func (svc *ClientService) Stop() error {
	if svc.rpc != nil {
		svc.rpc.Close()
	}
	return nil
}

func (svc *ClientService) connect(ctx context.Context) error {
	client, err := rpc.DialContext(ctx, svc.config.RPCUrl)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	svc.rpc = client
	svc.eth = ethclient.NewClient(client)
	return nil
}

func (svc *ClientService) RPC() *rpc.Client {
	return svc.rpc
}

func (svc *ClientService) Eth() *ethclient.Client {
	return svc.eth
}

func (svc *ClientService) Timeout() time.Duration {
	return svc.config.Timeout
}

// Close releases the connection of a client created with Dial.
func (svc *ClientService) Close() {
	_ = svc.Stop()
}

func (svc *ClientService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if svc.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, svc.config.Timeout)
}
