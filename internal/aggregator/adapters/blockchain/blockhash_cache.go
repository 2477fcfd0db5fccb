package blockchain

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"

	appcommon "github.com/hxuan190/evm-quote-engine/internal/common"
	"github.com/hxuan190/evm-quote-engine/internal/domain"
)

const BLOCKHASH_CACHE_SERVICE = "cache-blockhash-svc"

const (
	latestTTL      = 2 * time.Second
	blockHashSlots = 4096
)

type CachedBlock struct {
	Ref       domain.BlockRef
	UpdatedAt time.Time
}

// BlockhashCacheService tracks the chain head that new quote sessions pin to,
// and memoises historical block hashes.
type BlockhashCacheService struct {
	container.BaseDIInstance

	mu      sync.RWMutex
	current *CachedBlock
	client  *ClientService
	hashes  *appcommon.BoundedLRUCache[uint64, common.Hash]
}

func NewBlockhashCache(client *ClientService) *BlockhashCacheService {
	return &BlockhashCacheService{
		client: client,
		hashes: appcommon.NewBoundedLRUCache[uint64, common.Hash](blockHashSlots),
	}
}

func (svc *BlockhashCacheService) ID() string {
	return BLOCKHASH_CACHE_SERVICE
}

func (svc *BlockhashCacheService) Configure(c container.IContainer) error {
	svc.client = c.Instance(RPC_CLIENT_SERVICE).(*ClientService)
	svc.hashes = appcommon.NewBoundedLRUCache[uint64, common.Hash](blockHashSlots)
	return nil
}

func (svc *BlockhashCacheService) Start() error {
	ref, err := svc.refresh(context.Background())
	if err != nil {
		log.Warn().Err(err).Msg("[BlockhashCacheService] failed to fetch initial block, will retry on first request")
		return nil
	}
	log.Info().
		Uint64("block", ref.Number).
		Str("hash", ref.Hash.Hex()).
		Msg("[BlockhashCacheService] initialized with latest block")
	return nil
}

func (svc *BlockhashCacheService) Stop() error {
	return nil
}

func (svc *BlockhashCacheService) refresh(ctx context.Context) (domain.BlockRef, error) {
	head, err := fetchHeader(ctx, svc.client, "latest")
	if err != nil {
		return domain.BlockRef{}, err
	}
	ref := domain.BlockRef{Number: uint64(head.Number), Hash: head.Hash}

	svc.mu.Lock()
	svc.current = &CachedBlock{Ref: ref, UpdatedAt: time.Now()}
	svc.mu.Unlock()
	svc.hashes.Set(ref.Number, ref.Hash)
	return ref, nil
}

// Latest returns the chain head, refreshing it at most every two seconds.
// When the node is unreachable the last known head is served.
func (svc *BlockhashCacheService) Latest(ctx context.Context) (domain.BlockRef, error) {
	svc.mu.RLock()
	cached := svc.current
	svc.mu.RUnlock()

	if cached != nil && time.Since(cached.UpdatedAt) < latestTTL {
		return cached.Ref, nil
	}

	ref, err := svc.refresh(ctx)
	if err != nil {
		if cached != nil {
			log.Warn().Err(err).Uint64("block", cached.Ref.Number).Msg("[BlockhashCacheService] serving stale head")
			return cached.Ref, nil
		}
		return domain.BlockRef{}, err
	}
	return ref, nil
}

func (svc *BlockhashCacheService) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	if h, ok := svc.hashes.Get(number); ok {
		return h, nil
	}
	h, err := fetchBlockHash(ctx, svc.client, number)
	if err != nil {
		return common.Hash{}, err
	}
	svc.hashes.Set(number, h)
	return h, nil
}
