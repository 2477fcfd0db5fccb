package blockchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"

	"github.com/hxuan190/evm-quote-engine/internal/domain"
)

// RPCOracle reads chain state at one block over JSON-RPC.
type RPCOracle struct {
	client *ClientService
	blocks *BlockhashCacheService
	block  uint64
}

// NewRPCOracle pins reads to block. blocks may be nil, in which case block hashes are always fetched.
func NewRPCOracle(client *ClientService, blocks *BlockhashCacheService, block uint64) *RPCOracle {
	return &RPCOracle{client: client, blocks: blocks, block: block}
}

func (o *RPCOracle) blockArg() string {
	return hexutil.EncodeUint64(o.block)
}

// Account fetches balance, nonce and code in a single batch.
func (o *RPCOracle) Account(ctx context.Context, addr common.Address) (domain.Account, error) {
	ctx, cancel := o.client.withTimeout(ctx)
	defer cancel()

	var (
		balance hexutil.Big
		nonce   hexutil.Uint64
		code    hexutil.Bytes
	)
	batch := []rpc.BatchElem{
		{Method: "eth_getBalance", Args: []any{addr, o.blockArg()}, Result: &balance},
		{Method: "eth_getTransactionCount", Args: []any{addr, o.blockArg()}, Result: &nonce},
		{Method: "eth_getCode", Args: []any{addr, o.blockArg()}, Result: &code},
	}
	if err := o.client.RPC().BatchCallContext(ctx, batch); err != nil {
		return domain.Account{}, fmt.Errorf("%w: account %s: %v", domain.ErrOracleUnavailable, addr.Hex(), err)
	}
	for _, elem := range batch {
		if elem.Error != nil {
			return domain.Account{}, fmt.Errorf("%w: %s %s: %v", domain.ErrOracleUnavailable, elem.Method, addr.Hex(), elem.Error)
		}
	}

	bal, overflow := uint256.FromBig((*big.Int)(&balance))
	if overflow {
		return domain.Account{}, fmt.Errorf("%w: balance of %s overflows 256 bits", domain.ErrOracleUnavailable, addr.Hex())
	}
	acc := domain.Account{Balance: bal, Nonce: uint64(nonce), Code: code, CodeHash: types.EmptyCodeHash}
	if len(code) > 0 {
		acc.CodeHash = crypto.Keccak256Hash(code)
	}
	return acc, nil
}

func (o *RPCOracle) Storage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	ctx, cancel := o.client.withTimeout(ctx)
	defer cancel()

	raw, err := o.client.Eth().StorageAt(ctx, addr, slot, new(big.Int).SetUint64(o.block))
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: storage %s[%s]: %v", domain.ErrOracleUnavailable, addr.Hex(), slot.Hex(), err)
	}
	return common.BytesToHash(raw), nil
}

// BlockHash reads the hash the node reports instead of rehashing the header locally.
func (o *RPCOracle) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	if o.blocks != nil {
		return o.blocks.BlockHash(ctx, number)
	}
	return fetchBlockHash(ctx, o.client, number)
}

type blockHeader struct {
	Number hexutil.Uint64 `json:"number"`
	Hash   common.Hash    `json:"hash"`
}

func fetchHeader(ctx context.Context, client *ClientService, tag string) (*blockHeader, error) {
	ctx, cancel := client.withTimeout(ctx)
	defer cancel()

	var head *blockHeader
	if err := client.RPC().CallContext(ctx, &head, "eth_getBlockByNumber", tag, false); err != nil {
		return nil, fmt.Errorf("%w: block %s: %v", domain.ErrOracleUnavailable, tag, err)
	}
	if head == nil {
		return nil, fmt.Errorf("%w: block %s not found", domain.ErrOracleUnavailable, tag)
	}
	return head, nil
}

func fetchBlockHash(ctx context.Context, client *ClientService, number uint64) (common.Hash, error) {
	head, err := fetchHeader(ctx, client, hexutil.EncodeUint64(number))
	if err != nil {
		return common.Hash{}, err
	}
	return head.Hash, nil
}
