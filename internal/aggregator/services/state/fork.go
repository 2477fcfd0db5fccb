package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/hxuan190/evm-quote-engine/internal/domain"
)

// DefaultGasLimit bounds a single simulated call when the fork config leaves it unset.
const DefaultGasLimit = 5_000_000

type ForkConfig struct {
	Caller   common.Address
	GasLimit uint64
}

// Fork is a Ledger pinned to one block: chain state comes from the oracle and the execution
// engine, committed deltas live in an in-memory overlay sent along as state overrides.
type Fork struct {
	engine Engine
	oracle Oracle
	block  domain.BlockRef
	config ForkConfig

	mu      sync.RWMutex
	overlay domain.StateDelta
}

// NewFork pins a fork at number, resolving the block hash through the oracle.
func NewFork(ctx context.Context, engine Engine, oracle Oracle, number uint64, cfg ForkConfig) (*Fork, error) {
	hash, err := oracle.BlockHash(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("pin block %d: %w", number, err)
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	return &Fork{
		engine:  engine,
		oracle:  oracle,
		block:   domain.BlockRef{Number: number, Hash: hash},
		config:  cfg,
		overlay: domain.StateDelta{},
	}, nil
}

func (f *Fork) Caller() common.Address {
	return f.config.Caller
}

func (f *Fork) Block() domain.BlockRef {
	return f.block
}

// Overlay returns a copy of every delta committed so far.
func (f *Fork) Overlay() domain.StateDelta {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.overlay.Clone()
}

func (f *Fork) Transact(ctx context.Context, msg Message) (*Receipt, error) {
	f.mu.RLock()
	overrides := f.overlay.Clone()
	f.mu.RUnlock()

	gas := msg.Gas
	if gas == 0 {
		gas = f.config.GasLimit
	}
	trace, err := f.engine.Simulate(ctx, &Simulation{
		Block:     f.block,
		From:      f.config.Caller,
		To:        msg.To,
		Data:      msg.Data,
		Value:     msg.Value,
		Gas:       gas,
		Overrides: overrides,
	})
	if err != nil {
		return nil, err
	}

	if obs, ok := f.oracle.(Observer); ok && len(trace.Pre) > 0 {
		obs.Observe(chainReads(trace.Pre, overrides))
	}

	delta := trace.Post
	if delta == nil {
		delta = domain.StateDelta{}
	}
	return &Receipt{
		Status:  trace.Status,
		Output:  trace.Output,
		Reason:  trace.Reason,
		GasUsed: trace.GasUsed,
		Logs:    trace.Logs,
		Delta:   delta,
	}, nil
}

func (f *Fork) Storage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	f.mu.RLock()
	v, ok := f.overlay.Slot(addr, slot)
	f.mu.RUnlock()
	if ok {
		return v, nil
	}
	return f.oracle.Storage(ctx, addr, slot)
}

// Account reads an account with committed changes applied.
func (f *Fork) Account(ctx context.Context, addr common.Address) (domain.Account, error) {
	acc, err := f.oracle.Account(ctx, addr)
	if err != nil {
		return domain.Account{}, err
	}
	acc.Balance = new(uint256.Int).Set(zeroIfNil(acc.Balance))

	f.mu.RLock()
	defer f.mu.RUnlock()
	diff, ok := f.overlay[addr]
	if !ok {
		return acc, nil
	}
	if diff.Balance != nil {
		acc.Balance.Set(diff.Balance)
	}
	if diff.Nonce != nil {
		acc.Nonce = *diff.Nonce
	}
	if diff.Code != nil {
		acc.Code = diff.Code
		acc.CodeHash = codeHash(diff.Code)
	}
	return acc, nil
}

func (f *Fork) Commit(delta domain.StateDelta) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overlay.Merge(delta)
}

func (f *Fork) Branch() Ledger {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return &Fork{
		engine:  f.engine,
		oracle:  f.oracle,
		block:   f.block,
		config:  f.config,
		overlay: f.overlay.Clone(),
	}
}

// chainReads keeps the pre-call values that came from chain rather than from the overlay.
func chainReads(pre, overrides domain.StateDelta) []domain.StateFetch {
	var out []domain.StateFetch
	for addr, diff := range pre {
		ov := overrides[addr]
		if diff.Balance != nil && (ov == nil || !ov.HasAccountFields()) {
			acc := domain.Account{Balance: diff.Balance, Code: diff.Code, CodeHash: codeHash(diff.Code)}
			if diff.Nonce != nil {
				acc.Nonce = *diff.Nonce
			}
			out = append(out, domain.StateFetch{Kind: domain.FetchAccount, Address: addr, Account: acc})
		}
		for slot, v := range diff.Storage {
			if _, overridden := overrides.Slot(addr, slot); overridden {
				continue
			}
			out = append(out, domain.StateFetch{Kind: domain.FetchStorage, Address: addr, Slot: slot, Value: v})
		}
	}
	return out
}

func codeHash(code []byte) common.Hash {
	if len(code) == 0 {
		return types.EmptyCodeHash
	}
	return crypto.Keccak256Hash(code)
}
