package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/hxuan190/evm-quote-engine/internal/aggregator/services/state"
	"github.com/hxuan190/evm-quote-engine/internal/domain"
)

var (
	testCaller = common.HexToAddress("0xc1eb47de5d549d45a871e32d9d082e7ac5d2e3ed")
	testRouter = common.HexToAddress("0x5f0acdd3ec767514ff1bf7e79949640bf94576bd")
	tokenA     = common.HexToAddress("0x0000000000000000000000000000000000000a0a")
	tokenB     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	tokenC     = common.HexToAddress("0x0000000000000000000000000000000000000c0c")

	reserveInSlot  = common.Hash{}
	reserveOutSlot = common.BigToHash(common.Big1)
)

// memLedger keeps storage in memory and delegates calls to an optional script.
type memLedger struct {
	mu       sync.RWMutex
	base     map[common.Address]map[common.Hash]common.Hash
	overlay  domain.StateDelta
	transact func(msg state.Message) (*state.Receipt, error)
}

func newMemLedger() *memLedger {
	return &memLedger{
		base:    map[common.Address]map[common.Hash]common.Hash{},
		overlay: domain.StateDelta{},
	}
}

func (l *memLedger) Caller() common.Address {
	return testCaller
}

func (l *memLedger) Transact(_ context.Context, msg state.Message) (*state.Receipt, error) {
	if l.transact == nil {
		return nil, errors.New("memLedger: no call script")
	}
	return l.transact(msg)
}

func (l *memLedger) Storage(_ context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.overlay.Slot(addr, slot); ok {
		return v, nil
	}
	return l.base[addr][slot], nil
}

func (l *memLedger) Commit(delta domain.StateDelta) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overlay.Merge(delta)
}

func (l *memLedger) Branch() state.Ledger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &memLedger{base: l.base, overlay: l.overlay.Clone(), transact: l.transact}
}

func (l *memLedger) setReserves(pool common.Address, in, out uint64) {
	l.base[pool] = map[common.Hash]common.Hash{
		reserveInSlot:  u256Hash(uint256.NewInt(in)),
		reserveOutSlot: u256Hash(uint256.NewInt(out)),
	}
}

func u256Hash(v *uint256.Int) common.Hash {
	return common.Hash(v.Bytes32())
}

func hashU256(h common.Hash) *uint256.Int {
	return new(uint256.Int).SetBytes(h.Bytes())
}

// cpmmExecutor prices a constant-product pool with a 0.3% fee whose reserves live in ledger storage.
type cpmmExecutor struct {
	pool common.Address
}

func (e *cpmmExecutor) reserves(ctx context.Context, ledger state.Ledger) (*uint256.Int, *uint256.Int, error) {
	rin, err := ledger.Storage(ctx, e.pool, reserveInSlot)
	if err != nil {
		return nil, nil, err
	}
	rout, err := ledger.Storage(ctx, e.pool, reserveOutSlot)
	if err != nil {
		return nil, nil, err
	}
	return hashU256(rin), hashU256(rout), nil
}

func (e *cpmmExecutor) Execute(ctx context.Context, ledger state.Ledger, amount *uint256.Int, mode domain.SwapMode) (*domain.SwapResult, error) {
	rin, rout, err := e.reserves(ctx, ledger)
	if err != nil {
		return nil, err
	}

	var amountIn, amountOut *uint256.Int
	if mode == domain.SwapModeIn {
		amountIn = amount
		amountOut = cpmmOut(rin, rout, amountIn)
	} else {
		amountOut = amount
		if !amountOut.Lt(rout) {
			return nil, &domain.ExecutionError{Failure: domain.FailureRevert, Reason: "INSUFFICIENT_LIQUIDITY"}
		}
		amountIn = cpmmIn(rin, rout, amountOut)
	}
	if amountOut.IsZero() {
		return nil, fmt.Errorf("%w: zero output", domain.ErrRouteUnavailable)
	}

	delta := domain.StateDelta{}
	delta.SetSlot(e.pool, reserveInSlot, u256Hash(new(uint256.Int).Add(rin, amountIn)))
	delta.SetSlot(e.pool, reserveOutSlot, u256Hash(new(uint256.Int).Sub(rout, amountOut)))

	if mode == domain.SwapModeIn {
		return &domain.SwapResult{Amount: amountOut, Delta: delta}, nil
	}
	return &domain.SwapResult{Amount: amountIn, Delta: delta}, nil
}

func cpmmOut(rin, rout, amountIn *uint256.Int) *uint256.Int {
	withFee := new(uint256.Int).Mul(amountIn, uint256.NewInt(997))
	num := new(uint256.Int).Mul(withFee, rout)
	den := new(uint256.Int).Mul(rin, uint256.NewInt(1000))
	den.Add(den, withFee)
	return num.Div(num, den)
}

func cpmmIn(rin, rout, amountOut *uint256.Int) *uint256.Int {
	num := new(uint256.Int).Mul(rin, amountOut)
	num.Mul(num, uint256.NewInt(1000))
	den := new(uint256.Int).Sub(rout, amountOut)
	den.Mul(den, uint256.NewInt(997))
	num.Div(num, den)
	return num.AddUint64(num, 1)
}

// scriptedExecutor returns canned results or errors, counting calls.
type scriptedExecutor struct {
	mu     sync.Mutex
	calls  int
	script func(call int, amount *uint256.Int) (*domain.SwapResult, error)
}

func (e *scriptedExecutor) Execute(_ context.Context, _ state.Ledger, amount *uint256.Int, _ domain.SwapMode) (*domain.SwapResult, error) {
	e.mu.Lock()
	call := e.calls
	e.calls++
	e.mu.Unlock()
	return e.script(call, amount)
}

func reverting() *scriptedExecutor {
	return &scriptedExecutor{script: func(int, *uint256.Int) (*domain.SwapResult, error) {
		return nil, &domain.ExecutionError{Failure: domain.FailureRevert, Reason: "STF"}
	}}
}
