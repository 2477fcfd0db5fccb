package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/hxuan190/evm-quote-engine/internal/domain"
	"github.com/hxuan190/evm-quote-engine/internal/metrics"
)

// Oracle lazily serves chain state at one pinned block.
// Implementations wrap transport failures with domain.ErrOracleUnavailable.
type Oracle interface {
	Account(ctx context.Context, addr common.Address) (domain.Account, error)
	Storage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error)
	BlockHash(ctx context.Context, number uint64) (common.Hash, error)
}

// Observer accepts chain state learned as a side effect of simulation.
type Observer interface {
	Observe(fetches []domain.StateFetch)
}

// CachingOracle memoises an inner oracle and streams every newly learned value as a StateFetch.
//
// The record stream is optional. Once enabled the owner must drain Records() until it is closed,
// and call Close when no more reads will happen. Close is idempotent and nothing is sent after it.
type CachingOracle struct {
	inner Oracle
	block uint64

	mu       sync.RWMutex
	accounts map[common.Address]domain.Account
	storage  map[common.Address]map[common.Hash]common.Hash
	hashes   map[uint64]common.Hash

	recMu   sync.Mutex
	records chan domain.StateFetch
	closed  bool
}

func NewCachingOracle(inner Oracle, block uint64) *CachingOracle {
	return &CachingOracle{
		inner:    inner,
		block:    block,
		accounts: make(map[common.Address]domain.Account),
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
		hashes:   make(map[uint64]common.Hash),
	}
}

func (o *CachingOracle) BlockNumber() uint64 {
	return o.block
}

// EnableRecording opens the fetch record stream. Calling it twice returns the same channel.
func (o *CachingOracle) EnableRecording(buffer int) <-chan domain.StateFetch {
	o.recMu.Lock()
	defer o.recMu.Unlock()
	if o.records == nil {
		o.records = make(chan domain.StateFetch, buffer)
		if o.closed {
			close(o.records)
		}
	}
	return o.records
}

// Close ends the record stream. Reads keep working afterwards but are no longer recorded.
func (o *CachingOracle) Close() {
	o.recMu.Lock()
	defer o.recMu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	if o.records != nil {
		close(o.records)
	}
}

func (o *CachingOracle) emit(f domain.StateFetch) {
	o.recMu.Lock()
	defer o.recMu.Unlock()
	if o.records == nil || o.closed {
		return
	}
	o.records <- f
}

// Load seeds the cache from a snapshot taken at the same block. Loaded values are not re-recorded.
func (o *CachingOracle) Load(snap *domain.Snapshot) error {
	if snap.BlockNumber != o.block {
		return fmt.Errorf("%w: snapshot at %d, oracle at %d", domain.ErrSnapshotMismatch, snap.BlockNumber, o.block)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for addr := range snap.Accounts {
		acc, _ := snap.Account(addr)
		o.accounts[addr] = acc
	}
	for addr, slots := range snap.Storage {
		dst, ok := o.storage[addr]
		if !ok {
			dst = make(map[common.Hash]common.Hash, len(slots))
			o.storage[addr] = dst
		}
		for k, v := range slots {
			dst[k] = v
		}
	}
	for n, h := range snap.BlockHashes {
		o.hashes[n] = h
	}
	return nil
}

func (o *CachingOracle) Account(ctx context.Context, addr common.Address) (domain.Account, error) {
	o.mu.RLock()
	acc, ok := o.accounts[addr]
	o.mu.RUnlock()
	if ok {
		metrics.OracleFetches.WithLabelValues(domain.FetchAccount.String(), "cache").Inc()
		return acc, nil
	}

	acc, err := o.inner.Account(ctx, addr)
	if err != nil {
		return domain.Account{}, err
	}
	metrics.OracleFetches.WithLabelValues(domain.FetchAccount.String(), "remote").Inc()

	o.mu.Lock()
	o.accounts[addr] = acc
	o.mu.Unlock()
	o.emit(domain.StateFetch{Kind: domain.FetchAccount, Address: addr, Account: acc})
	return acc, nil
}

func (o *CachingOracle) Storage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	o.mu.RLock()
	v, ok := o.storage[addr][slot]
	o.mu.RUnlock()
	if ok {
		metrics.OracleFetches.WithLabelValues(domain.FetchStorage.String(), "cache").Inc()
		return v, nil
	}

	v, err := o.inner.Storage(ctx, addr, slot)
	if err != nil {
		return common.Hash{}, err
	}
	metrics.OracleFetches.WithLabelValues(domain.FetchStorage.String(), "remote").Inc()

	o.putSlot(addr, slot, v)
	o.emit(domain.StateFetch{Kind: domain.FetchStorage, Address: addr, Slot: slot, Value: v})
	return v, nil
}

func (o *CachingOracle) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	o.mu.RLock()
	h, ok := o.hashes[number]
	o.mu.RUnlock()
	if ok {
		metrics.OracleFetches.WithLabelValues(domain.FetchBlockHash.String(), "cache").Inc()
		return h, nil
	}

	h, err := o.inner.BlockHash(ctx, number)
	if err != nil {
		return common.Hash{}, err
	}
	metrics.OracleFetches.WithLabelValues(domain.FetchBlockHash.String(), "remote").Inc()

	o.mu.Lock()
	o.hashes[number] = h
	o.mu.Unlock()
	o.emit(domain.StateFetch{Kind: domain.FetchBlockHash, Number: number, Hash: h})
	return h, nil
}

// Observe stores values the execution engine read from chain, skipping keys already known.
func (o *CachingOracle) Observe(fetches []domain.StateFetch) {
	for _, f := range fetches {
		switch f.Kind {
		case domain.FetchAccount:
			o.mu.Lock()
			_, known := o.accounts[f.Address]
			if !known {
				o.accounts[f.Address] = f.Account
			}
			o.mu.Unlock()
			if known {
				continue
			}
		case domain.FetchStorage:
			o.mu.Lock()
			_, known := o.storage[f.Address][f.Slot]
			if !known {
				o.setSlotLocked(f.Address, f.Slot, f.Value)
			}
			o.mu.Unlock()
			if known {
				continue
			}
		default:
			continue
		}
		metrics.OracleFetches.WithLabelValues(f.Kind.String(), "trace").Inc()
		o.emit(f)
	}
}

func (o *CachingOracle) putSlot(addr common.Address, slot, v common.Hash) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setSlotLocked(addr, slot, v)
}

func (o *CachingOracle) setSlotLocked(addr common.Address, slot, v common.Hash) {
	slots, ok := o.storage[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		o.storage[addr] = slots
	}
	slots[slot] = v
}

func zeroIfNil(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
