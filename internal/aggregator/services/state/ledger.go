// Package state holds the simulated ledger used by quote sessions and the oracle it reads chain state from.
package state

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/hxuan190/evm-quote-engine/internal/domain"
)

type Status uint8

const (
	StatusSuccess Status = iota
	StatusRevert
	StatusHalt
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusRevert:
		return "revert"
	default:
		return "halt"
	}
}

// Message is a call submitted to the ledger on behalf of its caller.
type Message struct {
	To    common.Address
	Data  []byte
	Value *uint256.Int
	// Gas overrides the ledger's default gas limit when non-zero.
	Gas uint64
}

// Receipt is the outcome of one simulated call. Delta is not applied to the ledger.
type Receipt struct {
	Status  Status
	Output  []byte
	Reason  string
	GasUsed uint64
	Logs    []*types.Log
	Delta   domain.StateDelta
}

// Err converts a failed receipt into a typed execution error.
func (r *Receipt) Err() error {
	switch r.Status {
	case StatusSuccess:
		return nil
	case StatusRevert:
		return &domain.ExecutionError{Failure: domain.FailureRevert, Reason: r.Reason, GasUsed: r.GasUsed}
	default:
		return &domain.ExecutionError{Failure: domain.FailureHalt, Reason: r.Reason, GasUsed: r.GasUsed}
	}
}

// Ledger is a sandboxed view of chain state that calls can be simulated against.
//
// Transact never mutates the ledger. Commit applies a delta so later calls observe it.
// Branch returns an independent child whose commits do not reach the parent.
type Ledger interface {
	Caller() common.Address
	Transact(ctx context.Context, msg Message) (*Receipt, error)
	Storage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error)
	Commit(delta domain.StateDelta)
	Branch() Ledger
}

// Simulation is a call request handed to an Engine.
type Simulation struct {
	Block     domain.BlockRef
	From      common.Address
	To        common.Address
	Data      []byte
	Value     *uint256.Int
	Gas       uint64
	Overrides domain.StateDelta
}

// Trace is the Engine's view of a simulated call.
// Pre holds prior values of the accounts the call modified, Post their new values.
type Trace struct {
	Status  Status
	Output  []byte
	Reason  string
	GasUsed uint64
	Logs    []*types.Log
	Pre     domain.StateDelta
	Post    domain.StateDelta
}

// Engine executes calls against a block with state overrides applied.
type Engine interface {
	Simulate(ctx context.Context, sim *Simulation) (*Trace, error)
}
