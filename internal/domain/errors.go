package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRoute         = errors.New("invalid route")
	ErrRouteUnavailable     = errors.New("route unavailable")
	ErrOracleUnavailable    = errors.New("state oracle unavailable")
	ErrAllRoutesUnavailable = errors.New("all routes unavailable")
	ErrArithmeticInvalid    = errors.New("invalid amount or split count")
	ErrNoRoute              = errors.New("no route configured for token pair")
	ErrSnapshotMismatch     = errors.New("snapshot block does not match pinned block")
	ErrUnknownVariant       = errors.New("unknown venue variant")
)

type ExecutionFailure uint8

const (
	FailureRevert ExecutionFailure = iota
	FailureHalt
)

func (f ExecutionFailure) String() string {
	if f == FailureRevert {
		return "revert"
	}
	return "halt"
}

// ExecutionError reports a simulated call that reverted or halted.
type ExecutionError struct {
	Failure ExecutionFailure
	Reason  string
	GasUsed uint64
}

func (e *ExecutionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("execution %s (gas used %d)", e.Failure, e.GasUsed)
	}
	return fmt.Sprintf("execution %s: %s (gas used %d)", e.Failure, e.Reason, e.GasUsed)
}

func (e *ExecutionError) Unwrap() error {
	return ErrRouteUnavailable
}
