package domain

import (
	"fmt"

	"github.com/holiman/uint256"
)

// SwapMode selects which side of a swap the caller fixes.
type SwapMode uint8

const (
	// SwapModeIn spends an exact input and quotes the output.
	SwapModeIn SwapMode = iota
	// SwapModeOut receives an exact output and quotes the required input.
	SwapModeOut
)

func (m SwapMode) String() string {
	if m == SwapModeOut {
		return "ExactOut"
	}
	return "ExactIn"
}

func ParseSwapMode(s string) (SwapMode, error) {
	switch s {
	case "ExactIn", "exactIn", "in", "In":
		return SwapModeIn, nil
	case "ExactOut", "exactOut", "out", "Out":
		return SwapModeOut, nil
	default:
		return 0, fmt.Errorf("invalid swap mode %q: must be ExactIn or ExactOut", s)
	}
}

// Better reports whether candidate strictly beats incumbent under mode.
// In mode more output is better, in Out mode less input is better.
func (m SwapMode) Better(candidate, incumbent *uint256.Int) bool {
	if m == SwapModeOut {
		return candidate.Lt(incumbent)
	}
	return candidate.Gt(incumbent)
}

// SwapResult is the outcome of simulating one route or segment.
// Amount is the counterpart of the specified amount: output for SwapModeIn, input for SwapModeOut.
type SwapResult struct {
	Amount *uint256.Int
	Delta  StateDelta
}
