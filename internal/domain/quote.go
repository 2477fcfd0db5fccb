package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Fill records which route won one split round.
type Fill struct {
	Split     int          `json:"split"`
	Route     int          `json:"route"`
	Specified *uint256.Int `json:"specified"`
	Quoted    *uint256.Int `json:"quoted"`
}

// Allocation is the per-route result of a split quote, aligned with the candidate route order.
type Allocation struct {
	Mode    SwapMode
	Amounts []*uint256.Int
	Fills   []Fill
}

func NewAllocation(mode SwapMode, routes int) *Allocation {
	amounts := make([]*uint256.Int, routes)
	for i := range amounts {
		amounts[i] = new(uint256.Int)
	}
	return &Allocation{Mode: mode, Amounts: amounts}
}

// Record adds a winning fill to the allocation.
func (a *Allocation) Record(split, route int, specified, quoted *uint256.Int) {
	a.Amounts[route].Add(a.Amounts[route], quoted)
	a.Fills = append(a.Fills, Fill{
		Split:     split,
		Route:     route,
		Specified: new(uint256.Int).Set(specified),
		Quoted:    new(uint256.Int).Set(quoted),
	})
}

// Total is the sum of all allocated counterpart amounts.
func (a *Allocation) Total() *uint256.Int {
	total := new(uint256.Int)
	for _, amt := range a.Amounts {
		total.Add(total, amt)
	}
	return total
}

// Specified is the sum of the specified amounts that were filled.
func (a *Allocation) Specified() *uint256.Int {
	total := new(uint256.Int)
	for _, f := range a.Fills {
		total.Add(total, f.Specified)
	}
	return total
}

// SpecifiedFor is the specified amount routed through one route.
func (a *Allocation) SpecifiedFor(route int) *uint256.Int {
	total := new(uint256.Int)
	for _, f := range a.Fills {
		if f.Route == route {
			total.Add(total, f.Specified)
		}
	}
	return total
}

type QuoteRequest struct {
	TokenIn  common.Address
	TokenOut common.Address
	Amount   *uint256.Int
	Mode     SwapMode
	Splits   int
}

// QuoteResult is a completed, or partially completed, split quote.
type QuoteResult struct {
	Block      BlockRef
	Request    QuoteRequest
	Routes     []Route
	RouteIDs   []int
	Allocation *Allocation
	// Partial is set when the session stopped before all splits were filled.
	Partial bool
}
