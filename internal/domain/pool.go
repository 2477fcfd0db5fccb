package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Variant identifies the venue family a pool is executed through.
type Variant uint8

const (
	VariantKatanaV2 Variant = iota
	VariantKatanaV3
)

// MaxV3Fee is the largest fee tier that fits the 3-byte field of a V3 path.
const MaxV3Fee = 1<<24 - 1

func (v Variant) String() string {
	switch v {
	case VariantKatanaV2:
		return "katana-v2"
	case VariantKatanaV3:
		return "katana-v3"
	default:
		return "UNKNOWN"
	}
}

func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "katana-v2", "katanav2", "v2":
		return VariantKatanaV2, nil
	case "katana-v3", "katanav3", "v3":
		return VariantKatanaV3, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
}

// Pool is one directed hop through a liquidity venue.
type Pool struct {
	Address  common.Address `json:"address"`
	TokenIn  common.Address `json:"tokenIn"`
	TokenOut common.Address `json:"tokenOut"`
	Variant  Variant        `json:"variant"`
	// Fee is the V3 fee tier in hundredths of a bip. Unused by V2 pools.
	Fee uint32 `json:"fee"`
}

func (p Pool) validate() error {
	if p.TokenIn == p.TokenOut {
		return fmt.Errorf("%w: pool %s swaps %s into itself", ErrInvalidRoute, p.Address.Hex(), p.TokenIn.Hex())
	}
	switch p.Variant {
	case VariantKatanaV2:
	case VariantKatanaV3:
		if p.Fee > MaxV3Fee {
			return fmt.Errorf("%w: pool %s fee %d does not fit 24 bits", ErrInvalidRoute, p.Address.Hex(), p.Fee)
		}
	default:
		return fmt.Errorf("%w: pool %s: %w", ErrInvalidRoute, p.Address.Hex(), ErrUnknownVariant)
	}
	return nil
}

// Route is a non-empty, token-continuous sequence of pools.
// The zero value is the empty route and is only produced by callers that never went through NewRoute.
type Route struct {
	name  string
	pools []Pool
}

// NewRoute validates and copies pools into a Route.
func NewRoute(name string, pools []Pool) (Route, error) {
	if len(pools) == 0 {
		return Route{}, fmt.Errorf("%w: route %q has no pools", ErrInvalidRoute, name)
	}
	for i, p := range pools {
		if err := p.validate(); err != nil {
			return Route{}, fmt.Errorf("route %q hop %d: %w", name, i, err)
		}
		if i > 0 && pools[i-1].TokenOut != p.TokenIn {
			return Route{}, fmt.Errorf("%w: route %q breaks at hop %d (%s -> %s)",
				ErrInvalidRoute, name, i, pools[i-1].TokenOut.Hex(), p.TokenIn.Hex())
		}
	}
	return Route{name: name, pools: append([]Pool(nil), pools...)}, nil
}

func (r Route) Name() string {
	return r.name
}

func (r Route) Len() int {
	return len(r.pools)
}

// Pools returns a copy of the route's hops.
func (r Route) Pools() []Pool {
	return append([]Pool(nil), r.pools...)
}

func (r Route) TokenIn() common.Address {
	if len(r.pools) == 0 {
		return common.Address{}
	}
	return r.pools[0].TokenIn
}

func (r Route) TokenOut() common.Address {
	if len(r.pools) == 0 {
		return common.Address{}
	}
	return r.pools[len(r.pools)-1].TokenOut
}

// Tokens returns the full token path, input first.
func (r Route) Tokens() []common.Address {
	if len(r.pools) == 0 {
		return nil
	}
	tokens := make([]common.Address, 0, len(r.pools)+1)
	tokens = append(tokens, r.pools[0].TokenIn)
	for _, p := range r.pools {
		tokens = append(tokens, p.TokenOut)
	}
	return tokens
}

func (r Route) String() string {
	var sb strings.Builder
	if r.name != "" {
		sb.WriteString(r.name)
		sb.WriteString(": ")
	}
	for i, t := range r.Tokens() {
		if i > 0 {
			sb.WriteString(" -> ")
		}
		sb.WriteString(t.Hex())
	}
	return sb.String()
}

// Segment is a maximal run of consecutive pools sharing one variant.
type Segment struct {
	Variant Variant
	Pools   []Pool
}

// TokenIn is the zero address for an empty segment, like Route.TokenIn.
func (s Segment) TokenIn() common.Address {
	if len(s.Pools) == 0 {
		return common.Address{}
	}
	return s.Pools[0].TokenIn
}

func (s Segment) TokenOut() common.Address {
	if len(s.Pools) == 0 {
		return common.Address{}
	}
	return s.Pools[len(s.Pools)-1].TokenOut
}
