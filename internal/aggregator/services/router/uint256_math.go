package router

import (
	"github.com/holiman/uint256"
)

var (
	u256BpsDenom = uint256.NewInt(10000)
	u256Zero     = uint256.NewInt(0)
)

// maxUint256 returns 2^256-1, the "no bound" value for router amount limits.
func maxUint256() *uint256.Int {
	return new(uint256.Int).Not(u256Zero)
}

// SplitAmount divides amount into splits equal chunks: amount = chunk*splits + remainder.
func SplitAmount(amount *uint256.Int, splits int) (chunk, remainder *uint256.Int) {
	chunk = new(uint256.Int)
	remainder = new(uint256.Int)
	if splits <= 0 {
		return chunk, remainder.Set(amount)
	}
	chunk.DivMod(amount, uint256.NewInt(uint64(splits)), remainder)
	return chunk, remainder
}

// ShareBps returns part/total in basis points, 0 when total is zero.
func ShareBps(part, total *uint256.Int) uint64 {
	if total == nil || total.IsZero() || part == nil {
		return 0
	}
	out, overflow := new(uint256.Int).MulDivOverflow(part, u256BpsDenom, total)
	if overflow || !out.IsUint64() {
		return 0
	}
	return out.Uint64()
}
