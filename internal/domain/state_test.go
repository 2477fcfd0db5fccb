package domain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateDeltaMerge(t *testing.T) {
	slot0 := common.Hash{}
	slot1 := common.BigToHash(common.Big1)

	base := StateDelta{}
	base.SetSlot(pool1, slot0, common.HexToHash("0x01"))
	base.SetSlot(pool1, slot1, common.HexToHash("0x02"))

	nonce := uint64(7)
	next := StateDelta{
		pool1: {Storage: map[common.Hash]common.Hash{slot1: common.HexToHash("0x03")}},
		pool2: {Balance: uint256.NewInt(10), Nonce: &nonce},
	}
	base.Merge(next)

	v, ok := base.Slot(pool1, slot0)
	require.True(t, ok)
	assert.Equal(t, common.HexToHash("0x01"), v)

	v, ok = base.Slot(pool1, slot1)
	require.True(t, ok)
	assert.Equal(t, common.HexToHash("0x03"), v)

	require.Contains(t, base, pool2)
	assert.Equal(t, uint64(10), base[pool2].Balance.Uint64())

	// merged values must not alias the source delta
	next[pool2].Balance.SetUint64(99)
	*next[pool2].Nonce = 8
	assert.Equal(t, uint64(10), base[pool2].Balance.Uint64())
	assert.Equal(t, uint64(7), *base[pool2].Nonce)
}

func TestStateDeltaClone(t *testing.T) {
	d := StateDelta{}
	d.SetSlot(pool1, common.Hash{}, common.HexToHash("0x01"))

	c := d.Clone()
	c.SetSlot(pool1, common.Hash{}, common.HexToHash("0x05"))

	v, _ := d.Slot(pool1, common.Hash{})
	assert.Equal(t, common.HexToHash("0x01"), v)
	_, ok := d.Slot(pool2, common.Hash{})
	assert.False(t, ok)
}

func TestSnapshotApply(t *testing.T) {
	snap := NewSnapshot(42)
	code := []byte{0x60, 0x00}
	codeHash := common.HexToHash("0xc0de")

	snap.Apply(StateFetch{Kind: FetchAccount, Address: pool1, Account: Account{
		Balance: uint256.NewInt(5), Nonce: 1, CodeHash: codeHash, Code: code,
	}})
	snap.Apply(StateFetch{Kind: FetchStorage, Address: pool1, Slot: common.Hash{}, Value: common.HexToHash("0x09")})
	snap.Apply(StateFetch{Kind: FetchBlockHash, Number: 41, Hash: common.HexToHash("0xbeef")})

	acc, ok := snap.Account(pool1)
	require.True(t, ok)
	assert.Equal(t, uint64(5), acc.Balance.Uint64())
	assert.Equal(t, code, acc.Code)
	assert.Equal(t, common.HexToHash("0x09"), snap.Storage[pool1][common.Hash{}])
	assert.Equal(t, common.HexToHash("0xbeef"), snap.BlockHashes[41])
	assert.Equal(t, 3, snap.Size())
	assert.False(t, snap.Empty())
}

func TestAllocationRecord(t *testing.T) {
	alloc := NewAllocation(SwapModeIn, 2)
	alloc.Record(0, 1, uint256.NewInt(10), uint256.NewInt(30))
	alloc.Record(1, 0, uint256.NewInt(10), uint256.NewInt(25))
	alloc.Record(2, 1, uint256.NewInt(1), uint256.NewInt(2))

	assert.Equal(t, uint64(25), alloc.Amounts[0].Uint64())
	assert.Equal(t, uint64(32), alloc.Amounts[1].Uint64())
	assert.Equal(t, uint64(57), alloc.Total().Uint64())
	assert.Equal(t, uint64(21), alloc.Specified().Uint64())
	assert.Equal(t, uint64(11), alloc.SpecifiedFor(1).Uint64())
}

func TestSwapModeBetter(t *testing.T) {
	assert.True(t, SwapModeIn.Better(uint256.NewInt(2), uint256.NewInt(1)))
	assert.False(t, SwapModeIn.Better(uint256.NewInt(1), uint256.NewInt(1)))
	assert.True(t, SwapModeOut.Better(uint256.NewInt(1), uint256.NewInt(2)))
	assert.False(t, SwapModeOut.Better(uint256.NewInt(2), uint256.NewInt(2)))
}
