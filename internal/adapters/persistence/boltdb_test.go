package persistence

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/evm-quote-engine/internal/domain"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	storage, err := NewStorage(filepath.Join(t.TempDir(), "nested", "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func sampleSnapshot(block uint64) *domain.Snapshot {
	pool := common.HexToAddress("0x0000000000000000000000000000000000000a01")
	holder := common.HexToAddress("0xc1eb47de5d549d45a871e32d9d082e7ac5d2e3ed")
	code := []byte{0x60, 0x80, 0x60, 0x40}
	maxBalance := new(uint256.Int).Not(new(uint256.Int))

	snap := domain.NewSnapshot(block)
	snap.Apply(domain.StateFetch{Kind: domain.FetchAccount, Address: pool, Account: domain.Account{
		Balance: uint256.NewInt(0), Nonce: 1, Code: code, CodeHash: crypto.Keccak256Hash(code),
	}})
	snap.Apply(domain.StateFetch{Kind: domain.FetchAccount, Address: holder, Account: domain.Account{
		Balance: maxBalance, Nonce: 42, CodeHash: types.EmptyCodeHash,
	}})
	snap.Apply(domain.StateFetch{Kind: domain.FetchStorage, Address: pool, Slot: common.Hash{}, Value: common.HexToHash("0x03e8")})
	snap.Apply(domain.StateFetch{Kind: domain.FetchStorage, Address: pool, Slot: common.HexToHash("0x08"), Value: common.Hash{}})
	snap.Apply(domain.StateFetch{Kind: domain.FetchBlockHash, Number: block - 1, Hash: common.HexToHash("0xbeef")})
	return snap
}

func TestSnapshotRoundTrip(t *testing.T) {
	storage := openTestStorage(t)
	snap := sampleSnapshot(100)
	require.NoError(t, storage.SaveSnapshot(snap))

	loaded, err := storage.LoadSnapshot(100)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)
}

func TestSnapshotsOfDifferentBlocksDoNotMix(t *testing.T) {
	storage := openTestStorage(t)
	older := sampleSnapshot(100)
	newer := domain.NewSnapshot(250)
	newer.Apply(domain.StateFetch{Kind: domain.FetchStorage, Address: common.HexToAddress("0x0b"), Slot: common.Hash{}, Value: common.HexToHash("0x01")})

	require.NoError(t, storage.SaveSnapshot(older))
	require.NoError(t, storage.SaveSnapshot(newer))

	latest, ok, err := storage.LatestSnapshotBlock()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(250), latest)

	loaded, err := storage.LoadSnapshot(250)
	require.NoError(t, err)
	assert.Equal(t, newer, loaded)

	loaded, err = storage.LoadSnapshot(100)
	require.NoError(t, err)
	assert.Equal(t, older, loaded)
}

func TestLoadSnapshotMissingBlock(t *testing.T) {
	storage := openTestStorage(t)

	_, ok, err := storage.LatestSnapshotBlock()
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = storage.LoadSnapshot(7)
	assert.ErrorIs(t, err, domain.ErrSnapshotMismatch)
}
