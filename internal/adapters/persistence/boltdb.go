package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	boltdb "github.com/andrew-solarstorm/bolt-db"
	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/evm-quote-engine/internal/domain"
)

const (
	SnapshotMetaBucket = "snapshot_meta"
	AccountsBucket     = "accounts"
	ContractsBucket    = "contracts"
	StorageBucket      = "storage"
	BlockHashesBucket  = "block_hashes"

	DefaultDBPath = "./data/aggregator.db"

	schemaKey     = "_schema"
	schemaVersion = "1"
)

var allBuckets = []string{SnapshotMetaBucket, AccountsBucket, ContractsBucket, StorageBucket, BlockHashesBucket}

type StoredSnapshotMeta struct {
	BlockNumber uint64 `json:"blockNumber"`
	Accounts    int    `json:"accounts"`
	Slots       int    `json:"slots"`
	BlockHashes int    `json:"blockHashes"`
	SavedAt     int64  `json:"savedAt"`
}

type StoredAccount struct {
	Address  string `json:"address"`
	Balance  string `json:"balance"`
	Nonce    uint64 `json:"nonce"`
	CodeHash string `json:"codeHash"`
}

type StoredContract struct {
	CodeHash string `json:"codeHash"`
	Code     string `json:"code"`
}

type StoredSlot struct {
	Address string `json:"address"`
	Slot    string `json:"slot"`
	Value   string `json:"value"`
}

type StoredBlockHash struct {
	Number uint64 `json:"number"`
	Hash   string `json:"hash"`
}

// Storage persists state snapshots. Accounts, slots and block hashes are keyed under their snapshot's
// block number so snapshots of different blocks never mix; contract code is shared by code hash.
type Storage struct {
	db     *boltdb.BoltDatabase
	dbPath string
}

func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db := boltdb.NewBoltDatabase(dbPath)
	if db == nil {
		return nil, fmt.Errorf("failed to open database at %s", dbPath)
	}

	s := &Storage{db: db, dbPath: dbPath}
	for _, bucket := range allBuckets {
		if err := db.Set(bucket, []byte(schemaKey), []byte(schemaVersion)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to init bucket %s: %w", bucket, err)
		}
	}

	log.Info().Str("path", dbPath).Msg("[snapshotStorage] opened database")
	return s, nil
}

func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func blockPrefix(block uint64) string {
	return strconv.FormatUint(block, 10) + ":"
}

func accountKey(block uint64, addr common.Address) []byte {
	return []byte(blockPrefix(block) + addr.Hex())
}

func slotKey(block uint64, addr common.Address, slot common.Hash) []byte {
	return []byte(blockPrefix(block) + addr.Hex() + ":" + slot.Hex())
}

func blockHashKey(block, number uint64) []byte {
	return []byte(blockPrefix(block) + strconv.FormatUint(number, 10))
}

// SaveSnapshot writes the snapshot in one batch. Saving the same block again overwrites matching keys.
func (s *Storage) SaveSnapshot(snap *domain.Snapshot) error {
	if snap == nil {
		return nil
	}

	batch := s.db.NewBatch()
	add := func(bucket string, key []byte, v any) error {
		data, err := sonic.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s record %s: %w", bucket, key, err)
		}
		value := data
		return batch.Add(&boltdb.WriteOperation{
			Bucket: []byte(bucket),
			Key:    key,
			Value:  &value,
			Op:     boltdb.OpSet,
		})
	}

	block := snap.BlockNumber
	slots := 0
	for addr, info := range snap.Accounts {
		balance := "0"
		if info.Balance != nil {
			balance = info.Balance.Dec()
		}
		stored := StoredAccount{Address: addr.Hex(), Balance: balance, Nonce: info.Nonce, CodeHash: info.CodeHash.Hex()}
		if err := add(AccountsBucket, accountKey(block, addr), stored); err != nil {
			return err
		}
	}
	for codeHash, code := range snap.Contracts {
		stored := StoredContract{CodeHash: codeHash.Hex(), Code: hexutil.Encode(code)}
		if err := add(ContractsBucket, []byte(codeHash.Hex()), stored); err != nil {
			return err
		}
	}
	for addr, kv := range snap.Storage {
		for slot, v := range kv {
			stored := StoredSlot{Address: addr.Hex(), Slot: slot.Hex(), Value: v.Hex()}
			if err := add(StorageBucket, slotKey(block, addr, slot), stored); err != nil {
				return err
			}
			slots++
		}
	}
	for number, h := range snap.BlockHashes {
		if err := add(BlockHashesBucket, blockHashKey(block, number), StoredBlockHash{Number: number, Hash: h.Hex()}); err != nil {
			return err
		}
	}

	meta := StoredSnapshotMeta{
		BlockNumber: block,
		Accounts:    len(snap.Accounts),
		Slots:       slots,
		BlockHashes: len(snap.BlockHashes),
		SavedAt:     time.Now().Unix(),
	}
	if err := add(SnapshotMetaBucket, []byte(strconv.FormatUint(block, 10)), meta); err != nil {
		return err
	}

	if err := batch.Execute(); err != nil {
		log.Error().Err(err).Uint64("block", block).Msg("[snapshotStorage] FAILED to execute batch")
		return err
	}

	log.Info().
		Uint64("block", block).
		Int("accounts", meta.Accounts).
		Int("slots", slots).
		Int("blockHashes", meta.BlockHashes).
		Msg("[snapshotStorage] saved snapshot")
	return nil
}

// LatestSnapshotBlock returns the highest block a snapshot was saved for.
func (s *Storage) LatestSnapshotBlock() (uint64, bool, error) {
	data, err := s.db.List(SnapshotMetaBucket)
	if err != nil {
		return 0, false, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var (
		latest uint64
		found  bool
	)
	for key, value := range data {
		if key == schemaKey {
			continue
		}
		var meta StoredSnapshotMeta
		if err := sonic.Unmarshal(value, &meta); err != nil {
			log.Warn().Str("key", key).Err(err).Msg("[snapshotStorage] failed to unmarshal snapshot meta, skipping")
			continue
		}
		if !found || meta.BlockNumber > latest {
			latest, found = meta.BlockNumber, true
		}
	}
	return latest, found, nil
}

// LoadSnapshot rebuilds the snapshot saved for block. It returns domain.ErrSnapshotMismatch when none was saved.
func (s *Storage) LoadSnapshot(block uint64) (*domain.Snapshot, error) {
	metas, err := s.db.List(SnapshotMetaBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	if _, ok := metas[strconv.FormatUint(block, 10)]; !ok {
		return nil, fmt.Errorf("%w: no snapshot saved for block %d", domain.ErrSnapshotMismatch, block)
	}

	snap := domain.NewSnapshot(block)
	prefix := blockPrefix(block)
	skipped := 0

	accounts, err := s.db.List(AccountsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	for key, value := range accounts {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		var stored StoredAccount
		if err := sonic.Unmarshal(value, &stored); err != nil {
			skipped++
			continue
		}
		balance, err := uint256.FromDecimal(stored.Balance)
		if err != nil {
			skipped++
			continue
		}
		snap.Accounts[common.HexToAddress(stored.Address)] = domain.AccountInfo{
			Balance:  balance,
			Nonce:    stored.Nonce,
			CodeHash: common.HexToHash(stored.CodeHash),
		}
	}

	contracts, err := s.db.List(ContractsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	wanted := make(map[common.Hash]bool, len(snap.Accounts))
	for _, info := range snap.Accounts {
		wanted[info.CodeHash] = true
	}
	for key, value := range contracts {
		if key == schemaKey || !wanted[common.HexToHash(key)] {
			continue
		}
		var stored StoredContract
		if err := sonic.Unmarshal(value, &stored); err != nil {
			skipped++
			continue
		}
		code, err := hexutil.Decode(stored.Code)
		if err != nil {
			skipped++
			continue
		}
		snap.Contracts[common.HexToHash(stored.CodeHash)] = code
	}

	slots, err := s.db.List(StorageBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage: %w", err)
	}
	for key, value := range slots {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		var stored StoredSlot
		if err := sonic.Unmarshal(value, &stored); err != nil {
			skipped++
			continue
		}
		snap.Apply(domain.StateFetch{
			Kind:    domain.FetchStorage,
			Address: common.HexToAddress(stored.Address),
			Slot:    common.HexToHash(stored.Slot),
			Value:   common.HexToHash(stored.Value),
		})
	}

	hashes, err := s.db.List(BlockHashesBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list block hashes: %w", err)
	}
	for key, value := range hashes {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		var stored StoredBlockHash
		if err := sonic.Unmarshal(value, &stored); err != nil {
			skipped++
			continue
		}
		snap.BlockHashes[stored.Number] = common.HexToHash(stored.Hash)
	}

	if skipped > 0 {
		log.Error().Uint64("block", block).Int("skipped", skipped).Msg("[snapshotStorage] snapshot loaded with errors")
	} else {
		log.Info().Uint64("block", block).Int("records", snap.Size()).Msg("[snapshotStorage] snapshot loaded")
	}
	return snap, nil
}
