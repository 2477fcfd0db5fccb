package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type FetchKind uint8

const (
	FetchAccount FetchKind = iota
	FetchStorage
	FetchBlockHash
)

func (k FetchKind) String() string {
	switch k {
	case FetchAccount:
		return "account"
	case FetchStorage:
		return "storage"
	case FetchBlockHash:
		return "block_hash"
	default:
		return "unknown"
	}
}

// StateFetch is one piece of chain state read through an oracle.
type StateFetch struct {
	Kind    FetchKind
	Address common.Address
	Account Account
	Slot    common.Hash
	Value   common.Hash
	Number  uint64
	Hash    common.Hash
}

type AccountInfo struct {
	Balance  *uint256.Int
	Nonce    uint64
	CodeHash common.Hash
}

// Snapshot is the chain state observed at one block, keyed the way it was fetched.
type Snapshot struct {
	BlockNumber uint64
	Accounts    map[common.Address]AccountInfo
	Contracts   map[common.Hash][]byte
	Storage     map[common.Address]map[common.Hash]common.Hash
	BlockHashes map[uint64]common.Hash
}

func NewSnapshot(blockNumber uint64) *Snapshot {
	return &Snapshot{
		BlockNumber: blockNumber,
		Accounts:    make(map[common.Address]AccountInfo),
		Contracts:   make(map[common.Hash][]byte),
		Storage:     make(map[common.Address]map[common.Hash]common.Hash),
		BlockHashes: make(map[uint64]common.Hash),
	}
}

func (s *Snapshot) Apply(f StateFetch) {
	switch f.Kind {
	case FetchAccount:
		info := AccountInfo{Nonce: f.Account.Nonce, CodeHash: f.Account.CodeHash, Balance: new(uint256.Int)}
		if f.Account.Balance != nil {
			info.Balance.Set(f.Account.Balance)
		}
		s.Accounts[f.Address] = info
		if len(f.Account.Code) > 0 {
			s.Contracts[f.Account.CodeHash] = f.Account.Code
		}
	case FetchStorage:
		slots, ok := s.Storage[f.Address]
		if !ok {
			slots = make(map[common.Hash]common.Hash)
			s.Storage[f.Address] = slots
		}
		slots[f.Slot] = f.Value
	case FetchBlockHash:
		s.BlockHashes[f.Number] = f.Hash
	}
}

// Account rebuilds the full account record, code included.
func (s *Snapshot) Account(addr common.Address) (Account, bool) {
	info, ok := s.Accounts[addr]
	if !ok {
		return Account{}, false
	}
	return Account{
		Balance:  info.Balance,
		Nonce:    info.Nonce,
		CodeHash: info.CodeHash,
		Code:     s.Contracts[info.CodeHash],
	}, true
}

func (s *Snapshot) Empty() bool {
	return len(s.Accounts) == 0 && len(s.Storage) == 0 && len(s.BlockHashes) == 0
}

// Size is the number of records held by the snapshot.
func (s *Snapshot) Size() int {
	n := len(s.Accounts) + len(s.BlockHashes)
	for _, slots := range s.Storage {
		n += len(slots)
	}
	return n
}
