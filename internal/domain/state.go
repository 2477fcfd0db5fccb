package domain

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BlockRef pins a fork to one chain block.
type BlockRef struct {
	Number uint64      `json:"number"`
	Hash   common.Hash `json:"hash"`
}

// Account is the full account record served by a state oracle.
type Account struct {
	Balance  *uint256.Int
	Nonce    uint64
	CodeHash common.Hash
	Code     []byte
}

// AccountDiff holds the fields of one account changed by a simulation. Nil fields are unchanged.
type AccountDiff struct {
	Balance *uint256.Int
	Nonce   *uint64
	Code    []byte
	Storage map[common.Hash]common.Hash
}

func (a *AccountDiff) clone() *AccountDiff {
	out := &AccountDiff{}
	if a.Balance != nil {
		out.Balance = new(uint256.Int).Set(a.Balance)
	}
	if a.Nonce != nil {
		n := *a.Nonce
		out.Nonce = &n
	}
	if a.Code != nil {
		out.Code = bytes.Clone(a.Code)
	}
	if a.Storage != nil {
		out.Storage = make(map[common.Hash]common.Hash, len(a.Storage))
		for k, v := range a.Storage {
			out.Storage[k] = v
		}
	}
	return out
}

// HasAccountFields reports whether balance, nonce or code are set.
func (a *AccountDiff) HasAccountFields() bool {
	return a.Balance != nil || a.Nonce != nil || a.Code != nil
}

// StateDelta is the set of account and storage changes produced by one or more simulations.
type StateDelta map[common.Address]*AccountDiff

// Merge applies other on top of d. Later values win per field and per slot.
func (d StateDelta) Merge(other StateDelta) {
	for addr, diff := range other {
		if diff == nil {
			continue
		}
		cur, ok := d[addr]
		if !ok {
			d[addr] = diff.clone()
			continue
		}
		if diff.Balance != nil {
			cur.Balance = new(uint256.Int).Set(diff.Balance)
		}
		if diff.Nonce != nil {
			n := *diff.Nonce
			cur.Nonce = &n
		}
		if diff.Code != nil {
			cur.Code = bytes.Clone(diff.Code)
		}
		if len(diff.Storage) > 0 && cur.Storage == nil {
			cur.Storage = make(map[common.Hash]common.Hash, len(diff.Storage))
		}
		for k, v := range diff.Storage {
			cur.Storage[k] = v
		}
	}
}

func (d StateDelta) Clone() StateDelta {
	out := make(StateDelta, len(d))
	for addr, diff := range d {
		if diff != nil {
			out[addr] = diff.clone()
		}
	}
	return out
}

func (d StateDelta) Slot(addr common.Address, slot common.Hash) (common.Hash, bool) {
	diff, ok := d[addr]
	if !ok || diff.Storage == nil {
		return common.Hash{}, false
	}
	v, ok := diff.Storage[slot]
	return v, ok
}

// SetSlot records a storage write, creating the account entry as needed.
func (d StateDelta) SetSlot(addr common.Address, slot, value common.Hash) {
	diff, ok := d[addr]
	if !ok {
		diff = &AccountDiff{}
		d[addr] = diff
	}
	if diff.Storage == nil {
		diff.Storage = make(map[common.Hash]common.Hash)
	}
	diff.Storage[slot] = value
}
