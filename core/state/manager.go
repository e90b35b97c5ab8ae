package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"flowcash/core/types"
	"flowcash/storage"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the available
	// account balance.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	// ErrNoTransaction is returned when a write is attempted outside an open
	// request frame.
	ErrNoTransaction = errors.New("state: no open transaction")
)

const (
	accountPrefix = "acct:"
	modulePrefix  = "mod:"
)

type rlpAccount struct {
	Nonce   uint64
	Balance *big.Int
}

// Manager layers a write journal over a key-value backend so a request either
// commits all of its effects or none of them. Reads observe journal entries
// before the backend, so in-flight requests always see their own writes.
type Manager struct {
	db      storage.Database
	journal map[string][]byte
	open    bool
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a request frame. Writes are buffered until Commit.
func (m *Manager) Begin() {
	m.journal = make(map[string][]byte)
	m.open = true
}

// Commit flushes every journaled write to the backend in one atomic batch and
// closes the frame.
func (m *Manager) Commit() error {
	if !m.open {
		return ErrNoTransaction
	}
	batch := new(storage.Batch)
	for key, value := range m.journal {
		batch.Put([]byte(key), value)
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.journal = nil
	m.open = false
	return nil
}

// Rollback discards every journaled write and closes the frame.
func (m *Manager) Rollback() {
	m.journal = nil
	m.open = false
}

func (m *Manager) read(key string) ([]byte, bool, error) {
	if m.open {
		if value, ok := m.journal[key]; ok {
			return value, true, nil
		}
	}
	value, err := m.db.Get([]byte(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (m *Manager) write(key string, value []byte) error {
	if !m.open {
		return ErrNoTransaction
	}
	m.journal[key] = value
	return nil
}

func accountKey(addr types.Address) string {
	return accountPrefix + string(addr[:])
}

// GetAccount loads the account stored for addr, returning an empty account
// when none exists yet.
func (m *Manager) GetAccount(addr types.Address) (*types.Account, error) {
	raw, ok, err := m.read(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	var stored rlpAccount
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	return types.Ensure(&types.Account{Nonce: stored.Nonce, Balance: stored.Balance}), nil
}

// PutAccount persists the account for addr into the current journal.
func (m *Manager) PutAccount(addr types.Address, acc *types.Account) error {
	acc = types.Ensure(acc)
	raw, err := rlp.EncodeToBytes(&rlpAccount{Nonce: acc.Nonce, Balance: acc.Balance})
	if err != nil {
		return fmt.Errorf("state: encode account: %w", err)
	}
	return m.write(accountKey(addr), raw)
}

// Balance returns the current balance for addr.
func (m *Manager) Balance(addr types.Address) (*big.Int, error) {
	acc, err := m.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.Balance), nil
}

// Transfer moves amount from one account to another. A zero amount is a
// no-op; negative amounts are rejected.
func (m *Manager) Transfer(from, to types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative transfer amount")
	}
	fromAcc, err := m.GetAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toAcc, err := m.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := m.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return m.PutAccount(to, toAcc)
}

// Credit adds amount to the account balance without a counterparty. Used for
// genesis funding and deposits arriving from outside the engine.
func (m *Manager) Credit(addr types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative credit amount")
	}
	acc, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return m.PutAccount(addr, acc)
}

func moduleKey(module string, key []byte) string {
	return modulePrefix + module + ":" + string(key)
}

// KVGet reads a namespaced module record.
func (m *Manager) KVGet(module string, key []byte) ([]byte, bool, error) {
	return m.read(moduleKey(module, key))
}

// KVPut writes a namespaced module record into the current journal.
func (m *Manager) KVPut(module string, key, value []byte) error {
	return m.write(moduleKey(module, key), value)
}
