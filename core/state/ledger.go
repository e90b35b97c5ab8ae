package state

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"flowcash/native/ledger"
)

const (
	ledgerModule       = "ledger"
	ledgerTxTag        = "tx:"
	ledgerUserTag      = "user:"
	ledgerProcessorTag = "processor:"
)

var ledgerStateKey = []byte("state")

// LedgerStateGet loads the persisted ledger record, returning nil when the
// module has not been initialised yet.
func (m *Manager) LedgerStateGet() (*ledger.State, error) {
	raw, ok, err := m.KVGet(ledgerModule, ledgerStateKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	st := new(ledger.State)
	if err := rlp.DecodeBytes(raw, st); err != nil {
		return nil, fmt.Errorf("state: decode ledger record: %w", err)
	}
	return st.Normalize(), nil
}

// LedgerStatePut persists the ledger record.
func (m *Manager) LedgerStatePut(st *ledger.State) error {
	raw, err := rlp.EncodeToBytes(st.Normalize())
	if err != nil {
		return fmt.Errorf("state: encode ledger record: %w", err)
	}
	return m.KVPut(ledgerModule, ledgerStateKey, raw)
}

func transactionKey(id uint64) []byte {
	key := make([]byte, len(ledgerTxTag)+8)
	copy(key, ledgerTxTag)
	binary.BigEndian.PutUint64(key[len(ledgerTxTag):], id)
	return key
}

// TransactionGet loads the transaction stored under id.
func (m *Manager) TransactionGet(id uint64) (*ledger.Transaction, bool, error) {
	raw, ok, err := m.KVGet(ledgerModule, transactionKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	tx := new(ledger.Transaction)
	if err := rlp.DecodeBytes(raw, tx); err != nil {
		return nil, false, fmt.Errorf("state: decode transaction %d: %w", id, err)
	}
	return tx, true, nil
}

// TransactionPut persists a transaction record.
func (m *Manager) TransactionPut(tx *ledger.Transaction) error {
	if tx == nil {
		return fmt.Errorf("state: nil transaction")
	}
	raw, err := rlp.EncodeToBytes(tx)
	if err != nil {
		return fmt.Errorf("state: encode transaction %d: %w", tx.ID, err)
	}
	return m.KVPut(ledgerModule, transactionKey(tx.ID), raw)
}

func userStatsKey(addr [20]byte) []byte {
	return append([]byte(ledgerUserTag), addr[:]...)
}

// UserStatsGet loads the statistics stored for addr, returning nil when the
// address has no recorded activity.
func (m *Manager) UserStatsGet(addr [20]byte) (*ledger.UserStats, error) {
	raw, ok, err := m.KVGet(ledgerModule, userStatsKey(addr))
	if err != nil || !ok {
		return nil, err
	}
	stats := new(ledger.UserStats)
	if err := rlp.DecodeBytes(raw, stats); err != nil {
		return nil, fmt.Errorf("state: decode user stats: %w", err)
	}
	return stats.Normalize(), nil
}

// UserStatsPut persists the statistics for addr.
func (m *Manager) UserStatsPut(addr [20]byte, stats *ledger.UserStats) error {
	if stats == nil {
		return fmt.Errorf("state: nil user stats")
	}
	raw, err := rlp.EncodeToBytes(stats.Normalize())
	if err != nil {
		return fmt.Errorf("state: encode user stats: %w", err)
	}
	return m.KVPut(ledgerModule, userStatsKey(addr), raw)
}

func processorKey(addr [20]byte) []byte {
	return append([]byte(ledgerProcessorTag), addr[:]...)
}

// ProcessorGet reports whether addr is flagged as an authorized processor.
func (m *Manager) ProcessorGet(addr [20]byte) (bool, error) {
	raw, ok, err := m.KVGet(ledgerModule, processorKey(addr))
	if err != nil || !ok {
		return false, err
	}
	return len(raw) == 1 && raw[0] == 1, nil
}

// ProcessorSet toggles the authorized-processor flag for addr.
func (m *Manager) ProcessorSet(addr [20]byte, enabled bool) error {
	flag := []byte{0}
	if enabled {
		flag[0] = 1
	}
	return m.KVPut(ledgerModule, processorKey(addr), flag)
}
