package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"flowcash/native/treasury"
)

const (
	treasuryModule       = "treasury"
	treasuryCollectorTag = "collector:"
)

var treasuryStateKey = []byte("state")

// TreasuryStateGet loads the persisted treasury record, returning nil when
// the module has not been initialised yet.
func (m *Manager) TreasuryStateGet() (*treasury.State, error) {
	raw, ok, err := m.KVGet(treasuryModule, treasuryStateKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	st := new(treasury.State)
	if err := rlp.DecodeBytes(raw, st); err != nil {
		return nil, fmt.Errorf("state: decode treasury record: %w", err)
	}
	return st.Normalize(), nil
}

// TreasuryStatePut persists the treasury record.
func (m *Manager) TreasuryStatePut(st *treasury.State) error {
	raw, err := rlp.EncodeToBytes(st.Normalize())
	if err != nil {
		return fmt.Errorf("state: encode treasury record: %w", err)
	}
	return m.KVPut(treasuryModule, treasuryStateKey, raw)
}

func collectorKey(addr [20]byte) []byte {
	return append([]byte(treasuryCollectorTag), addr[:]...)
}

// CollectorGet reports whether addr is flagged as an authorized collector.
func (m *Manager) CollectorGet(addr [20]byte) (bool, error) {
	raw, ok, err := m.KVGet(treasuryModule, collectorKey(addr))
	if err != nil || !ok {
		return false, err
	}
	return len(raw) == 1 && raw[0] == 1, nil
}

// CollectorSet toggles the authorized-collector flag for addr.
func (m *Manager) CollectorSet(addr [20]byte, enabled bool) error {
	flag := []byte{0}
	if enabled {
		flag[0] = 1
	}
	return m.KVPut(treasuryModule, collectorKey(addr), flag)
}
