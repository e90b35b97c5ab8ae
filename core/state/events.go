package state

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"flowcash/core/types"
)

const (
	eventModule   = "events"
	eventIndexTag = "idx:"
)

var eventCountKey = []byte("count")

// rlpEvent flattens the attribute map into sorted pairs so the encoding is
// deterministic.
type rlpEvent struct {
	Type   string
	Keys   []string
	Values []string
}

func eventKey(index uint64) []byte {
	key := make([]byte, len(eventIndexTag)+8)
	copy(key, eventIndexTag)
	binary.BigEndian.PutUint64(key[len(eventIndexTag):], index)
	return key
}

// EventCount returns the length of the persisted event log.
func (m *Manager) EventCount() (uint64, error) {
	raw, ok, err := m.KVGet(eventModule, eventCountKey)
	if err != nil || !ok {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("state: corrupt event count")
	}
	return binary.BigEndian.Uint64(raw), nil
}

// EventAppend persists evt at the tail of the log within the current frame.
func (m *Manager) EventAppend(evt types.Event) error {
	count, err := m.EventCount()
	if err != nil {
		return err
	}
	stored := rlpEvent{Type: evt.Type}
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		stored.Keys = append(stored.Keys, k)
		stored.Values = append(stored.Values, evt.Attributes[k])
	}
	raw, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("state: encode event: %w", err)
	}
	if err := m.KVPut(eventModule, eventKey(count), raw); err != nil {
		return err
	}
	next := make([]byte, 8)
	binary.BigEndian.PutUint64(next, count+1)
	return m.KVPut(eventModule, eventCountKey, next)
}

// EventByIndex loads the log entry stored at index.
func (m *Manager) EventByIndex(index uint64) (*types.Event, error) {
	raw, ok, err := m.KVGet(eventModule, eventKey(index))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("state: missing event %d", index)
	}
	var stored rlpEvent
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("state: decode event %d: %w", index, err)
	}
	if len(stored.Keys) != len(stored.Values) {
		return nil, fmt.Errorf("state: corrupt event %d", index)
	}
	evt := &types.Event{Type: stored.Type, Attributes: make(map[string]string, len(stored.Keys))}
	for i, k := range stored.Keys {
		evt.Attributes[k] = stored.Values[i]
	}
	return evt, nil
}
