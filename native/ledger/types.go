package ledger

import "math/big"

// PaymentType classifies a recorded transaction.
type PaymentType uint8

const (
	PaymentP2P PaymentType = iota
	PaymentAirtime
	PaymentBill
)

// Valid reports whether the payment type is within the supported range.
func (t PaymentType) Valid() bool {
	switch t {
	case PaymentP2P, PaymentAirtime, PaymentBill:
		return true
	default:
		return false
	}
}

// String names the payment type for logs and event payloads.
func (t PaymentType) String() string {
	switch t {
	case PaymentP2P:
		return "p2p"
	case PaymentAirtime:
		return "airtime"
	case PaymentBill:
		return "bill"
	default:
		return "unknown"
	}
}

// Transaction is the immutable record created for every settled or pending
// payment. Amount holds the net settlement value after fee and cashback.
type Transaction struct {
	ID          uint64
	Sender      [20]byte
	Recipient   [20]byte
	Amount      *big.Int
	Fee         *big.Int
	Cashback    *big.Int
	PaymentType PaymentType
	Timestamp   uint64
	Processed   bool
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Amount = cloneBigInt(t.Amount)
	clone.Fee = cloneBigInt(t.Fee)
	clone.Cashback = cloneBigInt(t.Cashback)
	return &clone
}

// UserStats accumulates per-address activity. Records are created lazily on
// first activity and only ever mutated additively.
type UserStats struct {
	TotalSent        *big.Int
	TotalReceived    *big.Int
	TransactionCount uint64
	TransactionIDs   []uint64
}

// Clone returns a deep copy of the stats record.
func (s *UserStats) Clone() *UserStats {
	if s == nil {
		return nil
	}
	clone := &UserStats{
		TotalSent:        cloneBigInt(s.TotalSent),
		TotalReceived:    cloneBigInt(s.TotalReceived),
		TransactionCount: s.TransactionCount,
	}
	if len(s.TransactionIDs) > 0 {
		clone.TransactionIDs = append([]uint64(nil), s.TransactionIDs...)
	}
	return clone
}

// Normalize replaces nil amounts with zero values.
func (s *UserStats) Normalize() *UserStats {
	if s == nil {
		return nil
	}
	s.TotalSent = cloneBigInt(s.TotalSent)
	s.TotalReceived = cloneBigInt(s.TotalReceived)
	return s
}

// State is the persisted ledger record covering configuration and the global
// monotonic counters.
type State struct {
	FeeCollector         [20]byte
	MinTransactionAmount *big.Int
	NextTransactionID    uint64
	TotalFeesCollected   *big.Int
	TotalVolume          *big.Int
	TotalTransactions    uint64
	Paused               bool
}

// IsPaused satisfies the shared pause guard over the persisted flag.
func (s *State) IsPaused(string) bool { return s != nil && s.Paused }

// Clone returns a deep copy of the state so callers can mutate the copy
// without affecting the stored instance.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := *s
	clone.MinTransactionAmount = cloneBigInt(s.MinTransactionAmount)
	clone.TotalFeesCollected = cloneBigInt(s.TotalFeesCollected)
	clone.TotalVolume = cloneBigInt(s.TotalVolume)
	return &clone
}

// Normalize replaces nil amounts with zero values and seeds the id counter.
func (s *State) Normalize() *State {
	if s == nil {
		return nil
	}
	s.MinTransactionAmount = cloneBigInt(s.MinTransactionAmount)
	s.TotalFeesCollected = cloneBigInt(s.TotalFeesCollected)
	s.TotalVolume = cloneBigInt(s.TotalVolume)
	if s.NextTransactionID == 0 {
		s.NextTransactionID = 1
	}
	return s
}

// ContractStats is the read-model for the global counters.
type ContractStats struct {
	TotalFeesCollected *big.Int
	TotalVolume        *big.Int
	TotalTransactions  uint64
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
