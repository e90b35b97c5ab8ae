package state

import (
	"errors"
	"math/big"
	"testing"

	"flowcash/core/types"
	"flowcash/native/ledger"
	"flowcash/native/treasury"
	"flowcash/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

// commit runs fn inside a request frame and flushes it, since the manager
// rejects writes outside an open frame.
func commit(t *testing.T, m *Manager, fn func() error) {
	t.Helper()
	m.Begin()
	if err := fn(); err != nil {
		t.Fatalf("journaled write: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestAccountRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	addr := testAddr(0x11)

	acc, err := m.GetAccount(addr)
	if err != nil {
		t.Fatalf("get missing account: %v", err)
	}
	if acc.Balance.Sign() != 0 {
		t.Fatalf("fresh account balance: got %s", acc.Balance)
	}

	acc.Balance = big.NewInt(1234)
	acc.Nonce = 7
	commit(t, m, func() error { return m.PutAccount(addr, acc) })

	loaded, err := m.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if loaded.Balance.Int64() != 1234 || loaded.Nonce != 7 {
		t.Fatalf("round trip: balance=%s nonce=%d", loaded.Balance, loaded.Nonce)
	}
}

func TestWriteOutsideFrameRejected(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	if err := m.Credit(testAddr(0x12), big.NewInt(1)); !errors.Is(err, ErrNoTransaction) {
		t.Fatalf("write outside frame: got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	alice := testAddr(0xA0)
	bob := testAddr(0xB0)

	commit(t, m, func() error { return m.Credit(alice, big.NewInt(100)) })
	commit(t, m, func() error { return m.Transfer(alice, bob, big.NewInt(40)) })

	aliceBal, _ := m.Balance(alice)
	bobBal, _ := m.Balance(bob)
	if aliceBal.Int64() != 60 || bobBal.Int64() != 40 {
		t.Fatalf("balances after transfer: %s/%s", aliceBal, bobBal)
	}

	m.Begin()
	if err := m.Transfer(alice, bob, big.NewInt(1000)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdraft: got %v", err)
	}
	m.Rollback()
	aliceBal, _ = m.Balance(alice)
	if aliceBal.Int64() != 60 {
		t.Fatalf("failed transfer changed balance: %s", aliceBal)
	}
}

func TestJournalRollback(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	addr := testAddr(0xC0)

	commit(t, m, func() error { return m.Credit(addr, big.NewInt(100)) })

	m.Begin()
	if err := m.Credit(addr, big.NewInt(900)); err != nil {
		t.Fatalf("journaled credit: %v", err)
	}
	bal, _ := m.Balance(addr)
	if bal.Int64() != 1000 {
		t.Fatalf("journaled balance: got %s want 1000", bal)
	}
	m.Rollback()

	bal, _ = m.Balance(addr)
	if bal.Int64() != 100 {
		t.Fatalf("rolled-back balance: got %s want 100", bal)
	}
}

func TestJournalCommit(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	addr := testAddr(0xC1)

	m.Begin()
	if err := m.Credit(addr, big.NewInt(55)); err != nil {
		t.Fatalf("journaled credit: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// A fresh manager over the same backing store sees the committed write.
	reopened := NewManager(db)
	bal, err := reopened.Balance(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Int64() != 55 {
		t.Fatalf("committed balance: got %s want 55", bal)
	}
}

func TestTreasuryStateRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	st, err := m.TreasuryStateGet()
	if err != nil {
		t.Fatalf("get empty: %v", err)
	}
	if st != nil {
		t.Fatalf("expected nil state before first write")
	}

	want := &treasury.State{
		OperationsWallet:         testAddr(0xA1),
		IncentivesWallet:         testAddr(0xA2),
		TreasuryWallet:           testAddr(0xA3),
		OperationsBalance:        big.NewInt(5),
		IncentivesBalance:        big.NewInt(3),
		TreasuryBalance:          big.NewInt(2),
		TotalCollected:           big.NewInt(10),
		MinDistributionThreshold: big.NewInt(100),
		LastDistributionTime:     42,
	}
	commit(t, m, func() error { return m.TreasuryStatePut(want) })

	got, err := m.TreasuryStateGet()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OperationsWallet != want.OperationsWallet || got.TotalCollected.Cmp(want.TotalCollected) != 0 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.LastDistributionTime != 42 {
		t.Fatalf("last distribution time: got %d", got.LastDistributionTime)
	}
}

func TestCollectorFlags(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	addr := testAddr(0xD0)

	enabled, err := m.CollectorGet(addr)
	if err != nil {
		t.Fatalf("get unset: %v", err)
	}
	if enabled {
		t.Fatalf("collector enabled by default")
	}
	commit(t, m, func() error { return m.CollectorSet(addr, true) })
	enabled, err = m.CollectorGet(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !enabled {
		t.Fatalf("collector not enabled")
	}
	commit(t, m, func() error { return m.CollectorSet(addr, false) })
	enabled, _ = m.CollectorGet(addr)
	if enabled {
		t.Fatalf("collector still enabled")
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	_, ok, err := m.TransactionGet(1)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if ok {
		t.Fatalf("unexpected transaction")
	}

	tx := &ledger.Transaction{
		ID:          1,
		Sender:      testAddr(0x10),
		Recipient:   testAddr(0x20),
		Amount:      big.NewInt(990),
		Fee:         big.NewInt(15),
		Cashback:    big.NewInt(5),
		PaymentType: ledger.PaymentAirtime,
		Timestamp:   1_700_000_000,
	}
	commit(t, m, func() error { return m.TransactionPut(tx) })

	got, ok, err := m.TransactionGet(1)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.ID != 1 || got.PaymentType != ledger.PaymentAirtime || got.Amount.Int64() != 990 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Processed {
		t.Fatalf("pending flag lost")
	}
}

func TestUserStatsRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	addr := testAddr(0x30)

	stats, err := m.UserStatsGet(addr)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if stats != nil {
		t.Fatalf("expected nil stats before first write")
	}

	want := &ledger.UserStats{
		TotalSent:        big.NewInt(990),
		TotalReceived:    big.NewInt(0),
		TransactionCount: 2,
		TransactionIDs:   []uint64{1, 2},
	}
	commit(t, m, func() error { return m.UserStatsPut(addr, want) })

	got, err := m.UserStatsGet(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TransactionCount != 2 || len(got.TransactionIDs) != 2 || got.TotalSent.Int64() != 990 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestEventLogRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)

	count, err := m.EventCount()
	if err != nil {
		t.Fatalf("empty count: %v", err)
	}
	if count != 0 {
		t.Fatalf("event count before first append: got %d", count)
	}

	commit(t, m, func() error {
		return m.EventAppend(types.Event{
			Type:       "payments.sent",
			Attributes: map[string]string{"id": "1", "amountWei": "990"},
		})
	})

	reopened := NewManager(db)
	count, err = reopened.EventCount()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("event count: got %d want 1", count)
	}
	evt, err := reopened.EventByIndex(0)
	if err != nil {
		t.Fatalf("load event: %v", err)
	}
	if evt.Type != "payments.sent" || evt.Attributes["amountWei"] != "990" {
		t.Fatalf("restored event mismatch: %+v", evt)
	}
}
