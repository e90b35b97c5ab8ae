package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"flowcash/core/events"
	nativecommon "flowcash/native/common"
)

type mockState struct {
	state        *State
	transactions map[uint64]*Transaction
	stats        map[[20]byte]*UserStats
	processors   map[[20]byte]bool
	balances     map[[20]byte]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		transactions: make(map[uint64]*Transaction),
		stats:        make(map[[20]byte]*UserStats),
		processors:   make(map[[20]byte]bool),
		balances:     make(map[[20]byte]*big.Int),
	}
}

func (m *mockState) LedgerStateGet() (*State, error) {
	if m.state == nil {
		return nil, nil
	}
	return m.state.Clone(), nil
}

func (m *mockState) LedgerStatePut(st *State) error {
	if st == nil {
		return fmt.Errorf("nil state")
	}
	m.state = st.Clone()
	return nil
}

func (m *mockState) TransactionGet(id uint64) (*Transaction, bool, error) {
	tx, ok := m.transactions[id]
	if !ok {
		return nil, false, nil
	}
	return tx.Clone(), true, nil
}

func (m *mockState) TransactionPut(tx *Transaction) error {
	if tx == nil {
		return fmt.Errorf("nil transaction")
	}
	m.transactions[tx.ID] = tx.Clone()
	return nil
}

func (m *mockState) UserStatsGet(addr [20]byte) (*UserStats, error) {
	stats, ok := m.stats[addr]
	if !ok {
		return nil, nil
	}
	return stats.Clone(), nil
}

func (m *mockState) UserStatsPut(addr [20]byte, stats *UserStats) error {
	m.stats[addr] = stats.Clone()
	return nil
}

func (m *mockState) ProcessorGet(addr [20]byte) (bool, error) {
	return m.processors[addr], nil
}

func (m *mockState) ProcessorSet(addr [20]byte, enabled bool) error {
	m.processors[addr] = enabled
	return nil
}

func (m *mockState) Balance(addr [20]byte) (*big.Int, error) {
	if bal, ok := m.balances[addr]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) Transfer(from, to [20]byte, amount *big.Int) error {
	bal, ok := m.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance")
	}
	bal.Sub(bal, amount)
	dest, ok := m.balances[to]
	if !ok {
		dest = big.NewInt(0)
		m.balances[to] = dest
	}
	dest.Add(dest, amount)
	return nil
}

func (m *mockState) fund(addr [20]byte, amount int64) {
	m.balances[addr] = big.NewInt(amount)
}

// stubCollector records attributed fees without bucket bookkeeping.
type stubCollector struct {
	address   [20]byte
	collected *big.Int
	fail      bool
}

func (c *stubCollector) Address() [20]byte { return c.address }

func (c *stubCollector) CollectFee(_ [20]byte, amount *big.Int) error {
	if c.fail {
		return fmt.Errorf("collector unavailable")
	}
	if c.collected == nil {
		c.collected = big.NewInt(0)
	}
	c.collected.Add(c.collected, amount)
	return nil
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestEngine(t *testing.T) (*Engine, *mockState, *stubCollector) {
	t.Helper()
	owner := testAddr(0x01)
	module := testAddr(0xDD)
	collector := &stubCollector{address: testAddr(0xEE)}

	engine := NewEngine(owner, module)
	st := newMockState()
	engine.SetState(st)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	engine.SetCollectorResolver(func(addr [20]byte) (FeeCollector, bool) {
		if addr != collector.address {
			return nil, false
		}
		return collector, true
	})
	if err := engine.Initialize(collector.address); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := engine.UpdateMinTransactionAmount(owner, big.NewInt(1)); err != nil {
		t.Fatalf("set min amount: %v", err)
	}
	return engine, st, collector
}

func TestCalculateRates(t *testing.T) {
	if got := CalculateFee(big.NewInt(1000)); got.Int64() != 15 {
		t.Fatalf("fee on 1000: got %d want 15", got.Int64())
	}
	if got := CalculateCashback(big.NewInt(1000)); got.Int64() != 5 {
		t.Fatalf("cashback on 1000: got %d want 5", got.Int64())
	}
	if got := CalculateFee(big.NewInt(66)); got.Sign() != 0 {
		t.Fatalf("fee on 66: got %d want 0", got.Int64())
	}
}

func TestSendETNSettlesTransfer(t *testing.T) {
	engine, st, collector := newTestEngine(t)
	sender := testAddr(0x10)
	recipient := testAddr(0x20)
	// Attached value is already in the module account when the engine runs.
	st.fund(engine.Address(), 10_000)

	tx, err := engine.SendETN(sender, recipient, big.NewInt(10_000))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if tx.ID != 1 {
		t.Fatalf("transaction id: got %d want 1", tx.ID)
	}
	if !tx.Processed {
		t.Fatalf("p2p transaction must be processed at creation")
	}
	// fee 150, cashback 50, net 9900.
	if tx.Fee.Int64() != 150 || tx.Cashback.Int64() != 50 || tx.Amount.Int64() != 9_900 {
		t.Fatalf("amounts: fee=%s cashback=%s net=%s", tx.Fee, tx.Cashback, tx.Amount)
	}

	got, _ := st.Balance(recipient)
	if got.Int64() != 9_900 {
		t.Fatalf("recipient balance: got %s want 9900", got)
	}
	treasuryBal, _ := st.Balance(collector.address)
	if treasuryBal.Int64() != 150 {
		t.Fatalf("treasury balance: got %s want 150", treasuryBal)
	}
	if collector.collected.Int64() != 150 {
		t.Fatalf("attributed fee: got %s want 150", collector.collected)
	}

	senderStats, err := engine.UserStats(sender)
	if err != nil {
		t.Fatalf("sender stats: %v", err)
	}
	if senderStats.TotalSent.Int64() != 9_900 || senderStats.TransactionCount != 1 {
		t.Fatalf("sender stats: sent=%s count=%d", senderStats.TotalSent, senderStats.TransactionCount)
	}
	recipientStats, err := engine.UserStats(recipient)
	if err != nil {
		t.Fatalf("recipient stats: %v", err)
	}
	if recipientStats.TotalReceived.Int64() != 9_900 {
		t.Fatalf("recipient stats: received=%s", recipientStats.TotalReceived)
	}

	stats, err := engine.ContractStats()
	if err != nil {
		t.Fatalf("contract stats: %v", err)
	}
	if stats.TotalTransactions != 1 || stats.TotalFeesCollected.Int64() != 150 || stats.TotalVolume.Int64() != 9_900 {
		t.Fatalf("contract stats: %+v", stats)
	}
}

func TestSendETNValidation(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	sender := testAddr(0x10)
	st.fund(engine.Address(), 10_000)

	if _, err := engine.SendETN(sender, [20]byte{}, big.NewInt(1000)); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("zero recipient: got %v", err)
	}
	if _, err := engine.SendETN(sender, sender, big.NewInt(1000)); !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("self transfer: got %v", err)
	}
	if _, err := engine.SendETN(sender, testAddr(0x20), big.NewInt(0)); !errors.Is(err, ErrAmountTooLow) {
		t.Fatalf("below minimum: got %v", err)
	}
	if _, err := engine.SendETN(sender, testAddr(0x20), nil); !errors.Is(err, ErrAmountTooLow) {
		t.Fatalf("nil amount: got %v", err)
	}
}

func TestSendETNFailsWhenCollectorRejects(t *testing.T) {
	engine, st, collector := newTestEngine(t)
	st.fund(engine.Address(), 10_000)
	collector.fail = true

	if _, err := engine.SendETN(testAddr(0x10), testAddr(0x20), big.NewInt(1000)); err == nil {
		t.Fatalf("expected error when collector rejects")
	}
}

func TestProcessPaymentRecordsPending(t *testing.T) {
	engine, st, collector := newTestEngine(t)
	user := testAddr(0x30)
	st.fund(engine.Address(), 10_000)

	tx, err := engine.ProcessPayment(engine.Owner(), user, PaymentAirtime, big.NewInt(10_000))
	if err != nil {
		t.Fatalf("process payment: %v", err)
	}
	if tx.Processed {
		t.Fatalf("third-party payment must start pending")
	}
	if tx.Sender != user || tx.Recipient != user {
		t.Fatalf("payment endpoints must both be the user")
	}
	if tx.Fee.Int64() != 150 || tx.Cashback.Int64() != 50 {
		t.Fatalf("amounts: fee=%s cashback=%s", tx.Fee, tx.Cashback)
	}

	// Only the cashback leaves the module account toward the user; the
	// settlement reserve stays behind.
	userBal, _ := st.Balance(user)
	if userBal.Int64() != 50 {
		t.Fatalf("user balance: got %s want 50", userBal)
	}
	moduleBal, _ := st.Balance(engine.Address())
	if moduleBal.Int64() != 9_800 {
		t.Fatalf("module reserve: got %s want 9800", moduleBal)
	}
	if collector.collected.Int64() != 150 {
		t.Fatalf("attributed fee: got %s want 150", collector.collected)
	}

	stats, err := engine.UserStats(user)
	if err != nil {
		t.Fatalf("user stats: %v", err)
	}
	if stats.TotalSent.Sign() != 0 {
		t.Fatalf("third-party payment must not count as sent volume")
	}
	if stats.TransactionCount != 1 || len(stats.TransactionIDs) != 1 {
		t.Fatalf("user stats: count=%d ids=%d", stats.TransactionCount, len(stats.TransactionIDs))
	}
}

func TestProcessPaymentValidation(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	user := testAddr(0x30)
	st.fund(engine.Address(), 10_000)

	if _, err := engine.ProcessPayment(testAddr(0x99), user, PaymentAirtime, big.NewInt(1000)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unauthorized processor: got %v", err)
	}
	if _, err := engine.ProcessPayment(engine.Owner(), user, PaymentP2P, big.NewInt(1000)); !errors.Is(err, ErrInvalidPaymentType) {
		t.Fatalf("p2p payment type: got %v", err)
	}
	if _, err := engine.ProcessPayment(engine.Owner(), [20]byte{}, PaymentBill, big.NewInt(1000)); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("zero user: got %v", err)
	}
	if _, err := engine.ProcessPayment(engine.Owner(), user, PaymentBill, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: got %v", err)
	}
}

func TestProcessPaymentAuthorizedProcessor(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	processor := testAddr(0x40)
	user := testAddr(0x30)
	st.fund(engine.Address(), 10_000)

	if err := engine.SetAuthorizedProcessor(engine.Owner(), processor, true); err != nil {
		t.Fatalf("authorize processor: %v", err)
	}
	if _, err := engine.ProcessPayment(processor, user, PaymentBill, big.NewInt(1000)); err != nil {
		t.Fatalf("authorized process: %v", err)
	}
}

func TestMarkPaymentProcessed(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	user := testAddr(0x30)
	st.fund(engine.Address(), 10_000)

	tx, err := engine.ProcessPayment(engine.Owner(), user, PaymentAirtime, big.NewInt(1000))
	if err != nil {
		t.Fatalf("process payment: %v", err)
	}

	if err := engine.MarkPaymentProcessed(engine.Owner(), tx.ID); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	stored, err := engine.Transaction(tx.ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if !stored.Processed {
		t.Fatalf("transaction still pending")
	}

	if err := engine.MarkPaymentProcessed(engine.Owner(), tx.ID); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("double mark: got %v", err)
	}
}

func TestMarkPaymentProcessedRejectsP2P(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	st.fund(engine.Address(), 10_000)

	tx, err := engine.SendETN(testAddr(0x10), testAddr(0x20), big.NewInt(1000))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := engine.MarkPaymentProcessed(engine.Owner(), tx.ID); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("mark p2p: got %v", err)
	}
}

func TestTransactionLookupBounds(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if _, err := engine.Transaction(0); !errors.Is(err, ErrInvalidTransactionID) {
		t.Fatalf("id 0: got %v", err)
	}
	if _, err := engine.Transaction(999); !errors.Is(err, ErrInvalidTransactionID) {
		t.Fatalf("id 999: got %v", err)
	}
	if err := engine.MarkPaymentProcessed(engine.Owner(), 999); !errors.Is(err, ErrInvalidTransactionID) {
		t.Fatalf("mark 999: got %v", err)
	}
}

func TestSequentialTransactionIDs(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	st.fund(engine.Address(), 100_000)

	first, err := engine.SendETN(testAddr(0x10), testAddr(0x20), big.NewInt(1000))
	if err != nil {
		t.Fatalf("first send: %v", err)
	}
	second, err := engine.ProcessPayment(engine.Owner(), testAddr(0x10), PaymentAirtime, big.NewInt(1000))
	if err != nil {
		t.Fatalf("second payment: %v", err)
	}
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("ids: got %d,%d want 1,2", first.ID, second.ID)
	}

	ids, err := engine.UserTransactionIDs(testAddr(0x10))
	if err != nil {
		t.Fatalf("user ids: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("user participated in %d transactions, want 2", len(ids))
	}
}

func TestUpdateMinTransactionAmount(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	st.fund(engine.Address(), 10_000)

	if err := engine.UpdateMinTransactionAmount(engine.Owner(), big.NewInt(500)); err != nil {
		t.Fatalf("update min: %v", err)
	}
	if _, err := engine.SendETN(testAddr(0x10), testAddr(0x20), big.NewInt(499)); !errors.Is(err, ErrAmountTooLow) {
		t.Fatalf("below new minimum: got %v", err)
	}
	if _, err := engine.SendETN(testAddr(0x10), testAddr(0x20), big.NewInt(500)); err != nil {
		t.Fatalf("at minimum: %v", err)
	}
	if err := engine.UpdateMinTransactionAmount(testAddr(0x99), big.NewInt(1)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("non-owner update: got %v", err)
	}
}

func TestUpdateFeeCollector(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	replacement := testAddr(0xEF)
	if err := engine.UpdateFeeCollector(engine.Owner(), replacement); err != nil {
		t.Fatalf("update collector: %v", err)
	}
	ref, err := engine.FeeCollectorRef()
	if err != nil {
		t.Fatalf("collector ref: %v", err)
	}
	if ref != replacement {
		t.Fatalf("collector ref not updated")
	}
	if err := engine.UpdateFeeCollector(engine.Owner(), [20]byte{}); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("zero collector: got %v", err)
	}
}

func TestPauseBlocksOperations(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	st.fund(engine.Address(), 10_000)

	if err := engine.Pause(engine.Owner()); err != nil {
		t.Fatalf("pause: %v", err)
	}
	_, err := engine.SendETN(testAddr(0x10), testAddr(0x20), big.NewInt(1000))
	if !errors.Is(err, ErrPaused) {
		t.Fatalf("paused send: got %v", err)
	}
	if !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("paused send does not chain to the module guard: %v", err)
	}
	if _, err := engine.ProcessPayment(engine.Owner(), testAddr(0x30), PaymentBill, big.NewInt(1000)); !errors.Is(err, ErrPaused) {
		t.Fatalf("paused payment: got %v", err)
	}
	if err := engine.Unpause(engine.Owner()); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := engine.SendETN(testAddr(0x10), testAddr(0x20), big.NewInt(1000)); err != nil {
		t.Fatalf("resumed send: %v", err)
	}
}

func TestEventsEmitted(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	emitter := &capturingEmitter{}
	engine.SetEmitter(emitter)
	st.fund(engine.Address(), 10_000)

	if _, err := engine.SendETN(testAddr(0x10), testAddr(0x20), big.NewInt(1000)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := engine.ProcessPayment(engine.Owner(), testAddr(0x30), PaymentAirtime, big.NewInt(1000)); err != nil {
		t.Fatalf("process payment: %v", err)
	}

	var types []string
	for _, evt := range emitter.events {
		types = append(types, evt.EventType())
	}
	want := map[string]bool{
		events.TypeETNSent:             false,
		events.TypePaymentProcessed:    false,
		events.TypeCashbackDistributed: false,
	}
	for _, typ := range types {
		if _, ok := want[typ]; ok {
			want[typ] = true
		}
	}
	for typ, seen := range want {
		if !seen {
			t.Fatalf("missing event %s (got %v)", typ, types)
		}
	}
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func TestStateCloneIsIndependent(t *testing.T) {
	st := (&State{
		FeeCollector:         testAddr(0xEE),
		MinTransactionAmount: big.NewInt(500),
		NextTransactionID:    3,
		TotalFeesCollected:   big.NewInt(30),
		TotalVolume:          big.NewInt(1980),
		TotalTransactions:    2,
	}).Normalize()

	clone := st.Clone()
	clone.MinTransactionAmount.SetInt64(1)
	clone.TotalFeesCollected.SetInt64(0)
	clone.NextTransactionID = 99

	if st.MinTransactionAmount.Int64() != 500 || st.TotalFeesCollected.Int64() != 30 {
		t.Fatalf("clone mutation leaked into source: %+v", st)
	}
	if st.NextTransactionID != 3 {
		t.Fatalf("clone mutation leaked id counter: %d", st.NextTransactionID)
	}
}
