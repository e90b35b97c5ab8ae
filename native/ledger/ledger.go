// Package ledger implements the payment ledger: it settles peer-to-peer
// transfers, accepts third-party payment requests from authorized processors,
// splits every amount into net, protocol fee, and cashback, and records
// transactions and per-user statistics. Collected fees are forwarded to the
// fee treasury referenced by the ledger state.
package ledger

import (
	"math/big"
	"time"

	"flowcash/core/events"
	nativecommon "flowcash/native/common"
	"flowcash/native/splitter"
)

// ModuleName identifies the ledger to the shared pause guard.
const ModuleName = "ledger"

// Fee and cashback rates over FeeDenominator.
const (
	FeeRate        = 15
	CashbackRate   = 5
	FeeDenominator = 1000
)

// DefaultMinTransactionAmount is the floor for P2P transfers when no explicit
// minimum has been configured: 1 ETN in wei.
func DefaultMinTransactionAmount() *big.Int {
	return new(big.Int).Set(oneETN)
}

var oneETN = big.NewInt(1e18)

// FeeCollector is the treasury surface the ledger deposits fees into. The
// call crosses a trust boundary: any failure aborts the whole triggering
// request.
type FeeCollector interface {
	Address() [20]byte
	CollectFee(caller [20]byte, amount *big.Int) error
}

type engineState interface {
	LedgerStateGet() (*State, error)
	LedgerStatePut(*State) error
	TransactionGet(id uint64) (*Transaction, bool, error)
	TransactionPut(*Transaction) error
	UserStatsGet(addr [20]byte) (*UserStats, error)
	UserStatsPut(addr [20]byte, stats *UserStats) error
	ProcessorGet(addr [20]byte) (bool, error)
	ProcessorSet(addr [20]byte, enabled bool) error
	Balance(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
}

// CollectorResolver maps a fee-collector reference address onto a live
// treasury instance. Returning false fails the triggering request.
type CollectorResolver func(addr [20]byte) (FeeCollector, bool)

// Engine wires the ledger business logic with external state, the treasury,
// and event emitters. The module account holds attached request value and the
// settlement reserve.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	resolver CollectorResolver
	owner    [20]byte
	address  [20]byte
	guard    nativecommon.ReentrancyGuard
	nowFn    func() int64
}

// NewEngine creates a ledger engine with a no-op emitter.
func NewEngine(owner, address [20]byte) *Engine {
	return &Engine{
		owner:   owner,
		address: address,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCollectorResolver configures how the stored fee-collector reference is
// resolved into a treasury instance.
func (e *Engine) SetCollectorResolver(resolver CollectorResolver) { e.resolver = resolver }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Address returns the module account holding attached value and the
// settlement reserve.
func (e *Engine) Address() [20]byte { return e.address }

// Owner returns the administrative identity of the ledger.
func (e *Engine) Owner() [20]byte { return e.owner }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) requireOwner(caller [20]byte) error {
	if caller != e.owner {
		return ErrNotOwner
	}
	return nil
}

func (e *Engine) loadState() (*State, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	st, err := e.state.LedgerStateGet()
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = &State{MinTransactionAmount: DefaultMinTransactionAmount()}
	}
	return st.Normalize(), nil
}

// Initialize persists the treasury reference at genesis. The reference must
// be non-zero.
func (e *Engine) Initialize(feeCollector [20]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if feeCollector == ([20]byte{}) {
		return ErrInvalidAddress
	}
	st := &State{
		FeeCollector:         feeCollector,
		MinTransactionAmount: DefaultMinTransactionAmount(),
	}
	return e.state.LedgerStatePut(st.Normalize())
}

// CalculateFee returns floor(amount*15/1000).
func CalculateFee(amount *big.Int) *big.Int {
	return splitter.Portion(amount, FeeRate, FeeDenominator)
}

// CalculateCashback returns floor(amount*5/1000).
func CalculateCashback(amount *big.Int) *big.Int {
	return splitter.Portion(amount, CashbackRate, FeeDenominator)
}

// IsAuthorizedProcessor reports whether addr may submit third-party payments.
// The owner is always a member of the processor set.
func (e *Engine) IsAuthorizedProcessor(addr [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	if addr == e.owner {
		return true, nil
	}
	return e.state.ProcessorGet(addr)
}

func (e *Engine) collector(st *State) (FeeCollector, error) {
	if e.resolver == nil {
		return nil, ErrNilCollector
	}
	fc, ok := e.resolver(st.FeeCollector)
	if !ok || fc == nil {
		return nil, ErrNilCollector
	}
	return fc, nil
}

// SendETN settles a P2P transfer of amount attached by sender. The fee is
// forwarded to the treasury, the net amount (amount - fee + cashback) is paid
// to the recipient, and a processed transaction is recorded. Internal
// bookkeeping is written before any value leaves the module account.
func (e *Engine) SendETN(sender, recipient [20]byte, amount *big.Int) (*Transaction, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(st, ModuleName); err != nil {
		return nil, ErrPaused
	}
	if err := e.guard.Enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()
	if recipient == ([20]byte{}) {
		return nil, ErrInvalidRecipient
	}
	if recipient == sender {
		return nil, ErrSelfTransfer
	}
	if amount == nil || amount.Cmp(st.MinTransactionAmount) < 0 {
		return nil, ErrAmountTooLow
	}
	fc, err := e.collector(st)
	if err != nil {
		return nil, err
	}

	fee := CalculateFee(amount)
	cashback := CalculateCashback(amount)
	net := new(big.Int).Sub(amount, fee)
	net.Add(net, cashback)

	tx := &Transaction{
		ID:          st.NextTransactionID,
		Sender:      sender,
		Recipient:   recipient,
		Amount:      net,
		Fee:         fee,
		Cashback:    cashback,
		PaymentType: PaymentP2P,
		Timestamp:   uint64(e.nowFn()),
		Processed:   true,
	}
	if err := e.state.TransactionPut(tx); err != nil {
		return nil, err
	}
	if err := e.creditUserStats(sender, net, nil, tx.ID); err != nil {
		return nil, err
	}
	if err := e.creditUserStats(recipient, nil, net, tx.ID); err != nil {
		return nil, err
	}
	st.NextTransactionID++
	st.TotalFeesCollected.Add(st.TotalFeesCollected, fee)
	st.TotalVolume.Add(st.TotalVolume, net)
	st.TotalTransactions++
	if err := e.state.LedgerStatePut(st); err != nil {
		return nil, err
	}

	if err := e.depositFee(fc, fee); err != nil {
		return nil, err
	}
	if err := e.state.Transfer(e.address, recipient, net); err != nil {
		return nil, err
	}

	e.emit(events.ETNSent{
		ID:          tx.ID,
		Sender:      sender,
		Recipient:   recipient,
		Net:         new(big.Int).Set(net),
		Fee:         new(big.Int).Set(fee),
		Cashback:    new(big.Int).Set(cashback),
		PaymentType: uint8(PaymentP2P),
	})
	return tx.Clone(), nil
}

// ProcessPayment accepts an airtime or bill payment of amount attached by an
// authorized processor on behalf of user. The cashback reward is credited to
// the user immediately; the settlement reserve (amount - fee - cashback)
// stays in the module account to fund the off-chain provider. The recorded
// transaction starts pending.
func (e *Engine) ProcessPayment(processor, user [20]byte, paymentType PaymentType, amount *big.Int) (*Transaction, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(st, ModuleName); err != nil {
		return nil, ErrPaused
	}
	if err := e.guard.Enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()
	authorized, err := e.IsAuthorizedProcessor(processor)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, ErrUnauthorized
	}
	if paymentType == PaymentP2P || !paymentType.Valid() {
		return nil, ErrInvalidPaymentType
	}
	if user == ([20]byte{}) {
		return nil, ErrInvalidUser
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	fc, err := e.collector(st)
	if err != nil {
		return nil, err
	}

	fee := CalculateFee(amount)
	cashback := CalculateCashback(amount)
	net := new(big.Int).Sub(amount, fee)
	net.Add(net, cashback)

	tx := &Transaction{
		ID:          st.NextTransactionID,
		Sender:      user,
		Recipient:   user,
		Amount:      net,
		Fee:         fee,
		Cashback:    cashback,
		PaymentType: paymentType,
		Timestamp:   uint64(e.nowFn()),
	}
	if err := e.state.TransactionPut(tx); err != nil {
		return nil, err
	}
	if err := e.creditUserStats(user, nil, nil, tx.ID); err != nil {
		return nil, err
	}
	st.NextTransactionID++
	st.TotalFeesCollected.Add(st.TotalFeesCollected, fee)
	st.TotalVolume.Add(st.TotalVolume, net)
	st.TotalTransactions++
	if err := e.state.LedgerStatePut(st); err != nil {
		return nil, err
	}

	if err := e.depositFee(fc, fee); err != nil {
		return nil, err
	}
	if err := e.state.Transfer(e.address, user, cashback); err != nil {
		return nil, err
	}

	e.emit(events.PaymentProcessed{
		ID:          tx.ID,
		User:        user,
		Net:         new(big.Int).Set(net),
		PaymentType: uint8(paymentType),
	})
	e.emit(events.CashbackDistributed{User: user, Amount: new(big.Int).Set(cashback)})
	return tx.Clone(), nil
}

// depositFee moves the fee into the treasury module account and attributes it
// in the same step.
func (e *Engine) depositFee(fc FeeCollector, fee *big.Int) error {
	if fee.Sign() == 0 {
		return nil
	}
	if err := e.state.Transfer(e.address, fc.Address(), fee); err != nil {
		return err
	}
	return fc.CollectFee(e.address, fee)
}

func (e *Engine) creditUserStats(addr [20]byte, sent, received *big.Int, txID uint64) error {
	stats, err := e.state.UserStatsGet(addr)
	if err != nil {
		return err
	}
	if stats == nil {
		stats = &UserStats{}
	}
	stats.Normalize()
	if sent != nil {
		stats.TotalSent.Add(stats.TotalSent, sent)
	}
	if received != nil {
		stats.TotalReceived.Add(stats.TotalReceived, received)
	}
	stats.TransactionCount++
	stats.TransactionIDs = append(stats.TransactionIDs, txID)
	return e.state.UserStatsPut(addr, stats)
}

// MarkPaymentProcessed flips a pending airtime or bill transaction into its
// terminal processed state. P2P transactions are processed at creation and
// always reject confirmation.
func (e *Engine) MarkPaymentProcessed(processor [20]byte, id uint64) error {
	st, err := e.loadState()
	if err != nil {
		return err
	}
	authorized, err := e.IsAuthorizedProcessor(processor)
	if err != nil {
		return err
	}
	if !authorized {
		return ErrUnauthorized
	}
	if id == 0 || id >= st.NextTransactionID {
		return ErrInvalidTransactionID
	}
	tx, ok, err := e.state.TransactionGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransactionID
	}
	if tx.Processed {
		return ErrAlreadyProcessed
	}
	tx.Processed = true
	return e.state.TransactionPut(tx)
}

// Transaction returns the record stored for id.
func (e *Engine) Transaction(id uint64) (*Transaction, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if id == 0 || id >= st.NextTransactionID {
		return nil, ErrInvalidTransactionID
	}
	tx, ok, err := e.state.TransactionGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransactionID
	}
	return tx.Clone(), nil
}

// UserTransactionIDs returns every transaction id addr participated in.
func (e *Engine) UserTransactionIDs(addr [20]byte) ([]uint64, error) {
	stats, err := e.UserStats(addr)
	if err != nil {
		return nil, err
	}
	return stats.TransactionIDs, nil
}

// UserStats returns the accumulated statistics for addr, lazily defaulting to
// an empty record.
func (e *Engine) UserStats(addr [20]byte) (*UserStats, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	stats, err := e.state.UserStatsGet(addr)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = &UserStats{}
	}
	return stats.Normalize().Clone(), nil
}

// ContractStats returns the global monotonic counters.
func (e *Engine) ContractStats() (*ContractStats, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return &ContractStats{
		TotalFeesCollected: st.TotalFeesCollected,
		TotalVolume:        st.TotalVolume,
		TotalTransactions:  st.TotalTransactions,
	}, nil
}

// FeeCollectorRef returns the treasury reference currently in use.
func (e *Engine) FeeCollectorRef() ([20]byte, error) {
	st, err := e.loadState()
	if err != nil {
		return [20]byte{}, err
	}
	return st.FeeCollector, nil
}

// MinTransactionAmount returns the configured P2P floor.
func (e *Engine) MinTransactionAmount() (*big.Int, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return st.MinTransactionAmount, nil
}

// UpdateFeeCollector repoints the ledger at a different treasury instance.
func (e *Engine) UpdateFeeCollector(caller, feeCollector [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if feeCollector == ([20]byte{}) {
		return ErrInvalidAddress
	}
	st, err := e.loadState()
	if err != nil {
		return err
	}
	old := st.FeeCollector
	st.FeeCollector = feeCollector
	if err := e.state.LedgerStatePut(st); err != nil {
		return err
	}
	e.emit(events.FeeCollectorUpdated{OldCollector: old, NewCollector: feeCollector})
	return nil
}

// UpdateMinTransactionAmount replaces the P2P floor.
func (e *Engine) UpdateMinTransactionAmount(caller [20]byte, amount *big.Int) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	st, err := e.loadState()
	if err != nil {
		return err
	}
	st.MinTransactionAmount = new(big.Int).Set(amount)
	if err := e.state.LedgerStatePut(st); err != nil {
		return err
	}
	e.emit(events.TransactionLimitUpdated{MinAmount: new(big.Int).Set(amount)})
	return nil
}

// SetAuthorizedProcessor toggles payment submission permission for addr.
func (e *Engine) SetAuthorizedProcessor(caller, addr [20]byte, enabled bool) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if addr == ([20]byte{}) {
		return ErrInvalidAddress
	}
	if e.state == nil {
		return ErrNilState
	}
	if err := e.state.ProcessorSet(addr, enabled); err != nil {
		return err
	}
	e.emit(events.ProcessorAuthorized{Processor: addr, Authorized: enabled})
	return nil
}

// Pause blocks SendETN and ProcessPayment until Unpause.
func (e *Engine) Pause(caller [20]byte) error {
	return e.setPaused(caller, true)
}

// Unpause releases the circuit breaker.
func (e *Engine) Unpause(caller [20]byte) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller [20]byte, paused bool) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	st, err := e.loadState()
	if err != nil {
		return err
	}
	st.Paused = paused
	if err := e.state.LedgerStatePut(st); err != nil {
		return err
	}
	e.emit(events.LedgerPaused{Paused: paused})
	return nil
}

// Paused reports whether payment entry points are currently blocked.
func (e *Engine) Paused() (bool, error) {
	st, err := e.loadState()
	if err != nil {
		return false, err
	}
	return st.Paused, nil
}
