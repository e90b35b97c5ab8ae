// Package treasury implements the fee treasury: it accepts attributed fee
// deposits from authorized collectors, partitions them into three tracked
// buckets, and pays the buckets out to the beneficiary wallets on threshold
// or by owner override.
package treasury

import (
	"math/big"
	"time"

	"flowcash/core/events"
	nativecommon "flowcash/native/common"
	"flowcash/native/splitter"
)

// ModuleName identifies the treasury to the shared pause guard.
const ModuleName = "treasury"

// Bucket weights in basis points over splitter.Denominator.
const (
	OperationsPercent = 5000
	IncentivesPercent = 3000
	TreasuryPercent   = 2000
)

// DefaultDistributionThreshold guards the routine distribution path when no
// explicit threshold has been configured: 100 ETN in wei.
func DefaultDistributionThreshold() *big.Int {
	return new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
}

type engineState interface {
	TreasuryStateGet() (*State, error)
	TreasuryStatePut(*State) error
	CollectorGet(addr [20]byte) (bool, error)
	CollectorSet(addr [20]byte, enabled bool) error
	Balance(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
}

// Engine wires the treasury business logic with external state and event
// emitters. The module account holds the pooled funds; the engine only moves
// value out of it after its own bookkeeping is settled.
type Engine struct {
	state   engineState
	emitter events.Emitter
	owner   [20]byte
	address [20]byte
	guard   nativecommon.ReentrancyGuard
	nowFn   func() int64
}

// NewEngine creates a treasury engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
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

// Address returns the module account holding the pooled treasury funds.
func (e *Engine) Address() [20]byte { return e.address }

// Owner returns the administrative identity of the treasury.
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
	st, err := e.state.TreasuryStateGet()
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = &State{MinDistributionThreshold: DefaultDistributionThreshold()}
	}
	return st.Normalize(), nil
}

// Initialize persists the beneficiary wallets at genesis. All three wallets
// must be non-zero.
func (e *Engine) Initialize(operations, incentives, treasuryWallet [20]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if operations == ([20]byte{}) || incentives == ([20]byte{}) || treasuryWallet == ([20]byte{}) {
		return ErrInvalidAddress
	}
	st := &State{
		OperationsWallet:         operations,
		IncentivesWallet:         incentives,
		TreasuryWallet:           treasuryWallet,
		MinDistributionThreshold: DefaultDistributionThreshold(),
	}
	return e.state.TreasuryStatePut(st.Normalize())
}

// IsAuthorizedCollector reports whether addr may deposit fees. The owner is
// always a member of the collector set.
func (e *Engine) IsAuthorizedCollector(addr [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	if addr == e.owner {
		return true, nil
	}
	return e.state.CollectorGet(addr)
}

// CollectFee attributes amount from the module account balance into the three
// buckets. The depositing party must have transferred the funds to the module
// account before or atomically with this call.
func (e *Engine) CollectFee(caller [20]byte, amount *big.Int) error {
	st, err := e.loadState()
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(st, ModuleName); err != nil {
		return ErrPaused
	}
	authorized, err := e.IsAuthorizedCollector(caller)
	if err != nil {
		return err
	}
	if !authorized {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := e.state.Balance(e.address)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	shares, err := splitter.Split(amount, []uint32{OperationsPercent, IncentivesPercent, TreasuryPercent})
	if err != nil {
		return err
	}
	st.OperationsBalance.Add(st.OperationsBalance, shares[0])
	st.IncentivesBalance.Add(st.IncentivesBalance, shares[1])
	st.TreasuryBalance.Add(st.TreasuryBalance, shares[2])
	st.TotalCollected.Add(st.TotalCollected, amount)
	if err := e.state.TreasuryStatePut(st); err != nil {
		return err
	}
	e.emit(events.FeeCollected{Collector: caller, Amount: new(big.Int).Set(amount)})
	return nil
}

// DistributeFees pays the current bucket balances out to the beneficiary
// wallets, then resets the buckets. Owner only; fails below the configured
// threshold. Bucket bookkeeping is zeroed before any value moves so a
// reentrant call observes consistent state.
func (e *Engine) DistributeFees(caller [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	st, err := e.loadState()
	if err != nil {
		return err
	}
	total := new(big.Int).Add(st.OperationsBalance, st.IncentivesBalance)
	total.Add(total, st.TreasuryBalance)
	if total.Cmp(st.MinDistributionThreshold) < 0 {
		return ErrBelowThreshold
	}
	operations := new(big.Int).Set(st.OperationsBalance)
	incentives := new(big.Int).Set(st.IncentivesBalance)
	treasuryShare := new(big.Int).Set(st.TreasuryBalance)
	now := uint64(e.nowFn())

	st.OperationsBalance = big.NewInt(0)
	st.IncentivesBalance = big.NewInt(0)
	st.TreasuryBalance = big.NewInt(0)
	st.LastDistributionTime = now
	if err := e.state.TreasuryStatePut(st); err != nil {
		return err
	}
	if err := e.payout(st, operations, incentives, treasuryShare); err != nil {
		return err
	}
	e.emit(events.FeeDistributed{
		Operations:    operations,
		Incentives:    incentives,
		Treasury:      treasuryShare,
		DistributedAt: int64(now),
	})
	return nil
}

// EmergencyDistribute splits amount against the raw module balance and pays
// the wallets immediately, bypassing the threshold and the tracked buckets.
// Intended for manual recovery, not routine operation.
func (e *Engine) EmergencyDistribute(caller [20]byte, amount *big.Int) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	st, err := e.loadState()
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := e.state.Balance(e.address)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	shares, err := splitter.Split(amount, []uint32{OperationsPercent, IncentivesPercent, TreasuryPercent})
	if err != nil {
		return err
	}
	now := uint64(e.nowFn())
	st.LastDistributionTime = now
	if err := e.state.TreasuryStatePut(st); err != nil {
		return err
	}
	if err := e.payout(st, shares[0], shares[1], shares[2]); err != nil {
		return err
	}
	e.emit(events.FeeDistributed{
		Operations:    shares[0],
		Incentives:    shares[1],
		Treasury:      shares[2],
		DistributedAt: int64(now),
	})
	return nil
}

func (e *Engine) payout(st *State, operations, incentives, treasuryShare *big.Int) error {
	if err := e.state.Transfer(e.address, st.OperationsWallet, operations); err != nil {
		return err
	}
	if err := e.state.Transfer(e.address, st.IncentivesWallet, incentives); err != nil {
		return err
	}
	return e.state.Transfer(e.address, st.TreasuryWallet, treasuryShare)
}

// UpdateWallet rotates one of the three beneficiary wallets.
func (e *Engine) UpdateWallet(caller [20]byte, kind string, wallet [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if wallet == ([20]byte{}) {
		return ErrInvalidAddress
	}
	st, err := e.loadState()
	if err != nil {
		return err
	}
	var old [20]byte
	switch kind {
	case WalletOperations:
		old = st.OperationsWallet
		st.OperationsWallet = wallet
	case WalletIncentives:
		old = st.IncentivesWallet
		st.IncentivesWallet = wallet
	case WalletTreasury:
		old = st.TreasuryWallet
		st.TreasuryWallet = wallet
	default:
		return ErrInvalidWalletKind
	}
	if err := e.state.TreasuryStatePut(st); err != nil {
		return err
	}
	e.emit(events.WalletUpdated{Kind: kind, OldWallet: old, NewWallet: wallet})
	return nil
}

// UpdateDistributionThreshold replaces the routine distribution floor.
func (e *Engine) UpdateDistributionThreshold(caller [20]byte, threshold *big.Int) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if threshold == nil || threshold.Sign() <= 0 {
		return ErrInvalidThreshold
	}
	st, err := e.loadState()
	if err != nil {
		return err
	}
	old := new(big.Int).Set(st.MinDistributionThreshold)
	st.MinDistributionThreshold = new(big.Int).Set(threshold)
	if err := e.state.TreasuryStatePut(st); err != nil {
		return err
	}
	e.emit(events.ThresholdUpdated{OldThreshold: old, NewThreshold: new(big.Int).Set(threshold)})
	return nil
}

// SetAuthorizedCollector toggles deposit permission for addr.
func (e *Engine) SetAuthorizedCollector(caller, addr [20]byte, enabled bool) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if addr == ([20]byte{}) {
		return ErrInvalidAddress
	}
	if e.state == nil {
		return ErrNilState
	}
	if err := e.state.CollectorSet(addr, enabled); err != nil {
		return err
	}
	e.emit(events.CollectorAuthorized{Collector: addr, Authorized: enabled})
	return nil
}

// Pause blocks fee collection until Unpause. Distribution and admin paths
// remain available to the owner.
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
	if err := e.state.TreasuryStatePut(st); err != nil {
		return err
	}
	e.emit(events.TreasuryPaused{Paused: paused})
	return nil
}

// Paused reports whether fee collection is currently blocked.
func (e *Engine) Paused() (bool, error) {
	st, err := e.loadState()
	if err != nil {
		return false, err
	}
	return st.Paused, nil
}

// FeeBalance returns the tracked bucket balances and counters.
func (e *Engine) FeeBalance() (*FeeBalance, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return &FeeBalance{
		OperationsBalance:    st.OperationsBalance,
		IncentivesBalance:    st.IncentivesBalance,
		TreasuryBalance:      st.TreasuryBalance,
		TotalCollected:       st.TotalCollected,
		LastDistributionTime: st.LastDistributionTime,
	}, nil
}

// Wallets returns the three beneficiary destinations.
func (e *Engine) Wallets() (operations, incentives, treasuryWallet [20]byte, err error) {
	st, err := e.loadState()
	if err != nil {
		return operations, incentives, treasuryWallet, err
	}
	return st.OperationsWallet, st.IncentivesWallet, st.TreasuryWallet, nil
}

// MinDistributionThreshold returns the configured routine distribution floor.
func (e *Engine) MinDistributionThreshold() (*big.Int, error) {
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return st.MinDistributionThreshold, nil
}

// CalculateDistribution previews the 50/30/20 split for amount without
// mutating state.
func CalculateDistribution(amount *big.Int) (operations, incentives, treasuryShare *big.Int, err error) {
	shares, err := splitter.Split(amount, []uint32{OperationsPercent, IncentivesPercent, TreasuryPercent})
	if err != nil {
		return nil, nil, nil, err
	}
	return shares[0], shares[1], shares[2], nil
}
