package core

import (
	"errors"
	"log/slog"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"flowcash/core/events"
	"flowcash/core/state"
	"flowcash/core/types"
	"flowcash/native/ledger"
	"flowcash/native/treasury"
	"flowcash/observability/metrics"
	"flowcash/storage"
)

var (
	// ErrInvalidOwner is returned when the node is constructed without an
	// administrative identity.
	ErrInvalidOwner = errors.New("core: owner address required")
	// ErrUnknownModule is returned for deposits into an unknown module
	// account.
	ErrUnknownModule = errors.New("core: unknown module")
	// ErrInsufficientFunds is returned when a caller attaches more value than
	// their account holds.
	ErrInsufficientFunds = errors.New("core: insufficient funds")
)

// Module account labels.
const (
	ModuleTreasury = "treasury"
	ModuleLedger   = "ledger"
)

// ModuleAddress derives the deterministic account address holding a module's
// pooled funds.
func ModuleAddress(name string) [20]byte {
	hash := ethcrypto.Keccak256([]byte("flowcash/module/" + name))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// Config carries the genesis parameters of the settlement engine.
type Config struct {
	Owner            [20]byte
	OperationsWallet [20]byte
	IncentivesWallet [20]byte
	TreasuryWallet   [20]byte
	// GenesisAlloc funds accounts at first start, e.g. the ledger reserve
	// that covers cashback payouts.
	GenesisAlloc map[[20]byte]*big.Int
}

type eventPayload interface {
	events.Event
	Event() *types.Event
}

// logEmitter stages events during a request so a failed request leaves the
// append-only log untouched.
type logEmitter struct {
	staged []eventPayload
}

func (l *logEmitter) Emit(evt events.Event) {
	payload, ok := evt.(eventPayload)
	if !ok {
		return
	}
	l.staged = append(l.staged, payload)
}

// Node owns the state manager, both engines, and the append-only event log.
// Every public entry point runs as a single atomic step: all effects commit
// together or the state is left exactly as it was before the call.
type Node struct {
	mu      sync.Mutex
	db      storage.Database
	state   *state.Manager
	tre     *treasury.Engine
	led     *ledger.Engine
	emitter *logEmitter
	metrics *metrics.PaymentMetrics
	logger  *slog.Logger

	events  []types.Event
	pending int
}

// NewNode constructs and, on first start, initialises the settlement engine.
// The owner and all three treasury wallets must be non-zero.
func NewNode(db storage.Database, cfg Config, logger *slog.Logger) (*Node, error) {
	if cfg.Owner == ([20]byte{}) {
		return nil, ErrInvalidOwner
	}
	if logger == nil {
		logger = slog.Default()
	}
	manager := state.NewManager(db)
	emitter := &logEmitter{}

	tre := treasury.NewEngine(cfg.Owner, ModuleAddress(ModuleTreasury))
	tre.SetState(manager)
	tre.SetEmitter(emitter)

	led := ledger.NewEngine(cfg.Owner, ModuleAddress(ModuleLedger))
	led.SetState(manager)
	led.SetEmitter(emitter)
	led.SetCollectorResolver(func(addr [20]byte) (ledger.FeeCollector, bool) {
		if addr != tre.Address() {
			return nil, false
		}
		return tre, true
	})

	n := &Node{
		db:      db,
		state:   manager,
		tre:     tre,
		led:     led,
		emitter: emitter,
		metrics: metrics.Payments(),
		logger:  logger.With("component", "node"),
	}
	if err := n.loadEvents(); err != nil {
		return nil, err
	}
	if err := n.initialize(cfg); err != nil {
		return nil, err
	}
	return n, nil
}

// loadEvents restores the persisted event log so polling consumers keep their
// offsets across restarts.
func (n *Node) loadEvents() error {
	count, err := n.state.EventCount()
	if err != nil {
		return err
	}
	n.events = make([]types.Event, 0, count)
	for i := uint64(0); i < count; i++ {
		evt, err := n.state.EventByIndex(i)
		if err != nil {
			return err
		}
		n.events = append(n.events, *evt)
	}
	return nil
}

func (n *Node) initialize(cfg Config) error {
	return n.execute(func() error {
		st, err := n.state.TreasuryStateGet()
		if err != nil {
			return err
		}
		if st != nil {
			return nil
		}
		if err := n.tre.Initialize(cfg.OperationsWallet, cfg.IncentivesWallet, cfg.TreasuryWallet); err != nil {
			return err
		}
		if err := n.led.Initialize(n.tre.Address()); err != nil {
			return err
		}
		// The ledger deposits fees under its own module identity, so it must
		// be a member of the treasury's collector set from genesis.
		if err := n.tre.SetAuthorizedCollector(cfg.Owner, n.led.Address(), true); err != nil {
			return err
		}
		for addr, amount := range cfg.GenesisAlloc {
			if err := n.state.Credit(addr, amount); err != nil {
				return err
			}
		}
		n.logger.Info("settlement state initialised",
			slog.Int("funded_accounts", len(cfg.GenesisAlloc)))
		return nil
	})
}

// execute runs fn as one atomic request: journaled state writes and staged
// events are committed together on success and discarded together on failure.
func (n *Node) execute(fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state.Begin()
	n.emitter.staged = n.emitter.staged[:0]
	if err := fn(); err != nil {
		n.state.Rollback()
		n.emitter.staged = n.emitter.staged[:0]
		n.metrics.RecordRejection(rejectionReason(err))
		return err
	}
	// Persist staged events inside the frame so the log commits atomically
	// with the state it describes.
	for _, payload := range n.emitter.staged {
		if evt := payload.Event(); evt != nil {
			if err := n.state.EventAppend(*evt); err != nil {
				n.state.Rollback()
				n.emitter.staged = n.emitter.staged[:0]
				return err
			}
		}
	}
	if err := n.state.Commit(); err != nil {
		n.emitter.staged = n.emitter.staged[:0]
		return err
	}
	for _, payload := range n.emitter.staged {
		if evt := payload.Event(); evt != nil {
			n.events = append(n.events, *evt)
		}
	}
	n.emitter.staged = n.emitter.staged[:0]
	return nil
}

func mapStateErr(err error) error {
	if errors.Is(err, state.ErrInsufficientBalance) {
		return ErrInsufficientFunds
	}
	return err
}

// SendETN settles a P2P transfer: the attached amount moves from the sender
// into the ledger module account, then the ledger engine splits and routes it.
func (n *Node) SendETN(sender, recipient [20]byte, amount *big.Int) (*ledger.Transaction, error) {
	var tx *ledger.Transaction
	err := n.execute(func() error {
		if err := n.state.Transfer(sender, n.led.Address(), amount); err != nil {
			return mapStateErr(err)
		}
		var err error
		tx, err = n.led.SendETN(sender, recipient, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.metrics.RecordTransaction(tx.PaymentType.String(), tx.Fee, tx.Amount)
	n.refreshTreasuryGauges()
	return tx, nil
}

// ProcessPayment accepts an airtime or bill payment from an authorized
// processor, with the attached amount moving into the ledger module account.
func (n *Node) ProcessPayment(processor, user [20]byte, paymentType ledger.PaymentType, amount *big.Int) (*ledger.Transaction, error) {
	var tx *ledger.Transaction
	err := n.execute(func() error {
		if err := n.state.Transfer(processor, n.led.Address(), amount); err != nil {
			return mapStateErr(err)
		}
		var err error
		tx, err = n.led.ProcessPayment(processor, user, paymentType, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.pending++
	pending := n.pending
	n.mu.Unlock()
	n.metrics.RecordTransaction(tx.PaymentType.String(), tx.Fee, tx.Amount)
	n.metrics.SetPendingPayments(float64(pending))
	n.refreshTreasuryGauges()
	return tx, nil
}

// MarkPaymentProcessed confirms off-chain settlement of a pending payment.
func (n *Node) MarkPaymentProcessed(processor [20]byte, id uint64) error {
	err := n.execute(func() error {
		return n.led.MarkPaymentProcessed(processor, id)
	})
	if err != nil {
		return err
	}
	n.mu.Lock()
	if n.pending > 0 {
		n.pending--
	}
	pending := n.pending
	n.mu.Unlock()
	n.metrics.SetPendingPayments(float64(pending))
	return nil
}

// Deposit moves value from an external account into a module's pooled
// balance without attributing it. Used to fund the ledger reserve and the
// treasury float.
func (n *Node) Deposit(from [20]byte, module string, amount *big.Int) error {
	var target [20]byte
	switch module {
	case ModuleTreasury:
		target = n.tre.Address()
	case ModuleLedger:
		target = n.led.Address()
	default:
		return ErrUnknownModule
	}
	return n.execute(func() error {
		return mapStateErr(n.state.Transfer(from, target, amount))
	})
}

// CollectFee attributes already-deposited funds into the treasury buckets.
func (n *Node) CollectFee(caller [20]byte, amount *big.Int) error {
	err := n.execute(func() error {
		return n.tre.CollectFee(caller, amount)
	})
	if err != nil {
		return err
	}
	n.refreshTreasuryGauges()
	return nil
}

// DistributeFees pays the tracked buckets out to the beneficiary wallets.
func (n *Node) DistributeFees(caller [20]byte) error {
	err := n.execute(func() error {
		return n.tre.DistributeFees(caller)
	})
	if err != nil {
		return err
	}
	n.metrics.RecordDistribution()
	n.refreshTreasuryGauges()
	return nil
}

// EmergencyDistribute splits an amount of the raw treasury balance across the
// wallets, bypassing threshold and buckets.
func (n *Node) EmergencyDistribute(caller [20]byte, amount *big.Int) error {
	err := n.execute(func() error {
		return n.tre.EmergencyDistribute(caller, amount)
	})
	if err != nil {
		return err
	}
	n.metrics.RecordDistribution()
	n.refreshTreasuryGauges()
	return nil
}

// UpdateWallet rotates a treasury beneficiary wallet.
func (n *Node) UpdateWallet(caller [20]byte, kind string, wallet [20]byte) error {
	return n.execute(func() error {
		return n.tre.UpdateWallet(caller, kind, wallet)
	})
}

// UpdateDistributionThreshold replaces the treasury distribution floor.
func (n *Node) UpdateDistributionThreshold(caller [20]byte, threshold *big.Int) error {
	return n.execute(func() error {
		return n.tre.UpdateDistributionThreshold(caller, threshold)
	})
}

// SetAuthorizedCollector toggles fee-deposit permission for addr.
func (n *Node) SetAuthorizedCollector(caller, addr [20]byte, enabled bool) error {
	return n.execute(func() error {
		return n.tre.SetAuthorizedCollector(caller, addr, enabled)
	})
}

// PauseTreasury and UnpauseTreasury drive the treasury circuit breaker.
func (n *Node) PauseTreasury(caller [20]byte) error {
	return n.execute(func() error { return n.tre.Pause(caller) })
}

func (n *Node) UnpauseTreasury(caller [20]byte) error {
	return n.execute(func() error { return n.tre.Unpause(caller) })
}

// UpdateFeeCollector repoints the ledger at a different treasury reference.
func (n *Node) UpdateFeeCollector(caller, collector [20]byte) error {
	return n.execute(func() error {
		return n.led.UpdateFeeCollector(caller, collector)
	})
}

// UpdateMinTransactionAmount replaces the P2P transfer floor.
func (n *Node) UpdateMinTransactionAmount(caller [20]byte, amount *big.Int) error {
	return n.execute(func() error {
		return n.led.UpdateMinTransactionAmount(caller, amount)
	})
}

// SetAuthorizedProcessor toggles payment-submission permission for addr.
func (n *Node) SetAuthorizedProcessor(caller, addr [20]byte, enabled bool) error {
	return n.execute(func() error {
		return n.led.SetAuthorizedProcessor(caller, addr, enabled)
	})
}

// PauseLedger and UnpauseLedger drive the ledger circuit breaker.
func (n *Node) PauseLedger(caller [20]byte) error {
	return n.execute(func() error { return n.led.Pause(caller) })
}

func (n *Node) UnpauseLedger(caller [20]byte) error {
	return n.execute(func() error { return n.led.Unpause(caller) })
}

// --- Read views ---

// Transaction returns the stored record for id.
func (n *Node) Transaction(id uint64) (*ledger.Transaction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.led.Transaction(id)
}

// UserTransactionIDs returns every transaction id addr participated in.
func (n *Node) UserTransactionIDs(addr [20]byte) ([]uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.led.UserTransactionIDs(addr)
}

// UserStats returns the accumulated statistics for addr.
func (n *Node) UserStats(addr [20]byte) (*ledger.UserStats, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.led.UserStats(addr)
}

// ContractStats returns the ledger's global counters.
func (n *Node) ContractStats() (*ledger.ContractStats, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.led.ContractStats()
}

// FeeBalance returns the treasury bucket balances and counters.
func (n *Node) FeeBalance() (*treasury.FeeBalance, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tre.FeeBalance()
}

// MinDistributionThreshold returns the routine distribution floor.
func (n *Node) MinDistributionThreshold() (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tre.MinDistributionThreshold()
}

// Wallets returns the three treasury beneficiary destinations.
func (n *Node) Wallets() (operations, incentives, treasuryWallet [20]byte, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tre.Wallets()
}

// IsAuthorizedCollector reports whether addr may deposit fees.
func (n *Node) IsAuthorizedCollector(addr [20]byte) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tre.IsAuthorizedCollector(addr)
}

// IsAuthorizedProcessor reports whether addr may submit payments.
func (n *Node) IsAuthorizedProcessor(addr [20]byte) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.led.IsAuthorizedProcessor(addr)
}

// Balance returns the native-currency balance of addr.
func (n *Node) Balance(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Balance(addr)
}

// TreasuryAddress returns the module account holding the pooled fees.
func (n *Node) TreasuryAddress() [20]byte { return n.tre.Address() }

// LedgerAddress returns the module account holding the settlement reserve.
func (n *Node) LedgerAddress() [20]byte { return n.led.Address() }

// Events returns a copy of the append-only event log starting at offset.
func (n *Node) Events(offset int) []types.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	if offset < 0 || offset >= len(n.events) {
		return nil
	}
	out := make([]types.Event, len(n.events)-offset)
	copy(out, n.events[offset:])
	return out
}

func (n *Node) refreshTreasuryGauges() {
	balance, err := n.FeeBalance()
	if err != nil {
		return
	}
	n.metrics.SetBucketBalance(treasury.WalletOperations, balance.OperationsBalance)
	n.metrics.SetBucketBalance(treasury.WalletIncentives, balance.IncentivesBalance)
	n.metrics.SetBucketBalance(treasury.WalletTreasury, balance.TreasuryBalance)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized), errors.Is(err, treasury.ErrUnauthorized),
		errors.Is(err, ledger.ErrNotOwner), errors.Is(err, treasury.ErrNotOwner):
		return "unauthorized"
	case errors.Is(err, ledger.ErrPaused), errors.Is(err, treasury.ErrPaused):
		return "paused"
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, treasury.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, treasury.ErrBelowThreshold):
		return "below_threshold"
	case errors.Is(err, ledger.ErrAlreadyProcessed):
		return "already_processed"
	default:
		return "invalid_request"
	}
}
