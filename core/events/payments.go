package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"flowcash/core/types"
)

const (
	// TypeETNSent is emitted for every settled peer-to-peer transfer.
	TypeETNSent = "ledger.etn_sent"
	// TypePaymentProcessed is emitted when a third-party payment is accepted
	// for off-chain settlement.
	TypePaymentProcessed = "ledger.payment_processed"
	// TypeCashbackDistributed is emitted when a cashback reward is credited.
	TypeCashbackDistributed = "ledger.cashback_distributed"
	// TypeProcessorAuthorized marks an authorization toggle for a payment
	// processor.
	TypeProcessorAuthorized = "ledger.processor_authorized"
	// TypeFeeCollectorUpdated marks a treasury reference rotation.
	TypeFeeCollectorUpdated = "ledger.fee_collector_updated"
	// TypeTransactionLimitUpdated marks a change of the minimum transfer
	// amount.
	TypeTransactionLimitUpdated = "ledger.transaction_limit_updated"
	// TypeLedgerPaused and TypeLedgerUnpaused track the ledger circuit
	// breaker.
	TypeLedgerPaused   = "ledger.paused"
	TypeLedgerUnpaused = "ledger.unpaused"
)

// ETNSent records a settled P2P transfer with its fee and cashback breakdown.
type ETNSent struct {
	ID          uint64
	Sender      [20]byte
	Recipient   [20]byte
	Net         *big.Int
	Fee         *big.Int
	Cashback    *big.Int
	PaymentType uint8
}

// EventType satisfies the events.Event interface.
func (ETNSent) EventType() string { return TypeETNSent }

// Event converts the structured payload into a broadcastable event.
func (e ETNSent) Event() *types.Event {
	return &types.Event{
		Type: TypeETNSent,
		Attributes: map[string]string{
			"id":          strconv.FormatUint(e.ID, 10),
			"sender":      hex.EncodeToString(e.Sender[:]),
			"recipient":   hex.EncodeToString(e.Recipient[:]),
			"netWei":      formatAmount(e.Net),
			"feeWei":      formatAmount(e.Fee),
			"cashbackWei": formatAmount(e.Cashback),
			"paymentType": strconv.FormatUint(uint64(e.PaymentType), 10),
		},
	}
}

// PaymentProcessed records a pending airtime or bill payment accepted by an
// authorized processor.
type PaymentProcessed struct {
	ID          uint64
	User        [20]byte
	Net         *big.Int
	PaymentType uint8
}

// EventType satisfies the events.Event interface.
func (PaymentProcessed) EventType() string { return TypePaymentProcessed }

// Event converts the structured payload into a broadcastable event.
func (e PaymentProcessed) Event() *types.Event {
	return &types.Event{
		Type: TypePaymentProcessed,
		Attributes: map[string]string{
			"id":          strconv.FormatUint(e.ID, 10),
			"user":        hex.EncodeToString(e.User[:]),
			"netWei":      formatAmount(e.Net),
			"paymentType": strconv.FormatUint(uint64(e.PaymentType), 10),
		},
	}
}

// CashbackDistributed records a cashback reward credited to a user.
type CashbackDistributed struct {
	User   [20]byte
	Amount *big.Int
}

// EventType satisfies the events.Event interface.
func (CashbackDistributed) EventType() string { return TypeCashbackDistributed }

// Event converts the structured payload into a broadcastable event.
func (e CashbackDistributed) Event() *types.Event {
	return &types.Event{
		Type: TypeCashbackDistributed,
		Attributes: map[string]string{
			"user":      hex.EncodeToString(e.User[:]),
			"amountWei": formatAmount(e.Amount),
		},
	}
}

// ProcessorAuthorized records an authorization toggle for a payment processor.
type ProcessorAuthorized struct {
	Processor  [20]byte
	Authorized bool
}

// EventType satisfies the events.Event interface.
func (ProcessorAuthorized) EventType() string { return TypeProcessorAuthorized }

// Event converts the structured payload into a broadcastable event.
func (e ProcessorAuthorized) Event() *types.Event {
	return &types.Event{
		Type: TypeProcessorAuthorized,
		Attributes: map[string]string{
			"processor":  hex.EncodeToString(e.Processor[:]),
			"authorized": strconv.FormatBool(e.Authorized),
		},
	}
}

// FeeCollectorUpdated records a rotation of the treasury reference used for
// fee deposits.
type FeeCollectorUpdated struct {
	OldCollector [20]byte
	NewCollector [20]byte
}

// EventType satisfies the events.Event interface.
func (FeeCollectorUpdated) EventType() string { return TypeFeeCollectorUpdated }

// Event converts the structured payload into a broadcastable event.
func (e FeeCollectorUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeFeeCollectorUpdated,
		Attributes: map[string]string{
			"oldCollector": hex.EncodeToString(e.OldCollector[:]),
			"newCollector": hex.EncodeToString(e.NewCollector[:]),
		},
	}
}

// TransactionLimitUpdated records a change of the minimum transfer amount.
type TransactionLimitUpdated struct {
	MinAmount *big.Int
}

// EventType satisfies the events.Event interface.
func (TransactionLimitUpdated) EventType() string { return TypeTransactionLimitUpdated }

// Event converts the structured payload into a broadcastable event.
func (e TransactionLimitUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeTransactionLimitUpdated,
		Attributes: map[string]string{
			"minAmountWei": formatAmount(e.MinAmount),
		},
	}
}

// LedgerPaused marks the ledger circuit breaker engaging or releasing.
type LedgerPaused struct {
	Paused bool
}

// EventType satisfies the events.Event interface.
func (e LedgerPaused) EventType() string {
	if e.Paused {
		return TypeLedgerPaused
	}
	return TypeLedgerUnpaused
}

// Event converts the structured payload into a broadcastable event.
func (e LedgerPaused) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{}}
}
