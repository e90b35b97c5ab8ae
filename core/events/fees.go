package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"flowcash/core/types"
)

const (
	// TypeFeeCollected marks an attributed fee deposit into the treasury.
	TypeFeeCollected = "treasury.fee_collected"
	// TypeFeeDistributed marks a payout of the tracked buckets to the
	// beneficiary wallets.
	TypeFeeDistributed = "treasury.fee_distributed"
	// TypeWalletUpdated marks a beneficiary wallet rotation.
	TypeWalletUpdated = "treasury.wallet_updated"
	// TypeThresholdUpdated marks a change of the distribution threshold.
	TypeThresholdUpdated = "treasury.threshold_updated"
	// TypeCollectorAuthorized marks a collector authorization change.
	TypeCollectorAuthorized = "treasury.collector_authorized"
	// TypeTreasuryPaused and TypeTreasuryUnpaused track the treasury circuit
	// breaker.
	TypeTreasuryPaused   = "treasury.paused"
	TypeTreasuryUnpaused = "treasury.unpaused"
)

// FeeCollected records a fee deposit accepted from an authorized collector.
type FeeCollected struct {
	Collector [20]byte
	Amount    *big.Int
}

// EventType satisfies the events.Event interface.
func (FeeCollected) EventType() string { return TypeFeeCollected }

// Event converts the structured payload into a broadcastable event.
func (e FeeCollected) Event() *types.Event {
	return &types.Event{
		Type: TypeFeeCollected,
		Attributes: map[string]string{
			"collector": hex.EncodeToString(e.Collector[:]),
			"amountWei": formatAmount(e.Amount),
		},
	}
}

// FeeDistributed records a routine or emergency payout to the three wallets.
type FeeDistributed struct {
	Operations    *big.Int
	Incentives    *big.Int
	Treasury      *big.Int
	DistributedAt int64
}

// EventType satisfies the events.Event interface.
func (FeeDistributed) EventType() string { return TypeFeeDistributed }

// Event converts the structured payload into a broadcastable event.
func (e FeeDistributed) Event() *types.Event {
	return &types.Event{
		Type: TypeFeeDistributed,
		Attributes: map[string]string{
			"operationsWei":     formatAmount(e.Operations),
			"incentivesWei":     formatAmount(e.Incentives),
			"treasuryWei":       formatAmount(e.Treasury),
			"distributedAtUnix": strconv.FormatInt(e.DistributedAt, 10),
		},
	}
}

// WalletUpdated records a beneficiary wallet change alongside the previous
// destination for audit trails.
type WalletUpdated struct {
	Kind      string
	OldWallet [20]byte
	NewWallet [20]byte
}

// EventType satisfies the events.Event interface.
func (WalletUpdated) EventType() string { return TypeWalletUpdated }

// Event converts the structured payload into a broadcastable event.
func (e WalletUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeWalletUpdated,
		Attributes: map[string]string{
			"kind":      e.Kind,
			"oldWallet": hex.EncodeToString(e.OldWallet[:]),
			"newWallet": hex.EncodeToString(e.NewWallet[:]),
		},
	}
}

// ThresholdUpdated records a distribution threshold change.
type ThresholdUpdated struct {
	OldThreshold *big.Int
	NewThreshold *big.Int
}

// EventType satisfies the events.Event interface.
func (ThresholdUpdated) EventType() string { return TypeThresholdUpdated }

// Event converts the structured payload into a broadcastable event.
func (e ThresholdUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeThresholdUpdated,
		Attributes: map[string]string{
			"oldWei": formatAmount(e.OldThreshold),
			"newWei": formatAmount(e.NewThreshold),
		},
	}
}

// CollectorAuthorized records an authorization toggle for a fee collector.
type CollectorAuthorized struct {
	Collector  [20]byte
	Authorized bool
}

// EventType satisfies the events.Event interface.
func (CollectorAuthorized) EventType() string { return TypeCollectorAuthorized }

// Event converts the structured payload into a broadcastable event.
func (e CollectorAuthorized) Event() *types.Event {
	return &types.Event{
		Type: TypeCollectorAuthorized,
		Attributes: map[string]string{
			"collector":  hex.EncodeToString(e.Collector[:]),
			"authorized": strconv.FormatBool(e.Authorized),
		},
	}
}

// TreasuryPaused marks the treasury circuit breaker engaging or releasing.
type TreasuryPaused struct {
	Paused bool
}

// EventType satisfies the events.Event interface.
func (e TreasuryPaused) EventType() string {
	if e.Paused {
		return TypeTreasuryPaused
	}
	return TypeTreasuryUnpaused
}

// Event converts the structured payload into a broadcastable event.
func (e TreasuryPaused) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{}}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
