package treasury

import "math/big"

// WalletKind names one of the three beneficiary destinations.
const (
	WalletOperations = "operations"
	WalletIncentives = "incentives"
	WalletTreasury   = "treasury"
)

// State is the persisted treasury record. Bucket balances are tracked
// separately from the raw module account balance: deposits only enter the
// buckets once an authorized collector attributes them via CollectFee.
type State struct {
	OperationsWallet [20]byte
	IncentivesWallet [20]byte
	TreasuryWallet   [20]byte

	OperationsBalance *big.Int
	IncentivesBalance *big.Int
	TreasuryBalance   *big.Int
	TotalCollected    *big.Int

	MinDistributionThreshold *big.Int
	LastDistributionTime     uint64
	Paused                   bool
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
	clone.OperationsBalance = cloneBigInt(s.OperationsBalance)
	clone.IncentivesBalance = cloneBigInt(s.IncentivesBalance)
	clone.TreasuryBalance = cloneBigInt(s.TreasuryBalance)
	clone.TotalCollected = cloneBigInt(s.TotalCollected)
	clone.MinDistributionThreshold = cloneBigInt(s.MinDistributionThreshold)
	return &clone
}

// Normalize replaces nil amounts with zero values.
func (s *State) Normalize() *State {
	if s == nil {
		return nil
	}
	s.OperationsBalance = cloneBigInt(s.OperationsBalance)
	s.IncentivesBalance = cloneBigInt(s.IncentivesBalance)
	s.TreasuryBalance = cloneBigInt(s.TreasuryBalance)
	s.TotalCollected = cloneBigInt(s.TotalCollected)
	s.MinDistributionThreshold = cloneBigInt(s.MinDistributionThreshold)
	return s
}

// FeeBalance is the read-model returned to callers inspecting the treasury.
type FeeBalance struct {
	OperationsBalance    *big.Int
	IncentivesBalance    *big.Int
	TreasuryBalance      *big.Int
	TotalCollected       *big.Int
	LastDistributionTime uint64
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
