package treasury

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"flowcash/core/events"
	nativecommon "flowcash/native/common"
)

type mockState struct {
	state      *State
	collectors map[[20]byte]bool
	balances   map[[20]byte]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		collectors: make(map[[20]byte]bool),
		balances:   make(map[[20]byte]*big.Int),
	}
}

func (m *mockState) TreasuryStateGet() (*State, error) {
	if m.state == nil {
		return nil, nil
	}
	return m.state.Clone(), nil
}

func (m *mockState) TreasuryStatePut(st *State) error {
	if st == nil {
		return fmt.Errorf("nil state")
	}
	m.state = st.Clone()
	return nil
}

func (m *mockState) CollectorGet(addr [20]byte) (bool, error) {
	return m.collectors[addr], nil
}

func (m *mockState) CollectorSet(addr [20]byte, enabled bool) error {
	m.collectors[addr] = enabled
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

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestEngine(t *testing.T) (*Engine, *mockState) {
	t.Helper()
	owner := testAddr(0x01)
	module := testAddr(0xEE)
	engine := NewEngine(owner, module)
	st := newMockState()
	engine.SetState(st)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	if err := engine.Initialize(testAddr(0xA1), testAddr(0xA2), testAddr(0xA3)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return engine, st
}

func TestInitializeRejectsZeroWallets(t *testing.T) {
	engine := NewEngine(testAddr(0x01), testAddr(0xEE))
	engine.SetState(newMockState())
	if err := engine.Initialize([20]byte{}, testAddr(0xA2), testAddr(0xA3)); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("zero operations wallet: got %v", err)
	}
}

func TestCollectFeeSplitsBuckets(t *testing.T) {
	engine, st := newTestEngine(t)
	st.fund(engine.Address(), 10)

	if err := engine.CollectFee(engine.Owner(), big.NewInt(10)); err != nil {
		t.Fatalf("collect fee: %v", err)
	}

	balance, err := engine.FeeBalance()
	if err != nil {
		t.Fatalf("fee balance: %v", err)
	}
	if balance.OperationsBalance.Int64() != 5 {
		t.Fatalf("operations bucket: got %s want 5", balance.OperationsBalance)
	}
	if balance.IncentivesBalance.Int64() != 3 {
		t.Fatalf("incentives bucket: got %s want 3", balance.IncentivesBalance)
	}
	if balance.TreasuryBalance.Int64() != 2 {
		t.Fatalf("treasury bucket: got %s want 2", balance.TreasuryBalance)
	}
	if balance.TotalCollected.Int64() != 10 {
		t.Fatalf("total collected: got %s want 10", balance.TotalCollected)
	}
}

func TestCollectFeeRemainderFavorsTreasuryBucket(t *testing.T) {
	engine, st := newTestEngine(t)
	st.fund(engine.Address(), 9_999)

	if err := engine.CollectFee(engine.Owner(), big.NewInt(9_999)); err != nil {
		t.Fatalf("collect fee: %v", err)
	}
	balance, err := engine.FeeBalance()
	if err != nil {
		t.Fatalf("fee balance: %v", err)
	}
	sum := new(big.Int).Add(balance.OperationsBalance, balance.IncentivesBalance)
	sum.Add(sum, balance.TreasuryBalance)
	if sum.Int64() != 9_999 {
		t.Fatalf("buckets sum to %s, want 9999", sum)
	}
	if balance.TreasuryBalance.Int64() != 2001 {
		t.Fatalf("treasury bucket: got %s want 2001", balance.TreasuryBalance)
	}
}

func TestCollectFeeRequiresAuthorization(t *testing.T) {
	engine, st := newTestEngine(t)
	st.fund(engine.Address(), 100)

	stranger := testAddr(0x99)
	if err := engine.CollectFee(stranger, big.NewInt(10)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unauthorized collect: got %v", err)
	}

	if err := engine.SetAuthorizedCollector(engine.Owner(), stranger, true); err != nil {
		t.Fatalf("authorize collector: %v", err)
	}
	if err := engine.CollectFee(stranger, big.NewInt(10)); err != nil {
		t.Fatalf("authorized collect: %v", err)
	}

	if err := engine.SetAuthorizedCollector(engine.Owner(), stranger, false); err != nil {
		t.Fatalf("revoke collector: %v", err)
	}
	if err := engine.CollectFee(stranger, big.NewInt(10)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoked collect: got %v", err)
	}
}

func TestCollectFeeChecksModuleBalance(t *testing.T) {
	engine, st := newTestEngine(t)
	st.fund(engine.Address(), 5)

	if err := engine.CollectFee(engine.Owner(), big.NewInt(10)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("over-collect: got %v", err)
	}
	if err := engine.CollectFee(engine.Owner(), big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero collect: got %v", err)
	}
}

func TestDistributeFeesPaysWallets(t *testing.T) {
	engine, st := newTestEngine(t)
	emitter := &capturingEmitter{}
	engine.SetEmitter(emitter)

	threshold := big.NewInt(10)
	if err := engine.UpdateDistributionThreshold(engine.Owner(), threshold); err != nil {
		t.Fatalf("update threshold: %v", err)
	}

	st.fund(engine.Address(), 10)
	if err := engine.CollectFee(engine.Owner(), big.NewInt(10)); err != nil {
		t.Fatalf("collect fee: %v", err)
	}

	if err := engine.DistributeFees(engine.Owner()); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	operations, _ := st.Balance(testAddr(0xA1))
	incentives, _ := st.Balance(testAddr(0xA2))
	treasuryWallet, _ := st.Balance(testAddr(0xA3))
	if operations.Int64() != 5 || incentives.Int64() != 3 || treasuryWallet.Int64() != 2 {
		t.Fatalf("wallet payouts: got %s/%s/%s want 5/3/2", operations, incentives, treasuryWallet)
	}

	balance, err := engine.FeeBalance()
	if err != nil {
		t.Fatalf("fee balance: %v", err)
	}
	if balance.OperationsBalance.Sign() != 0 || balance.IncentivesBalance.Sign() != 0 || balance.TreasuryBalance.Sign() != 0 {
		t.Fatalf("buckets not reset: %s/%s/%s", balance.OperationsBalance, balance.IncentivesBalance, balance.TreasuryBalance)
	}
	if balance.LastDistributionTime != 1_700_000_000 {
		t.Fatalf("last distribution time: got %d", balance.LastDistributionTime)
	}

	var sawDistribution bool
	for _, evt := range emitter.events {
		if evt.EventType() == events.TypeFeeDistributed {
			sawDistribution = true
		}
	}
	if !sawDistribution {
		t.Fatalf("missing distribution event")
	}
}

func TestDistributeFeesBelowThreshold(t *testing.T) {
	engine, st := newTestEngine(t)
	st.fund(engine.Address(), 10)
	if err := engine.CollectFee(engine.Owner(), big.NewInt(10)); err != nil {
		t.Fatalf("collect fee: %v", err)
	}
	// Default threshold is 100 ETN; 10 wei is far below it.
	if err := engine.DistributeFees(engine.Owner()); !errors.Is(err, ErrBelowThreshold) {
		t.Fatalf("below threshold: got %v", err)
	}
}

func TestDistributeFeesOwnerOnly(t *testing.T) {
	engine, _ := newTestEngine(t)
	if err := engine.DistributeFees(testAddr(0x99)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("non-owner distribute: got %v", err)
	}
}

func TestEmergencyDistributeBypassesThresholdAndBuckets(t *testing.T) {
	engine, st := newTestEngine(t)
	st.fund(engine.Address(), 100)

	if err := engine.EmergencyDistribute(engine.Owner(), big.NewInt(100)); err != nil {
		t.Fatalf("emergency distribute: %v", err)
	}
	operations, _ := st.Balance(testAddr(0xA1))
	incentives, _ := st.Balance(testAddr(0xA2))
	treasuryWallet, _ := st.Balance(testAddr(0xA3))
	if operations.Int64() != 50 || incentives.Int64() != 30 || treasuryWallet.Int64() != 20 {
		t.Fatalf("emergency payouts: got %s/%s/%s want 50/30/20", operations, incentives, treasuryWallet)
	}
}

func TestEmergencyDistributeChecksBalance(t *testing.T) {
	engine, st := newTestEngine(t)
	st.fund(engine.Address(), 10)
	if err := engine.EmergencyDistribute(engine.Owner(), big.NewInt(100)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("over-distribute: got %v", err)
	}
}

func TestUpdateWallet(t *testing.T) {
	engine, _ := newTestEngine(t)
	replacement := testAddr(0xB1)
	if err := engine.UpdateWallet(engine.Owner(), WalletOperations, replacement); err != nil {
		t.Fatalf("update wallet: %v", err)
	}
	operations, _, _, err := engine.Wallets()
	if err != nil {
		t.Fatalf("wallets: %v", err)
	}
	if operations != replacement {
		t.Fatalf("operations wallet not updated")
	}

	if err := engine.UpdateWallet(engine.Owner(), "reserve", replacement); !errors.Is(err, ErrInvalidWalletKind) {
		t.Fatalf("bad kind: got %v", err)
	}
	if err := engine.UpdateWallet(engine.Owner(), WalletIncentives, [20]byte{}); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("zero wallet: got %v", err)
	}
	if err := engine.UpdateWallet(testAddr(0x99), WalletTreasury, replacement); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("non-owner update: got %v", err)
	}
}

func TestUpdateDistributionThreshold(t *testing.T) {
	engine, _ := newTestEngine(t)
	if err := engine.UpdateDistributionThreshold(engine.Owner(), big.NewInt(0)); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("zero threshold: got %v", err)
	}
	if err := engine.UpdateDistributionThreshold(engine.Owner(), big.NewInt(42)); err != nil {
		t.Fatalf("update threshold: %v", err)
	}
	threshold, err := engine.MinDistributionThreshold()
	if err != nil {
		t.Fatalf("threshold: %v", err)
	}
	if threshold.Int64() != 42 {
		t.Fatalf("threshold: got %s want 42", threshold)
	}
}

func TestPauseBlocksCollection(t *testing.T) {
	engine, st := newTestEngine(t)
	st.fund(engine.Address(), 100)

	if err := engine.Pause(engine.Owner()); err != nil {
		t.Fatalf("pause: %v", err)
	}
	err := engine.CollectFee(engine.Owner(), big.NewInt(10))
	if !errors.Is(err, ErrPaused) {
		t.Fatalf("paused collect: got %v", err)
	}
	if !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("paused collect does not chain to the module guard: %v", err)
	}
	if err := engine.Unpause(engine.Owner()); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := engine.CollectFee(engine.Owner(), big.NewInt(10)); err != nil {
		t.Fatalf("resumed collect: %v", err)
	}
}

func TestCalculateDistribution(t *testing.T) {
	operations, incentives, treasuryShare, err := CalculateDistribution(big.NewInt(1000))
	if err != nil {
		t.Fatalf("calculate distribution: %v", err)
	}
	if operations.Int64() != 500 || incentives.Int64() != 300 || treasuryShare.Int64() != 200 {
		t.Fatalf("distribution: got %s/%s/%s", operations, incentives, treasuryShare)
	}
}
