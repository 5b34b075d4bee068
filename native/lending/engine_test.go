package lending

import (
	"errors"
	"math/big"
	"strconv"
	"testing"
	"time"

	"nftylend/crypto"
)

type mockEngineState struct {
	params     *ProtocolParams
	desks      map[uint64]*LendingDesk
	loans      map[uint64]*Loan
	configs    map[string]*LoanConfig
	fees       map[string]*big.Int
	nextDeskID uint64
	nextLoanID uint64
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		desks:   make(map[uint64]*LendingDesk),
		loans:   make(map[uint64]*Loan),
		configs: make(map[string]*LoanConfig),
		fees:    make(map[string]*big.Int),
	}
}

func configKey(deskID uint64, collection string) string {
	return strconv.FormatUint(deskID, 10) + "/" + collection
}

func (m *mockEngineState) ProtocolParams() (*ProtocolParams, bool, error) {
	if m.params == nil {
		return nil, false, nil
	}
	return m.params.Clone(), true, nil
}

func (m *mockEngineState) PutProtocolParams(p *ProtocolParams) error {
	m.params = p.Clone()
	return nil
}

func (m *mockEngineState) Desk(id uint64) (*LendingDesk, bool, error) {
	desk, ok := m.desks[id]
	return desk.Clone(), ok, nil
}

func (m *mockEngineState) PutDesk(d *LendingDesk) error {
	m.desks[d.ID] = d.Clone()
	return nil
}

func (m *mockEngineState) NextDeskID() (uint64, error) {
	m.nextDeskID++
	return m.nextDeskID, nil
}

func (m *mockEngineState) LoanConfig(deskID uint64, collection string) (*LoanConfig, bool, error) {
	cfg, ok := m.configs[configKey(deskID, collection)]
	return cfg.Clone(), ok, nil
}

func (m *mockEngineState) PutLoanConfig(deskID uint64, cfg *LoanConfig) error {
	m.configs[configKey(deskID, cfg.Collection)] = cfg.Clone()
	return nil
}

func (m *mockEngineState) DeleteLoanConfig(deskID uint64, collection string) error {
	delete(m.configs, configKey(deskID, collection))
	return nil
}

func (m *mockEngineState) DeskLoanConfigs(deskID uint64) ([]*LoanConfig, error) {
	prefix := strconv.FormatUint(deskID, 10) + "/"
	out := make([]*LoanConfig, 0)
	for key, cfg := range m.configs {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, cfg.Clone())
		}
	}
	return out, nil
}

func (m *mockEngineState) Loan(id uint64) (*Loan, bool, error) {
	loan, ok := m.loans[id]
	return loan.Clone(), ok, nil
}

func (m *mockEngineState) PutLoan(l *Loan) error {
	m.loans[l.ID] = l.Clone()
	return nil
}

func (m *mockEngineState) NextLoanID() (uint64, error) {
	m.nextLoanID++
	return m.nextLoanID, nil
}

func (m *mockEngineState) AccumulatedFees(currency string) (*big.Int, error) {
	if v, ok := m.fees[currency]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockEngineState) PutAccumulatedFees(currency string, amount *big.Int) error {
	m.fees[currency] = new(big.Int).Set(amount)
	return nil
}

type mockLedger struct {
	balances   map[string]*big.Int
	allowances map[string]*big.Int
	failNext   error
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		balances:   make(map[string]*big.Int),
		allowances: make(map[string]*big.Int),
	}
}

func ledgerKey(currency string, addr crypto.Address) string {
	return currency + "/" + addr.String()
}

func allowanceKey(currency string, owner, spender crypto.Address) string {
	return currency + "/" + owner.String() + "/" + spender.String()
}

func (m *mockLedger) balance(currency string, addr crypto.Address) *big.Int {
	if v, ok := m.balances[ledgerKey(currency, addr)]; ok {
		return v
	}
	return big.NewInt(0)
}

func (m *mockLedger) mint(currency string, addr crypto.Address, amount int64) {
	m.balances[ledgerKey(currency, addr)] = big.NewInt(amount)
}

func (m *mockLedger) approve(currency string, owner, spender crypto.Address, amount int64) {
	m.allowances[allowanceKey(currency, owner, spender)] = big.NewInt(amount)
}

func (m *mockLedger) Transfer(currency string, from, to crypto.Address, amount *big.Int) error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	fromBal := m.balance(currency, from)
	if fromBal.Cmp(amount) < 0 {
		return errors.New("bank: insufficient balance")
	}
	m.balances[ledgerKey(currency, from)] = new(big.Int).Sub(fromBal, amount)
	m.balances[ledgerKey(currency, to)] = new(big.Int).Add(m.balance(currency, to), amount)
	return nil
}

func (m *mockLedger) TransferFrom(currency string, spender, from, to crypto.Address, amount *big.Int) error {
	key := allowanceKey(currency, from, spender)
	allowed, ok := m.allowances[key]
	if !ok || allowed.Cmp(amount) < 0 {
		return errors.New("bank: insufficient allowance")
	}
	if err := m.Transfer(currency, from, to, amount); err != nil {
		return err
	}
	m.allowances[key] = new(big.Int).Sub(allowed, amount)
	return nil
}

type mockVault struct {
	owners   map[string]crypto.Address
	failHold error
}

func newMockVault() *mockVault {
	return &mockVault{owners: make(map[string]crypto.Address)}
}

func collateralKey(collection string, nftID uint64) string {
	return collection + "/" + strconv.FormatUint(nftID, 10)
}

func (m *mockVault) register(collection string, nftID uint64, owner crypto.Address) {
	m.owners[collateralKey(collection, nftID)] = owner
}

func (m *mockVault) ownerOf(collection string, nftID uint64) crypto.Address {
	return m.owners[collateralKey(collection, nftID)]
}

func (m *mockVault) Hold(collection string, nftID uint64, from crypto.Address) error {
	if m.failHold != nil {
		err := m.failHold
		m.failHold = nil
		return err
	}
	owner, ok := m.owners[collateralKey(collection, nftID)]
	if !ok || !owner.Equal(from) {
		return errors.New("custody: caller does not own token")
	}
	m.owners[collateralKey(collection, nftID)] = vaultAddr()
	return nil
}

func (m *mockVault) Release(collection string, nftID uint64, to crypto.Address) error {
	m.owners[collateralKey(collection, nftID)] = to
	return nil
}

func testAddr(tag byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = tag
	return crypto.NewAddress(crypto.Prefix, raw)
}

func vaultAddr() crypto.Address { return testAddr(0xff) }

type testEnv struct {
	t        *testing.T
	engine   *Engine
	state    *mockEngineState
	ledger   *mockLedger
	vault    *mockVault
	now      time.Time
	admin    crypto.Address
	platform crypto.Address
	lender   crypto.Address
	borrower crypto.Address
}

const testCurrency = "usdc"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		t:        t,
		state:    newMockEngineState(),
		ledger:   newMockLedger(),
		vault:    newMockVault(),
		now:      time.Unix(1_700_000_000, 0),
		admin:    testAddr(1),
		platform: testAddr(2),
		lender:   testAddr(3),
		borrower: testAddr(4),
	}
	env.engine = NewEngine(vaultAddr())
	env.engine.SetState(env.state)
	env.engine.SetLedger(env.ledger)
	env.engine.SetCollateral(env.vault)
	env.engine.SetNowFunc(func() time.Time { return env.now })
	if err := env.engine.InitializeProtocol(env.admin, env.platform, 200); err != nil {
		t.Fatalf("initialize protocol: %v", err)
	}
	env.ledger.mint(testCurrency, env.lender, 1_000_000)
	env.ledger.mint(testCurrency, env.borrower, 100_000)
	env.ledger.approve(testCurrency, env.lender, vaultAddr(), 1_000_000)
	env.ledger.approve(testCurrency, env.borrower, vaultAddr(), 100_000)
	env.vault.register("punks", 7, env.borrower)
	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.now = env.now.Add(d)
}

func defaultConfig() *LoanConfig {
	return &LoanConfig{
		Collection:  "punks",
		MinAmount:   big.NewInt(10),
		MaxAmount:   big.NewInt(10_000),
		MinDuration: 24,
		MaxDuration: 240,
		MinInterest: 200,
		MaxInterest: 200,
	}
}

func (env *testEnv) createDesk(balance int64, configs ...*LoanConfig) *LendingDesk {
	env.t.Helper()
	if len(configs) == 0 {
		configs = []*LoanConfig{defaultConfig()}
	}
	desk, err := env.engine.CreateLendingDesk(env.lender, testCurrency, big.NewInt(balance), configs)
	if err != nil {
		env.t.Fatalf("create desk: %v", err)
	}
	return desk
}

func (env *testEnv) originate(deskID uint64, amount int64, duration uint64) *Loan {
	env.t.Helper()
	loan, err := env.engine.InitializeNewLoan(env.borrower, deskID, "punks", 7, duration, big.NewInt(amount))
	if err != nil {
		env.t.Fatalf("originate loan: %v", err)
	}
	return loan
}

func TestOriginationDebitsDeskAndAccruesFee(t *testing.T) {
	env := newTestEnv(t)
	desk := env.createDesk(10_000)
	borrowerBefore := env.ledger.balance(testCurrency, env.borrower)

	loan := env.originate(desk.ID, 100, 24)

	stored, err := env.engine.Desk(desk.ID)
	if err != nil {
		t.Fatalf("desk: %v", err)
	}
	if stored.Balance.Cmp(big.NewInt(9_900)) != 0 {
		t.Fatalf("expected desk balance 9900, got %s", stored.Balance)
	}
	if stored.ActiveLoanCount != 1 {
		t.Fatalf("expected 1 active loan, got %d", stored.ActiveLoanCount)
	}

	// 200 bps of 100 is a fee of 2; the borrower receives 98.
	fees, err := env.engine.AccumulatedFees(testCurrency)
	if err != nil {
		t.Fatalf("fees: %v", err)
	}
	if fees.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected accumulated fees 2, got %s", fees)
	}
	borrowerAfter := env.ledger.balance(testCurrency, env.borrower)
	if new(big.Int).Sub(borrowerAfter, borrowerBefore).Cmp(big.NewInt(98)) != 0 {
		t.Fatalf("expected disbursement 98, got %s", new(big.Int).Sub(borrowerAfter, borrowerBefore))
	}

	if !env.vault.ownerOf("punks", 7).Equal(vaultAddr()) {
		t.Fatalf("collateral not in custody")
	}
	if loan.InterestBps != 200 {
		t.Fatalf("expected interest 200, got %d", loan.InterestBps)
	}
	if loan.Status != LoanStatusActive {
		t.Fatalf("expected active loan, got %s", loan.Status)
	}
}

func TestOriginationValidation(t *testing.T) {
	env := newTestEnv(t)
	desk := env.createDesk(10_000)

	if _, err := env.engine.InitializeNewLoan(env.borrower, 999, "punks", 7, 24, big.NewInt(100)); !errors.Is(err, ErrDeskNotFound) {
		t.Fatalf("expected ErrDeskNotFound, got %v", err)
	}
	if _, err := env.engine.InitializeNewLoan(env.borrower, desk.ID, "apes", 7, 24, big.NewInt(100)); !errors.Is(err, ErrCollectionNotSupported) {
		t.Fatalf("expected ErrCollectionNotSupported, got %v", err)
	}
	if _, err := env.engine.InitializeNewLoan(env.borrower, desk.ID, "punks", 7, 23, big.NewInt(100)); !errors.Is(err, ErrDurationOutOfBounds) {
		t.Fatalf("expected ErrDurationOutOfBounds, got %v", err)
	}
	if _, err := env.engine.InitializeNewLoan(env.borrower, desk.ID, "punks", 7, 241, big.NewInt(100)); !errors.Is(err, ErrDurationOutOfBounds) {
		t.Fatalf("expected ErrDurationOutOfBounds, got %v", err)
	}
	if _, err := env.engine.InitializeNewLoan(env.borrower, desk.ID, "punks", 7, 24, big.NewInt(9)); !errors.Is(err, ErrAmountOutOfBounds) {
		t.Fatalf("expected ErrAmountOutOfBounds, got %v", err)
	}
	if _, err := env.engine.InitializeNewLoan(env.borrower, desk.ID, "punks", 7, 24, big.NewInt(10_001)); !errors.Is(err, ErrAmountOutOfBounds) {
		t.Fatalf("expected ErrAmountOutOfBounds, got %v", err)
	}

	// Boundary values succeed.
	env.originate(desk.ID, 10, 24)
}

func TestOriginationInsufficientDeskBalance(t *testing.T) {
	env := newTestEnv(t)
	desk := env.createDesk(1_000)
	env.originate(desk.ID, 20, 24)

	if err := env.engine.WithdrawLiquidity(env.lender, desk.ID, big.NewInt(990)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := env.engine.WithdrawLiquidity(env.lender, desk.ID, big.NewInt(970)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	env.vault.register("punks", 8, env.borrower)
	if _, err := env.engine.InitializeNewLoan(env.borrower, desk.ID, "punks", 8, 24, big.NewInt(20)); !errors.Is(err, ErrInsufficientDeskBalance) {
		t.Fatalf("expected ErrInsufficientDeskBalance, got %v", err)
	}
}

func TestOriginationRollsBackCustodyOnDisbursementFailure(t *testing.T) {
	env := newTestEnv(t)
	desk := env.createDesk(10_000)

	env.ledger.failNext = errors.New("bank: insufficient balance")
	if _, err := env.engine.InitializeNewLoan(env.borrower, desk.ID, "punks", 7, 24, big.NewInt(100)); err == nil {
		t.Fatalf("expected disbursement failure")
	}
	if !env.vault.ownerOf("punks", 7).Equal(env.borrower) {
		t.Fatalf("collateral not returned after failed origination")
	}
	stored, _ := env.engine.Desk(desk.ID)
	if stored.Balance.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("desk balance mutated on failed origination: %s", stored.Balance)
	}
}

func TestPullsRequireVaultAllowance(t *testing.T) {
	env := newTestEnv(t)

	// Desk funding pulls from the owner and must fail without an allowance.
	env.ledger.approve(testCurrency, env.lender, vaultAddr(), 0)
	if _, err := env.engine.CreateLendingDesk(env.lender, testCurrency, big.NewInt(10_000), []*LoanConfig{defaultConfig()}); err == nil {
		t.Fatalf("expected funding failure without allowance")
	}
	if len(env.state.desks) != 0 {
		t.Fatalf("desk persisted after failed funding")
	}
	if env.ledger.balance(testCurrency, env.lender).Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("lender debited without allowance: %s", env.ledger.balance(testCurrency, env.lender))
	}

	// Each pull consumes allowance, so a deposit beyond the approved amount
	// fails and leaves the desk untouched.
	env.ledger.approve(testCurrency, env.lender, vaultAddr(), 10_000)
	desk := env.createDesk(10_000)
	if err := env.engine.AddLiquidity(env.lender, desk.ID, big.NewInt(1)); err == nil {
		t.Fatalf("expected deposit failure with exhausted allowance")
	}
	stored, _ := env.engine.Desk(desk.ID)
	if stored.Balance.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("desk balance mutated on failed deposit: %s", stored.Balance)
	}

	// Repayment is a pull from the borrower.
	loan := env.originate(desk.ID, 100, 24)
	env.ledger.approve(testCurrency, env.borrower, vaultAddr(), 0)
	if _, err := env.engine.MakeLoanPayment(env.borrower, loan.ID, big.NewInt(10), false); err == nil {
		t.Fatalf("expected payment failure without allowance")
	}
	storedLoan, _ := env.engine.Loan(loan.ID)
	if storedLoan.AmountPaidBack.Sign() != 0 {
		t.Fatalf("payment recorded without allowance")
	}
}

func TestLoanAmountDueAccrual(t *testing.T) {
	env := newTestEnv(t)
	cfg := defaultConfig()
	cfg.MinInterest = 1_000
	cfg.MaxInterest = 1_000
	cfg.MaxDuration = 1_000
	desk := env.createDesk(50_000, cfg)
	loan := env.originate(desk.ID, 10_000, 100)

	due, err := env.engine.LoanAmountDue(loan.ID)
	if err != nil {
		t.Fatalf("amount due: %v", err)
	}
	if due.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("expected due 10000 at origination, got %s", due)
	}

	env.advance(50 * time.Hour)
	due, _ = env.engine.LoanAmountDue(loan.ID)
	if due.Cmp(big.NewInt(10_500)) != 0 {
		t.Fatalf("expected due 10500 at half duration, got %s", due)
	}

	env.advance(50 * time.Hour)
	due, _ = env.engine.LoanAmountDue(loan.ID)
	if due.Cmp(big.NewInt(11_000)) != 0 {
		t.Fatalf("expected due 11000 at full duration, got %s", due)
	}

	// Interest caps at the full duration.
	env.advance(500 * time.Hour)
	due, _ = env.engine.LoanAmountDue(loan.ID)
	if due.Cmp(big.NewInt(11_000)) != 0 {
		t.Fatalf("expected due capped at 11000, got %s", due)
	}
}

func TestPaymentResolvesLoan(t *testing.T) {
	env := newTestEnv(t)
	cfg := defaultConfig()
	cfg.MinInterest = 1_000
	cfg.MaxInterest = 1_000
	desk := env.createDesk(50_000, cfg)
	loan := env.originate(desk.ID, 10_000, 100)

	env.advance(50 * time.Hour)
	resolved, err := env.engine.MakeLoanPayment(env.borrower, loan.ID, big.NewInt(500), false)
	if err != nil {
		t.Fatalf("partial payment: %v", err)
	}
	if resolved {
		t.Fatalf("partial payment should not resolve")
	}

	due, _ := env.engine.LoanAmountDue(loan.ID)
	resolved, err = env.engine.MakeLoanPayment(env.borrower, loan.ID, due, false)
	if err != nil {
		t.Fatalf("final payment: %v", err)
	}
	if !resolved {
		t.Fatalf("full payment should resolve the loan")
	}

	stored, _ := env.engine.Loan(loan.ID)
	if stored.Status != LoanStatusResolved {
		t.Fatalf("expected resolved loan, got %s", stored.Status)
	}
	if !env.vault.ownerOf("punks", 7).Equal(env.borrower) {
		t.Fatalf("collateral not returned to borrower")
	}
	deskStored, _ := env.engine.Desk(desk.ID)
	if deskStored.ActiveLoanCount != 0 {
		t.Fatalf("active loan count not decremented")
	}
	// Repayments flow back into the desk.
	if deskStored.Balance.Cmp(big.NewInt(50_500)) != 0 {
		t.Fatalf("expected desk balance 50500, got %s", deskStored.Balance)
	}
}

func TestPaymentGuards(t *testing.T) {
	env := newTestEnv(t)
	desk := env.createDesk(50_000)
	loan := env.originate(desk.ID, 10_000, 30)

	if _, err := env.engine.MakeLoanPayment(env.borrower, 999, big.NewInt(1), false); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("expected ErrLoanNotFound, got %v", err)
	}
	if _, err := env.engine.MakeLoanPayment(env.lender, loan.ID, big.NewInt(1), false); !errors.Is(err, ErrCallerIsNotBorrower) {
		t.Fatalf("expected ErrCallerIsNotBorrower, got %v", err)
	}
	due, _ := env.engine.LoanAmountDue(loan.ID)
	over := new(big.Int).Add(due, big.NewInt(1))
	if _, err := env.engine.MakeLoanPayment(env.borrower, loan.ID, over, false); !errors.Is(err, ErrLoanPaymentExceedsDebt) {
		t.Fatalf("expected ErrLoanPaymentExceedsDebt, got %v", err)
	}

	env.advance(31 * time.Hour)
	if _, err := env.engine.MakeLoanPayment(env.borrower, loan.ID, big.NewInt(1), false); !errors.Is(err, ErrLoanHasDefaulted) {
		t.Fatalf("expected ErrLoanHasDefaulted, got %v", err)
	}
}

func TestResolveInFullPaysOutstandingDebt(t *testing.T) {
	env := newTestEnv(t)
	desk := env.createDesk(50_000)
	loan := env.originate(desk.ID, 10_000, 100)

	env.advance(10 * time.Hour)
	resolved, err := env.engine.MakeLoanPayment(env.borrower, loan.ID, nil, true)
	if err != nil {
		t.Fatalf("resolve in full: %v", err)
	}
	if !resolved {
		t.Fatalf("expected resolution")
	}
	stored, _ := env.engine.Loan(loan.ID)
	if stored.Status != LoanStatusResolved {
		t.Fatalf("expected resolved, got %s", stored.Status)
	}
}

func TestLiquidateDefaultedLoan(t *testing.T) {
	env := newTestEnv(t)
	desk := env.createDesk(50_000)
	loan := env.originate(desk.ID, 10_000, 30)

	if err := env.engine.LiquidateDefaultedLoan(env.lender, loan.ID); !errors.Is(err, ErrLoanNotDefaulted) {
		t.Fatalf("expected ErrLoanNotDefaulted, got %v", err)
	}

	env.advance(31 * time.Hour)
	if err := env.engine.LiquidateDefaultedLoan(env.borrower, loan.ID); !errors.Is(err, ErrNotDeskOwner) {
		t.Fatalf("expected ErrNotDeskOwner, got %v", err)
	}
	if err := env.engine.LiquidateDefaultedLoan(env.lender, loan.ID); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	stored, _ := env.engine.Loan(loan.ID)
	if stored.Status != LoanStatusDefaulted {
		t.Fatalf("expected defaulted, got %s", stored.Status)
	}
	if !env.vault.ownerOf("punks", 7).Equal(env.lender) {
		t.Fatalf("collateral not forfeited to desk owner")
	}
	// Desk balance stays reduced; the principal is a sunk loss.
	deskStored, _ := env.engine.Desk(desk.ID)
	if deskStored.Balance.Cmp(big.NewInt(40_000)) != 0 {
		t.Fatalf("expected desk balance 40000, got %s", deskStored.Balance)
	}
	if deskStored.ActiveLoanCount != 0 {
		t.Fatalf("active loan count not decremented")
	}

	if err := env.engine.LiquidateDefaultedLoan(env.lender, loan.ID); !errors.Is(err, ErrLoanIsNotActive) {
		t.Fatalf("expected ErrLoanIsNotActive on repeat, got %v", err)
	}
}
