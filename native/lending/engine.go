package lending

import (
	"math/big"
	"time"

	"nftylend/core/events"
	"nftylend/crypto"
)

const maxOriginationFeeBps = 1_000

// engineState is the slice of ledger state the lending engine needs. Lookups
// return detached copies; writes apply immediately, so every operation runs
// its validation and fallible collaborator calls before the first write.
type engineState interface {
	ProtocolParams() (*ProtocolParams, bool, error)
	PutProtocolParams(*ProtocolParams) error
	Desk(id uint64) (*LendingDesk, bool, error)
	PutDesk(*LendingDesk) error
	NextDeskID() (uint64, error)
	LoanConfig(deskID uint64, collection string) (*LoanConfig, bool, error)
	PutLoanConfig(deskID uint64, cfg *LoanConfig) error
	DeleteLoanConfig(deskID uint64, collection string) error
	DeskLoanConfigs(deskID uint64) ([]*LoanConfig, error)
	Loan(id uint64) (*Loan, bool, error)
	PutLoan(*Loan) error
	NextLoanID() (uint64, error)
	AccumulatedFees(currency string) (*big.Int, error)
	PutAccumulatedFees(currency string, amount *big.Int) error
}

// CurrencyLedger moves fungible currency between accounts. Implemented by the
// bank engine; failures must be all-or-nothing. Pulls from user accounts go
// through TransferFrom with the vault as spender, so they require an explicit
// allowance just as custody holds require operator approval.
type CurrencyLedger interface {
	Transfer(currency string, from, to crypto.Address, amount *big.Int) error
	TransferFrom(currency string, spender, from, to crypto.Address, amount *big.Int) error
}

// CollateralVault takes NFT collateral into custody and releases it again.
// Implemented by the custody engine.
type CollateralVault interface {
	Hold(collection string, nftID uint64, from crypto.Address) error
	Release(collection string, nftID uint64, to crypto.Address) error
}

// Engine implements the desk, loan and protocol-admin state machines. All
// liquidity and fee currency physically sits in a single vault account in the
// bank; desk balances and the per-currency fee pool partition that account.
type Engine struct {
	vault      crypto.Address
	state      engineState
	ledger     CurrencyLedger
	collateral CollateralVault
	emitter    events.Emitter
	nowFunc    func() time.Time
}

// NewEngine creates a lending engine whose vault account is the given
// address. Callers wire state, ledger, collateral and emitter before use.
func NewEngine(vault crypto.Address) *Engine {
	return &Engine{
		vault:   vault,
		emitter: events.NoopEmitter{},
		nowFunc: time.Now,
	}
}

// SetState wires the persistence backend into the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger wires the currency ledger used for deposits and disbursements.
func (e *Engine) SetLedger(ledger CurrencyLedger) { e.ledger = ledger }

// SetCollateral wires the NFT custody collaborator.
func (e *Engine) SetCollateral(vault CollateralVault) { e.collateral = vault }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock, primarily for tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFunc = time.Now
		return
	}
	e.nowFunc = now
}

// VaultAddress returns the bank account holding desk liquidity and fees.
func (e *Engine) VaultAddress() crypto.Address { return e.vault }

func (e *Engine) now() int64 { return e.nowFunc().Unix() }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	if e.collateral == nil {
		return errNilVault
	}
	return nil
}

func (e *Engine) params() (*ProtocolParams, error) {
	params, ok, err := e.state.ProtocolParams()
	if err != nil {
		return nil, err
	}
	if !ok || params == nil {
		return nil, errNotInitialised
	}
	return params, nil
}

// requireUnpaused loads the params and rejects the call while the protocol is
// paused. Every desk and loan mutation goes through it; admin ops do not.
func (e *Engine) requireUnpaused() (*ProtocolParams, error) {
	params, err := e.params()
	if err != nil {
		return nil, err
	}
	if params.Paused {
		return nil, ErrProtocolPaused
	}
	return params, nil
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

// Desk returns a copy of the desk record.
func (e *Engine) Desk(id uint64) (*LendingDesk, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	desk, ok, err := e.state.Desk(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDeskNotFound
	}
	return desk.Clone(), nil
}

// Loan returns a copy of the loan record.
func (e *Engine) Loan(id uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, ok, err := e.state.Loan(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	return loan.Clone(), nil
}

// DeskLoanConfigs returns copies of every config stored for the desk.
func (e *Engine) DeskLoanConfigs(deskID uint64) ([]*LoanConfig, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.Desk(deskID); err != nil {
		return nil, err
	}
	return e.state.DeskLoanConfigs(deskID)
}

// InitializeNewLoan originates a loan against NFT collateral. The desk is
// debited the full principal, the borrower receives the principal minus the
// platform fee, the fee accrues to the per-currency pool, and the collateral
// moves into vault custody.
func (e *Engine) InitializeNewLoan(borrower crypto.Address, deskID uint64, collection string, nftID uint64, duration uint64, amount *big.Int) (*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	params, err := e.requireUnpaused()
	if err != nil {
		return nil, err
	}
	if borrower.IsZero() {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	desk, ok, err := e.state.Desk(deskID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDeskNotFound
	}
	if desk.Status != DeskStatusActive {
		return nil, ErrDeskNotActive
	}
	cfg, ok, err := e.state.LoanConfig(deskID, collection)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCollectionNotSupported
	}
	if duration < cfg.MinDuration || duration > cfg.MaxDuration {
		return nil, ErrDurationOutOfBounds
	}
	if amount.Cmp(cfg.MinAmount) < 0 || amount.Cmp(cfg.MaxAmount) > 0 {
		return nil, ErrAmountOutOfBounds
	}
	if desk.Balance.Cmp(amount) < 0 {
		return nil, ErrInsufficientDeskBalance
	}

	interest := selectInterestRate(cfg, amount, duration)
	fee := originationFee(amount, params.LoanOriginationFeeBps)
	disbursement := new(big.Int).Sub(amount, fee)

	if err := e.collateral.Hold(collection, nftID, borrower); err != nil {
		return nil, err
	}
	if disbursement.Sign() > 0 {
		if err := e.ledger.Transfer(desk.Currency, e.vault, borrower, disbursement); err != nil {
			// Undo the custody hold so the failed origination has no effect.
			_ = e.collateral.Release(collection, nftID, borrower)
			return nil, err
		}
	}

	id, err := e.state.NextLoanID()
	if err != nil {
		return nil, err
	}
	loan := &Loan{
		ID:             id,
		LendingDeskID:  deskID,
		Borrower:       borrower,
		Collection:     collection,
		NftID:          nftID,
		Amount:         new(big.Int).Set(amount),
		Duration:       duration,
		StartTime:      e.now(),
		InterestBps:    interest,
		AmountPaidBack: big.NewInt(0),
		Status:         LoanStatusActive,
	}
	desk.Balance = new(big.Int).Sub(desk.Balance, amount)
	desk.ActiveLoanCount++

	fees, err := e.state.AccumulatedFees(desk.Currency)
	if err != nil {
		return nil, err
	}
	if err := e.state.PutAccumulatedFees(desk.Currency, new(big.Int).Add(fees, fee)); err != nil {
		return nil, err
	}
	if err := e.state.PutDesk(desk); err != nil {
		return nil, err
	}
	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	e.emit(NewLoanInitializedEvent(loan, fee))
	return loan.Clone(), nil
}

// LoanAmountDue returns the outstanding debt on a loan at the current time:
// principal plus linearly accrued interest, capped at the full duration,
// minus the amount already paid back. It never mutates state.
func (e *Engine) LoanAmountDue(loanID uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, ok, err := e.state.Loan(loanID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	return outstandingDebt(loan, e.now()), nil
}

// MakeLoanPayment repays part or all of a loan. Repaid currency flows from
// the borrower back into the desk. When the outstanding debt reaches zero, or
// resolveInFull is set, the loan resolves and the collateral returns to the
// borrower. Payments after expiry are rejected.
func (e *Engine) MakeLoanPayment(caller crypto.Address, loanID uint64, amount *big.Int, resolveInFull bool) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if _, err := e.requireUnpaused(); err != nil {
		return false, err
	}
	loan, ok, err := e.state.Loan(loanID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrLoanNotFound
	}
	if !caller.Equal(loan.Borrower) {
		return false, ErrCallerIsNotBorrower
	}
	now := e.now()
	if isExpired(loan, now) {
		return false, ErrLoanHasDefaulted
	}
	if loan.Status != LoanStatusActive {
		return false, ErrLoanIsNotActive
	}

	due := outstandingDebt(loan, now)
	if resolveInFull {
		amount = due
	}
	if amount == nil || amount.Sign() <= 0 {
		return false, ErrInvalidAmount
	}
	if amount.Cmp(due) > 0 {
		return false, ErrLoanPaymentExceedsDebt
	}

	desk, ok, err := e.state.Desk(loan.LendingDeskID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrDeskNotFound
	}

	if err := e.ledger.TransferFrom(desk.Currency, e.vault, loan.Borrower, e.vault, amount); err != nil {
		return false, err
	}

	loan.AmountPaidBack = new(big.Int).Add(loan.AmountPaidBack, amount)
	desk.Balance = new(big.Int).Add(desk.Balance, amount)

	resolved := amount.Cmp(due) == 0
	if resolved {
		loan.Status = LoanStatusResolved
		if desk.ActiveLoanCount > 0 {
			desk.ActiveLoanCount--
		}
	}
	if err := e.state.PutDesk(desk); err != nil {
		return false, err
	}
	if err := e.state.PutLoan(loan); err != nil {
		return false, err
	}
	if resolved {
		if err := e.collateral.Release(loan.Collection, loan.NftID, loan.Borrower); err != nil {
			return false, err
		}
	}
	e.emit(NewLoanPaymentEvent(loan.ID, amount, resolved))
	return resolved, nil
}

// LiquidateDefaultedLoan marks an expired loan as defaulted and forfeits the
// collateral to the desk owner. The desk balance is not restored; the
// principal is a sunk loss covered by the forfeited collateral.
func (e *Engine) LiquidateDefaultedLoan(caller crypto.Address, loanID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireUnpaused(); err != nil {
		return err
	}
	loan, ok, err := e.state.Loan(loanID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLoanNotFound
	}
	if loan.Status != LoanStatusActive {
		return ErrLoanIsNotActive
	}
	if !isExpired(loan, e.now()) {
		return ErrLoanNotDefaulted
	}
	desk, ok, err := e.state.Desk(loan.LendingDeskID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDeskNotFound
	}
	if !caller.Equal(desk.Owner) {
		return ErrNotDeskOwner
	}

	loan.Status = LoanStatusDefaulted
	if desk.ActiveLoanCount > 0 {
		desk.ActiveLoanCount--
	}
	if err := e.state.PutDesk(desk); err != nil {
		return err
	}
	if err := e.state.PutLoan(loan); err != nil {
		return err
	}
	if err := e.collateral.Release(loan.Collection, loan.NftID, desk.Owner); err != nil {
		return err
	}
	e.emit(NewLoanDefaultedEvent(loan.ID))
	return nil
}
