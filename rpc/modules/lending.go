package modules

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nftylend/core/state"
	"nftylend/crypto"
	"nftylend/native/bank"
	"nftylend/native/custody"
	"nftylend/native/lending"
	"nftylend/observability"
)

// LendingModule exposes the lending engine to the RPC transport. A mutex
// serializes mutating calls so every operation runs to completion atomically,
// matching the engine's single-writer discipline.
type LendingModule struct {
	mu      sync.Mutex
	engine  *lending.Engine
	manager *state.Manager
	metrics *observability.LedgerMetrics
}

// NewLendingModule wraps an engine and its state manager.
func NewLendingModule(engine *lending.Engine, manager *state.Manager) *LendingModule {
	return &LendingModule{engine: engine, manager: manager, metrics: observability.Ledger()}
}

func (m *LendingModule) available() *ModuleError {
	if m == nil || m.engine == nil || m.manager == nil {
		return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: CodeServerError, Message: "lending module not available"}
	}
	return nil
}

// DeskResult is the wire representation of a lending desk.
type DeskResult struct {
	ID              uint64 `json:"id"`
	Owner           string `json:"owner"`
	Currency        string `json:"currency"`
	Balance         string `json:"balance"`
	Status          string `json:"status"`
	ActiveLoanCount uint64 `json:"activeLoanCount"`
}

// LoanConfigResult is the wire representation of a per-collection config.
type LoanConfigResult struct {
	Collection  string `json:"collection"`
	IsERC1155   bool   `json:"isErc1155"`
	MinAmount   string `json:"minAmount"`
	MaxAmount   string `json:"maxAmount"`
	MinDuration uint64 `json:"minDuration"`
	MaxDuration uint64 `json:"maxDuration"`
	MinInterest uint64 `json:"minInterest"`
	MaxInterest uint64 `json:"maxInterest"`
}

// LoanResult is the wire representation of a loan.
type LoanResult struct {
	ID             uint64 `json:"id"`
	LendingDeskID  uint64 `json:"lendingDeskId"`
	Borrower       string `json:"borrower"`
	Collection     string `json:"collection"`
	NftID          uint64 `json:"nftId"`
	Amount         string `json:"amount"`
	Duration       uint64 `json:"duration"`
	StartTime      int64  `json:"startTime"`
	InterestBps    uint64 `json:"interestBps"`
	AmountPaidBack string `json:"amountPaidBack"`
	Status         string `json:"status"`
}

// ParamsResult is the wire representation of the protocol params. The vault
// address is included because clients must approve it as currency spender
// (and custody operator) before funding desks or repaying loans.
type ParamsResult struct {
	Owner                 string `json:"owner"`
	Paused                bool   `json:"paused"`
	LoanOriginationFeeBps uint64 `json:"loanOriginationFeeBps"`
	PlatformWallet        string `json:"platformWallet"`
	VaultAddress          string `json:"vaultAddress"`
}

// TxResult carries the synthetic transaction hash of a mutation.
type TxResult struct {
	TxHash string `json:"txHash"`
}

// DeskTxResult extends TxResult with the created desk.
type DeskTxResult struct {
	TxHash string      `json:"txHash"`
	Desk   *DeskResult `json:"desk"`
}

// LoanTxResult extends TxResult with the originated loan.
type LoanTxResult struct {
	TxHash string      `json:"txHash"`
	Loan   *LoanResult `json:"loan"`
}

// PaymentTxResult reports whether a payment resolved the loan.
type PaymentTxResult struct {
	TxHash   string `json:"txHash"`
	Resolved bool   `json:"resolved"`
}

// WithdrawFeesResult maps currency to the amount moved.
type WithdrawFeesResult struct {
	TxHash    string            `json:"txHash"`
	Withdrawn map[string]string `json:"withdrawn"`
}

func deskResult(d *lending.LendingDesk) *DeskResult {
	if d == nil {
		return nil
	}
	return &DeskResult{
		ID:              d.ID,
		Owner:           d.Owner.String(),
		Currency:        d.Currency,
		Balance:         d.Balance.String(),
		Status:          d.Status.String(),
		ActiveLoanCount: d.ActiveLoanCount,
	}
}

func loanConfigResult(c *lending.LoanConfig) *LoanConfigResult {
	if c == nil {
		return nil
	}
	return &LoanConfigResult{
		Collection:  c.Collection,
		IsERC1155:   c.IsERC1155,
		MinAmount:   c.MinAmount.String(),
		MaxAmount:   c.MaxAmount.String(),
		MinDuration: c.MinDuration,
		MaxDuration: c.MaxDuration,
		MinInterest: c.MinInterest,
		MaxInterest: c.MaxInterest,
	}
}

func loanResult(l *lending.Loan) *LoanResult {
	if l == nil {
		return nil
	}
	return &LoanResult{
		ID:             l.ID,
		LendingDeskID:  l.LendingDeskID,
		Borrower:       l.Borrower.String(),
		Collection:     l.Collection,
		NftID:          l.NftID,
		Amount:         l.Amount.String(),
		Duration:       l.Duration,
		StartTime:      l.StartTime,
		InterestBps:    l.InterestBps,
		AmountPaidBack: l.AmountPaidBack.String(),
		Status:         l.Status.String(),
	}
}

// GetProtocolParams returns the singleton admin record.
func (m *LendingModule) GetProtocolParams() (*ParamsResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	params, err := m.engine.ProtocolParams()
	if err != nil {
		return nil, m.wrapError(err)
	}
	return &ParamsResult{
		Owner:                 params.Owner.String(),
		Paused:                params.Paused,
		LoanOriginationFeeBps: params.LoanOriginationFeeBps,
		PlatformWallet:        params.PlatformWallet.String(),
		VaultAddress:          m.engine.VaultAddress().String(),
	}, nil
}

// GetDesk returns one desk by ID.
func (m *LendingModule) GetDesk(id uint64) (*DeskResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	desk, err := m.engine.Desk(id)
	if err != nil {
		return nil, m.wrapError(err)
	}
	return deskResult(desk), nil
}

// ListDesks returns every desk in ascending ID order.
func (m *LendingModule) ListDesks() ([]*DeskResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	desks, err := m.manager.Desks()
	if err != nil {
		return nil, m.wrapError(err)
	}
	out := make([]*DeskResult, 0, len(desks))
	for _, desk := range desks {
		out = append(out, deskResult(desk))
	}
	return out, nil
}

// GetDeskLoanConfigs returns the configs stored for one desk.
func (m *LendingModule) GetDeskLoanConfigs(deskID uint64) ([]*LoanConfigResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	configs, err := m.engine.DeskLoanConfigs(deskID)
	if err != nil {
		return nil, m.wrapError(err)
	}
	out := make([]*LoanConfigResult, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, loanConfigResult(cfg))
	}
	return out, nil
}

// GetLoan returns one loan by ID.
func (m *LendingModule) GetLoan(id uint64) (*LoanResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	loan, err := m.engine.Loan(id)
	if err != nil {
		return nil, m.wrapError(err)
	}
	return loanResult(loan), nil
}

// ListLoans returns every loan, optionally filtered by desk.
func (m *LendingModule) ListLoans(deskID *uint64) ([]*LoanResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	var (
		loans []*lending.Loan
		err   error
	)
	if deskID != nil {
		loans, err = m.manager.DeskLoans(*deskID)
	} else {
		loans, err = m.manager.Loans()
	}
	if err != nil {
		return nil, m.wrapError(err)
	}
	out := make([]*LoanResult, 0, len(loans))
	for _, loan := range loans {
		out = append(out, loanResult(loan))
	}
	return out, nil
}

// GetLoanAmountDue returns the outstanding debt on a loan.
func (m *LendingModule) GetLoanAmountDue(id uint64) (string, *ModuleError) {
	if err := m.available(); err != nil {
		return "", err
	}
	due, err := m.engine.LoanAmountDue(id)
	if err != nil {
		return "", m.wrapError(err)
	}
	return due.String(), nil
}

// GetAccumulatedFees returns the withdrawable fee pool for a currency.
func (m *LendingModule) GetAccumulatedFees(currency string) (string, *ModuleError) {
	if err := m.available(); err != nil {
		return "", err
	}
	fees, err := m.engine.AccumulatedFees(currency)
	if err != nil {
		return "", m.wrapError(err)
	}
	return fees.String(), nil
}

// CreateLendingDesk opens a desk funded by the owner.
func (m *LendingModule) CreateLendingDesk(owner crypto.Address, currency string, initialBalance *big.Int, configs []*lending.LoanConfig) (*DeskTxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	desk, err := m.engine.CreateLendingDesk(owner, currency, initialBalance, configs)
	if err != nil {
		return nil, m.wrapError(err)
	}
	m.metrics.DesksCreated.Inc()
	return &DeskTxResult{
		TxHash: makeTxHash("createDesk", owner.String(), initialBalance),
		Desk:   deskResult(desk),
	}, nil
}

// SetLoanConfigs replaces or inserts desk loan configs.
func (m *LendingModule) SetLoanConfigs(caller crypto.Address, deskID uint64, configs []*lending.LoanConfig) (*TxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.engine.SetLoanConfigs(caller, deskID, configs); err != nil {
		return nil, m.wrapError(err)
	}
	return &TxResult{TxHash: makeTxHash("setLoanConfigs", caller.String(), new(big.Int).SetUint64(deskID))}, nil
}

// RemoveLoanConfig deletes one per-collection config.
func (m *LendingModule) RemoveLoanConfig(caller crypto.Address, deskID uint64, collection string) (*TxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.engine.RemoveLoanConfig(caller, deskID, collection); err != nil {
		return nil, m.wrapError(err)
	}
	return &TxResult{TxHash: makeTxHash("removeLoanConfig", collection, new(big.Int).SetUint64(deskID))}, nil
}

// AddLiquidity deposits currency into a desk.
func (m *LendingModule) AddLiquidity(caller crypto.Address, deskID uint64, amount *big.Int) (*TxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.engine.AddLiquidity(caller, deskID, amount); err != nil {
		return nil, m.wrapError(err)
	}
	return &TxResult{TxHash: makeTxHash("addLiquidity", caller.String(), amount)}, nil
}

// WithdrawLiquidity returns desk currency to the owner.
func (m *LendingModule) WithdrawLiquidity(caller crypto.Address, deskID uint64, amount *big.Int) (*TxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.engine.WithdrawLiquidity(caller, deskID, amount); err != nil {
		return nil, m.wrapError(err)
	}
	return &TxResult{TxHash: makeTxHash("withdrawLiquidity", caller.String(), amount)}, nil
}

// SetDeskState freezes or unfreezes a desk.
func (m *LendingModule) SetDeskState(caller crypto.Address, deskID uint64, freeze bool) (*TxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.engine.SetDeskState(caller, deskID, freeze); err != nil {
		return nil, m.wrapError(err)
	}
	return &TxResult{TxHash: makeTxHash("setDeskState", caller.String(), new(big.Int).SetUint64(deskID))}, nil
}

// DissolveDesk permanently retires a desk.
func (m *LendingModule) DissolveDesk(caller crypto.Address, deskID uint64) (*TxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.engine.DissolveDesk(caller, deskID); err != nil {
		return nil, m.wrapError(err)
	}
	return &TxResult{TxHash: makeTxHash("dissolveDesk", caller.String(), new(big.Int).SetUint64(deskID))}, nil
}

// InitializeNewLoan originates a loan against NFT collateral.
func (m *LendingModule) InitializeNewLoan(borrower crypto.Address, deskID uint64, collection string, nftID uint64, duration uint64, amount *big.Int) (*LoanTxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	loan, err := m.engine.InitializeNewLoan(borrower, deskID, collection, nftID, duration, amount)
	if err != nil {
		return nil, m.wrapError(err)
	}
	m.metrics.Originations.Inc()
	return &LoanTxResult{
		TxHash: makeTxHash("initializeNewLoan", borrower.String(), amount),
		Loan:   loanResult(loan),
	}, nil
}

// MakeLoanPayment repays part or all of a loan.
func (m *LendingModule) MakeLoanPayment(caller crypto.Address, loanID uint64, amount *big.Int, resolveInFull bool) (*PaymentTxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	resolved, err := m.engine.MakeLoanPayment(caller, loanID, amount, resolveInFull)
	if err != nil {
		return nil, m.wrapError(err)
	}
	m.metrics.Payments.Inc()
	return &PaymentTxResult{
		TxHash:   makeTxHash("makeLoanPayment", caller.String(), amount),
		Resolved: resolved,
	}, nil
}

// LiquidateDefaultedLoan forfeits expired collateral to the desk owner.
func (m *LendingModule) LiquidateDefaultedLoan(caller crypto.Address, loanID uint64) (*TxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.engine.LiquidateDefaultedLoan(caller, loanID); err != nil {
		return nil, m.wrapError(err)
	}
	m.metrics.Liquidations.Inc()
	return &TxResult{TxHash: makeTxHash("liquidateDefaultedLoan", caller.String(), new(big.Int).SetUint64(loanID))}, nil
}

// SetLoanOriginationFee updates the global fee rate.
func (m *LendingModule) SetLoanOriginationFee(caller crypto.Address, bps uint64) (*TxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.engine.SetLoanOriginationFee(caller, bps); err != nil {
		return nil, m.wrapError(err)
	}
	return &TxResult{TxHash: makeTxHash("setLoanOriginationFee", caller.String(), new(big.Int).SetUint64(bps))}, nil
}

// SetPaused toggles the global pause gate.
func (m *LendingModule) SetPaused(caller crypto.Address, paused bool) (*TxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.engine.SetPaused(caller, paused); err != nil {
		return nil, m.wrapError(err)
	}
	return &TxResult{TxHash: makeTxHash("setPaused", caller.String(), nil)}, nil
}

// SetPlatformWallet updates the fee withdrawal destination.
func (m *LendingModule) SetPlatformWallet(caller, wallet crypto.Address) (*TxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.engine.SetPlatformWallet(caller, wallet); err != nil {
		return nil, m.wrapError(err)
	}
	return &TxResult{TxHash: makeTxHash("setPlatformWallet", wallet.String(), nil)}, nil
}

// TransferOwnership hands protocol administration to a new owner.
func (m *LendingModule) TransferOwnership(caller, newOwner crypto.Address) (*TxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.engine.TransferOwnership(caller, newOwner); err != nil {
		return nil, m.wrapError(err)
	}
	return &TxResult{TxHash: makeTxHash("transferOwnership", newOwner.String(), nil)}, nil
}

// WithdrawPlatformFees drains accumulated fees per currency.
func (m *LendingModule) WithdrawPlatformFees(caller, destination crypto.Address, currencies []string) (*WithdrawFeesResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	withdrawn, err := m.engine.WithdrawPlatformFees(caller, destination, currencies)
	if err != nil {
		return nil, m.wrapError(err)
	}
	out := make(map[string]string, len(withdrawn))
	for currency, amount := range withdrawn {
		out[currency] = amount.String()
	}
	return &WithdrawFeesResult{
		TxHash:    makeTxHash("withdrawPlatformFees", destination.String(), nil),
		Withdrawn: out,
	}, nil
}

func (m *LendingModule) wrapError(err error) *ModuleError {
	if err == nil {
		return nil
	}
	status := http.StatusInternalServerError
	code := CodeServerError
	switch {
	case errors.Is(err, lending.ErrNotOwner),
		errors.Is(err, lending.ErrNotDeskOwner),
		errors.Is(err, lending.ErrCallerIsNotBorrower):
		status = http.StatusForbidden
		code = CodeUnauthorized
	case errors.Is(err, lending.ErrDeskNotFound),
		errors.Is(err, lending.ErrLoanNotFound),
		errors.Is(err, lending.ErrCollectionNotSupported),
		errors.Is(err, lending.ErrLoanConfigNotFound),
		errors.Is(err, custody.ErrTokenNotFound):
		status = http.StatusNotFound
		code = CodeInvalidParams
	case errors.Is(err, lending.ErrProtocolPaused),
		errors.Is(err, lending.ErrDeskNotActive),
		errors.Is(err, lending.ErrDeskDissolved),
		errors.Is(err, lending.ErrDeskHasLoans),
		errors.Is(err, lending.ErrLoanIsNotActive),
		errors.Is(err, lending.ErrLoanHasDefaulted),
		errors.Is(err, lending.ErrLoanNotDefaulted):
		status = http.StatusConflict
		code = CodeInvalidParams
	case strings.HasPrefix(err.Error(), "lending engine:"),
		errors.Is(err, bank.ErrInsufficientBalance),
		errors.Is(err, bank.ErrInsufficientAllowance),
		errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, bank.ErrZeroAddress),
		errors.Is(err, custody.ErrNotApproved),
		errors.Is(err, custody.ErrNotTokenOwner):
		status = http.StatusBadRequest
		code = CodeInvalidParams
	}
	return &ModuleError{HTTPStatus: status, Code: code, Message: err.Error()}
}

func makeTxHash(kind, primary string, amount *big.Int) string {
	parts := []string{kind, primary}
	if amount != nil {
		parts = append(parts, amount.String())
	}
	parts = append(parts, fmt.Sprintf("%d", time.Now().UTC().UnixNano()))
	payload := strings.Join(parts, "|")
	hash := ethcrypto.Keccak256([]byte(payload))
	return "0x" + hex.EncodeToString(hash)
}
