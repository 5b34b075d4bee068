package bank

import (
	"errors"
	"math/big"

	"nftylend/core/events"
	"nftylend/crypto"
)

var (
	ErrInvalidCurrency       = errors.New("bank: currency identifier required")
	ErrInvalidAmount         = errors.New("bank: amount must be positive")
	ErrZeroAddress           = errors.New("bank: zero address")
	ErrInsufficientBalance   = errors.New("bank: insufficient balance")
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")

	errNilState = errors.New("bank: state not configured")
)

// engineState is the slice of ledger state the bank engine needs. Balances and
// allowances are keyed by currency identifier and raw address bytes.
type engineState interface {
	BankBalance(currency string, addr crypto.Address) (*big.Int, error)
	BankPutBalance(currency string, addr crypto.Address, amount *big.Int) error
	BankAllowance(currency string, owner, spender crypto.Address) (*big.Int, error)
	BankPutAllowance(currency string, owner, spender crypto.Address, amount *big.Int) error
}

// Engine implements the fungible-currency ledger used to fund lending desks
// and disburse loans: per-(currency, address) balances with ERC-20 style
// allowances. Transfers are all-or-nothing.
type Engine struct {
	state   engineState
	emitter events.Emitter
}

// NewEngine creates a bank engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState wires the persistence backend into the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

// BalanceOf returns the balance held by addr in the given currency.
func (e *Engine) BalanceOf(currency string, addr crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if currency == "" {
		return nil, ErrInvalidCurrency
	}
	return e.state.BankBalance(currency, addr)
}

// Allowance returns the amount spender may draw from owner in the currency.
func (e *Engine) Allowance(currency string, owner, spender crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if currency == "" {
		return nil, ErrInvalidCurrency
	}
	return e.state.BankAllowance(currency, owner, spender)
}

// Mint credits newly issued currency to an account. It backs the faucet used
// to seed integration environments and genesis balances.
func (e *Engine) Mint(currency string, to crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if currency == "" {
		return ErrInvalidCurrency
	}
	if to.IsZero() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := e.state.BankBalance(currency, to)
	if err != nil {
		return err
	}
	if err := e.state.BankPutBalance(currency, to, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	e.emit(newMintEvent(currency, to, amount))
	return nil
}

// Approve sets spender's allowance over owner's balance in the currency. A
// zero amount revokes the allowance.
func (e *Engine) Approve(currency string, owner, spender crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if currency == "" {
		return ErrInvalidCurrency
	}
	if owner.IsZero() || spender.IsZero() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := e.state.BankPutAllowance(currency, owner, spender, new(big.Int).Set(amount)); err != nil {
		return err
	}
	e.emit(newApprovalEvent(currency, owner, spender, amount))
	return nil
}

// Transfer moves amount of currency from one account to another.
func (e *Engine) Transfer(currency string, from, to crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.validateTransfer(currency, from, to, amount); err != nil {
		return err
	}
	return e.move(currency, from, to, amount)
}

// TransferFrom moves amount of currency from the owner to the recipient on
// behalf of spender, consuming the owner's allowance. The allowance check
// happens before any balance mutation so a failure has no partial effect.
func (e *Engine) TransferFrom(currency string, spender, from, to crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.validateTransfer(currency, from, to, amount); err != nil {
		return err
	}
	if spender.IsZero() {
		return ErrZeroAddress
	}
	allowance, err := e.state.BankAllowance(currency, from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := e.move(currency, from, to, amount); err != nil {
		return err
	}
	return e.state.BankPutAllowance(currency, from, spender, new(big.Int).Sub(allowance, amount))
}

func (e *Engine) validateTransfer(currency string, from, to crypto.Address, amount *big.Int) error {
	if currency == "" {
		return ErrInvalidCurrency
	}
	if from.IsZero() || to.IsZero() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e *Engine) move(currency string, from, to crypto.Address, amount *big.Int) error {
	fromBalance, err := e.state.BankBalance(currency, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := e.state.BankBalance(currency, to)
	if err != nil {
		return err
	}
	if err := e.state.BankPutBalance(currency, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	if err := e.state.BankPutBalance(currency, to, new(big.Int).Add(toBalance, amount)); err != nil {
		return err
	}
	e.emit(newTransferEvent(currency, from, to, amount))
	return nil
}

func (e *Engine) emit(event bankEvent) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}
