package lending

import (
	"math/big"

	"nftylend/crypto"
)

// CreateLendingDesk opens a desk funded by the owner. The initial balance is
// pulled from the owner's bank account into the vault, which requires the
// owner to have approved the vault as spender; loan configs are validated and
// stored per collection.
func (e *Engine) CreateLendingDesk(owner crypto.Address, currency string, initialBalance *big.Int, configs []*LoanConfig) (*LendingDesk, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := e.requireUnpaused(); err != nil {
		return nil, err
	}
	if owner.IsZero() {
		return nil, ErrZeroAddress
	}
	if currency == "" {
		return nil, ErrZeroCurrency
	}
	if initialBalance == nil || initialBalance.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	if initialBalance.Sign() > 0 {
		if err := e.ledger.TransferFrom(currency, e.vault, owner, e.vault, initialBalance); err != nil {
			return nil, err
		}
	}

	id, err := e.state.NextDeskID()
	if err != nil {
		return nil, err
	}
	desk := &LendingDesk{
		ID:       id,
		Owner:    owner,
		Currency: currency,
		Balance:  new(big.Int).Set(initialBalance),
		Status:   DeskStatusActive,
	}
	if err := e.state.PutDesk(desk); err != nil {
		return nil, err
	}
	for _, cfg := range configs {
		if err := e.state.PutLoanConfig(id, cfg.Clone()); err != nil {
			return nil, err
		}
	}
	e.emit(NewDeskInitializedEvent(desk))
	if len(configs) > 0 {
		e.emit(NewLoanConfigsSetEvent(id, configs))
	}
	return desk.Clone(), nil
}

// loadOwnedDesk fetches a desk and checks caller ownership. Dissolved desks
// are rejected unless allowDissolved is set (final liquidity withdrawal).
func (e *Engine) loadOwnedDesk(caller crypto.Address, deskID uint64, allowDissolved bool) (*LendingDesk, error) {
	desk, ok, err := e.state.Desk(deskID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDeskNotFound
	}
	if !caller.Equal(desk.Owner) {
		return nil, ErrNotDeskOwner
	}
	if desk.Status == DeskStatusDissolved && !allowDissolved {
		return nil, ErrDeskDissolved
	}
	return desk, nil
}

// SetLoanConfigs replaces or inserts per-collection configs on a desk.
func (e *Engine) SetLoanConfigs(caller crypto.Address, deskID uint64, configs []*LoanConfig) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireUnpaused(); err != nil {
		return err
	}
	desk, err := e.loadOwnedDesk(caller, deskID, false)
	if err != nil {
		return err
	}
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	for _, cfg := range configs {
		if err := e.state.PutLoanConfig(desk.ID, cfg.Clone()); err != nil {
			return err
		}
	}
	e.emit(NewLoanConfigsSetEvent(desk.ID, configs))
	return nil
}

// RemoveLoanConfig deletes the config for one collection. Removing an absent
// config is an error, not a silent no-op.
func (e *Engine) RemoveLoanConfig(caller crypto.Address, deskID uint64, collection string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireUnpaused(); err != nil {
		return err
	}
	desk, err := e.loadOwnedDesk(caller, deskID, false)
	if err != nil {
		return err
	}
	_, ok, err := e.state.LoanConfig(desk.ID, collection)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLoanConfigNotFound
	}
	if err := e.state.DeleteLoanConfig(desk.ID, collection); err != nil {
		return err
	}
	e.emit(NewLoanConfigRemovedEvent(desk.ID, collection))
	return nil
}

// AddLiquidity deposits currency from the desk owner into the desk.
func (e *Engine) AddLiquidity(caller crypto.Address, deskID uint64, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireUnpaused(); err != nil {
		return err
	}
	desk, err := e.loadOwnedDesk(caller, deskID, false)
	if err != nil {
		return err
	}
	if desk.Status != DeskStatusActive {
		return ErrDeskNotActive
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := e.ledger.TransferFrom(desk.Currency, e.vault, desk.Owner, e.vault, amount); err != nil {
		return err
	}
	desk.Balance = new(big.Int).Add(desk.Balance, amount)
	if err := e.state.PutDesk(desk); err != nil {
		return err
	}
	e.emit(NewLiquidityAddedEvent(desk, amount))
	return nil
}

// WithdrawLiquidity returns desk currency to the owner. Withdrawal stays
// available on Dissolved desks so the owner can drain the remaining balance.
func (e *Engine) WithdrawLiquidity(caller crypto.Address, deskID uint64, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireUnpaused(); err != nil {
		return err
	}
	desk, err := e.loadOwnedDesk(caller, deskID, true)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if desk.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	desk.Balance = new(big.Int).Sub(desk.Balance, amount)
	if err := e.state.PutDesk(desk); err != nil {
		return err
	}
	if err := e.ledger.Transfer(desk.Currency, e.vault, desk.Owner, amount); err != nil {
		return err
	}
	e.emit(NewLiquidityWithdrawnEvent(desk, amount))
	return nil
}

// SetDeskState toggles a desk between Active and Frozen.
func (e *Engine) SetDeskState(caller crypto.Address, deskID uint64, freeze bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireUnpaused(); err != nil {
		return err
	}
	desk, err := e.loadOwnedDesk(caller, deskID, false)
	if err != nil {
		return err
	}
	if freeze {
		desk.Status = DeskStatusFrozen
	} else {
		desk.Status = DeskStatusActive
	}
	if err := e.state.PutDesk(desk); err != nil {
		return err
	}
	e.emit(NewDeskStateSetEvent(desk))
	return nil
}

// DissolveDesk permanently retires a desk. All loans against it must have
// reached a terminal state first.
func (e *Engine) DissolveDesk(caller crypto.Address, deskID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireUnpaused(); err != nil {
		return err
	}
	desk, err := e.loadOwnedDesk(caller, deskID, false)
	if err != nil {
		return err
	}
	if desk.ActiveLoanCount > 0 {
		return ErrDeskHasLoans
	}
	desk.Status = DeskStatusDissolved
	if err := e.state.PutDesk(desk); err != nil {
		return err
	}
	e.emit(NewDeskDissolvedEvent(desk.ID))
	return nil
}
