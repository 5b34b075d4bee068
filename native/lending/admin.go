package lending

import (
	"math/big"

	"nftylend/crypto"
)

// InitializeProtocol writes the singleton params record. It runs exactly once
// at first boot; subsequent calls fail.
func (e *Engine) InitializeProtocol(owner, platformWallet crypto.Address, feeBps uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if owner.IsZero() || platformWallet.IsZero() {
		return ErrZeroAddress
	}
	if feeBps > maxOriginationFeeBps {
		return ErrFeeExceedsMaximum
	}
	if _, ok, err := e.state.ProtocolParams(); err != nil {
		return err
	} else if ok {
		return errAlreadyInitialised
	}
	params := &ProtocolParams{
		Owner:                 owner,
		LoanOriginationFeeBps: feeBps,
		PlatformWallet:        platformWallet,
	}
	if err := e.state.PutProtocolParams(params); err != nil {
		return err
	}
	e.emit(NewProtocolInitializedEvent(params))
	return nil
}

// ProtocolParams returns a copy of the singleton params record.
func (e *Engine) ProtocolParams() (*ProtocolParams, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	params, err := e.params()
	if err != nil {
		return nil, err
	}
	return params.Clone(), nil
}

// AccumulatedFees returns the withdrawable fee pool for a currency.
func (e *Engine) AccumulatedFees(currency string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if currency == "" {
		return nil, ErrZeroCurrency
	}
	return e.state.AccumulatedFees(currency)
}

// requireOwner loads the params and checks the caller is the protocol owner.
// Admin operations stay available while the protocol is paused.
func (e *Engine) requireOwner(caller crypto.Address) (*ProtocolParams, error) {
	params, err := e.params()
	if err != nil {
		return nil, err
	}
	if !caller.Equal(params.Owner) {
		return nil, ErrNotOwner
	}
	return params, nil
}

// SetLoanOriginationFee updates the global fee rate, capped at 10%.
func (e *Engine) SetLoanOriginationFee(caller crypto.Address, bps uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	params, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if bps > maxOriginationFeeBps {
		return ErrFeeExceedsMaximum
	}
	params.LoanOriginationFeeBps = bps
	if err := e.state.PutProtocolParams(params); err != nil {
		return err
	}
	e.emit(NewOriginationFeeSetEvent(bps))
	return nil
}

// SetPaused toggles the global pause gate on desk and loan mutations.
func (e *Engine) SetPaused(caller crypto.Address, paused bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	params, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	params.Paused = paused
	if err := e.state.PutProtocolParams(params); err != nil {
		return err
	}
	if paused {
		e.emit(NewPausedEvent())
	} else {
		e.emit(NewUnpausedEvent())
	}
	return nil
}

// SetPlatformWallet updates the default destination for fee withdrawals.
func (e *Engine) SetPlatformWallet(caller, wallet crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	params, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if wallet.IsZero() {
		return ErrZeroAddress
	}
	params.PlatformWallet = wallet
	if err := e.state.PutProtocolParams(params); err != nil {
		return err
	}
	e.emit(NewPlatformWalletSetEvent(wallet))
	return nil
}

// TransferOwnership hands protocol administration to a new owner.
func (e *Engine) TransferOwnership(caller, newOwner crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	params, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if newOwner.IsZero() {
		return ErrZeroAddress
	}
	previous := params.Owner
	params.Owner = newOwner
	if err := e.state.PutProtocolParams(params); err != nil {
		return err
	}
	e.emit(NewOwnershipTransferredEvent(previous, newOwner))
	return nil
}

// WithdrawPlatformFees drains the accumulated fee pool for each currency to
// the destination. Currencies with a zero pool are skipped, so repeated calls
// are no-ops rather than errors. Returns the amount moved per currency.
func (e *Engine) WithdrawPlatformFees(caller, destination crypto.Address, currencies []string) (map[string]*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	if destination.IsZero() {
		return nil, ErrZeroAddress
	}
	// Validate the whole list and snapshot every pool before the first write,
	// so a bad list element cannot leave the call half-applied. The drains
	// themselves are vault-outbound transfers of amounts the vault is
	// guaranteed to hold, so once validation passes the loop commits cleanly.
	pools := make(map[string]*big.Int, len(currencies))
	for _, currency := range currencies {
		if currency == "" {
			return nil, ErrZeroCurrency
		}
		if _, ok := pools[currency]; ok {
			continue
		}
		fees, err := e.state.AccumulatedFees(currency)
		if err != nil {
			return nil, err
		}
		pools[currency] = fees
	}

	withdrawn := make(map[string]*big.Int, len(pools))
	for _, currency := range currencies {
		if _, done := withdrawn[currency]; done {
			continue
		}
		fees := pools[currency]
		if fees.Sign() <= 0 {
			withdrawn[currency] = big.NewInt(0)
			continue
		}
		if err := e.state.PutAccumulatedFees(currency, big.NewInt(0)); err != nil {
			return nil, err
		}
		if err := e.ledger.Transfer(currency, e.vault, destination, fees); err != nil {
			return nil, err
		}
		withdrawn[currency] = fees
		e.emit(NewPlatformFeesWithdrawnEvent(currency, destination, fees))
	}
	return withdrawn, nil
}
