package lending

import "errors"

// Failure taxonomy surfaced by the engine. Authorization, state-precondition,
// validation, resource and not-found classes are distinct sentinels so the
// RPC layer can map them to status codes.
var (
	ErrNotOwner            = errors.New("lending engine: caller is not the protocol owner")
	ErrNotDeskOwner        = errors.New("lending engine: caller is not the desk owner")
	ErrCallerIsNotBorrower = errors.New("lending engine: caller is not the borrower")

	ErrProtocolPaused   = errors.New("lending engine: protocol is paused")
	ErrDeskNotActive    = errors.New("lending engine: desk is not active")
	ErrDeskDissolved    = errors.New("lending engine: desk is dissolved")
	ErrDeskHasLoans     = errors.New("lending engine: desk has active loans")
	ErrLoanIsNotActive  = errors.New("lending engine: loan is not active")
	ErrLoanHasDefaulted = errors.New("lending engine: loan has defaulted")
	ErrLoanNotDefaulted = errors.New("lending engine: loan has not defaulted")

	ErrInvalidLoanConfigBounds = errors.New("lending engine: loan config bounds invalid")
	ErrDurationOutOfBounds     = errors.New("lending engine: duration out of bounds")
	ErrAmountOutOfBounds       = errors.New("lending engine: amount out of bounds")
	ErrFeeExceedsMaximum       = errors.New("lending engine: origination fee exceeds maximum")
	ErrZeroAddress             = errors.New("lending engine: zero address")
	ErrZeroCurrency            = errors.New("lending engine: currency identifier required")
	ErrInvalidAmount           = errors.New("lending engine: amount must be positive")

	ErrInsufficientDeskBalance = errors.New("lending engine: insufficient desk balance")
	ErrInsufficientBalance     = errors.New("lending engine: withdrawal exceeds desk balance")
	ErrLoanPaymentExceedsDebt  = errors.New("lending engine: payment exceeds outstanding debt")

	ErrDeskNotFound           = errors.New("lending engine: desk not found")
	ErrLoanNotFound           = errors.New("lending engine: loan not found")
	ErrCollectionNotSupported = errors.New("lending engine: collection not supported by desk")
	ErrLoanConfigNotFound     = errors.New("lending engine: loan config not found")

	errNilState           = errors.New("lending engine: state not configured")
	errNilLedger          = errors.New("lending engine: currency ledger not configured")
	errNilVault           = errors.New("lending engine: collateral vault not configured")
	errNotInitialised     = errors.New("lending engine: protocol params not initialised")
	errAlreadyInitialised = errors.New("lending engine: protocol params already initialised")
)
