package lending

import (
	"math/big"

	"nftylend/crypto"
)

// DeskStatus tracks the lifecycle of a lending desk. Dissolved is terminal.
type DeskStatus uint8

const (
	DeskStatusActive DeskStatus = iota + 1
	DeskStatusFrozen
	DeskStatusDissolved
)

func (s DeskStatus) String() string {
	switch s {
	case DeskStatusActive:
		return "active"
	case DeskStatusFrozen:
		return "frozen"
	case DeskStatusDissolved:
		return "dissolved"
	default:
		return "unknown"
	}
}

// LoanStatus tracks the loan state machine. Resolved and Defaulted are
// terminal; a loan only ever moves Active to Resolved or Active to Defaulted.
type LoanStatus uint8

const (
	LoanStatusActive LoanStatus = iota + 1
	LoanStatusResolved
	LoanStatusDefaulted
)

func (s LoanStatus) String() string {
	switch s {
	case LoanStatusActive:
		return "active"
	case LoanStatusResolved:
		return "resolved"
	case LoanStatusDefaulted:
		return "defaulted"
	default:
		return "unknown"
	}
}

// LendingDesk is a lender-owned pool of a single currency. ActiveLoanCount
// tracks outstanding loans so dissolution can require the pool to be drained
// of obligations first.
type LendingDesk struct {
	ID              uint64
	Owner           crypto.Address
	Currency        string
	Balance         *big.Int
	Status          DeskStatus
	ActiveLoanCount uint64
}

// Clone returns a deep copy of the desk.
func (d *LendingDesk) Clone() *LendingDesk {
	if d == nil {
		return nil
	}
	clone := *d
	if d.Balance != nil {
		clone.Balance = new(big.Int).Set(d.Balance)
	}
	return &clone
}

// LoanConfig describes the loan terms a desk accepts for one NFT collection.
// Durations are in hours, interest in basis points accrued over the full
// loan duration.
type LoanConfig struct {
	Collection  string
	IsERC1155   bool
	MinAmount   *big.Int
	MaxAmount   *big.Int
	MinDuration uint64
	MaxDuration uint64
	MinInterest uint64
	MaxInterest uint64
}

// Clone returns a deep copy of the config.
func (c *LoanConfig) Clone() *LoanConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.MinAmount != nil {
		clone.MinAmount = new(big.Int).Set(c.MinAmount)
	}
	if c.MaxAmount != nil {
		clone.MaxAmount = new(big.Int).Set(c.MaxAmount)
	}
	return &clone
}

// Validate checks structural soundness: collection present, positive amount
// bounds, and min <= max on every bound pair.
func (c *LoanConfig) Validate() error {
	if c == nil {
		return ErrInvalidLoanConfigBounds
	}
	if c.Collection == "" {
		return ErrZeroCurrency
	}
	if c.MinAmount == nil || c.MaxAmount == nil || c.MinAmount.Sign() <= 0 {
		return ErrInvalidLoanConfigBounds
	}
	if c.MinAmount.Cmp(c.MaxAmount) > 0 {
		return ErrInvalidLoanConfigBounds
	}
	if c.MinDuration == 0 || c.MinDuration > c.MaxDuration {
		return ErrInvalidLoanConfigBounds
	}
	if c.MinInterest > c.MaxInterest {
		return ErrInvalidLoanConfigBounds
	}
	return nil
}

// Loan is an originated loan against NFT collateral. All fields except
// AmountPaidBack and Status are immutable after origination.
type Loan struct {
	ID             uint64
	LendingDeskID  uint64
	Borrower       crypto.Address
	Collection     string
	NftID          uint64
	Amount         *big.Int
	Duration       uint64
	StartTime      int64
	InterestBps    uint64
	AmountPaidBack *big.Int
	Status         LoanStatus
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Amount != nil {
		clone.Amount = new(big.Int).Set(l.Amount)
	}
	if l.AmountPaidBack != nil {
		clone.AmountPaidBack = new(big.Int).Set(l.AmountPaidBack)
	}
	return &clone
}

// ProtocolParams is the singleton administrative record. Per-currency
// accumulated fees live alongside it in state rather than inside the struct
// so fee accrual does not rewrite the whole record.
type ProtocolParams struct {
	Owner                 crypto.Address
	Paused                bool
	LoanOriginationFeeBps uint64
	PlatformWallet        crypto.Address
}

// Clone returns a copy of the params.
func (p *ProtocolParams) Clone() *ProtocolParams {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
