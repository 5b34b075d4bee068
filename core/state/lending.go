package state

import (
	"fmt"
	"math/big"

	"nftylend/native/lending"
)

type storedDesk struct {
	ID              uint64 `json:"id"`
	Owner           string `json:"owner"`
	Currency        string `json:"currency"`
	Balance         string `json:"balance"`
	Status          uint8  `json:"status"`
	ActiveLoanCount uint64 `json:"activeLoanCount"`
}

type storedLoanConfig struct {
	Collection  string `json:"collection"`
	IsERC1155   bool   `json:"isErc1155"`
	MinAmount   string `json:"minAmount"`
	MaxAmount   string `json:"maxAmount"`
	MinDuration uint64 `json:"minDuration"`
	MaxDuration uint64 `json:"maxDuration"`
	MinInterest uint64 `json:"minInterest"`
	MaxInterest uint64 `json:"maxInterest"`
}

type storedLoan struct {
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
	Status         uint8  `json:"status"`
}

type storedParams struct {
	Owner                 string `json:"owner"`
	Paused                bool   `json:"paused"`
	LoanOriginationFeeBps uint64 `json:"loanOriginationFeeBps"`
	PlatformWallet        string `json:"platformWallet"`
}

func parseAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("state: invalid amount %q", raw)
	}
	return value, nil
}

func formatAmount(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

// ProtocolParams loads the singleton admin record.
func (m *Manager) ProtocolParams() (*lending.ProtocolParams, bool, error) {
	if err := m.ready(); err != nil {
		return nil, false, err
	}
	var stored storedParams
	ok, err := m.getJSON(keyProtocolParams, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	owner, err := decodeAddress(stored.Owner)
	if err != nil {
		return nil, false, err
	}
	wallet, err := decodeAddress(stored.PlatformWallet)
	if err != nil {
		return nil, false, err
	}
	return &lending.ProtocolParams{
		Owner:                 owner,
		Paused:                stored.Paused,
		LoanOriginationFeeBps: stored.LoanOriginationFeeBps,
		PlatformWallet:        wallet,
	}, true, nil
}

// PutProtocolParams persists the singleton admin record.
func (m *Manager) PutProtocolParams(params *lending.ProtocolParams) error {
	if err := m.ready(); err != nil {
		return err
	}
	return m.putJSON(keyProtocolParams, storedParams{
		Owner:                 encodeAddress(params.Owner),
		Paused:                params.Paused,
		LoanOriginationFeeBps: params.LoanOriginationFeeBps,
		PlatformWallet:        encodeAddress(params.PlatformWallet),
	})
}

// Desk loads one desk record by ID.
func (m *Manager) Desk(id uint64) (*lending.LendingDesk, bool, error) {
	if err := m.ready(); err != nil {
		return nil, false, err
	}
	var stored storedDesk
	ok, err := m.getJSON(idKey(prefixDesk, id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	desk, err := deskFromStored(stored)
	if err != nil {
		return nil, false, err
	}
	return desk, true, nil
}

func deskFromStored(stored storedDesk) (*lending.LendingDesk, error) {
	owner, err := decodeAddress(stored.Owner)
	if err != nil {
		return nil, err
	}
	balance, err := parseAmount(stored.Balance)
	if err != nil {
		return nil, err
	}
	return &lending.LendingDesk{
		ID:              stored.ID,
		Owner:           owner,
		Currency:        stored.Currency,
		Balance:         balance,
		Status:          lending.DeskStatus(stored.Status),
		ActiveLoanCount: stored.ActiveLoanCount,
	}, nil
}

// PutDesk persists a desk record.
func (m *Manager) PutDesk(desk *lending.LendingDesk) error {
	if err := m.ready(); err != nil {
		return err
	}
	return m.putJSON(idKey(prefixDesk, desk.ID), storedDesk{
		ID:              desk.ID,
		Owner:           encodeAddress(desk.Owner),
		Currency:        desk.Currency,
		Balance:         formatAmount(desk.Balance),
		Status:          uint8(desk.Status),
		ActiveLoanCount: desk.ActiveLoanCount,
	})
}

// Desks returns every desk in ascending ID order.
func (m *Manager) Desks() ([]*lending.LendingDesk, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var desks []*lending.LendingDesk
	var iterErr error
	err := m.db.IteratePrefix(prefixDesk, func(key, value []byte) bool {
		var stored storedDesk
		if err := decodeJSON(value, &stored); err != nil {
			iterErr = err
			return false
		}
		desk, err := deskFromStored(stored)
		if err != nil {
			iterErr = err
			return false
		}
		desks = append(desks, desk)
		return true
	})
	if err != nil {
		return nil, err
	}
	return desks, iterErr
}

// NextDeskID allocates the next sequential desk ID.
func (m *Manager) NextDeskID() (uint64, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	return m.nextSequence(keyDeskSequence)
}

// LoanConfig loads the config one desk holds for a collection.
func (m *Manager) LoanConfig(deskID uint64, collection string) (*lending.LoanConfig, bool, error) {
	if err := m.ready(); err != nil {
		return nil, false, err
	}
	var stored storedLoanConfig
	ok, err := m.getJSON(loanConfigKey(deskID, collection), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	cfg, err := configFromStored(stored)
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

func loanConfigKey(deskID uint64, collection string) []byte {
	return append(idKey(prefixLoanConfig, deskID), append([]byte("/"), collection...)...)
}

func configFromStored(stored storedLoanConfig) (*lending.LoanConfig, error) {
	minAmount, err := parseAmount(stored.MinAmount)
	if err != nil {
		return nil, err
	}
	maxAmount, err := parseAmount(stored.MaxAmount)
	if err != nil {
		return nil, err
	}
	return &lending.LoanConfig{
		Collection:  stored.Collection,
		IsERC1155:   stored.IsERC1155,
		MinAmount:   minAmount,
		MaxAmount:   maxAmount,
		MinDuration: stored.MinDuration,
		MaxDuration: stored.MaxDuration,
		MinInterest: stored.MinInterest,
		MaxInterest: stored.MaxInterest,
	}, nil
}

// PutLoanConfig persists a per-collection config.
func (m *Manager) PutLoanConfig(deskID uint64, cfg *lending.LoanConfig) error {
	if err := m.ready(); err != nil {
		return err
	}
	return m.putJSON(loanConfigKey(deskID, cfg.Collection), storedLoanConfig{
		Collection:  cfg.Collection,
		IsERC1155:   cfg.IsERC1155,
		MinAmount:   formatAmount(cfg.MinAmount),
		MaxAmount:   formatAmount(cfg.MaxAmount),
		MinDuration: cfg.MinDuration,
		MaxDuration: cfg.MaxDuration,
		MinInterest: cfg.MinInterest,
		MaxInterest: cfg.MaxInterest,
	})
}

// DeleteLoanConfig removes a per-collection config.
func (m *Manager) DeleteLoanConfig(deskID uint64, collection string) error {
	if err := m.ready(); err != nil {
		return err
	}
	return m.db.Delete(loanConfigKey(deskID, collection))
}

// DeskLoanConfigs returns every config stored for a desk.
func (m *Manager) DeskLoanConfigs(deskID uint64) ([]*lending.LoanConfig, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	prefix := append(idKey(prefixLoanConfig, deskID), '/')
	var configs []*lending.LoanConfig
	var iterErr error
	err := m.db.IteratePrefix(prefix, func(key, value []byte) bool {
		var stored storedLoanConfig
		if err := decodeJSON(value, &stored); err != nil {
			iterErr = err
			return false
		}
		cfg, err := configFromStored(stored)
		if err != nil {
			iterErr = err
			return false
		}
		configs = append(configs, cfg)
		return true
	})
	if err != nil {
		return nil, err
	}
	return configs, iterErr
}

// Loan loads one loan record by ID.
func (m *Manager) Loan(id uint64) (*lending.Loan, bool, error) {
	if err := m.ready(); err != nil {
		return nil, false, err
	}
	var stored storedLoan
	ok, err := m.getJSON(idKey(prefixLoan, id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	loan, err := loanFromStored(stored)
	if err != nil {
		return nil, false, err
	}
	return loan, true, nil
}

func loanFromStored(stored storedLoan) (*lending.Loan, error) {
	borrower, err := decodeAddress(stored.Borrower)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(stored.Amount)
	if err != nil {
		return nil, err
	}
	paidBack, err := parseAmount(stored.AmountPaidBack)
	if err != nil {
		return nil, err
	}
	return &lending.Loan{
		ID:             stored.ID,
		LendingDeskID:  stored.LendingDeskID,
		Borrower:       borrower,
		Collection:     stored.Collection,
		NftID:          stored.NftID,
		Amount:         amount,
		Duration:       stored.Duration,
		StartTime:      stored.StartTime,
		InterestBps:    stored.InterestBps,
		AmountPaidBack: paidBack,
		Status:         lending.LoanStatus(stored.Status),
	}, nil
}

// PutLoan persists a loan record.
func (m *Manager) PutLoan(loan *lending.Loan) error {
	if err := m.ready(); err != nil {
		return err
	}
	return m.putJSON(idKey(prefixLoan, loan.ID), storedLoan{
		ID:             loan.ID,
		LendingDeskID:  loan.LendingDeskID,
		Borrower:       encodeAddress(loan.Borrower),
		Collection:     loan.Collection,
		NftID:          loan.NftID,
		Amount:         formatAmount(loan.Amount),
		Duration:       loan.Duration,
		StartTime:      loan.StartTime,
		InterestBps:    loan.InterestBps,
		AmountPaidBack: formatAmount(loan.AmountPaidBack),
		Status:         uint8(loan.Status),
	})
}

// Loans returns every loan in ascending ID order.
func (m *Manager) Loans() ([]*lending.Loan, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var loans []*lending.Loan
	var iterErr error
	err := m.db.IteratePrefix(prefixLoan, func(key, value []byte) bool {
		var stored storedLoan
		if err := decodeJSON(value, &stored); err != nil {
			iterErr = err
			return false
		}
		loan, err := loanFromStored(stored)
		if err != nil {
			iterErr = err
			return false
		}
		loans = append(loans, loan)
		return true
	})
	if err != nil {
		return nil, err
	}
	return loans, iterErr
}

// DeskLoans returns every loan originated against one desk.
func (m *Manager) DeskLoans(deskID uint64) ([]*lending.Loan, error) {
	loans, err := m.Loans()
	if err != nil {
		return nil, err
	}
	filtered := loans[:0]
	for _, loan := range loans {
		if loan.LendingDeskID == deskID {
			filtered = append(filtered, loan)
		}
	}
	return filtered, nil
}

// NextLoanID allocates the next sequential loan ID.
func (m *Manager) NextLoanID() (uint64, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	return m.nextSequence(keyLoanSequence)
}

// AccumulatedFees loads the withdrawable fee pool for a currency.
func (m *Manager) AccumulatedFees(currency string) (*big.Int, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var stored string
	ok, err := m.getJSON(joinKey(prefixFees, currency), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return parseAmount(stored)
}

// PutAccumulatedFees persists the fee pool for a currency.
func (m *Manager) PutAccumulatedFees(currency string, amount *big.Int) error {
	if err := m.ready(); err != nil {
		return err
	}
	return m.putJSON(joinKey(prefixFees, currency), formatAmount(amount))
}
