package modules

import (
	"errors"
	"math/big"
	"net/http"
	"sync"

	"nftylend/crypto"
	"nftylend/native/bank"
	"nftylend/native/custody"
)

// BankModule exposes the currency ledger and collateral custody engines so
// integration flows can fund accounts, grant approvals and inspect balances.
type BankModule struct {
	mu            sync.Mutex
	bank          *bank.Engine
	custody       *custody.Engine
	faucetEnabled bool
}

// NewBankModule wraps the bank and custody engines. The faucet methods are
// rejected unless enabled in configuration.
func NewBankModule(bankEngine *bank.Engine, custodyEngine *custody.Engine, faucetEnabled bool) *BankModule {
	return &BankModule{bank: bankEngine, custody: custodyEngine, faucetEnabled: faucetEnabled}
}

func (m *BankModule) available() *ModuleError {
	if m == nil || m.bank == nil || m.custody == nil {
		return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: CodeServerError, Message: "bank module not available"}
	}
	return nil
}

func (m *BankModule) faucetAllowed() *ModuleError {
	if !m.faucetEnabled {
		return &ModuleError{HTTPStatus: http.StatusForbidden, Code: CodeUnauthorized, Message: "faucet disabled"}
	}
	return nil
}

func (m *BankModule) wrapError(err error) *ModuleError {
	if err == nil {
		return nil
	}
	status := http.StatusBadRequest
	if errors.Is(err, custody.ErrTokenNotFound) {
		status = http.StatusNotFound
	}
	return &ModuleError{HTTPStatus: status, Code: CodeInvalidParams, Message: err.Error()}
}

// BalanceOf returns the balance an address holds in a currency.
func (m *BankModule) BalanceOf(currency string, addr crypto.Address) (string, *ModuleError) {
	if err := m.available(); err != nil {
		return "", err
	}
	balance, err := m.bank.BalanceOf(currency, addr)
	if err != nil {
		return "", m.wrapError(err)
	}
	return balance.String(), nil
}

// Allowance returns the spender's allowance over an owner's balance.
func (m *BankModule) Allowance(currency string, owner, spender crypto.Address) (string, *ModuleError) {
	if err := m.available(); err != nil {
		return "", err
	}
	allowance, err := m.bank.Allowance(currency, owner, spender)
	if err != nil {
		return "", m.wrapError(err)
	}
	return allowance.String(), nil
}

// Approve sets a spender allowance.
func (m *BankModule) Approve(currency string, owner, spender crypto.Address, amount *big.Int) (*TxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bank.Approve(currency, owner, spender, amount); err != nil {
		return nil, m.wrapError(err)
	}
	return &TxResult{TxHash: makeTxHash("bankApprove", owner.String(), amount)}, nil
}

// Transfer moves currency between accounts.
func (m *BankModule) Transfer(currency string, from, to crypto.Address, amount *big.Int) (*TxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bank.Transfer(currency, from, to, amount); err != nil {
		return nil, m.wrapError(err)
	}
	return &TxResult{TxHash: makeTxHash("bankTransfer", from.String(), amount)}, nil
}

// FaucetMint credits newly issued currency to an account.
func (m *BankModule) FaucetMint(currency string, to crypto.Address, amount *big.Int) (*TxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	if err := m.faucetAllowed(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bank.Mint(currency, to, amount); err != nil {
		return nil, m.wrapError(err)
	}
	return &TxResult{TxHash: makeTxHash("bankMint", to.String(), amount)}, nil
}

// OwnerOf returns the recorded owner of a token.
func (m *BankModule) OwnerOf(collection string, nftID uint64) (string, *ModuleError) {
	if err := m.available(); err != nil {
		return "", err
	}
	owner, err := m.custody.OwnerOf(collection, nftID)
	if err != nil {
		return "", m.wrapError(err)
	}
	return owner.String(), nil
}

// SetCollateralApproval grants or revokes the vault operator approval.
func (m *BankModule) SetCollateralApproval(owner crypto.Address, approved bool) (*TxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.custody.SetApproval(owner, m.custody.VaultAddress(), approved); err != nil {
		return nil, m.wrapError(err)
	}
	return &TxResult{TxHash: makeTxHash("custodyApproval", owner.String(), nil)}, nil
}

// FaucetRegisterToken records the initial owner of a token.
func (m *BankModule) FaucetRegisterToken(collection string, nftID uint64, owner crypto.Address) (*TxResult, *ModuleError) {
	if err := m.available(); err != nil {
		return nil, err
	}
	if err := m.faucetAllowed(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.custody.Register(collection, nftID, owner); err != nil {
		return nil, m.wrapError(err)
	}
	return &TxResult{TxHash: makeTxHash("custodyRegister", owner.String(), new(big.Int).SetUint64(nftID))}, nil
}
