package state

import (
	"math/big"

	"nftylend/crypto"
)

func bankBalanceKey(currency string, addr crypto.Address) []byte {
	return joinKey(prefixBankBalance, currency, encodeAddress(addr))
}

func bankAllowanceKey(currency string, owner, spender crypto.Address) []byte {
	return joinKey(prefixBankAllowance, currency, encodeAddress(owner), encodeAddress(spender))
}

// BankBalance loads the balance one address holds in a currency. Absent
// records read as zero.
func (m *Manager) BankBalance(currency string, addr crypto.Address) (*big.Int, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var stored string
	ok, err := m.getJSON(bankBalanceKey(currency, addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return parseAmount(stored)
}

// BankPutBalance persists a balance record.
func (m *Manager) BankPutBalance(currency string, addr crypto.Address, amount *big.Int) error {
	if err := m.ready(); err != nil {
		return err
	}
	return m.putJSON(bankBalanceKey(currency, addr), formatAmount(amount))
}

// BankAllowance loads the allowance a spender holds over an owner's balance.
func (m *Manager) BankAllowance(currency string, owner, spender crypto.Address) (*big.Int, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var stored string
	ok, err := m.getJSON(bankAllowanceKey(currency, owner, spender), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return parseAmount(stored)
}

// BankPutAllowance persists an allowance record.
func (m *Manager) BankPutAllowance(currency string, owner, spender crypto.Address, amount *big.Int) error {
	if err := m.ready(); err != nil {
		return err
	}
	return m.putJSON(bankAllowanceKey(currency, owner, spender), formatAmount(amount))
}
