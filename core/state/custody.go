package state

import (
	"strconv"

	"nftylend/crypto"
)

func custodyTokenKey(collection string, nftID uint64) []byte {
	return joinKey(prefixCustodyToken, collection, strconv.FormatUint(nftID, 10))
}

func custodyApprovalKey(owner, operator crypto.Address) []byte {
	return joinKey(prefixCustodyOp, encodeAddress(owner), encodeAddress(operator))
}

// CustodyOwner loads the recorded owner of a token.
func (m *Manager) CustodyOwner(collection string, nftID uint64) (crypto.Address, bool, error) {
	if err := m.ready(); err != nil {
		return crypto.Address{}, false, err
	}
	var stored string
	ok, err := m.getJSON(custodyTokenKey(collection, nftID), &stored)
	if err != nil || !ok {
		return crypto.Address{}, false, err
	}
	owner, err := decodeAddress(stored)
	if err != nil {
		return crypto.Address{}, false, err
	}
	return owner, true, nil
}

// CustodyPutOwner persists token ownership.
func (m *Manager) CustodyPutOwner(collection string, nftID uint64, owner crypto.Address) error {
	if err := m.ready(); err != nil {
		return err
	}
	return m.putJSON(custodyTokenKey(collection, nftID), encodeAddress(owner))
}

// CustodyOperatorApproved reports whether the operator may move the owner's
// tokens into custody.
func (m *Manager) CustodyOperatorApproved(owner, operator crypto.Address) (bool, error) {
	if err := m.ready(); err != nil {
		return false, err
	}
	var stored bool
	ok, err := m.getJSON(custodyApprovalKey(owner, operator), &stored)
	if err != nil || !ok {
		return false, err
	}
	return stored, nil
}

// CustodyPutOperatorApproval persists an operator approval flag.
func (m *Manager) CustodyPutOperatorApproval(owner, operator crypto.Address, approved bool) error {
	if err := m.ready(); err != nil {
		return err
	}
	return m.putJSON(custodyApprovalKey(owner, operator), approved)
}
