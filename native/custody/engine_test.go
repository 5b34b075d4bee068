package custody

import (
	"errors"
	"strconv"
	"testing"

	"nftylend/crypto"
)

type mockCustodyState struct {
	owners    map[string]crypto.Address
	approvals map[string]bool
}

func newMockCustodyState() *mockCustodyState {
	return &mockCustodyState{
		owners:    make(map[string]crypto.Address),
		approvals: make(map[string]bool),
	}
}

func tokenKey(collection string, nftID uint64) string {
	return collection + "/" + strconv.FormatUint(nftID, 10)
}

func approvalKey(owner, operator crypto.Address) string {
	return owner.String() + "/" + operator.String()
}

func (m *mockCustodyState) CustodyOwner(collection string, nftID uint64) (crypto.Address, bool, error) {
	owner, ok := m.owners[tokenKey(collection, nftID)]
	return owner, ok, nil
}

func (m *mockCustodyState) CustodyPutOwner(collection string, nftID uint64, owner crypto.Address) error {
	m.owners[tokenKey(collection, nftID)] = owner
	return nil
}

func (m *mockCustodyState) CustodyOperatorApproved(owner, operator crypto.Address) (bool, error) {
	return m.approvals[approvalKey(owner, operator)], nil
}

func (m *mockCustodyState) CustodyPutOperatorApproval(owner, operator crypto.Address, approved bool) error {
	m.approvals[approvalKey(owner, operator)] = approved
	return nil
}

func testAddr(tag byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = tag
	return crypto.NewAddress(crypto.Prefix, raw)
}

func newTestVault(t *testing.T) (*Engine, crypto.Address) {
	t.Helper()
	vault := testAddr(0xff)
	engine := NewEngine(vault)
	engine.SetState(newMockCustodyState())
	return engine, vault
}

func TestHoldRequiresApproval(t *testing.T) {
	engine, _ := newTestVault(t)
	borrower := testAddr(1)

	if err := engine.Register("punks", 7, borrower); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := engine.Hold("punks", 7, borrower)
	if !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
	owner, err := engine.OwnerOf("punks", 7)
	if err != nil {
		t.Fatalf("owner of: %v", err)
	}
	if !owner.Equal(borrower) {
		t.Fatalf("failed hold moved token")
	}
}

func TestHoldAndRelease(t *testing.T) {
	engine, vault := newTestVault(t)
	borrower := testAddr(1)
	lender := testAddr(2)

	if err := engine.Register("punks", 7, borrower); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := engine.SetApproval(borrower, vault, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := engine.Hold("punks", 7, borrower); err != nil {
		t.Fatalf("hold: %v", err)
	}
	owner, _ := engine.OwnerOf("punks", 7)
	if !owner.Equal(vault) {
		t.Fatalf("expected vault custody, owner %s", owner)
	}

	if err := engine.Release("punks", 7, lender); err != nil {
		t.Fatalf("release: %v", err)
	}
	owner, _ = engine.OwnerOf("punks", 7)
	if !owner.Equal(lender) {
		t.Fatalf("expected lender ownership, owner %s", owner)
	}
}

func TestHoldRejectsNonOwner(t *testing.T) {
	engine, vault := newTestVault(t)
	borrower := testAddr(1)
	other := testAddr(2)

	if err := engine.Register("punks", 7, borrower); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := engine.SetApproval(other, vault, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := engine.Hold("punks", 7, other); !errors.Is(err, ErrNotTokenOwner) {
		t.Fatalf("expected ErrNotTokenOwner, got %v", err)
	}
}

func TestReleaseOnlyFromVault(t *testing.T) {
	engine, _ := newTestVault(t)
	borrower := testAddr(1)

	if err := engine.Register("punks", 7, borrower); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := engine.Release("punks", 7, testAddr(3)); !errors.Is(err, ErrNotTokenOwner) {
		t.Fatalf("expected ErrNotTokenOwner, got %v", err)
	}
	if _, err := engine.OwnerOf("punks", 99); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}
