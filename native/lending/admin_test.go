package lending

import (
	"errors"
	"math/big"
	"testing"
)

func TestInitializeProtocolRunsOnce(t *testing.T) {
	env := newTestEnv(t)
	err := env.engine.InitializeProtocol(env.admin, env.platform, 100)
	if err == nil {
		t.Fatalf("expected second initialization to fail")
	}
}

func TestSetLoanOriginationFee(t *testing.T) {
	env := newTestEnv(t)

	if err := env.engine.SetLoanOriginationFee(env.lender, 100); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := env.engine.SetLoanOriginationFee(env.admin, 1_001); !errors.Is(err, ErrFeeExceedsMaximum) {
		t.Fatalf("expected ErrFeeExceedsMaximum, got %v", err)
	}
	if err := env.engine.SetLoanOriginationFee(env.admin, 1_000); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	params, err := env.engine.ProtocolParams()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.LoanOriginationFeeBps != 1_000 {
		t.Fatalf("expected fee 1000, got %d", params.LoanOriginationFeeBps)
	}
}

func TestPauseGatesMutations(t *testing.T) {
	env := newTestEnv(t)
	desk := env.createDesk(10_000)

	if err := env.engine.SetPaused(env.admin, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := env.engine.InitializeNewLoan(env.borrower, desk.ID, "punks", 7, 24, big.NewInt(100)); !errors.Is(err, ErrProtocolPaused) {
		t.Fatalf("expected ErrProtocolPaused, got %v", err)
	}
	if err := env.engine.AddLiquidity(env.lender, desk.ID, big.NewInt(1)); !errors.Is(err, ErrProtocolPaused) {
		t.Fatalf("expected ErrProtocolPaused, got %v", err)
	}
	if _, err := env.engine.CreateLendingDesk(env.lender, testCurrency, big.NewInt(1), nil); !errors.Is(err, ErrProtocolPaused) {
		t.Fatalf("expected ErrProtocolPaused, got %v", err)
	}

	// Admin operations stay available while paused.
	if err := env.engine.SetLoanOriginationFee(env.admin, 50); err != nil {
		t.Fatalf("set fee while paused: %v", err)
	}
	if err := env.engine.SetPaused(env.admin, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	env.originate(desk.ID, 100, 24)
}

func TestTransferOwnership(t *testing.T) {
	env := newTestEnv(t)
	next := testAddr(10)

	if err := env.engine.TransferOwnership(env.lender, next); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := env.engine.TransferOwnership(env.admin, next); err != nil {
		t.Fatalf("transfer ownership: %v", err)
	}
	if err := env.engine.SetPaused(env.admin, true); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("previous owner retained control")
	}
	if err := env.engine.SetPaused(next, true); err != nil {
		t.Fatalf("new owner rejected: %v", err)
	}
}

func TestSetPlatformWallet(t *testing.T) {
	env := newTestEnv(t)

	if err := env.engine.SetPlatformWallet(env.admin, testAddr(0)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	next := testAddr(11)
	if err := env.engine.SetPlatformWallet(env.admin, next); err != nil {
		t.Fatalf("set wallet: %v", err)
	}
	params, _ := env.engine.ProtocolParams()
	if !params.PlatformWallet.Equal(next) {
		t.Fatalf("platform wallet not updated")
	}
}

func TestWithdrawPlatformFeesIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	desk := env.createDesk(10_000)
	env.originate(desk.ID, 10_000, 24)

	// 200 bps of 10000 accrues a fee of 200.
	withdrawn, err := env.engine.WithdrawPlatformFees(env.admin, env.platform, []string{testCurrency})
	if err != nil {
		t.Fatalf("withdraw fees: %v", err)
	}
	if withdrawn[testCurrency].Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected 200 withdrawn, got %s", withdrawn[testCurrency])
	}
	if env.ledger.balance(testCurrency, env.platform).Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("platform wallet not credited")
	}

	// A second withdrawal with no accrual moves nothing and does not error.
	withdrawn, err = env.engine.WithdrawPlatformFees(env.admin, env.platform, []string{testCurrency})
	if err != nil {
		t.Fatalf("repeat withdraw: %v", err)
	}
	if withdrawn[testCurrency].Sign() != 0 {
		t.Fatalf("expected zero second withdrawal, got %s", withdrawn[testCurrency])
	}
	if env.ledger.balance(testCurrency, env.platform).Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("platform balance changed on no-op withdrawal")
	}

	if _, err := env.engine.WithdrawPlatformFees(env.lender, env.platform, []string{testCurrency}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestWithdrawPlatformFeesRejectsBadListAtomically(t *testing.T) {
	env := newTestEnv(t)
	desk := env.createDesk(10_000)
	env.originate(desk.ID, 10_000, 24)

	// An invalid currency anywhere in the list fails the whole call; the
	// valid pool before it stays intact.
	if _, err := env.engine.WithdrawPlatformFees(env.admin, env.platform, []string{testCurrency, ""}); !errors.Is(err, ErrZeroCurrency) {
		t.Fatalf("expected ErrZeroCurrency, got %v", err)
	}
	fees, err := env.engine.AccumulatedFees(testCurrency)
	if err != nil {
		t.Fatalf("fees: %v", err)
	}
	if fees.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("fee pool drained by failed withdrawal: %s", fees)
	}
	if env.ledger.balance(testCurrency, env.platform).Sign() != 0 {
		t.Fatalf("platform wallet credited by failed withdrawal")
	}

	// A duplicate currency drains the pool once.
	withdrawn, err := env.engine.WithdrawPlatformFees(env.admin, env.platform, []string{testCurrency, testCurrency})
	if err != nil {
		t.Fatalf("withdraw fees: %v", err)
	}
	if withdrawn[testCurrency].Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected 200 withdrawn, got %s", withdrawn[testCurrency])
	}
	if env.ledger.balance(testCurrency, env.platform).Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected platform balance 200, got %s", env.ledger.balance(testCurrency, env.platform))
	}
}
