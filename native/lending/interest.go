package lending

import "math/big"

var basisPoints = big.NewInt(10_000)

// interpolationScale fixes the precision of the rate-selection fractions.
const interpolationScale = 10_000

const secondsPerHour = 3_600

// originationFee computes the platform's cut of a loan principal, floored.
func originationFee(amount *big.Int, feeBps uint64) *big.Int {
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(feeBps))
	return fee.Quo(fee, basisPoints)
}

// selectInterestRate picks the rate for a new loan deterministically within
// the config band. The requested amount and duration are each normalised to a
// fraction of their config range, the two fractions are averaged, and the
// result scales the band spread:
//
//	rate = min + (max-min) * (amountFrac + durationFrac) / 2
//
// Requests at both band floors pay MinInterest; requests at both ceilings pay
// MaxInterest. A degenerate bound pair (min == max) contributes a zero
// fraction. Division floors, so the selected rate never exceeds MaxInterest.
func selectInterestRate(cfg *LoanConfig, amount *big.Int, duration uint64) uint64 {
	spread := cfg.MaxInterest - cfg.MinInterest
	if spread == 0 {
		return cfg.MinInterest
	}
	amountFrac := amountFraction(cfg, amount)
	durationFrac := durationFraction(cfg, duration)
	bump := new(big.Int).SetUint64(spread)
	bump.Mul(bump, new(big.Int).SetUint64(amountFrac+durationFrac))
	bump.Quo(bump, big.NewInt(2*interpolationScale))
	return cfg.MinInterest + bump.Uint64()
}

func amountFraction(cfg *LoanConfig, amount *big.Int) uint64 {
	span := new(big.Int).Sub(cfg.MaxAmount, cfg.MinAmount)
	if span.Sign() <= 0 {
		return 0
	}
	frac := new(big.Int).Sub(amount, cfg.MinAmount)
	frac.Mul(frac, big.NewInt(interpolationScale))
	frac.Quo(frac, span)
	return frac.Uint64()
}

func durationFraction(cfg *LoanConfig, duration uint64) uint64 {
	span := cfg.MaxDuration - cfg.MinDuration
	if span == 0 {
		return 0
	}
	return (duration - cfg.MinDuration) * interpolationScale / span
}

// totalDebt returns principal plus interest accrued linearly over the loan's
// fixed duration at the given time, capped at the full duration. Interest is
// floored.
func totalDebt(loan *Loan, now int64) *big.Int {
	durationSecs := int64(loan.Duration) * secondsPerHour
	elapsed := now - loan.StartTime
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > durationSecs {
		elapsed = durationSecs
	}
	interest := new(big.Int).Mul(loan.Amount, new(big.Int).SetUint64(loan.InterestBps))
	interest.Mul(interest, big.NewInt(elapsed))
	interest.Quo(interest, new(big.Int).Mul(basisPoints, big.NewInt(durationSecs)))
	return interest.Add(interest, loan.Amount)
}

// outstandingDebt returns totalDebt minus the amount already paid back.
func outstandingDebt(loan *Loan, now int64) *big.Int {
	due := totalDebt(loan, now)
	if loan.AmountPaidBack != nil {
		due.Sub(due, loan.AmountPaidBack)
	}
	if due.Sign() < 0 {
		due.SetInt64(0)
	}
	return due
}

// isExpired reports whether the loan's duration has fully elapsed. Payment
// and liquidation share this predicate so the two paths cannot diverge.
func isExpired(loan *Loan, now int64) bool {
	return now > loan.StartTime+int64(loan.Duration)*secondsPerHour
}
