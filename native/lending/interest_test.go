package lending

import (
	"math/big"
	"testing"
	"time"
)

func bandConfig() *LoanConfig {
	return &LoanConfig{
		Collection:  "punks",
		MinAmount:   big.NewInt(100),
		MaxAmount:   big.NewInt(200),
		MinDuration: 10,
		MaxDuration: 20,
		MinInterest: 100,
		MaxInterest: 300,
	}
}

func TestSelectInterestRate(t *testing.T) {
	cfg := bandConfig()

	tests := []struct {
		name     string
		amount   int64
		duration uint64
		want     uint64
	}{
		{"band floor", 100, 10, 100},
		{"band ceiling", 200, 20, 300},
		{"midpoint", 150, 15, 200},
		{"amount ceiling only", 200, 10, 200},
		{"duration ceiling only", 100, 20, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectInterestRate(cfg, big.NewInt(tt.amount), tt.duration)
			if got != tt.want {
				t.Fatalf("selectInterestRate(%d, %d) = %d, want %d", tt.amount, tt.duration, got, tt.want)
			}
		})
	}
}

func TestSelectInterestRateDegenerateBands(t *testing.T) {
	cfg := bandConfig()
	cfg.MinInterest = 250
	cfg.MaxInterest = 250
	if got := selectInterestRate(cfg, big.NewInt(150), 15); got != 250 {
		t.Fatalf("expected fixed rate 250, got %d", got)
	}

	cfg = bandConfig()
	cfg.MinAmount = big.NewInt(100)
	cfg.MaxAmount = big.NewInt(100)
	cfg.MinDuration = 10
	cfg.MaxDuration = 10
	// Degenerate bound pairs contribute a zero fraction.
	if got := selectInterestRate(cfg, big.NewInt(100), 10); got != cfg.MinInterest {
		t.Fatalf("expected min interest, got %d", got)
	}
}

func TestSelectInterestRateNeverExceedsMax(t *testing.T) {
	cfg := bandConfig()
	for amount := int64(100); amount <= 200; amount += 7 {
		for duration := uint64(10); duration <= 20; duration++ {
			got := selectInterestRate(cfg, big.NewInt(amount), duration)
			if got < cfg.MinInterest || got > cfg.MaxInterest {
				t.Fatalf("rate %d outside band for amount %d duration %d", got, amount, duration)
			}
		}
	}
}

func TestOriginationFeeFloors(t *testing.T) {
	tests := []struct {
		amount int64
		bps    uint64
		want   int64
	}{
		{10_000, 200, 200},
		{100, 200, 2},
		{99, 200, 1},
		{10, 200, 0},
		{10_000, 0, 0},
	}
	for _, tt := range tests {
		got := originationFee(big.NewInt(tt.amount), tt.bps)
		if got.Cmp(big.NewInt(tt.want)) != 0 {
			t.Fatalf("originationFee(%d, %d) = %s, want %d", tt.amount, tt.bps, got, tt.want)
		}
	}
}

func TestTotalDebtMonotonic(t *testing.T) {
	start := time.Unix(1_700_000_000, 0).Unix()
	loan := &Loan{
		Amount:      big.NewInt(10_000),
		Duration:    100,
		StartTime:   start,
		InterestBps: 1_000,
	}

	previous := big.NewInt(0)
	for hour := int64(0); hour <= 150; hour += 10 {
		due := totalDebt(loan, start+hour*secondsPerHour)
		if due.Cmp(previous) < 0 {
			t.Fatalf("debt decreased at hour %d: %s < %s", hour, due, previous)
		}
		previous = due
	}
	capped := totalDebt(loan, start+1_000*secondsPerHour)
	if capped.Cmp(big.NewInt(11_000)) != 0 {
		t.Fatalf("expected capped debt 11000, got %s", capped)
	}
}

func TestIsExpired(t *testing.T) {
	start := time.Unix(1_700_000_000, 0).Unix()
	loan := &Loan{Duration: 30, StartTime: start}

	if isExpired(loan, start+30*secondsPerHour) {
		t.Fatalf("loan expired exactly at duration boundary")
	}
	if !isExpired(loan, start+30*secondsPerHour+1) {
		t.Fatalf("loan not expired past duration")
	}
}
