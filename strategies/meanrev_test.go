package strategies

import (
	"testing"

	"github.com/shopspring/decimal"

	"meanrev-bot/services/market"
)

func barsFrom(closes ...float64) []market.Bar {
	out := make([]market.Bar, len(closes))
	for i, c := range closes {
		d := decimal.NewFromFloat(c)
		out[i] = market.Bar{
			Timestamp: int64(i+1) * 3_600_000,
			Open:      d,
			High:      d,
			Low:       d,
			Close:     d,
			Volume:    decimal.NewFromInt(1),
		}
	}
	return out
}

func flat(price float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func TestHoldWithoutEnoughHistory(t *testing.T) {
	s := NewMeanReversion()
	sig := s.Evaluate(barsFrom(flat(100, 5)...))
	if sig.Direction != Hold || sig.Confidence != 0 || sig.Reasons != nil {
		t.Fatalf("short history: got %+v, want bare HOLD", sig)
	}
}

func TestConstantSeriesNeverSignals(t *testing.T) {
	s := NewMeanReversion()
	bars := barsFrom(flat(100, 60)...)
	for i := s.LookbackWindow; i <= len(bars); i++ {
		if sig := s.Evaluate(bars[:i]); sig.Direction != Hold {
			t.Fatalf("bar %d: constant series produced %v", i, sig.Direction)
		}
	}
}

func TestBuyOnDownDeviation(t *testing.T) {
	s := NewMeanReversion()
	closes := append(flat(100, 19), 94) // ma 99.7, 94 < 99.7*0.99
	sig := s.Evaluate(barsFrom(closes...))
	if sig.Direction != Buy {
		t.Fatalf("got %v, want Buy", sig.Direction)
	}
	if sig.Confidence != 1 {
		t.Fatalf("no filters enabled: confidence %v, want 1", sig.Confidence)
	}
	if sig.Strength != StrengthStrong {
		t.Fatalf("5.7%% deviation graded %v, want strong", sig.Strength)
	}
}

func TestSellOnUpDeviation(t *testing.T) {
	s := NewMeanReversion()
	closes := append(flat(100, 19), 106)
	if sig := s.Evaluate(barsFrom(closes...)); sig.Direction != Sell {
		t.Fatalf("got %v, want Sell", sig.Direction)
	}
}

func TestConfirmationRequiresConsecutiveBars(t *testing.T) {
	s := NewMeanReversion()
	s.ConfirmationBars = 2

	closes := append(flat(100, 19), 94)
	sig := s.Evaluate(barsFrom(closes...))
	if sig.Direction != Hold {
		t.Fatalf("first candidate bar must HOLD, got %v", sig.Direction)
	}
	if sig.Confidence != 0 {
		t.Fatalf("unconfirmed candidate confidence %v, want 0", sig.Confidence)
	}

	closes = append(closes, 94)
	sig = s.Evaluate(barsFrom(closes...))
	if sig.Direction != Buy {
		t.Fatalf("second consecutive candidate must Buy, got %v", sig.Direction)
	}
	if len(sig.Reasons) != 1 || sig.Reasons[0] != FilterConfirmation {
		t.Fatalf("reasons %v, want [confirmation]", sig.Reasons)
	}
}

func TestConfirmationResetOnIntermediateHold(t *testing.T) {
	s := NewMeanReversion()
	s.ConfirmationBars = 2

	closes := append(flat(100, 19), 94)
	s.Evaluate(barsFrom(closes...))

	closes = append(closes, 100) // back inside the band
	if sig := s.Evaluate(barsFrom(closes...)); sig.Direction != Hold {
		t.Fatalf("in-band bar produced %v", sig.Direction)
	}

	closes = append(closes, 93)
	if sig := s.Evaluate(barsFrom(closes...)); sig.Direction != Hold {
		t.Fatal("confirmation must restart after a HOLD bar")
	}
}

func TestConfirmationResetOnDirectionFlip(t *testing.T) {
	s := NewMeanReversion()
	s.ConfirmationBars = 2

	closes := append(flat(100, 19), 94)
	s.Evaluate(barsFrom(closes...))

	closes = append(closes, 110) // flips to a SELL candidate
	if sig := s.Evaluate(barsFrom(closes...)); sig.Direction != Hold {
		t.Fatalf("flipped candidate must restart confirmation, got %v", sig.Direction)
	}
}

func TestMomentumFilterBlocksWithoutOversold(t *testing.T) {
	s := NewMeanReversion()
	s.MomentumEnabled = true
	s.RsiOversold = 0 // RSI of a pure drop is exactly 0, strict compare fails

	closes := append(flat(100, 19), 94)
	sig := s.Evaluate(barsFrom(closes...))
	if sig.Direction != Hold {
		t.Fatalf("got %v, want Hold when momentum fails", sig.Direction)
	}
	if sig.Confidence != 0 {
		t.Fatalf("single failing filter confidence %v, want 0", sig.Confidence)
	}
}

func TestMomentumFilterPassesWhenOversold(t *testing.T) {
	s := NewMeanReversion()
	s.MomentumEnabled = true
	s.RsiOversold = 99 // effectively always oversold

	closes := append(flat(100, 19), 94)
	sig := s.Evaluate(barsFrom(closes...))
	if sig.Direction != Buy {
		t.Fatalf("got %v, want Buy when momentum passes", sig.Direction)
	}
}

func TestVolatilityFilterRequiresRange(t *testing.T) {
	s := NewMeanReversion()
	s.VolatilityEnabled = true
	s.MinATR = 0.5

	// flat bars have zero true range
	closes := append(flat(100, 19), 94)
	if sig := s.Evaluate(barsFrom(closes...)); sig.Direction != Hold {
		t.Fatalf("zero-ATR series produced %v", sig.Direction)
	}
}

func TestConfidenceIsFractionOfEnabledFilters(t *testing.T) {
	s := NewMeanReversion()
	s.MomentumEnabled = true
	s.RsiOversold = 99 // passes
	s.VolatilityEnabled = true
	s.MinATR = 0.5 // fails on flat bars

	closes := append(flat(100, 19), 94)
	sig := s.Evaluate(barsFrom(closes...))
	if sig.Direction != Hold {
		t.Fatalf("mixed filters must HOLD, got %v", sig.Direction)
	}
	if sig.Confidence != 0.5 {
		t.Fatalf("confidence %v, want 0.5", sig.Confidence)
	}
}

func TestSessionWindow(t *testing.T) {
	noon := int64(12 * 3_600_000) // 1970-01-01T12:00Z
	cases := []struct {
		name   string
		w      SessionWindow
		ts     int64
		inside bool
	}{
		{"disabled", SessionWindow{}, noon, true},
		{"whole day", SessionWindow{Enabled: true, StartMinute: 300, EndMinute: 300}, noon, true},
		{"inside", SessionWindow{Enabled: true, StartMinute: 600, EndMinute: 900}, noon, true},
		{"before", SessionWindow{Enabled: true, StartMinute: 780, EndMinute: 900}, noon, false},
		{"end exclusive", SessionWindow{Enabled: true, StartMinute: 600, EndMinute: 720}, noon, false},
		{"wraps midnight in", SessionWindow{Enabled: true, StartMinute: 1380, EndMinute: 120}, int64(3_600_000), true},
		{"wraps midnight out", SessionWindow{Enabled: true, StartMinute: 1380, EndMinute: 120}, noon, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.w.Contains(tc.ts); got != tc.inside {
				t.Fatalf("Contains=%v, want %v", got, tc.inside)
			}
		})
	}
}

func TestSessionFilterGatesSignals(t *testing.T) {
	s := NewMeanReversion()
	s.Session = SessionWindow{Enabled: true, StartMinute: 0, EndMinute: 1}

	closes := append(flat(100, 19), 94)
	bars := barsFrom(closes...) // last bar is 20:00Z, outside the window
	if sig := s.Evaluate(bars); sig.Direction != Hold {
		t.Fatalf("out-of-session candidate produced %v", sig.Direction)
	}
}

func TestResetClearsConfirmation(t *testing.T) {
	s := NewMeanReversion()
	s.ConfirmationBars = 2

	closes := append(flat(100, 19), 94)
	s.Evaluate(barsFrom(closes...))
	s.Reset()

	closes = append(closes, 94)
	if sig := s.Evaluate(barsFrom(closes...)); sig.Direction != Hold {
		t.Fatal("Reset must discard the running confirmation streak")
	}
}
