package indicator

import (
	"math"
	"testing"
)

func TestSMAMatchesArithmeticMean(t *testing.T) {
	values := []float64{101.5, 99.25, 100.75, 102.125, 98.5, 100.0, 101.0, 99.875}
	got, ok := SMA(values, len(values))
	if !ok {
		t.Fatal("expected SMA to be available over a full window")
	}
	// sum in reverse order: result must agree within 1e-9 relative error
	sum := 0.0
	for i := len(values) - 1; i >= 0; i-- {
		sum += values[i]
	}
	want := sum / float64(len(values))
	if rel := math.Abs(got-want) / want; rel > 1e-9 {
		t.Fatalf("SMA=%v want %v (rel err %v)", got, want, rel)
	}
}

func TestSMAUnavailableBeforeWindowFills(t *testing.T) {
	if _, ok := SMA([]float64{1, 2, 3}, 4); ok {
		t.Fatal("SMA must be unavailable with fewer samples than the period")
	}
	if _, ok := SMA(nil, 1); ok {
		t.Fatal("SMA must be unavailable on an empty series")
	}
	if _, ok := SMA([]float64{1, 2, 3}, 0); ok {
		t.Fatal("SMA must be unavailable for a non-positive period")
	}
}

func TestSMAUsesTrailingWindow(t *testing.T) {
	values := []float64{1000, 1000, 2, 4, 6}
	got, ok := SMA(values, 3)
	if !ok || got != 4 {
		t.Fatalf("SMA(…,3)=%v,%v want 4,true", got, ok)
	}
}

func TestRSIBounds(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	got, ok := RSI(up, 5)
	if !ok || got != 100 {
		t.Fatalf("all-gain RSI=%v,%v want 100", got, ok)
	}
	down := []float64{8, 7, 6, 5, 4, 3, 2, 1}
	got, ok = RSI(down, 5)
	if !ok || got != 0 {
		t.Fatalf("all-loss RSI=%v,%v want 0", got, ok)
	}
	if _, ok := RSI([]float64{1, 2, 3}, 5); ok {
		t.Fatal("RSI must be unavailable with fewer than period+1 samples")
	}
}

func TestTrueRangeSpansGaps(t *testing.T) {
	// gap up: previous close far below the bar's low
	if tr := TrueRange(110, 105, 90); tr != 20 {
		t.Fatalf("TrueRange=%v want 20", tr)
	}
	// no gap: plain high-low range
	if tr := TrueRange(110, 105, 107); tr != 5 {
		t.Fatalf("TrueRange=%v want 5", tr)
	}
}

func TestATR(t *testing.T) {
	highs := []float64{10, 11, 12, 13}
	lows := []float64{9, 10, 11, 12}
	closes := []float64{9.5, 10.5, 11.5, 12.5}
	got, ok := ATR(highs, lows, closes, 3)
	if !ok {
		t.Fatal("ATR should be available with period+1 bars")
	}
	// each TR = max(high-low, high-prevClose, low-prevClose) = 1.5
	if math.Abs(got-1.5) > 1e-12 {
		t.Fatalf("ATR=%v want 1.5", got)
	}
	if _, ok := ATR(highs[:3], lows[:3], closes[:3], 3); ok {
		t.Fatal("ATR must be unavailable without the extra seed bar")
	}
}

func TestStdDevAndBands(t *testing.T) {
	flat := []float64{5, 5, 5, 5}
	sd, ok := StdDev(flat, 4)
	if !ok || sd != 0 {
		t.Fatalf("StdDev=%v,%v want 0,true", sd, ok)
	}
	upper, lower, ok := Bands(flat, 4, 2)
	if !ok || upper != 5 || lower != 5 {
		t.Fatalf("Bands=%v,%v want 5,5", upper, lower)
	}
}

func TestSlope(t *testing.T) {
	values := []float64{100, 101, 102, 103, 110}
	got, ok := Slope(values, 5)
	if !ok || math.Abs(got-0.10) > 1e-12 {
		t.Fatalf("Slope=%v,%v want 0.10", got, ok)
	}
	if _, ok := Slope(values, 6); ok {
		t.Fatal("Slope must be unavailable with a short series")
	}
}
