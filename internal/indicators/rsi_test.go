package indicators

import (
	"errors"
	"testing"
	"time"

	"lowrider-trader/internal/models"
)

func candlesFromCloses(closes []float64) []models.Candle {
	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = models.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1,
		}
	}
	return candles
}

func TestRSIInsufficientData(t *testing.T) {
	r := NewRSI(14)
	if _, err := r.Calculate(candlesFromCloses(make([]float64, 14))); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("got %v, want ErrInsufficientData", err)
	}
}

func TestRSIInvalidPeriod(t *testing.T) {
	r := NewRSI(0)
	if _, err := r.Calculate(candlesFromCloses(make([]float64, 10))); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("got %v, want ErrInvalidPeriod", err)
	}
}

func TestRSIAllGainsIsHundred(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 1.1000 + float64(i)*0.0010
	}
	r := NewRSI(7)
	values, err := r.Calculate(candlesFromCloses(closes))
	if err != nil {
		t.Fatal(err)
	}
	if got := values[len(values)-1]; got != 100 {
		t.Errorf("pure uptrend RSI = %v, want 100", got)
	}
}

func TestRSIAllLossesIsZero(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 1.1000 - float64(i)*0.0010
	}
	r := NewRSI(7)
	values, err := r.Calculate(candlesFromCloses(closes))
	if err != nil {
		t.Fatal(err)
	}
	if got := values[len(values)-1]; got > 1e-9 {
		t.Errorf("pure downtrend RSI = %v, want 0", got)
	}
}

func TestRSIBoundsAndWarmup(t *testing.T) {
	closes := []float64{
		1.1000, 1.1010, 1.0995, 1.1020, 1.1005, 1.0990, 1.1015, 1.1030,
		1.1010, 1.0985, 1.1000, 1.1025, 1.1040, 1.1020, 1.1005,
	}
	r := NewRSI(7)
	values, err := r.Calculate(candlesFromCloses(closes))
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != len(closes) {
		t.Fatalf("values = %d, want one per candle", len(values))
	}
	for i := 0; i < 7; i++ {
		if values[i] != 0 {
			t.Errorf("warmup value [%d] = %v, want 0", i, values[i])
		}
	}
	for i := 7; i < len(values); i++ {
		if values[i] < 0 || values[i] > 100 {
			t.Errorf("RSI [%d] = %v outside [0,100]", i, values[i])
		}
	}
}

func TestRSILastMatchesCalculate(t *testing.T) {
	closes := []float64{
		1.1000, 1.1010, 1.0995, 1.1020, 1.1005, 1.0990, 1.1015, 1.1030, 1.1010,
	}
	r := NewRSI(7)
	values, err := r.Calculate(candlesFromCloses(closes))
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Last(candlesFromCloses(closes)); got != values[len(values)-1] {
		t.Errorf("Last = %v, want %v", got, values[len(values)-1])
	}
}

func TestRSILastReturnsZeroOnShortHistory(t *testing.T) {
	r := NewRSI(7)
	if got := r.Last(candlesFromCloses([]float64{1.1, 1.2})); got != 0 {
		t.Errorf("Last on short history = %v, want 0", got)
	}
}
