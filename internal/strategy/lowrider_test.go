package strategy

import (
	"testing"
	"time"

	"lowrider-trader/internal/models"
)

func testConfig() Config {
	return Config{
		RSIPeriod:       7,
		OversoldLevel:   30,
		RungSpacingPips: 1.0,
		TPTargetPips:    1.3,
		LotSize:         0.01,
		MaxLadderDepth:  10,
		Instrument:      models.EURUSD,
	}
}

// candlesWithCloses builds a flat series whose closes drive RSI.
func candlesWithCloses(closes []float64) []models.Candle {
	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = models.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c + 0.0001,
			Low:       c - 0.0001,
			Close:     c,
			Volume:    1,
		}
	}
	return candles
}

// fallingThenTick produces a close series that drives RSI deep oversold
// and then ticks up on the final bar.
func fallingThenTick(n int) []float64 {
	closes := make([]float64, n)
	price := 1.1100
	for i := 0; i < n-1; i++ {
		closes[i] = price
		price -= 0.0005
	}
	closes[n-1] = closes[n-2] + 0.0002
	return closes
}

// falling produces a strictly falling close series.
func falling(n int) []float64 {
	closes := make([]float64, n)
	price := 1.1100
	for i := 0; i < n; i++ {
		closes[i] = price
		price -= 0.0005
	}
	return closes
}

func TestEntrySignalFiresOnDipThenCurl(t *testing.T) {
	s := New(testConfig())

	fired, prev, cur := s.EntrySignal(candlesWithCloses(fallingThenTick(30)))
	if !fired {
		t.Fatalf("signal should fire after oversold recovery (prev=%v cur=%v)", prev, cur)
	}
	if prev > 30 {
		t.Errorf("previous RSI should be oversold, got %v", prev)
	}
	if cur <= prev {
		t.Errorf("current RSI should exceed previous, got prev=%v cur=%v", prev, cur)
	}
}

func TestEntrySignalHoldsWhileStillFalling(t *testing.T) {
	s := New(testConfig())

	if fired, prev, cur := s.EntrySignal(candlesWithCloses(falling(30))); fired {
		t.Fatalf("no curl, no signal (prev=%v cur=%v)", prev, cur)
	}
}

func TestEntrySignalHoldsWhenNeverOversold(t *testing.T) {
	s := New(testConfig())

	// Gentle rise: RSI stays high, the final tick up must not fire
	closes := make([]float64, 30)
	price := 1.1000
	for i := range closes {
		closes[i] = price
		price += 0.0002
	}
	if fired, prev, _ := s.EntrySignal(candlesWithCloses(closes)); fired {
		t.Fatalf("prev RSI %v never oversold, signal must hold", prev)
	}
}

func TestEntrySignalInsufficientData(t *testing.T) {
	s := New(testConfig())
	if fired, _, _ := s.EntrySignal(candlesWithCloses([]float64{1.1, 1.2})); fired {
		t.Fatal("too little history must not fire")
	}
}

func TestRungAtLaddersDownFromAnchor(t *testing.T) {
	s := New(testConfig())
	anchor := 1.1000

	for depth := 1; depth < 5; depth++ {
		rung := s.RungAt(anchor, depth)
		wantEntry := anchor - float64(depth)*0.0001
		if diff := rung.EntryPrice - wantEntry; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("depth %d entry = %v, want %v", depth, rung.EntryPrice, wantEntry)
		}
		wantTP := rung.EntryPrice + 0.00013
		if diff := rung.TPPrice - wantTP; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("depth %d tp = %v, want %v", depth, rung.TPPrice, wantTP)
		}
	}
}

func TestEvaluateOpensAnchorOnSignal(t *testing.T) {
	s := New(testConfig())
	candles := candlesWithCloses(fallingThenTick(30))

	d := s.Evaluate(candles, nil)
	if d.Action != ActionOpenAnchor {
		t.Fatalf("action = %v, want OPEN_ANCHOR", d.Action)
	}
	if d.Anchor == nil || d.FirstRung == nil {
		t.Fatal("anchor decision must carry anchor and first rung plans")
	}
	ref := candles[len(candles)-1].Close
	if d.Anchor.ReferencePrice != ref {
		t.Errorf("anchor reference = %v, want last close %v", d.Anchor.ReferencePrice, ref)
	}
	if d.FirstRung.Depth != 1 {
		t.Errorf("first rung depth = %d, want 1", d.FirstRung.Depth)
	}
	if d.FirstRung.EntryPrice >= ref {
		t.Error("first rung must sit below the anchor")
	}
}

func TestEvaluateNoSignalNoCycle(t *testing.T) {
	s := New(testConfig())
	d := s.Evaluate(candlesWithCloses(falling(30)), nil)
	if d.Action != ActionNone {
		t.Fatalf("action = %v, want NONE", d.Action)
	}
}

func activeCycle(depths ...int) *models.Cycle {
	ts := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	c := &models.Cycle{ID: "c1", Symbol: "EURUSD", StartedAt: ts}
	for _, depth := range depths {
		entry := 1.1000 - float64(depth)*0.0001
		c.Add(&models.Trade{
			ID:            models.FormatPositionTag("t", depth),
			Symbol:        "EURUSD",
			Side:          models.SideBuy,
			ExecutedPrice: entry,
			LadderDepth:   depth,
			OpenTime:      ts,
		})
	}
	return c
}

func TestEvaluateExtendsLadderOneRung(t *testing.T) {
	s := New(testConfig())
	cycle := activeCycle(0, 1)

	d := s.Evaluate(candlesWithCloses(falling(30)), cycle)
	if d.Action != ActionAddRung {
		t.Fatalf("action = %v, want ADD_RUNG", d.Action)
	}
	if d.NextRung.Depth != 2 {
		t.Errorf("next depth = %d, want 2", d.NextRung.Depth)
	}
	wantEntry := 1.1000 - 2*0.0001
	if diff := d.NextRung.EntryPrice - wantEntry; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("next entry = %v, want %v", d.NextRung.EntryPrice, wantEntry)
	}
}

func TestEvaluateHoldsWithPendingOutstanding(t *testing.T) {
	s := New(testConfig())
	cycle := activeCycle(0)
	ts := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	cycle.Add(&models.Trade{
		ID: "p1", Symbol: "EURUSD", Side: models.SideBuy,
		RequestedPrice: 1.0999, LadderDepth: 1, IsPending: true, OpenTime: ts,
	})

	d := s.Evaluate(candlesWithCloses(falling(30)), cycle)
	if d.Action != ActionNone {
		t.Fatalf("one pending max: action = %v, want NONE", d.Action)
	}
}

func TestEvaluateRespectsDepthCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLadderDepth = 3
	s := New(cfg)
	cycle := activeCycle(0, 1, 2)

	d := s.Evaluate(candlesWithCloses(falling(30)), cycle)
	if d.Action != ActionNone {
		t.Fatalf("ladder full: action = %v, want NONE", d.Action)
	}
}

func TestMissingDepths(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLadderDepth = 5
	s := New(cfg)

	missing := s.MissingDepths(activeCycle(0, 2, 4))
	want := []int{1, 3}
	if len(missing) != len(want) {
		t.Fatalf("missing = %v, want %v", missing, want)
	}
	for i := range want {
		if missing[i] != want[i] {
			t.Fatalf("missing = %v, want %v", missing, want)
		}
	}
}
