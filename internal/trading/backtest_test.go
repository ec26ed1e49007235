package trading

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lowrider-trader/internal/broker"
	"lowrider-trader/internal/models"
	"lowrider-trader/internal/store"
	"lowrider-trader/internal/strategy"
)

var backtestStart = time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

func testStrategy() *strategy.Lowrider {
	return strategy.New(strategy.Config{
		RSIPeriod:       2,
		OversoldLevel:   30,
		RungSpacingPips: 10,
		TPTargetPips:    10,
		LotSize:         0.01,
		MaxLadderDepth:  5,
		Instrument:      models.EURUSD,
	})
}

// flatBars builds one near-flat bar per close, one minute apart.
func flatBars(closes ...float64) []models.Candle {
	candles := make([]models.Candle, len(closes))
	for i, close := range closes {
		candles[i] = models.Candle{
			Timestamp: backtestStart.Add(time.Duration(i) * time.Minute),
			Open:      close,
			High:      close + 0.00005,
			Low:       close - 0.00005,
			Close:     close,
		}
	}
	return candles
}

func eventTypes(events []BacktestEvent) []BacktestEventType {
	types := make([]BacktestEventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func newTestBacktester(t *testing.T) (*Backtester, *broker.BacktestBroker) {
	t.Helper()
	b := broker.NewBacktestBroker(models.EURUSD, 0)
	return NewBacktester(b, testStrategy(), zerolog.Nop(), 0), b
}

func TestRunEmptyHistory(t *testing.T) {
	bt, _ := newTestBacktester(t)
	result, err := bt.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Events) != 0 || len(result.Cycles) != 0 {
		t.Error("empty history must produce an empty result")
	}
}

func TestRunRejectsNonMonotonicBars(t *testing.T) {
	bt, _ := newTestBacktester(t)
	candles := flatBars(1.1000, 1.0990, 1.0980)
	candles[2].Timestamp = candles[1].Timestamp

	if _, err := bt.Run(context.Background(), candles); err == nil {
		t.Fatal("duplicate bar timestamp must fail the run")
	}
}

// A dip-then-curl close sequence opens an anchor plus first rung, the
// rebound takes the anchor profit, and the never-filled rung is cancelled
// when the cycle closes.
func TestRunSingleCycleAnchorOnly(t *testing.T) {
	bt, _ := newTestBacktester(t)
	candles := flatBars(1.1000, 1.0990, 1.0980, 1.0990, 1.1000, 1.1010)

	result, err := bt.Run(context.Background(), candles)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []BacktestEventType{EventAnchor, EventRungAdded, EventTPHit, EventCycleClosed}
	got := eventTypes(result.Events)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}

	anchor := result.Events[0]
	if anchor.Price != 1.0990 {
		t.Errorf("anchor price = %v, want 1.0990", anchor.Price)
	}
	rung := result.Events[1]
	if rung.Depth != 1 || math.Abs(rung.Price-1.0980) > 1e-9 {
		t.Errorf("first rung = depth %d @ %v, want depth 1 @ 1.0980", rung.Depth, rung.Price)
	}

	s := result.Summary
	if s.CyclesClosed != 1 || s.WinningCycles != 1 {
		t.Errorf("cycles closed/winning = %d/%d, want 1/1", s.CyclesClosed, s.WinningCycles)
	}
	if math.Abs(s.TotalPnL-1.00) > 0.01 {
		t.Errorf("total pnl = %v, want 1.00", s.TotalPnL)
	}
	if s.MaxDepthSeen != 1 {
		t.Errorf("max depth = %d, want 1", s.MaxDepthSeen)
	}
	if s.Bars != len(candles) {
		t.Errorf("bars = %d, want %d", s.Bars, len(candles))
	}

	if len(result.Cycles) != 1 {
		t.Fatalf("cycles = %d, want 1", len(result.Cycles))
	}
	cycle := result.Cycles[0]
	if !cycle.Closed() {
		t.Error("cycle must be closed")
	}
	cancelled := cycle.TradeAtDepth(1)
	if cancelled == nil || !cancelled.IsClosed() {
		t.Fatal("never-filled rung must be cancelled at cycle closure")
	}
	if cancelled.RealizedPnL == nil || *cancelled.RealizedPnL != 0 {
		t.Error("cancelled rung must carry zero realized pnl")
	}

	if len(result.Equity) != len(candles) {
		t.Fatalf("equity points = %d, want %d", len(result.Equity), len(candles))
	}
	final := result.Equity[len(result.Equity)-1].Equity
	if math.Abs(final-1.00) > 0.01 {
		t.Errorf("final equity = %v, want 1.00", final)
	}
}

// A deeper pullback fills the first rung, the ladder extends by one
// pending rung, and the rebound takes both profits across two bars.
func TestRunLadderFillsAndExtends(t *testing.T) {
	bt, _ := newTestBacktester(t)
	candles := flatBars(1.1000, 1.0990, 1.0980, 1.0990)
	candles = append(candles,
		models.Candle{
			Timestamp: backtestStart.Add(4 * time.Minute),
			Open:      1.0985, High: 1.0985, Low: 1.0970, Close: 1.0975,
		},
		models.Candle{
			Timestamp: backtestStart.Add(5 * time.Minute),
			Open:      1.0976, High: 1.1005, Low: 1.0975, Close: 1.1000,
		},
		models.Candle{
			Timestamp: backtestStart.Add(6 * time.Minute),
			Open:      1.0998, High: 1.1002, Low: 1.0990, Close: 1.0995,
		},
	)

	result, err := bt.Run(context.Background(), candles)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []BacktestEventType{
		EventAnchor, EventRungAdded, // signal bar
		EventRungFilled, EventRungAdded, // pullback fills rung 1, rung 2 placed
		EventTPHit,                  // rebound takes the anchor
		EventTPHit, EventCycleClosed, // next bar takes rung 1 and ends the cycle
	}
	got := eventTypes(result.Events)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}

	if d := result.Events[2].Depth; d != 1 {
		t.Errorf("filled rung depth = %d, want 1", d)
	}
	if d := result.Events[3].Depth; d != 2 {
		t.Errorf("extended rung depth = %d, want 2", d)
	}
	if d := result.Events[4].Depth; d != 0 {
		t.Errorf("first take-profit depth = %d, want the anchor", d)
	}

	s := result.Summary
	if s.CyclesClosed != 1 {
		t.Fatalf("cycles closed = %d, want 1", s.CyclesClosed)
	}
	if math.Abs(s.TotalPnL-2.00) > 0.01 {
		t.Errorf("total pnl = %v, want 2.00 (anchor and rung 1, ten pips each)", s.TotalPnL)
	}
	if s.MaxDepthSeen != 2 {
		t.Errorf("max depth = %d, want 2", s.MaxDepthSeen)
	}
}

// Only one pending rung may be outstanding, so a cycle whose first rung
// never fills must not extend the ladder.
func TestRunHoldsWhilePendingOutstanding(t *testing.T) {
	bt, b := newTestBacktester(t)
	candles := flatBars(1.1000, 1.0990, 1.0980, 1.0990, 1.0991, 1.0992)

	result, err := bt.Run(context.Background(), candles)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	rungsAdded := 0
	for _, e := range result.Events {
		if e.Type == EventRungAdded {
			rungsAdded++
		}
	}
	if rungsAdded != 1 {
		t.Errorf("rungs added = %d, want 1 while the first rung is pending", rungsAdded)
	}

	cycle, err := b.GetActiveCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cycle == nil || cycle.PendingCount() != 1 {
		t.Error("cycle must still hold one pending rung")
	}
}

func TestWriteJSONRoundTrip(t *testing.T) {
	bt, _ := newTestBacktester(t)
	candles := flatBars(1.1000, 1.0990, 1.0980, 1.0990, 1.1000, 1.1010)

	result, err := bt.Run(context.Background(), candles)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := result.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var decoded BacktestResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Summary.Symbol != "EURUSD" {
		t.Errorf("symbol = %q, want EURUSD", decoded.Summary.Symbol)
	}
	if decoded.Summary.CyclesClosed != result.Summary.CyclesClosed {
		t.Error("summary did not survive the round trip")
	}
}

func TestPersistWritesCyclesAndTrades(t *testing.T) {
	bt, _ := newTestBacktester(t)
	candles := flatBars(1.1000, 1.0990, 1.0980, 1.0990, 1.1000, 1.1010)

	result, err := bt.Run(context.Background(), candles)
	if err != nil {
		t.Fatal(err)
	}

	st := newMemStore()
	if err := result.Persist(context.Background(), st); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if len(st.cycles) != 1 {
		t.Fatalf("cycles persisted = %d, want 1", len(st.cycles))
	}
	rec := st.cycles[0]
	if math.Abs(rec.RealizedPnL-1.00) > 0.01 {
		t.Errorf("persisted pnl = %v, want 1.00", rec.RealizedPnL)
	}
	if len(st.trades) != 2 {
		t.Errorf("trades persisted = %d, want 2", len(st.trades))
	}
}

// memStore is an in-memory DataStore for tests.
type memStore struct {
	candles map[string][]models.Candle
	trades  []*models.Trade
	cycles  []store.CycleRecord
	syncs   map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		candles: map[string][]models.Candle{},
		syncs:   map[string]time.Time{},
	}
}

func (m *memStore) SaveCandles(ctx context.Context, symbol, resolution string, candles []models.Candle) error {
	key := symbol + "/" + resolution
	m.candles[key] = append(m.candles[key], candles...)
	return nil
}

func (m *memStore) GetCandles(ctx context.Context, symbol, resolution string, from, to time.Time) ([]models.Candle, error) {
	return m.candles[symbol+"/"+resolution], nil
}

func (m *memStore) GetCandlesFreshness(ctx context.Context, symbol, resolution string) (time.Time, error) {
	return time.Time{}, nil
}

func (m *memStore) SaveTrade(ctx context.Context, trade *models.Trade) error {
	m.trades = append(m.trades, trade)
	return nil
}

func (m *memStore) GetTrades(ctx context.Context, filter store.TradeFilter) ([]*models.Trade, error) {
	return m.trades, nil
}

func (m *memStore) SaveCycle(ctx context.Context, record store.CycleRecord) error {
	m.cycles = append(m.cycles, record)
	return nil
}

func (m *memStore) GetCycles(ctx context.Context, symbol string, limit int) ([]store.CycleRecord, error) {
	return m.cycles, nil
}

func (m *memStore) GetLastSync(dataType string) time.Time {
	return m.syncs[dataType]
}

func (m *memStore) SetLastSync(dataType string, t time.Time) error {
	m.syncs[dataType] = t
	return nil
}

func (m *memStore) Close() error { return nil }

var _ store.DataStore = (*memStore)(nil)
