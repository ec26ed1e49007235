package trading

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lowrider-trader/internal/broker"
	apperrors "lowrider-trader/internal/errors"
	"lowrider-trader/internal/models"
)

// fakeBroker is a scriptable Broker for session tests.
type fakeBroker struct {
	candles []models.Candle
	quote   models.Quote
	spread  float64
	snap    *models.AccountSnapshot
	cycle   *models.Cycle

	marketBuys []float64
	rungs      []fakeRung
	flattened  bool
	nextID     int
	snapFroms  []time.Time
}

type fakeRung struct {
	entry float64
	tp    float64
	depth int
	tag   string
}

func (f *fakeBroker) Instrument() models.Instrument { return models.EURUSD }

func (f *fakeBroker) GetCandlesRange(ctx context.Context, symbol, resolution string, from, to time.Time) ([]models.Candle, error) {
	return f.candles, nil
}

func (f *fakeBroker) GetCurrentQuote(ctx context.Context) (models.Quote, error) {
	return f.quote, nil
}

func (f *fakeBroker) GetCurrentSpread(ctx context.Context) (float64, error) {
	return f.spread, nil
}

func (f *fakeBroker) PlaceMarketBuy(ctx context.Context, lotSize float64, tpPrice *float64) (*models.Trade, error) {
	f.marketBuys = append(f.marketBuys, lotSize)
	f.nextID++
	t := &models.Trade{
		ID:            "m1",
		CycleID:       "cycle-1",
		Symbol:        "EURUSD",
		Side:          models.SideBuy,
		LotSize:       lotSize,
		ExecutedPrice: f.quote.Bid,
		TPPrice:       tpPrice,
	}
	if f.cycle == nil {
		f.cycle = &models.Cycle{ID: "cycle-1", Symbol: "EURUSD"}
	}
	f.cycle.Add(t)
	return t, nil
}

func (f *fakeBroker) PlaceLimitBuy(ctx context.Context, entryPrice, lotSize float64, tpPrice *float64, tag string) (*models.Trade, error) {
	return f.AddRung(ctx, entryPrice, 0, lotSize, models.ParseDepthFromTag(tag), tag)
}

func (f *fakeBroker) AddRung(ctx context.Context, entryPrice, tpPrice, lotSize float64, ladderDepth int, tag string) (*models.Trade, error) {
	f.rungs = append(f.rungs, fakeRung{entry: entryPrice, tp: tpPrice, depth: ladderDepth, tag: tag})
	t := &models.Trade{
		ID:             "r1",
		Symbol:         "EURUSD",
		Side:           models.SideBuy,
		LotSize:        lotSize,
		RequestedPrice: entryPrice,
		ExecutedPrice:  entryPrice,
		TPPrice:        &tpPrice,
		LadderDepth:    ladderDepth,
		IsPending:      true,
		Tag:            tag,
	}
	if f.cycle != nil {
		f.cycle.Add(t)
	}
	return t, nil
}

func (f *fakeBroker) GetAccountSnapshot(ctx context.Context, from, to time.Time) (*models.AccountSnapshot, error) {
	f.snapFroms = append(f.snapFroms, from)
	if f.snap != nil {
		return f.snap, nil
	}
	return &models.AccountSnapshot{}, nil
}

func (f *fakeBroker) GetOpenTrades(ctx context.Context) ([]*models.Trade, error) {
	if f.cycle == nil {
		return nil, nil
	}
	return f.cycle.OpenTrades(), nil
}

func (f *fakeBroker) GetActiveCycle(ctx context.Context) (*models.Cycle, error) {
	return f.cycle, nil
}

func (f *fakeBroker) FlattenAll(ctx context.Context) ([]*models.Trade, error) {
	f.flattened = true
	var out []*models.Trade
	if f.cycle != nil {
		out = f.cycle.Trades
		f.cycle = nil
	}
	return out, nil
}

func (f *fakeBroker) CloseAll(ctx context.Context) (bool, error) {
	_, err := f.FlattenAll(ctx)
	return true, err
}

var _ broker.Broker = (*fakeBroker)(nil)

func newTestSession(f *fakeBroker, st *memStore) *Session {
	s := NewSession(f, testStrategy(), nil, nil, zerolog.Nop(), SessionConfig{
		PollInterval:  time.Minute,
		MaxSpreadPips: 2,
		FetchCount:    10,
		Resolution:    "1m",
	})
	if st != nil {
		s.store = st
	}
	s.candleRetryWait = time.Millisecond
	return s
}

// signalCandles produce a dip-then-curl entry at the last bar.
func signalCandles() []models.Candle {
	return flatBars(1.1000, 1.0990, 1.0980, 1.0990)
}

// quietCandles never leave the oversold dip, so no signal fires.
func quietCandles() []models.Candle {
	return flatBars(1.1010, 1.1005, 1.1000, 1.0995)
}

// activeCycle builds a cycle with filled trades at the given depths from
// a 1.0990 anchor, ten pips apart.
func activeCycle(depths ...int) *models.Cycle {
	c := &models.Cycle{ID: "cycle-1", Symbol: "EURUSD", StartedAt: backtestStart}
	for _, d := range depths {
		c.Add(&models.Trade{
			ID:            "t" + string(rune('a'+d)),
			Symbol:        "EURUSD",
			Side:          models.SideBuy,
			LotSize:       0.01,
			ExecutedPrice: 1.0990 - 0.0010*float64(d),
			LadderDepth:   d,
			IsPending:     false,
		})
	}
	return c
}

func activeSnapshot(c *models.Cycle) *models.AccountSnapshot {
	snap := &models.AccountSnapshot{}
	for _, t := range c.Trades {
		status := models.PositionActive
		if t.IsPending {
			status = models.PositionPending
			snap.NumPendingOrders++
		}
		snap.Positions = append(snap.Positions, models.SnapshotPosition{
			ID:         t.ID,
			Depth:      t.LadderDepth,
			Status:     status,
			EntryPrice: t.ExecutedPrice,
			LotSize:    t.LotSize,
		})
	}
	return snap
}

func TestTickOpensAnchorAndFirstRung(t *testing.T) {
	f := &fakeBroker{
		candles: signalCandles(),
		quote:   models.Quote{Symbol: "EURUSD", Bid: 1.0990, Ask: 1.0991},
	}
	s := newTestSession(f, nil)

	if err := s.Tick(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(f.marketBuys) != 1 {
		t.Fatalf("market buys = %d, want 1", len(f.marketBuys))
	}
	if len(f.rungs) != 1 {
		t.Fatalf("rungs = %d, want 1", len(f.rungs))
	}
	rung := f.rungs[0]
	if rung.depth != 1 {
		t.Errorf("rung depth = %d, want 1", rung.depth)
	}
	if want := models.FormatPositionTag("cycle-1", 1); rung.tag != want {
		t.Errorf("rung tag = %q, want %q", rung.tag, want)
	}
	if s.State() != StateCycleActive {
		t.Errorf("state = %s, want %s", s.State(), StateCycleActive)
	}
}

func TestTickSpreadGateHoldsPlacements(t *testing.T) {
	f := &fakeBroker{
		candles: signalCandles(),
		quote:   models.Quote{Symbol: "EURUSD", Bid: 1.0990, Ask: 1.0995},
		spread:  5,
	}
	s := newTestSession(f, nil)

	if err := s.Tick(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(f.marketBuys) != 0 || len(f.rungs) != 0 {
		t.Error("wide spread must hold all placements")
	}
	if s.State() != StateCycleStarting {
		t.Errorf("state = %s, want %s", s.State(), StateCycleStarting)
	}
}

func TestTickStaleQuoteSkipsRung(t *testing.T) {
	f := &fakeBroker{
		candles: signalCandles(),
		// Bid already below the first rung entry of 1.0980.
		quote: models.Quote{Symbol: "EURUSD", Bid: 1.0970, Ask: 1.0971},
	}
	s := newTestSession(f, nil)

	if err := s.Tick(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(f.marketBuys) != 1 {
		t.Fatalf("market buys = %d, want 1", len(f.marketBuys))
	}
	if len(f.rungs) != 0 {
		t.Error("stale quote must skip the rung placement")
	}
}

func TestTickNoNewCandleSkips(t *testing.T) {
	f := &fakeBroker{
		candles: quietCandles(),
		quote:   models.Quote{Symbol: "EURUSD", Bid: 1.0995, Ask: 1.0996},
	}
	s := newTestSession(f, nil)

	if err := s.Tick(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	// Same bar again: the tick is a clean no-op, not an error.
	if err := s.Tick(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if len(f.marketBuys) != 0 || len(f.rungs) != 0 {
		t.Error("quiet bars must place nothing")
	}
}

func TestTickNoCandlesIsError(t *testing.T) {
	f := &fakeBroker{}
	s := newTestSession(f, nil)

	err := s.Tick(context.Background(), time.Now().UTC())
	if !apperrors.Is(err, apperrors.ErrNoCandles) {
		t.Fatalf("got %v, want ErrNoCandles", err)
	}
}

func TestTickPatchesNextMissingRung(t *testing.T) {
	cycle := activeCycle(0, 1)
	f := &fakeBroker{
		candles: quietCandles(),
		quote:   models.Quote{Symbol: "EURUSD", Bid: 1.0990, Ask: 1.0991},
		cycle:   cycle,
		snap:    activeSnapshot(cycle),
	}
	s := newTestSession(f, nil)

	if err := s.Tick(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(f.rungs) != 1 {
		t.Fatalf("rungs = %d, want 1", len(f.rungs))
	}
	if f.rungs[0].depth != 2 {
		t.Errorf("patched depth = %d, want 2", f.rungs[0].depth)
	}
}

// After a crash restart an interior gap is re-derived before the ladder
// extends further down.
func TestTickPatchFillsInteriorGapFirst(t *testing.T) {
	cycle := activeCycle(0, 2)
	f := &fakeBroker{
		candles: quietCandles(),
		quote:   models.Quote{Symbol: "EURUSD", Bid: 1.0990, Ask: 1.0991},
		cycle:   cycle,
		snap:    activeSnapshot(cycle),
	}
	s := newTestSession(f, nil)

	if err := s.Tick(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(f.rungs) != 1 {
		t.Fatalf("rungs = %d, want 1", len(f.rungs))
	}
	if f.rungs[0].depth != 1 {
		t.Errorf("patched depth = %d, want the interior gap at 1", f.rungs[0].depth)
	}
}

func TestTickHoldsWhilePendingOutstanding(t *testing.T) {
	cycle := activeCycle(0)
	tp := 1.0990
	cycle.Add(&models.Trade{
		ID:             "p1",
		Symbol:         "EURUSD",
		Side:           models.SideBuy,
		LotSize:        0.01,
		RequestedPrice: 1.0980,
		ExecutedPrice:  1.0980,
		TPPrice:        &tp,
		LadderDepth:    1,
		IsPending:      true,
	})
	f := &fakeBroker{
		candles: quietCandles(),
		quote:   models.Quote{Symbol: "EURUSD", Bid: 1.0990, Ask: 1.0991},
		cycle:   cycle,
		snap:    activeSnapshot(cycle),
	}
	s := newTestSession(f, nil)

	if err := s.Tick(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(f.rungs) != 0 {
		t.Error("an outstanding pending rung must block further placements")
	}
}

func TestTickTerminatesCompletedCycle(t *testing.T) {
	cycle := activeCycle(0, 1)
	exit := 1.1000
	now := backtestStart.Add(10 * time.Minute)
	for _, tr := range cycle.Trades {
		if err := tr.CloseAt(exit, now); err != nil {
			t.Fatal(err)
		}
	}
	snap := &models.AccountSnapshot{
		Positions: []models.SnapshotPosition{
			{ID: "ta", Depth: 0, Status: models.PositionClosed},
			{ID: "tb", Depth: 1, Status: models.PositionClosed},
		},
	}
	f := &fakeBroker{
		candles: quietCandles(),
		quote:   models.Quote{Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1001},
		cycle:   cycle,
		snap:    snap,
	}
	st := newMemStore()
	s := newTestSession(f, st)

	if err := s.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if !f.flattened {
		t.Error("termination must flatten the broker")
	}
	if s.State() != StateCycleStarting {
		t.Errorf("state = %s, want %s after termination", s.State(), StateCycleStarting)
	}
	if len(st.cycles) != 1 {
		t.Fatalf("cycle records = %d, want 1", len(st.cycles))
	}
	rec := st.cycles[0]
	if rec.ID != "cycle-1" || rec.Trades != 2 || rec.MaxDepth != 1 {
		t.Errorf("cycle record = %+v", rec)
	}
	if len(st.trades) != 2 {
		t.Errorf("trade records = %d, want 2", len(st.trades))
	}
}

// The snapshot window must keep covering the anchor after it opens:
// advancing it past the fill would hide the position and read as a
// completed cycle on the next tick.
func TestAnchorKeepsSnapshotWindow(t *testing.T) {
	f := &fakeBroker{
		candles: signalCandles(),
		quote:   models.Quote{Symbol: "EURUSD", Bid: 1.0990, Ask: 1.0991},
	}
	s := newTestSession(f, nil)
	windowStart := s.cycleStart

	if err := s.Tick(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(f.marketBuys) != 1 {
		t.Fatalf("market buys = %d, want 1", len(f.marketBuys))
	}
	if !s.cycleStart.Equal(windowStart) {
		t.Errorf("cycleStart moved to %v after anchor, want %v", s.cycleStart, windowStart)
	}

	f.snap = activeSnapshot(f.cycle)
	if err := s.Tick(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if f.flattened {
		t.Error("live cycle must not be flattened right after the anchor opened")
	}
	last := f.snapFroms[len(f.snapFroms)-1]
	if !last.Equal(windowStart) {
		t.Errorf("snapshot window start = %v, want %v", last, windowStart)
	}
}

// Positions in the account without a tracked cycle mean state was lost;
// a second anchor on top of them would double the exposure.
func TestTickHoldsAnchorWithUntrackedPositions(t *testing.T) {
	f := &fakeBroker{
		candles: signalCandles(),
		quote:   models.Quote{Symbol: "EURUSD", Bid: 1.0990, Ask: 1.0991},
		snap: &models.AccountSnapshot{
			Positions: []models.SnapshotPosition{
				{ID: "x1", Depth: 0, Status: models.PositionActive, EntryPrice: 1.0990, LotSize: 0.01},
				{ID: "x2", Depth: 1, Status: models.PositionActive, EntryPrice: 1.0980, LotSize: 0.01},
			},
		},
	}
	s := newTestSession(f, nil)

	if err := s.Tick(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(f.marketBuys) != 0 {
		t.Errorf("market buys = %d, want 0 while untracked positions exist", len(f.marketBuys))
	}
	if f.flattened {
		t.Error("active positions must not be flattened")
	}
}

func TestResumeAdoptsRecoveredCycle(t *testing.T) {
	f := &fakeBroker{cycle: activeCycle(0, 1)}
	s := newTestSession(f, nil)

	if err := s.resumeCycle(context.Background()); err != nil {
		t.Fatalf("resumeCycle: %v", err)
	}
	if s.State() != StateCycleActive {
		t.Errorf("state = %s, want %s", s.State(), StateCycleActive)
	}
	if want := backtestStart.Add(-time.Minute); !s.cycleStart.Equal(want) {
		t.Errorf("cycleStart = %v, want %v", s.cycleStart, want)
	}
}

// An anchor whose fill price never came back cannot anchor rung math:
// entries derived from zero would sit absurdly far below the market.
func TestTickHoldsLadderWithoutAnchorFillPrice(t *testing.T) {
	cycle := activeCycle(0)
	cycle.Trades[0].ExecutedPrice = 0
	f := &fakeBroker{
		candles: quietCandles(),
		quote:   models.Quote{Symbol: "EURUSD", Bid: 1.0990, Ask: 1.0991},
		cycle:   cycle,
		snap:    activeSnapshot(cycle),
	}
	s := newTestSession(f, nil)

	if err := s.Tick(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(f.rungs) != 0 {
		t.Errorf("rungs = %d, want 0 without an anchor fill price", len(f.rungs))
	}
}

// Against the fill simulator, a cycle that takes profit on a bar must
// still be observable afterward so the session can terminate, flatten
// and record it.
func TestPaperCycleTerminationPersists(t *testing.T) {
	ctx := context.Background()
	sim := broker.NewBacktestBroker(models.EURUSD, 0)

	if err := sim.ProcessCandle(models.Candle{
		Timestamp: backtestStart, Open: 1.1000, High: 1.1001, Low: 1.0999, Close: 1.1000, Volume: 100,
	}); err != nil {
		t.Fatal(err)
	}
	tp := 1.1013
	if _, err := sim.PlaceMarketBuy(ctx, 0.01, &tp); err != nil {
		t.Fatal(err)
	}
	if err := sim.ProcessCandle(models.Candle{
		Timestamp: backtestStart.Add(time.Minute), Open: 1.1000, High: 1.1015, Low: 1.1000, Close: 1.1014, Volume: 100,
	}); err != nil {
		t.Fatal(err)
	}

	st := newMemStore()
	s := NewSession(sim, testStrategy(), st, nil, zerolog.Nop(), SessionConfig{
		PollInterval:  time.Minute,
		MaxSpreadPips: 2,
		FetchCount:    10,
		Resolution:    "1m",
	})
	s.cycleStart = backtestStart.Add(-time.Hour)
	s.state = StateCycleActive

	if err := s.Tick(ctx, backtestStart.Add(2*time.Minute)); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if s.State() != StateCycleStarting {
		t.Errorf("state = %s, want %s after termination", s.State(), StateCycleStarting)
	}
	if len(st.cycles) != 1 {
		t.Fatalf("cycle records = %d, want 1", len(st.cycles))
	}
	if pnl := st.cycles[0].RealizedPnL; pnl < 1.29 || pnl > 1.31 {
		t.Errorf("recorded cycle PnL = %v, want about 1.30", pnl)
	}
	cycle, err := sim.GetActiveCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cycle != nil {
		t.Error("termination must retire the simulated cycle")
	}
}

// A stale quote at one depth does not starve deeper depths: entries
// fall with depth, so the bid may still sit above a deeper entry.
func TestTickPatchSkipsStaleDepthForDeeper(t *testing.T) {
	cycle := activeCycle(0, 2)
	f := &fakeBroker{
		candles: quietCandles(),
		// Below the depth-1 entry of 1.0980, above the depth-3 entry of 1.0960.
		quote: models.Quote{Symbol: "EURUSD", Bid: 1.0970, Ask: 1.0971},
		cycle: cycle,
		snap:  activeSnapshot(cycle),
	}
	s := newTestSession(f, nil)

	if err := s.Tick(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(f.rungs) != 1 {
		t.Fatalf("rungs = %d, want 1", len(f.rungs))
	}
	if f.rungs[0].depth != 3 {
		t.Errorf("patched depth = %d, want 3 past the stale depth 1", f.rungs[0].depth)
	}
}
