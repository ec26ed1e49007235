package trading

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rs/zerolog"

	"lowrider-trader/internal/broker"
	apperrors "lowrider-trader/internal/errors"
	"lowrider-trader/internal/logging"
	"lowrider-trader/internal/models"
	"lowrider-trader/internal/store"
	"lowrider-trader/internal/strategy"
)

// BacktestEventType labels the notable moments of a backtest run.
type BacktestEventType string

const (
	EventAnchor      BacktestEventType = "ANCHOR"
	EventTPHit       BacktestEventType = "TP_HIT"
	EventRungAdded   BacktestEventType = "RUNG_ADDED"
	EventRungFilled  BacktestEventType = "RUNG_FILLED"
	EventCycleClosed BacktestEventType = "CYCLE_CLOSED"
)

// BacktestEvent is one detected event with its bar timestamp.
type BacktestEvent struct {
	Type      BacktestEventType `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	CycleID   string            `json:"cycle_id,omitempty"`
	Depth     int               `json:"depth"`
	Price     float64           `json:"price"`
}

// EquityPoint is the account equity after one bar.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// BacktestSummary aggregates a finished run.
type BacktestSummary struct {
	Symbol        string    `json:"symbol"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Bars          int       `json:"bars"`
	TotalPnL      float64   `json:"total_pnl"`
	CyclesClosed  int       `json:"cycles_closed"`
	WinningCycles int       `json:"winning_cycles"`
	TradesClosed  int       `json:"trades_closed"`
	MaxDepthSeen  int       `json:"max_depth_seen"`
}

// BacktestResult holds everything a run produced.
type BacktestResult struct {
	Summary BacktestSummary `json:"summary"`
	Events  []BacktestEvent `json:"events"`
	Equity  []EquityPoint   `json:"equity"`
	Cycles  []*models.Cycle `json:"cycles"`
}

// Backtester replays candles through the strategy and the fill simulator.
type Backtester struct {
	broker *broker.BacktestBroker
	strat  *strategy.Lowrider
	log    zerolog.Logger
	// window caps how much history each evaluation sees, mirroring the
	// live fetch window.
	window int
}

// NewBacktester wires a backtest run.
func NewBacktester(b *broker.BacktestBroker, strat *strategy.Lowrider, log zerolog.Logger, window int) *Backtester {
	if window <= 0 {
		window = 70
	}
	return &Backtester{
		broker: b,
		strat:  strat,
		log:    logging.WithSymbol(log, b.Instrument().Symbol),
		window: window,
	}
}

// Run replays the candles in order. Candles must be strictly ascending by
// timestamp; the simulator rejects anything else.
func (bt *Backtester) Run(ctx context.Context, candles []models.Candle) (*BacktestResult, error) {
	result := &BacktestResult{}
	if len(candles) == 0 {
		return result, nil
	}

	bt.broker.LoadCandles(candles)
	inst := bt.broker.Instrument()

	for i, c := range candles {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		before := bt.snapshotCounts()
		if err := bt.broker.ProcessCandle(c); err != nil {
			return result, err
		}
		after := bt.snapshotCounts()
		bt.detectFillEvents(result, c, before, after)

		start := i + 1 - bt.window
		if start < 0 {
			start = 0
		}
		window := candles[start : i+1]

		cycle, err := bt.broker.GetActiveCycle(ctx)
		if err != nil {
			return result, err
		}
		if err := bt.applyDecision(ctx, result, c, bt.strat.Evaluate(window, cycle)); err != nil {
			return result, err
		}

		equity := bt.broker.RealizedPnL() + bt.broker.UnrealizedPnL(c.Close)
		result.Equity = append(result.Equity, EquityPoint{Timestamp: c.Timestamp, Equity: equity})
	}

	result.Cycles = bt.broker.Cycles()
	result.Summary = bt.summarize(inst, candles, result)

	bt.log.Info().
		Int("bars", result.Summary.Bars).
		Int("cycles_closed", result.Summary.CyclesClosed).
		Float64("total_pnl", result.Summary.TotalPnL).
		Msg("backtest finished")
	return result, nil
}

type tradePhase int

const (
	phasePending tradePhase = iota
	phaseOpen
	phaseClosed
)

type fillSnapshot struct {
	phases    map[string]tradePhase
	depths    map[string]int
	cancelled map[string]bool
	cycleID   string
	open      bool
}

func (bt *Backtester) snapshotCounts() fillSnapshot {
	fs := fillSnapshot{
		phases:    map[string]tradePhase{},
		depths:    map[string]int{},
		cancelled: map[string]bool{},
	}
	for _, cycle := range bt.broker.Cycles() {
		for _, t := range cycle.Trades {
			phase := phaseOpen
			switch {
			case t.IsClosed():
				phase = phaseClosed
			case t.IsPending:
				phase = phasePending
			}
			fs.phases[t.ID] = phase
			fs.depths[t.ID] = t.LadderDepth
			fs.cancelled[t.ID] = t.IsCancelled()
		}
		if !cycle.Closed() && len(cycle.Trades) > 0 {
			fs.cycleID = cycle.ID
			fs.open = true
		}
	}
	return fs
}

// detectFillEvents emits events from per-trade phase transitions across
// one bar. A pending trade cancelled at cycle closure was never filled
// and produces no event; a pending trade that filled and took profit on
// the same bar produces both.
func (bt *Backtester) detectFillEvents(result *BacktestResult, c models.Candle, before, after fillSnapshot) {
	for id, now := range after.phases {
		was, known := before.phases[id]
		if !known {
			continue
		}
		filled := was == phasePending && now != phasePending && !after.cancelled[id]
		hitTP := (was != phaseClosed && now == phaseClosed) && !after.cancelled[id]
		if filled {
			result.Events = append(result.Events, BacktestEvent{
				Type:      EventRungFilled,
				Timestamp: c.Timestamp,
				CycleID:   before.cycleID,
				Depth:     after.depths[id],
				Price:     c.Close,
			})
		}
		if hitTP {
			result.Events = append(result.Events, BacktestEvent{
				Type:      EventTPHit,
				Timestamp: c.Timestamp,
				CycleID:   before.cycleID,
				Depth:     after.depths[id],
				Price:     c.Close,
			})
		}
	}
	if before.open && !after.open {
		result.Events = append(result.Events, BacktestEvent{
			Type:      EventCycleClosed,
			Timestamp: c.Timestamp,
			CycleID:   before.cycleID,
			Price:     c.Close,
		})
	}
}

func (bt *Backtester) applyDecision(ctx context.Context, result *BacktestResult, c models.Candle, d strategy.Decision) error {
	switch d.Action {
	case strategy.ActionOpenAnchor:
		anchor, err := bt.broker.PlaceMarketBuy(ctx, d.Anchor.LotSize, &d.Anchor.TPPrice)
		if err != nil {
			return err
		}
		result.Events = append(result.Events, BacktestEvent{
			Type:      EventAnchor,
			Timestamp: c.Timestamp,
			CycleID:   anchor.CycleID,
			Price:     anchor.ExecutedPrice,
		})

		rung := *d.FirstRung
		tag := models.FormatPositionTag(anchor.CycleID, rung.Depth)
		if _, err := bt.broker.AddRung(ctx, rung.EntryPrice, rung.TPPrice, rung.LotSize, rung.Depth, tag); err != nil {
			return err
		}
		result.Events = append(result.Events, BacktestEvent{
			Type:      EventRungAdded,
			Timestamp: c.Timestamp,
			CycleID:   anchor.CycleID,
			Depth:     rung.Depth,
			Price:     rung.EntryPrice,
		})

	case strategy.ActionAddRung:
		cycle, err := bt.broker.GetActiveCycle(ctx)
		if err != nil || cycle == nil {
			return err
		}
		rung := *d.NextRung
		tag := models.FormatPositionTag(cycle.ID, rung.Depth)
		if _, err := bt.broker.AddRung(ctx, rung.EntryPrice, rung.TPPrice, rung.LotSize, rung.Depth, tag); err != nil {
			return err
		}
		result.Events = append(result.Events, BacktestEvent{
			Type:      EventRungAdded,
			Timestamp: c.Timestamp,
			CycleID:   cycle.ID,
			Depth:     rung.Depth,
			Price:     rung.EntryPrice,
		})
	}
	return nil
}

func (bt *Backtester) summarize(inst models.Instrument, candles []models.Candle, result *BacktestResult) BacktestSummary {
	s := BacktestSummary{
		Symbol: inst.Symbol,
		Start:  candles[0].Timestamp,
		End:    candles[len(candles)-1].Timestamp,
		Bars:   len(candles),
	}
	for _, cycle := range result.Cycles {
		if depth := cycle.DeepestDepth(); depth > s.MaxDepthSeen {
			s.MaxDepthSeen = depth
		}
		if !cycle.Closed() {
			continue
		}
		s.CyclesClosed++
		pnl := cycle.RealizedPnL(inst)
		s.TotalPnL += pnl
		if pnl > 0 {
			s.WinningCycles++
		}
		s.TradesClosed += cycle.ClosedCount()
	}
	return s
}

// WriteJSON streams the result as indented JSON.
func (r *BacktestResult) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Persist writes the run's cycles and trades to the store.
func (r *BacktestResult) Persist(ctx context.Context, st store.DataStore) error {
	for _, cycle := range r.Cycles {
		inst, ok := models.InstrumentBySymbol(cycle.Symbol)
		if !ok {
			return apperrors.Wrapf(apperrors.ErrInstrumentUnknown, "%s", cycle.Symbol)
		}
		closedAt := cycle.StartedAt
		for _, t := range cycle.Trades {
			if t.CloseTime != nil && t.CloseTime.After(closedAt) {
				closedAt = *t.CloseTime
			}
			if err := st.SaveTrade(ctx, t); err != nil {
				return err
			}
		}
		rec := store.CycleRecord{
			ID:          cycle.ID,
			Symbol:      cycle.Symbol,
			StartedAt:   cycle.StartedAt,
			ClosedAt:    closedAt,
			Trades:      len(cycle.Trades),
			MaxDepth:    cycle.DeepestDepth(),
			RealizedPnL: cycle.RealizedPnL(inst),
		}
		if err := st.SaveCycle(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
