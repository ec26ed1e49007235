// Package broker provides broker integration implementations.
package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "lowrider-trader/internal/errors"
	"lowrider-trader/internal/models"
)

// BacktestBroker is a deterministic broker simulation for candle-driven
// backtesting. Fill semantics mirror the live venue:
//
//   - one and only one active cycle at a time
//   - a pending trade fills when candle.Low <= price <= candle.High
//   - a take-profit executes when candle.High >= tp price
//   - at most one take-profit executes per candle
type BacktestBroker struct {
	instrument       models.Instrument
	commissionPerLot float64

	cycles  []*models.Cycle
	current *models.Cycle

	// Candle history served by GetCandlesRange, preloaded by the caller.
	candles []models.Candle

	lastTimestamp time.Time
	lastClose     float64
	hasBar        bool

	mu sync.RWMutex
}

// NewBacktestBroker creates a simulator for one instrument.
func NewBacktestBroker(inst models.Instrument, commissionPerLot float64) *BacktestBroker {
	return &BacktestBroker{
		instrument:       inst,
		commissionPerLot: commissionPerLot,
	}
}

// Instrument returns the simulated instrument.
func (b *BacktestBroker) Instrument() models.Instrument {
	return b.instrument
}

// LoadCandles preloads the bar history served by GetCandlesRange.
func (b *BacktestBroker) LoadCandles(candles []models.Candle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.candles = candles
}

// ProcessCandle advances the simulation by exactly one bar, in this fixed
// order: fill eligible pending trades, execute at most one take-profit,
// then check cycle closure. Bars must arrive in strictly increasing
// timestamp order.
func (b *BacktestBroker) ProcessCandle(c models.Candle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !c.Valid() {
		return apperrors.NewDataError("candle", b.instrument.Symbol, "low/high bounds violated", nil)
	}
	if b.hasBar && !c.Timestamp.After(b.lastTimestamp) {
		return apperrors.Wrapf(apperrors.ErrNonMonotonicBar, "bar %s after %s",
			c.Timestamp.Format(time.RFC3339), b.lastTimestamp.Format(time.RFC3339))
	}

	b.lastTimestamp = c.Timestamp
	b.lastClose = c.Close
	b.hasBar = true

	if b.current == nil {
		return nil
	}
	cycle := b.current

	// 1) Fill pending limit buys the market traded through. Every
	// eligible pending trade fills on the same bar.
	for _, t := range cycle.Trades {
		if t.IsPending && !t.IsClosed() && c.Touches(t.RequestedPrice) {
			if err := t.Fill(c.Timestamp); err != nil {
				return err
			}
		}
	}

	// 2) Take-profit pass: among filled-but-open trades whose TP was
	// touched, close exactly one. Highest TP wins; equal TPs break to
	// the shallowest rung.
	var toClose *models.Trade
	for _, t := range cycle.Trades {
		if t.IsPending || t.IsClosed() || t.TPPrice == nil {
			continue
		}
		if c.High < *t.TPPrice {
			continue
		}
		if toClose == nil ||
			*t.TPPrice > *toClose.TPPrice ||
			(*t.TPPrice == *toClose.TPPrice && t.LadderDepth < toClose.LadderDepth) {
			toClose = t
		}
	}
	if toClose != nil {
		if err := toClose.CloseAt(*toClose.TPPrice, c.Timestamp); err != nil {
			return err
		}
		b.applyCommission(toClose)
	}

	// 3) When every filled trade is closed the cycle ends. Pendings that
	// never filled are cancelled at zero PnL. The cycle stays visible as
	// the current one until FlattenAll acknowledges the closure, so the
	// session can observe it and run its termination pass.
	if cycle.Closed() {
		for _, t := range cycle.Trades {
			if !t.IsPending || t.IsClosed() {
				continue
			}
			if err := t.Cancel(c.Timestamp); err != nil {
				return err
			}
		}
	}

	return nil
}

// PlaceMarketOrder creates an immediately-filled trade at the last
// processed close. Calling it before any bar has been processed is a
// sequencing error, not a market condition.
func (b *BacktestBroker) PlaceMarketOrder(symbol string, side models.Side, lotSize float64, tpPrice, slPrice *float64, ladderDepth int, tag string) (*models.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if symbol != b.instrument.Symbol {
		return nil, apperrors.Wrapf(apperrors.ErrSymbolMismatch, "%s (configured %s)", symbol, b.instrument.Symbol)
	}
	if !b.hasBar {
		return nil, apperrors.Wrap(apperrors.ErrNoBarProcessed, "market order needs a last close")
	}

	trade := &models.Trade{
		ID:             b.newTradeID(),
		Symbol:         symbol,
		Side:           side,
		LotSize:        lotSize,
		RequestedPrice: b.lastClose,
		ExecutedPrice:  b.lastClose,
		OpenTime:       b.lastTimestamp,
		TPPrice:        tpPrice,
		SLPrice:        slPrice,
		LadderDepth:    ladderDepth,
		IsPending:      false,
		Tag:            tag,
		Raw:            map[string]interface{}{},
	}

	b.attach(trade)
	return trade, nil
}

// PlaceLimitOrder creates a pending trade at the given limit price.
func (b *BacktestBroker) PlaceLimitOrder(symbol string, side models.Side, lotSize, limitPrice float64, tpPrice, slPrice *float64, ladderDepth int, tag string) (*models.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if symbol != b.instrument.Symbol {
		return nil, apperrors.Wrapf(apperrors.ErrSymbolMismatch, "%s (configured %s)", symbol, b.instrument.Symbol)
	}

	trade := &models.Trade{
		ID:             b.newTradeID(),
		Symbol:         symbol,
		Side:           side,
		LotSize:        lotSize,
		RequestedPrice: limitPrice,
		ExecutedPrice:  limitPrice,
		OpenTime:       b.lastTimestamp,
		TPPrice:        tpPrice,
		SLPrice:        slPrice,
		LadderDepth:    ladderDepth,
		IsPending:      true,
		Tag:            tag,
		Raw:            map[string]interface{}{},
	}

	b.attach(trade)
	return trade, nil
}

// PlaceMarketBuy places a market BUY with an optional take-profit.
func (b *BacktestBroker) PlaceMarketBuy(ctx context.Context, lotSize float64, tpPrice *float64) (*models.Trade, error) {
	return b.PlaceMarketOrder(b.instrument.Symbol, models.SideBuy, lotSize, tpPrice, nil, 0, "")
}

// PlaceLimitBuy places a pending LIMIT BUY with an optional take-profit.
// The ladder depth is recovered from the tag when present.
func (b *BacktestBroker) PlaceLimitBuy(ctx context.Context, entryPrice, lotSize float64, tpPrice *float64, tag string) (*models.Trade, error) {
	depth := models.ParseDepthFromTag(tag)
	if depth == models.DepthUnknown {
		depth = 0
	}
	return b.PlaceLimitOrder(b.instrument.Symbol, models.SideBuy, lotSize, entryPrice, tpPrice, nil, depth, tag)
}

// AddRung atomically creates a pending LIMIT BUY with its take-profit
// attached, tagged with the ladder depth.
func (b *BacktestBroker) AddRung(ctx context.Context, entryPrice, tpPrice, lotSize float64, ladderDepth int, tag string) (*models.Trade, error) {
	return b.PlaceLimitOrder(b.instrument.Symbol, models.SideBuy, lotSize, entryPrice, &tpPrice, nil, ladderDepth, tag)
}

// GetCandlesRange serves the preloaded candle history between from and to
// inclusive.
func (b *BacktestBroker) GetCandlesRange(ctx context.Context, symbol, resolution string, from, to time.Time) ([]models.Candle, error) {
	if symbol != b.instrument.Symbol {
		return nil, apperrors.Wrapf(apperrors.ErrSymbolMismatch, "%s (configured %s)", symbol, b.instrument.Symbol)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []models.Candle
	for _, c := range b.candles {
		if c.Timestamp.Before(from) || c.Timestamp.After(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// GetCurrentQuote returns a zero-spread quote at the last processed close.
func (b *BacktestBroker) GetCurrentQuote(ctx context.Context) (models.Quote, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.hasBar {
		return models.Quote{}, apperrors.Wrap(apperrors.ErrNoBarProcessed, "quote needs a last close")
	}
	return models.Quote{
		Symbol:    b.instrument.Symbol,
		Bid:       b.lastClose,
		Ask:       b.lastClose,
		Timestamp: b.lastTimestamp,
	}, nil
}

// GetCurrentSpread returns the simulated spread in pips. The simulation
// fills at exact touch prices, so the spread is zero.
func (b *BacktestBroker) GetCurrentSpread(ctx context.Context) (float64, error) {
	return 0, nil
}

// GetAccountSnapshot builds a read-only projection of the current cycle
// window.
func (b *BacktestBroker) GetAccountSnapshot(ctx context.Context, from, to time.Time) (*models.AccountSnapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := &models.AccountSnapshot{TakenAt: b.lastTimestamp}

	realized := 0.0
	for _, cycle := range b.cycles {
		realized += cycle.RealizedPnL(b.instrument)
	}

	if b.current != nil {
		unrealized := b.unrealizedLocked(b.lastClose)
		snap.CycleGrossPnL = b.current.RealizedPnL(b.instrument) + unrealized
		snap.CycleNetPnL = snap.CycleGrossPnL - b.cycleCommissionLocked()
		snap.AccountOpenGrossPnL = unrealized
		snap.AccountOpenNetPnL = snap.CycleNetPnL

		for _, t := range b.current.Trades {
			status := models.PositionActive
			switch {
			case t.IsClosed():
				status = models.PositionClosed
			case t.IsPending:
				status = models.PositionPending
				snap.NumPendingOrders++
			}
			pos := models.SnapshotPosition{
				ID:         t.ID,
				Depth:      t.LadderDepth,
				Status:     status,
				EntryPrice: t.ExecutedPrice,
				LotSize:    t.LotSize,
			}
			if t.TPPrice != nil {
				pos.TPPrice = *t.TPPrice
			}
			snap.Positions = append(snap.Positions, pos)
		}
	}

	snap.AccountBalance = realized
	return snap, nil
}

// GetOpenTrades returns all trades in the active cycle that are not yet
// closed, both pending and filled.
func (b *BacktestBroker) GetOpenTrades(ctx context.Context) ([]*models.Trade, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.current == nil {
		return nil, nil
	}
	return b.current.OpenTrades(), nil
}

// GetActiveCycle returns the current cycle, if any. A closed cycle is
// still returned until FlattenAll retires it; callers treat closed the
// same as nil for entry decisions.
func (b *BacktestBroker) GetActiveCycle(ctx context.Context) (*models.Cycle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current, nil
}

// FlattenAll closes every open trade at the last known close. Pending,
// never-filled orders are cancelled with zero realized PnL rather than
// accounted as fills.
func (b *BacktestBroker) FlattenAll(ctx context.Context) ([]*models.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return nil, nil
	}

	var flattened []*models.Trade
	for _, t := range b.current.Trades {
		if t.IsClosed() {
			continue
		}
		if t.IsPending {
			if err := t.Cancel(b.lastTimestamp); err != nil {
				return flattened, err
			}
		} else {
			if err := t.CloseAt(b.lastClose, b.lastTimestamp); err != nil {
				return flattened, err
			}
			b.applyCommission(t)
		}
		flattened = append(flattened, t)
	}

	b.current = nil
	return flattened, nil
}

// CloseAll flattens everything and reports whether the cycle is closed.
func (b *BacktestBroker) CloseAll(ctx context.Context) (bool, error) {
	if _, err := b.FlattenAll(ctx); err != nil {
		return false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current == nil, nil
}

// RealizedPnL sums realized profit from all closed trades across all
// cycles.
func (b *BacktestBroker) RealizedPnL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0.0
	for _, cycle := range b.cycles {
		total += cycle.RealizedPnL(b.instrument)
	}
	return total
}

// UnrealizedPnL sums unrealized profit for the active cycle only. Closed
// cycles never contribute.
func (b *BacktestBroker) UnrealizedPnL(markPrice float64) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.unrealizedLocked(markPrice)
}

// Cycles returns every cycle ever created, open or closed.
func (b *BacktestBroker) Cycles() []*models.Cycle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cycles
}

func (b *BacktestBroker) unrealizedLocked(markPrice float64) float64 {
	if b.current == nil {
		return 0
	}
	total := 0.0
	for _, t := range b.current.Trades {
		if t.IsOpen() {
			total += models.PipPnL(t.ExecutedPrice, markPrice, t.LotSize, b.instrument)
		}
	}
	return total
}

func (b *BacktestBroker) cycleCommissionLocked() float64 {
	if b.current == nil {
		return 0
	}
	total := 0.0
	for _, t := range b.current.Trades {
		if t.IsFilled() {
			total += b.commissionPerLot * t.LotSize
		}
	}
	return total
}

// attach adds a trade to the current cycle, opening a new one if none
// exists or the last one has closed.
func (b *BacktestBroker) attach(t *models.Trade) {
	if b.current == nil || b.current.Closed() {
		cycle := &models.Cycle{
			ID:        "c" + uuid.New().String()[:8],
			Symbol:    b.instrument.Symbol,
			StartedAt: b.lastTimestamp,
		}
		b.cycles = append(b.cycles, cycle)
		b.current = cycle
	}
	b.current.Add(t)
}

func (b *BacktestBroker) applyCommission(t *models.Trade) {
	if b.commissionPerLot == 0 {
		return
	}
	c := b.commissionPerLot * t.LotSize
	t.Commission = &c
}

func (b *BacktestBroker) newTradeID() string {
	return "t" + uuid.New().String()
}

// Ensure BacktestBroker implements Broker interface
var _ Broker = (*BacktestBroker)(nil)
