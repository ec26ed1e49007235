package broker

import (
	"context"
	"sync"
	"time"

	apperrors "lowrider-trader/internal/errors"
	"lowrider-trader/internal/models"
)

// PaperBroker trades against live market data with simulated fills: bars
// and quotes come from the data broker, orders go to an in-process fill
// simulator. New bars returned through GetCandlesRange are pumped into
// the simulator so pending rungs and take-profits resolve exactly as a
// backtest would.
type PaperBroker struct {
	data Broker
	sim  *BacktestBroker

	lastPumped time.Time
	mu         sync.Mutex
}

// NewPaperBroker wires a paper broker over a live data source.
func NewPaperBroker(data Broker, commissionPerLot float64) *PaperBroker {
	return &PaperBroker{
		data: data,
		sim:  NewBacktestBroker(data.Instrument(), commissionPerLot),
	}
}

// Instrument returns the underlying instrument.
func (p *PaperBroker) Instrument() models.Instrument {
	return p.data.Instrument()
}

// GetCandlesRange fetches real bars and replays any new ones through the
// fill simulator before returning them.
func (p *PaperBroker) GetCandlesRange(ctx context.Context, symbol, resolution string, from, to time.Time) ([]models.Candle, error) {
	candles, err := p.data.GetCandlesRange(ctx, symbol, resolution, from, to)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range candles {
		if !c.Timestamp.After(p.lastPumped) {
			continue
		}
		if err := p.sim.ProcessCandle(c); err != nil {
			if apperrors.Is(err, apperrors.ErrNonMonotonicBar) {
				continue
			}
			return nil, err
		}
		p.lastPumped = c.Timestamp
	}
	return candles, nil
}

// GetCurrentQuote returns the live quote.
func (p *PaperBroker) GetCurrentQuote(ctx context.Context) (models.Quote, error) {
	return p.data.GetCurrentQuote(ctx)
}

// GetCurrentSpread returns the live spread in pips.
func (p *PaperBroker) GetCurrentSpread(ctx context.Context) (float64, error) {
	return p.data.GetCurrentSpread(ctx)
}

// PlaceMarketBuy simulates a market buy at the last pumped close.
func (p *PaperBroker) PlaceMarketBuy(ctx context.Context, lotSize float64, tpPrice *float64) (*models.Trade, error) {
	return p.sim.PlaceMarketBuy(ctx, lotSize, tpPrice)
}

// PlaceLimitBuy simulates a pending limit buy.
func (p *PaperBroker) PlaceLimitBuy(ctx context.Context, entryPrice, lotSize float64, tpPrice *float64, tag string) (*models.Trade, error) {
	return p.sim.PlaceLimitBuy(ctx, entryPrice, lotSize, tpPrice, tag)
}

// AddRung simulates a tagged pending rung.
func (p *PaperBroker) AddRung(ctx context.Context, entryPrice, tpPrice, lotSize float64, ladderDepth int, tag string) (*models.Trade, error) {
	return p.sim.AddRung(ctx, entryPrice, tpPrice, lotSize, ladderDepth, tag)
}

// GetAccountSnapshot projects the simulated cycle.
func (p *PaperBroker) GetAccountSnapshot(ctx context.Context, from, to time.Time) (*models.AccountSnapshot, error) {
	return p.sim.GetAccountSnapshot(ctx, from, to)
}

// GetOpenTrades returns the simulated open trades.
func (p *PaperBroker) GetOpenTrades(ctx context.Context) ([]*models.Trade, error) {
	return p.sim.GetOpenTrades(ctx)
}

// GetActiveCycle returns the simulated cycle, closed or open, until
// FlattenAll retires it.
func (p *PaperBroker) GetActiveCycle(ctx context.Context) (*models.Cycle, error) {
	return p.sim.GetActiveCycle(ctx)
}

// FlattenAll closes all simulated positions.
func (p *PaperBroker) FlattenAll(ctx context.Context) ([]*models.Trade, error) {
	return p.sim.FlattenAll(ctx)
}

// CloseAll flattens the simulated book.
func (p *PaperBroker) CloseAll(ctx context.Context) (bool, error) {
	return p.sim.CloseAll(ctx)
}

// Ensure PaperBroker implements Broker interface
var _ Broker = (*PaperBroker)(nil)
