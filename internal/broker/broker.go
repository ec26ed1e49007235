// Package broker provides broker integration interfaces and implementations.
package broker

import (
	"context"
	"time"

	"lowrider-trader/internal/models"
)

// Broker is the environment-agnostic capability interface consumed by the
// session and ladder layers. Concrete implementations:
//
//   - BacktestBroker: in-process deterministic fill simulator
//   - TradeLockerBroker: network-backed live adapter
//
// The implementation is selected at composition time.
type Broker interface {
	// Instrument returns the single instrument this broker trades.
	Instrument() models.Instrument

	// Market data
	GetCandlesRange(ctx context.Context, symbol, resolution string, from, to time.Time) ([]models.Candle, error)
	GetCurrentQuote(ctx context.Context) (models.Quote, error)
	GetCurrentSpread(ctx context.Context) (float64, error)

	// Order placement. Market buys execute immediately; limit buys are
	// created pending at the given price. AddRung is a pending limit buy
	// with its take-profit attached and the ladder depth recorded in the
	// tag for later reconstruction.
	PlaceMarketBuy(ctx context.Context, lotSize float64, tpPrice *float64) (*models.Trade, error)
	PlaceLimitBuy(ctx context.Context, entryPrice, lotSize float64, tpPrice *float64, tag string) (*models.Trade, error)
	AddRung(ctx context.Context, entryPrice, tpPrice, lotSize float64, ladderDepth int, tag string) (*models.Trade, error)

	// Position / account view
	GetAccountSnapshot(ctx context.Context, from, to time.Time) (*models.AccountSnapshot, error)
	GetOpenTrades(ctx context.Context) ([]*models.Trade, error)
	GetActiveCycle(ctx context.Context) (*models.Cycle, error)

	// FlattenAll closes every open trade for the instrument and cancels
	// pending orders. CloseAll flattens and reports whether the cycle is
	// now fully closed.
	FlattenAll(ctx context.Context) ([]*models.Trade, error)
	CloseAll(ctx context.Context) (bool, error)
}
