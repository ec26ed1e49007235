// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"lowrider-trader/internal/models"
)

// CycleRecord is the persisted summary of a finished cycle.
type CycleRecord struct {
	ID          string
	Symbol      string
	StartedAt   time.Time
	ClosedAt    time.Time
	Trades      int
	MaxDepth    int
	RealizedPnL float64
}

// TradeFilter narrows trade queries.
type TradeFilter struct {
	Symbol    string
	CycleID   string
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}

// DataStore defines the persistence surface used by the session and the
// backtester.
type DataStore interface {
	// Candles
	SaveCandles(ctx context.Context, symbol, resolution string, candles []models.Candle) error
	GetCandles(ctx context.Context, symbol, resolution string, from, to time.Time) ([]models.Candle, error)
	GetCandlesFreshness(ctx context.Context, symbol, resolution string) (time.Time, error)

	// Trades
	SaveTrade(ctx context.Context, trade *models.Trade) error
	GetTrades(ctx context.Context, filter TradeFilter) ([]*models.Trade, error)

	// Cycles
	SaveCycle(ctx context.Context, record CycleRecord) error
	GetCycles(ctx context.Context, symbol string, limit int) ([]CycleRecord, error)

	// Sync bookkeeping
	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error

	// Lifecycle
	Close() error
}
