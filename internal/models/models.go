// Package models provides domain models for the trading application.
package models

import (
	"time"
)

// Side represents the side of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Candle represents OHLCV data for a time period. Timestamps are UTC.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Valid reports whether the bar satisfies low <= open,close <= high.
func (c Candle) Valid() bool {
	if c.Low > c.High {
		return false
	}
	if c.Open < c.Low || c.Open > c.High {
		return false
	}
	if c.Close < c.Low || c.Close > c.High {
		return false
	}
	return true
}

// Touches reports whether price traded within this bar's range.
func (c Candle) Touches(price float64) bool {
	return c.Low <= price && price <= c.High
}

// Quote represents a bid/ask snapshot.
type Quote struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// Spread returns the bid/ask spread in pips for the given instrument.
func (q Quote) Spread(inst Instrument) float64 {
	if inst.PipSize == 0 {
		return 0
	}
	return (q.Ask - q.Bid) / inst.PipSize
}
