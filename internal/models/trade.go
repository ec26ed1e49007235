package models

import (
	"fmt"
	"time"
)

// Trade represents one order/fill record. A trade is created pending
// (limit order) or already filled (market order), fills when the market
// trades through its requested price, and closes when its take-profit is
// executed or it is flattened.
type Trade struct {
	ID      string
	CycleID string
	Symbol  string
	Side    Side
	LotSize float64

	// RequestedPrice is the limit price for pending orders; ExecutedPrice
	// is the price the fill is accounted at. For limit orders both carry
	// the same value, for market orders the last close at placement.
	RequestedPrice float64
	ExecutedPrice  float64
	OpenTime       time.Time

	TPPrice *float64
	SLPrice *float64

	// LadderDepth is assigned at creation and never changes.
	// 0 = anchor, 1.. = successive rungs.
	LadderDepth int
	IsPending   bool
	Tag         string

	ExitPrice   *float64
	CloseTime   *time.Time
	RealizedPnL *float64
	Commission  *float64

	// Raw carries the provider payload for audit only.
	Raw map[string]interface{}
}

// IsOpen reports whether the trade has not been closed yet. Pending
// trades count as open.
func (t *Trade) IsOpen() bool {
	return t.ExitPrice == nil
}

// IsClosed reports whether an exit price has been recorded.
func (t *Trade) IsClosed() bool {
	return t.ExitPrice != nil
}

// IsFilled reports whether the trade has been executed (not pending).
func (t *Trade) IsFilled() bool {
	return !t.IsPending
}

// Fill marks a pending trade as executed at its requested price.
func (t *Trade) Fill(ts time.Time) error {
	if !t.IsPending {
		return fmt.Errorf("trade %s: already filled", t.ID)
	}
	if t.IsClosed() {
		return fmt.Errorf("trade %s: closed trades are immutable", t.ID)
	}
	t.IsPending = false
	t.ExecutedPrice = t.RequestedPrice
	t.OpenTime = ts
	return nil
}

// CloseAt records the exit of a filled trade. Once the exit price is set
// the trade is immutable; a second close is a sequencing error.
func (t *Trade) CloseAt(price float64, ts time.Time) error {
	if t.IsClosed() {
		return fmt.Errorf("trade %s: already closed at %.5f", t.ID, *t.ExitPrice)
	}
	t.ExitPrice = &price
	t.CloseTime = &ts
	t.IsPending = false
	return nil
}

// Cancel retires a pending order that never filled. The trade keeps its
// pending flag, so it never reports as filled, and its realized result is
// pinned to zero.
func (t *Trade) Cancel(ts time.Time) error {
	if !t.IsPending {
		return fmt.Errorf("trade %s: only pending orders can be cancelled", t.ID)
	}
	if t.IsClosed() {
		return fmt.Errorf("trade %s: already closed at %.5f", t.ID, *t.ExitPrice)
	}
	price := t.RequestedPrice
	zero := 0.0
	t.ExitPrice = &price
	t.CloseTime = &ts
	t.RealizedPnL = &zero
	return nil
}

// IsCancelled reports whether the trade was retired without ever filling.
func (t *Trade) IsCancelled() bool {
	return t.IsPending && t.IsClosed()
}

// PnL returns the trade's realized profit for the given instrument, or 0
// for open trades. A precomputed RealizedPnL (as reported by the
// provider) takes precedence over the pip formula.
func (t *Trade) PnL(inst Instrument) float64 {
	if t.ExitPrice == nil {
		return 0
	}
	if t.RealizedPnL != nil {
		return *t.RealizedPnL
	}
	return PipPnL(t.ExecutedPrice, *t.ExitPrice, t.LotSize, inst)
}

// PipPnL computes profit for a buy from entry to exit:
// price delta in pips times lot size times pip value.
func PipPnL(entry, exit, lotSize float64, inst Instrument) float64 {
	if inst.PipSize == 0 {
		return 0
	}
	pips := (exit - entry) / inst.PipSize
	return pips * lotSize * inst.DollarsPerPipPerLot
}
