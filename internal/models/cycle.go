package models

import (
	"time"
)

// Cycle is one complete ladder campaign: the ordered collection of trades
// that share an anchor, from first placement to full closure. At most one
// cycle is open per instrument at any time.
type Cycle struct {
	ID        string
	Symbol    string
	Trades    []*Trade
	StartedAt time.Time
}

// Closed reports whether the cycle has run to completion: at least one
// trade has been filled, and every filled trade is closed. Pending,
// never-filled trades do not block closure; the session trims them via
// FlattenAll when the cycle terminates.
func (c *Cycle) Closed() bool {
	anyFilled := false
	for _, t := range c.Trades {
		if t.IsFilled() {
			anyFilled = true
		}
	}
	if !anyFilled {
		return false
	}
	for _, t := range c.Trades {
		if t.IsPending {
			continue
		}
		if !t.IsClosed() {
			return false
		}
	}
	return true
}

// Add appends a trade and stamps its cycle id.
func (c *Cycle) Add(t *Trade) {
	t.CycleID = c.ID
	c.Trades = append(c.Trades, t)
}

// DeepestDepth returns the highest ladder depth present, or -1 for an
// empty cycle.
func (c *Cycle) DeepestDepth() int {
	deepest := -1
	for _, t := range c.Trades {
		if t.LadderDepth > deepest {
			deepest = t.LadderDepth
		}
	}
	return deepest
}

// TradeAtDepth returns the first trade at the given ladder depth, or nil.
func (c *Cycle) TradeAtDepth(depth int) *Trade {
	for _, t := range c.Trades {
		if t.LadderDepth == depth {
			return t
		}
	}
	return nil
}

// ExistingDepths returns the set of ladder depths represented by any
// trade in the cycle, open or closed.
func (c *Cycle) ExistingDepths() map[int]struct{} {
	depths := make(map[int]struct{}, len(c.Trades))
	for _, t := range c.Trades {
		depths[t.LadderDepth] = struct{}{}
	}
	return depths
}

// OpenTrades returns trades without an exit price, both pending and
// filled.
func (c *Cycle) OpenTrades() []*Trade {
	var out []*Trade
	for _, t := range c.Trades {
		if t.IsOpen() {
			out = append(out, t)
		}
	}
	return out
}

// PendingCount returns the number of outstanding unfilled limit orders.
// Cancelled orders no longer count.
func (c *Cycle) PendingCount() int {
	n := 0
	for _, t := range c.Trades {
		if t.IsPending && !t.IsClosed() {
			n++
		}
	}
	return n
}

// ActiveCount returns the number of filled-but-open trades.
func (c *Cycle) ActiveCount() int {
	n := 0
	for _, t := range c.Trades {
		if t.IsFilled() && t.IsOpen() {
			n++
		}
	}
	return n
}

// ClosedCount returns the number of closed trades.
func (c *Cycle) ClosedCount() int {
	n := 0
	for _, t := range c.Trades {
		if t.IsClosed() {
			n++
		}
	}
	return n
}

// RealizedPnL sums realized profit over the cycle's closed trades.
func (c *Cycle) RealizedPnL(inst Instrument) float64 {
	total := 0.0
	for _, t := range c.Trades {
		total += t.PnL(inst)
	}
	return total
}
