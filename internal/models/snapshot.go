package models

import (
	"time"
)

// PositionStatus is the lifecycle state of a position as reported by a
// broker snapshot.
type PositionStatus string

const (
	PositionPending PositionStatus = "pending"
	PositionActive  PositionStatus = "active"
	PositionClosed  PositionStatus = "closed"
)

// SnapshotPosition is one position row inside an account snapshot. Depth
// is reconstructed from the position tag for live brokers.
type SnapshotPosition struct {
	ID         string
	Depth      int
	Status     PositionStatus
	EntryPrice float64
	TPPrice    float64
	LotSize    float64
}

// AccountSnapshot is a read-only projection of broker state for one cycle
// window, built once per session tick. It is used for decisions and
// observability only and never mutated by the core.
type AccountSnapshot struct {
	CycleGrossPnL       float64
	CycleNetPnL         float64
	AccountOpenGrossPnL float64
	AccountOpenNetPnL   float64
	AccountBalance      float64

	Positions        []SnapshotPosition
	NumPendingOrders int

	TakenAt time.Time
}

// HasPositions reports whether the cycle window recorded any positions.
func (s *AccountSnapshot) HasPositions() bool {
	return len(s.Positions) > 0
}

// HasActive reports whether any position in the window is still active.
// Pending, never-filled orders do not count: they are trimmed by
// FlattenAll when the cycle terminates.
func (s *AccountSnapshot) HasActive() bool {
	for _, p := range s.Positions {
		if p.Status == PositionActive {
			return true
		}
	}
	return false
}

// ExistingDepths returns the set of ladder depths present in the window,
// skipping positions whose depth could not be reconstructed.
func (s *AccountSnapshot) ExistingDepths() map[int]struct{} {
	depths := make(map[int]struct{}, len(s.Positions))
	for _, p := range s.Positions {
		if p.Depth == DepthUnknown {
			continue
		}
		depths[p.Depth] = struct{}{}
	}
	return depths
}
