// Package notify delivers trading events to configured channels.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lowrider-trader/internal/models"
	"lowrider-trader/pkg/utils"
)

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationCycle   NotificationType = "cycle"
	NotificationTrade   NotificationType = "trade"
	NotificationError   NotificationType = "error"
	NotificationSummary NotificationType = "summary"
	NotificationInfo    NotificationType = "info"
)

// Channel is a delivery target for notifications.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notifier fans notifications out to every enabled channel.
type Notifier struct {
	instrument models.Instrument
	channels   []Channel
	mu         sync.RWMutex
}

// New creates a notifier with the given channels.
func New(inst models.Instrument, channels ...Channel) *Notifier {
	return &Notifier{instrument: inst, channels: channels}
}

// AddChannel adds a delivery channel.
func (n *Notifier) AddChannel(ch Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels = append(n.channels, ch)
}

// Send delivers the notification to every enabled channel. Channel
// failures are collected, not fatal: one dead webhook must not stop the
// trading loop.
func (n *Notifier) Send(ctx context.Context, note Notification) error {
	if note.Timestamp.IsZero() {
		note.Timestamp = time.Now().UTC()
	}

	n.mu.RLock()
	channels := make([]Channel, len(n.channels))
	copy(channels, n.channels)
	n.mu.RUnlock()

	var firstErr error
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, note); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", ch.Name(), err)
		}
	}
	return firstErr
}

// CycleStarted announces a new cycle with its anchor fill.
func (n *Notifier) CycleStarted(ctx context.Context, cycleID string, anchor *models.Trade) error {
	return n.Send(ctx, Notification{
		Type:  NotificationCycle,
		Title: "Cycle started",
		Message: fmt.Sprintf("%s anchor filled at %s (%s)",
			cycleID,
			utils.FormatPrice(anchor.ExecutedPrice, n.instrument.PipSize),
			utils.FormatLots(anchor.LotSize)),
		Data: map[string]interface{}{
			"cycle_id": cycleID,
			"symbol":   anchor.Symbol,
			"entry":    anchor.ExecutedPrice,
		},
	})
}

// RungPlaced announces a new pending rung.
func (n *Notifier) RungPlaced(ctx context.Context, trade *models.Trade) error {
	return n.Send(ctx, Notification{
		Type:  NotificationTrade,
		Title: fmt.Sprintf("Rung %d placed", trade.LadderDepth),
		Message: fmt.Sprintf("%s limit buy at %s",
			trade.Symbol,
			utils.FormatPrice(trade.RequestedPrice, n.instrument.PipSize)),
		Data: map[string]interface{}{
			"cycle_id": trade.CycleID,
			"depth":    trade.LadderDepth,
			"entry":    trade.RequestedPrice,
		},
	})
}

// CycleClosed announces a finished cycle with its realized result.
func (n *Notifier) CycleClosed(ctx context.Context, cycleID string, pnl float64, trades int) error {
	return n.Send(ctx, Notification{
		Type:  NotificationCycle,
		Title: "Cycle closed",
		Message: fmt.Sprintf("%s closed %d trades, %s",
			cycleID, trades, utils.FormatPnL(pnl)),
		Data: map[string]interface{}{
			"cycle_id": cycleID,
			"pnl":      pnl,
			"trades":   trades,
		},
	})
}

// SessionError reports a recoverable loop error.
func (n *Notifier) SessionError(ctx context.Context, err error, where string) error {
	return n.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   "Session error",
		Message: fmt.Sprintf("%s: %v", where, err),
		Data:    map[string]interface{}{"where": where},
	})
}
