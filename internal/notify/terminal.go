package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// TerminalChannel prints notifications to a writer, normally stdout. It
// is the default channel for paper and backtest runs.
type TerminalChannel struct {
	out     io.Writer
	enabled bool
	mu      sync.Mutex
}

// NewTerminalChannel creates a terminal channel writing to stdout.
func NewTerminalChannel() *TerminalChannel {
	return &TerminalChannel{out: os.Stdout, enabled: true}
}

// NewTerminalChannelWriter creates a terminal channel with a custom writer.
func NewTerminalChannelWriter(w io.Writer) *TerminalChannel {
	return &TerminalChannel{out: w, enabled: true}
}

func (t *TerminalChannel) Name() string { return "terminal" }

func (t *TerminalChannel) IsEnabled() bool { return t.enabled }

// SetEnabled toggles output.
func (t *TerminalChannel) SetEnabled(enabled bool) { t.enabled = enabled }

// Send writes one line per notification.
func (t *TerminalChannel) Send(ctx context.Context, n Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	marker := "•"
	switch n.Type {
	case NotificationCycle:
		marker = "◆"
	case NotificationError:
		marker = "✗"
	case NotificationSummary:
		marker = "Σ"
	}
	_, err := fmt.Fprintf(t.out, "%s %s %-14s %s\n",
		n.Timestamp.Format("15:04:05"), marker, n.Title, n.Message)
	return err
}
