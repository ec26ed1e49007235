// Package security provides the append-only audit trail for trading
// actions.
package security

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	// Authentication events
	AuditLogin      AuditEventType = "LOGIN"
	AuditAuthFailed AuditEventType = "AUTH_FAILED"

	// Order events
	AuditOrderPlaced AuditEventType = "ORDER_PLACED"
	AuditOrderFilled AuditEventType = "ORDER_FILLED"
	AuditTakeProfit  AuditEventType = "TAKE_PROFIT"

	// Cycle events
	AuditCycleOpened AuditEventType = "CYCLE_OPENED"
	AuditCycleClosed AuditEventType = "CYCLE_CLOSED"
	AuditFlatten     AuditEventType = "FLATTEN"

	// Configuration events
	AuditModeChanged AuditEventType = "MODE_CHANGED"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType AuditEventType         `json:"event_type"`
	Symbol    string                 `json:"symbol,omitempty"`
	OrderID   string                 `json:"order_id,omitempty"`
	CycleID   string                 `json:"cycle_id,omitempty"`
	Depth     int                    `json:"depth,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Success   bool                   `json:"success"`
	ErrorMsg  string                 `json:"error,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
}

// AuditLogger writes trading actions as JSON lines to a rotated file.
type AuditLogger struct {
	writer    *lumberjack.Logger
	mu        sync.Mutex
	sessionID string
}

// AuditConfig holds audit logger configuration.
type AuditConfig struct {
	LogDir     string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultAuditConfig returns the default audit configuration.
func DefaultAuditConfig() AuditConfig {
	home, _ := os.UserHomeDir()
	return AuditConfig{
		LogDir:     filepath.Join(home, ".config", "lowrider-trader", "audit"),
		MaxSize:    50,
		MaxBackups: 30,
		MaxAge:     365,
		Compress:   true,
	}
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(cfg AuditConfig) (*AuditLogger, error) {
	// Restricted permissions: the trail records order activity
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	writer := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "audit.log"),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	return &AuditLogger{
		writer:    writer,
		sessionID: uuid.NewString(),
	}, nil
}

// Log appends one audit event.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	event.Timestamp = time.Now().UTC()
	event.SessionID = al.sessionID

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}
	if _, err := al.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// LogLogin records an authentication attempt.
func (al *AuditLogger) LogLogin(ctx context.Context, server string, success bool, errorMsg string) error {
	eventType := AuditLogin
	if !success {
		eventType = AuditAuthFailed
	}
	return al.Log(ctx, AuditEvent{
		EventType: eventType,
		Success:   success,
		ErrorMsg:  errorMsg,
		Details:   map[string]interface{}{"server": server},
	})
}

// LogOrderPlaced records an order placement.
func (al *AuditLogger) LogOrderPlaced(ctx context.Context, orderID, cycleID, symbol string, depth int, price, lots float64, pending bool) error {
	orderType := "market"
	if pending {
		orderType = "limit"
	}
	return al.Log(ctx, AuditEvent{
		EventType: AuditOrderPlaced,
		OrderID:   orderID,
		CycleID:   cycleID,
		Symbol:    symbol,
		Depth:     depth,
		Success:   true,
		Details: map[string]interface{}{
			"price":      price,
			"lots":       lots,
			"order_type": orderType,
		},
	})
}

// LogCycleClosed records a finished cycle with its realized result.
func (al *AuditLogger) LogCycleClosed(ctx context.Context, cycleID, symbol string, trades int, pnl float64) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditCycleClosed,
		CycleID:   cycleID,
		Symbol:    symbol,
		Success:   true,
		Details: map[string]interface{}{
			"trades": trades,
			"pnl":    pnl,
		},
	})
}

// LogFlatten records a flatten-all action.
func (al *AuditLogger) LogFlatten(ctx context.Context, symbol string, closed int) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditFlatten,
		Symbol:    symbol,
		Success:   true,
		Details:   map[string]interface{}{"closed": closed},
	})
}

// Close closes the audit logger.
func (al *AuditLogger) Close() error {
	return al.writer.Close()
}
