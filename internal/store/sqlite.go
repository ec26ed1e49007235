package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"lowrider-trader/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[string]time.Time
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		syncTimes: make(map[string]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Candles table for historical OHLCV data
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		resolution TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, resolution, timestamp)
	);

	-- Trades table, one row per ladder order
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		cycle_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		lot_size REAL NOT NULL,
		requested_price REAL NOT NULL,
		executed_price REAL NOT NULL,
		open_time DATETIME NOT NULL,
		tp_price REAL,
		ladder_depth INTEGER NOT NULL,
		is_pending INTEGER NOT NULL,
		tag TEXT,
		exit_price REAL,
		close_time DATETIME,
		realized_pnl REAL,
		commission REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Cycle summaries
	CREATE TABLE IF NOT EXISTS cycles (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		closed_at DATETIME NOT NULL,
		trades INTEGER NOT NULL,
		max_depth INTEGER NOT NULL,
		realized_pnl REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Sync timestamps
	CREATE TABLE IF NOT EXISTS sync_times (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_candles_lookup ON candles(symbol, resolution, timestamp);
	CREATE INDEX IF NOT EXISTS idx_trades_cycle ON trades(cycle_id);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol_time ON trades(symbol, open_time);
	CREATE INDEX IF NOT EXISTS idx_cycles_symbol ON cycles(symbol, closed_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveCandles upserts candles in a single transaction.
func (s *SQLiteStore) SaveCandles(ctx context.Context, symbol, resolution string, candles []models.Candle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, resolution, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, resolution, timestamp) DO UPDATE SET
			open = excluded.open, high = excluded.high,
			low = excluded.low, close = excluded.close,
			volume = excluded.volume`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, resolution, c.Timestamp.UTC(),
			c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}

	return tx.Commit()
}

// GetCandles returns candles in [from, to], ascending.
func (s *SQLiteStore) GetCandles(ctx context.Context, symbol, resolution string, from, to time.Time) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND resolution = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`,
		symbol, resolution, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		c.Timestamp = c.Timestamp.UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// GetCandlesFreshness returns the newest stored timestamp for the pair.
func (s *SQLiteStore) GetCandlesFreshness(ctx context.Context, symbol, resolution string) (time.Time, error) {
	var ts sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(timestamp) FROM candles WHERE symbol = ? AND resolution = ?`,
		symbol, resolution).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return ts.Time.UTC(), nil
}

// SaveTrade upserts one trade row.
func (s *SQLiteStore) SaveTrade(ctx context.Context, t *models.Trade) error {
	pending := 0
	if t.IsPending {
		pending = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, cycle_id, symbol, side, lot_size, requested_price,
			executed_price, open_time, tp_price, ladder_depth, is_pending, tag,
			exit_price, close_time, realized_pnl, commission)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			executed_price = excluded.executed_price,
			is_pending = excluded.is_pending,
			exit_price = excluded.exit_price,
			close_time = excluded.close_time,
			realized_pnl = excluded.realized_pnl,
			commission = excluded.commission`,
		t.ID, t.CycleID, t.Symbol, string(t.Side), t.LotSize, t.RequestedPrice,
		t.ExecutedPrice, t.OpenTime.UTC(), t.TPPrice, t.LadderDepth, pending, t.Tag,
		t.ExitPrice, nullableTime(t.CloseTime), t.RealizedPnL, t.Commission)
	if err != nil {
		return fmt.Errorf("failed to save trade %s: %w", t.ID, err)
	}
	return nil
}

// GetTrades returns trades matching the filter, newest first.
func (s *SQLiteStore) GetTrades(ctx context.Context, filter TradeFilter) ([]*models.Trade, error) {
	q := `SELECT id, cycle_id, symbol, side, lot_size, requested_price, executed_price,
		open_time, tp_price, ladder_depth, is_pending, tag, exit_price, close_time,
		realized_pnl, commission FROM trades WHERE 1=1`
	var args []interface{}

	if filter.Symbol != "" {
		q += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.CycleID != "" {
		q += " AND cycle_id = ?"
		args = append(args, filter.CycleID)
	}
	if !filter.StartDate.IsZero() {
		q += " AND open_time >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		q += " AND open_time <= ?"
		args = append(args, filter.EndDate.UTC())
	}
	q += " ORDER BY open_time DESC"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		var t models.Trade
		var side string
		var pending int
		var closeTime sql.NullTime
		if err := rows.Scan(&t.ID, &t.CycleID, &t.Symbol, &side, &t.LotSize,
			&t.RequestedPrice, &t.ExecutedPrice, &t.OpenTime, &t.TPPrice,
			&t.LadderDepth, &pending, &t.Tag, &t.ExitPrice, &closeTime,
			&t.RealizedPnL, &t.Commission); err != nil {
			return nil, err
		}
		t.Side = models.Side(side)
		t.IsPending = pending == 1
		t.OpenTime = t.OpenTime.UTC()
		if closeTime.Valid {
			ct := closeTime.Time.UTC()
			t.CloseTime = &ct
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

// SaveCycle upserts one cycle summary.
func (s *SQLiteStore) SaveCycle(ctx context.Context, r CycleRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (id, symbol, started_at, closed_at, trades, max_depth, realized_pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			closed_at = excluded.closed_at,
			trades = excluded.trades,
			max_depth = excluded.max_depth,
			realized_pnl = excluded.realized_pnl`,
		r.ID, r.Symbol, r.StartedAt.UTC(), r.ClosedAt.UTC(), r.Trades, r.MaxDepth, r.RealizedPnL)
	if err != nil {
		return fmt.Errorf("failed to save cycle %s: %w", r.ID, err)
	}
	return nil
}

// GetCycles returns finished cycles for the symbol, newest first.
func (s *SQLiteStore) GetCycles(ctx context.Context, symbol string, limit int) ([]CycleRecord, error) {
	q := `SELECT id, symbol, started_at, closed_at, trades, max_depth, realized_pnl
		FROM cycles WHERE symbol = ? ORDER BY closed_at DESC`
	args := []interface{}{symbol}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CycleRecord
	for rows.Next() {
		var r CycleRecord
		if err := rows.Scan(&r.ID, &r.Symbol, &r.StartedAt, &r.ClosedAt,
			&r.Trades, &r.MaxDepth, &r.RealizedPnL); err != nil {
			return nil, err
		}
		r.StartedAt = r.StartedAt.UTC()
		r.ClosedAt = r.ClosedAt.UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetLastSync returns the last sync time for a data type.
func (s *SQLiteStore) GetLastSync(dataType string) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[dataType]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var ts sql.NullTime
	err := s.db.QueryRow(`SELECT last_sync FROM sync_times WHERE data_type = ?`, dataType).Scan(&ts)
	if err != nil || !ts.Valid {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[dataType] = ts.Time.UTC()
	s.mu.Unlock()
	return ts.Time.UTC()
}

// SetLastSync records the last sync time for a data type.
func (s *SQLiteStore) SetLastSync(dataType string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_times (data_type, last_sync) VALUES (?, ?)
		ON CONFLICT(data_type) DO UPDATE SET last_sync = excluded.last_sync`,
		dataType, t.UTC())
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.syncTimes[dataType] = t.UTC()
	s.mu.Unlock()
	return nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// Ensure SQLiteStore implements DataStore interface
var _ DataStore = (*SQLiteStore)(nil)
