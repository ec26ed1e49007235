// Package feed loads candle history for backtests.
package feed

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "lowrider-trader/internal/errors"
	"lowrider-trader/internal/models"
)

// csvTime parses the timestamp column. RFC3339 and the plain
// "2006-01-02 15:04:05" form are accepted; both are read as UTC.
type csvTime struct {
	time.Time
}

func (t *csvTime) UnmarshalCSV(value string) error {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if parsed, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", value)
}

func init() {
	// A feed file missing one of the ohlcv columns is a hard error, not
	// a zero-filled column.
	gocsv.FailIfUnmatchedStructTags = true
}

type csvRow struct {
	Timestamp csvTime `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    float64 `csv:"volume"`
}

// LoadCSV reads candles from a CSV file with the columns
// timestamp,open,high,low,close,volume. Rows come back sorted ascending
// by timestamp with duplicate timestamps dropped (first row wins).
// Missing columns and malformed rows are hard errors.
func LoadCSV(path string) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewDataError("feed", path, "open failed", err)
	}
	defer f.Close()

	candles, err := ReadCSV(f)
	if err != nil {
		return nil, apperrors.NewDataError("feed", path, "parse failed", err)
	}
	return candles, nil
}

// ReadCSV parses candle rows from a reader. See LoadCSV for the contract.
func ReadCSV(r io.Reader) ([]models.Candle, error) {
	var rows []csvRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.ErrNoCandles
	}

	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		c := models.Candle{
			Timestamp: row.Timestamp.Time,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		}
		if c.Timestamp.IsZero() {
			return nil, fmt.Errorf("row %d: missing timestamp", i+1)
		}
		if !c.Valid() {
			return nil, fmt.Errorf("row %d: invalid ohlc %v/%v/%v/%v", i+1, c.Open, c.High, c.Low, c.Close)
		}
		candles = append(candles, c)
	}

	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})

	deduped := candles[:0]
	var last time.Time
	for _, c := range candles {
		if !last.IsZero() && c.Timestamp.Equal(last) {
			continue
		}
		deduped = append(deduped, c)
		last = c.Timestamp
	}
	return deduped, nil
}
