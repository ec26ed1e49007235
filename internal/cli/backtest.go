package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lowrider-trader/internal/broker"
	"lowrider-trader/internal/config"
	"lowrider-trader/internal/feed"
	"lowrider-trader/internal/models"
	"lowrider-trader/internal/store"
	"lowrider-trader/internal/strategy"
	"lowrider-trader/internal/trading"
	"lowrider-trader/pkg/utils"
)

func newBacktestCmd(app *App) *cobra.Command {
	var csvPath string
	var outPath string
	var persist bool
	var fromStr, toStr string

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay the strategy over historical candles",
		Long: `Replay the ladder strategy over historical candles.

With --csv the candles come from a file with the columns
timestamp,open,high,low,close,volume. Without it, the candle cache in
the local SQLite store is replayed over the --from/--to range. Fills
are simulated bar by bar: pendings fill when the bar range touches
their price, and one take-profit resolves per bar.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config

			candles, err := loadBacktestCandles(cmd, cfg, csvPath, fromStr, toStr)
			if err != nil {
				return err
			}

			sim := broker.NewBacktestBroker(cfg.Instrument(), cfg.Trading.CommissionPerLot)
			strat := strategy.New(strategy.Config{
				RSIPeriod:       cfg.Strategy.RSIPeriod,
				OversoldLevel:   cfg.Strategy.RSIOversoldLevel,
				RungSpacingPips: cfg.Strategy.RungSpacingPips,
				TPTargetPips:    cfg.Strategy.TPTargetPips,
				LotSize:         cfg.Trading.LotSize,
				MaxLadderDepth:  cfg.Strategy.MaxLadderDepth,
				Instrument:      cfg.Instrument(),
			})

			bt := trading.NewBacktester(sim, strat, app.Logger, cfg.Session.FetchCount)

			started := time.Now()
			result, err := bt.Run(cmd.Context(), candles)
			if err != nil {
				return err
			}
			elapsed := time.Since(started)

			if persist {
				st, err := store.NewSQLiteStore(config.DefaultConfigDir() + "/trader.db")
				if err != nil {
					return err
				}
				defer st.Close()
				if err := result.Persist(cmd.Context(), st); err != nil {
					return err
				}
			}

			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := result.WriteJSON(f); err != nil {
					return err
				}
				output.Dim("Result written to %s", outPath)
			}

			if output.IsJSON() {
				return output.JSON(result.Summary)
			}

			s := result.Summary
			output.Info("Backtest %s  %s → %s  (%d bars in %s)", s.Symbol,
				s.Start.Format("2006-01-02"), s.End.Format("2006-01-02"), s.Bars, elapsed.Round(time.Millisecond))
			table := NewTable(output, "METRIC", "VALUE")
			table.AddRow("total pnl", output.FormatPnL(s.TotalPnL))
			table.AddRow("cycles closed", fmt.Sprintf("%d", s.CyclesClosed))
			table.AddRow("winning cycles", fmt.Sprintf("%d", s.WinningCycles))
			table.AddRow("trades closed", fmt.Sprintf("%d", s.TradesClosed))
			table.AddRow("max depth seen", fmt.Sprintf("%d", s.MaxDepthSeen))
			if s.CyclesClosed > 0 {
				winRate := float64(s.WinningCycles) / float64(s.CyclesClosed) * 100
				table.AddRow("win rate", utils.FormatPercent(winRate))
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "path to CSV candle file")
	cmd.Flags().StringVar(&outPath, "out", "", "write full result JSON to this file")
	cmd.Flags().BoolVar(&persist, "save", false, "persist trades and cycles to the SQLite store")
	cmd.Flags().StringVar(&fromStr, "from", "", "start of the cached-candle range (2006-01-02)")
	cmd.Flags().StringVar(&toStr, "to", "", "end of the cached-candle range (2006-01-02)")
	return cmd
}

// loadBacktestCandles reads the replay window from the CSV file when one
// is given, otherwise from the candle cache in the SQLite store.
func loadBacktestCandles(cmd *cobra.Command, cfg *config.Config, csvPath, fromStr, toStr string) ([]models.Candle, error) {
	if csvPath != "" {
		return feed.LoadCSV(csvPath)
	}

	from := time.Time{}
	to := time.Now().UTC()
	if fromStr != "" {
		t, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return nil, fmt.Errorf("invalid --from date %q: %w", fromStr, err)
		}
		from = t
	}
	if toStr != "" {
		t, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return nil, fmt.Errorf("invalid --to date %q: %w", toStr, err)
		}
		to = t.Add(24 * time.Hour)
	}

	st, err := store.NewSQLiteStore(config.DefaultConfigDir() + "/trader.db")
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.GetCandles(cmd.Context(), cfg.Trading.InstrumentSymbol, cfg.Session.CandlesResolution, from, to)
}
