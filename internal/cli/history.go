package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"lowrider-trader/internal/config"
	"lowrider-trader/internal/store"
)

func newHistoryCmd(app *App) *cobra.Command {
	var limit int
	var cycleID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded cycles and trades",
		Long: `List cycles recorded in the local SQLite store, newest first.

With --cycle, list the individual trades of that cycle instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			st, err := store.NewSQLiteStore(config.DefaultConfigDir() + "/trader.db")
			if err != nil {
				return err
			}
			defer st.Close()

			if cycleID != "" {
				return showTrades(cmd, output, st, cycleID)
			}
			return showCycles(cmd, output, st, app.Config, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of cycles to list")
	cmd.Flags().StringVar(&cycleID, "cycle", "", "list the trades of one cycle")
	return cmd
}

func showCycles(cmd *cobra.Command, output *Output, st store.DataStore, cfg *config.Config, limit int) error {
	symbol := cfg.Trading.InstrumentSymbol
	cycles, err := st.GetCycles(cmd.Context(), symbol, limit)
	if err != nil {
		return err
	}
	if output.IsJSON() {
		return output.JSON(cycles)
	}
	if len(cycles) == 0 {
		output.Info("No recorded cycles for %s", symbol)
		return nil
	}

	table := NewTable(output, "CYCLE", "STARTED", "CLOSED", "TRADES", "DEPTH", "PNL")
	for _, c := range cycles {
		table.AddRow(c.ID,
			c.StartedAt.Format("2006-01-02 15:04"),
			c.ClosedAt.Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", c.Trades),
			fmt.Sprintf("%d", c.MaxDepth),
			output.FormatPnL(c.RealizedPnL))
	}
	table.Render()

	if fresh, err := st.GetCandlesFreshness(cmd.Context(), symbol, cfg.Session.CandlesResolution); err == nil && !fresh.IsZero() {
		output.Dim("Candle cache fresh through %s", fresh.Format("2006-01-02 15:04"))
	}
	return nil
}

func showTrades(cmd *cobra.Command, output *Output, st store.DataStore, cycleID string) error {
	trades, err := st.GetTrades(cmd.Context(), store.TradeFilter{CycleID: cycleID})
	if err != nil {
		return err
	}
	if output.IsJSON() {
		return output.JSON(trades)
	}
	if len(trades) == 0 {
		output.Info("No trades recorded for cycle %s", cycleID)
		return nil
	}

	table := NewTable(output, "TRADE", "DEPTH", "OPENED", "ENTRY", "EXIT", "PNL")
	for _, t := range trades {
		exit := "-"
		if t.ExitPrice != nil {
			exit = fmt.Sprintf("%.5f", *t.ExitPrice)
		}
		pnl := "-"
		if t.RealizedPnL != nil {
			pnl = output.FormatPnL(*t.RealizedPnL)
		}
		table.AddRow(t.ID,
			fmt.Sprintf("%d", t.LadderDepth),
			t.OpenTime.Format("2006-01-02 15:04"),
			fmt.Sprintf("%.5f", t.ExecutedPrice),
			exit, pnl)
	}
	table.Render()
	return nil
}
