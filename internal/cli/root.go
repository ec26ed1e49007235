package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"lowrider-trader/internal/config"
	"lowrider-trader/internal/logging"
)

// Version information
const (
	Version = "0.2.0"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Laddered mean-reversion forex trader",
		Long: `A laddered mean-reversion forex trading CLI.

It opens a cycle when RSI dips oversold and starts to recover, anchors
with a market buy, and maintains a ladder of limit buys below the anchor.
Every trade carries its own take-profit; the cycle closes when all filled
trades have taken profit.

Run it live or paper against TradeLocker, or backtest over CSV candles.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/lowrider-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newBacktestCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("lowrider-trader v%s\n", Version)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	table := NewTable(output, "KEY", "VALUE")
	table.AddRow("mode", cfg.Trading.Mode)
	table.AddRow("instrument", cfg.Trading.InstrumentSymbol)
	table.AddRow("lot_size", fmt.Sprintf("%.2f", cfg.Trading.LotSize))
	table.AddRow("rsi_period", fmt.Sprintf("%d", cfg.Strategy.RSIPeriod))
	table.AddRow("rsi_oversold_level", fmt.Sprintf("%.1f", cfg.Strategy.RSIOversoldLevel))
	table.AddRow("rung_spacing_pips", fmt.Sprintf("%.1f", cfg.Strategy.RungSpacingPips))
	table.AddRow("tp_target_pips", fmt.Sprintf("%.1f", cfg.Strategy.TPTargetPips))
	table.AddRow("max_ladder_depth", fmt.Sprintf("%d", cfg.Strategy.MaxLadderDepth))
	table.AddRow("max_spread_pips", fmt.Sprintf("%.1f", cfg.Session.MaxSpreadPips))
	table.AddRow("poll_interval_minutes", fmt.Sprintf("%d", cfg.Session.PollIntervalMinutes))
	table.AddRow("fetch_count", fmt.Sprintf("%d", cfg.Session.FetchCount))
	table.AddRow("candles_resolution", cfg.Session.CandlesResolution)
	table.Render()
	return nil
}
