package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lowrider-trader/internal/broker"
	"lowrider-trader/internal/config"
	"lowrider-trader/internal/notify"
	"lowrider-trader/internal/security"
	"lowrider-trader/internal/store"
	"lowrider-trader/internal/strategy"
	"lowrider-trader/internal/trading"
)

func newRunCmd(app *App) *cobra.Command {
	var mode string
	var webhookURL string
	var noStore bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading session",
		Long: `Run the laddered mean-reversion session against TradeLocker.

In live mode orders go to the broker; in paper mode market data is real
but fills are simulated in-process. The session loops one tick per candle
boundary until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config
			if mode != "" {
				cfg.Trading.Mode = mode
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			creds := cfg.Credentials.TradeLocker
			if creds.Email == "" || creds.Password == "" {
				return fmt.Errorf("tradelocker credentials missing: set them in credentials.toml or TRADELOCKER_* env vars")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			live, err := broker.NewTradeLockerBroker(ctx, broker.TradeLockerConfig{
				Email:      creds.Email,
				Password:   creds.Password,
				Server:     creds.Server,
				BaseURL:    creds.BaseURL,
				Instrument: cfg.Instrument(),
			})
			if err != nil {
				return err
			}

			var b broker.Broker = live
			if cfg.IsPaperMode() {
				b = broker.NewPaperBroker(live, cfg.Trading.CommissionPerLot)
				output.Info("Paper mode: live data, simulated fills")
			} else {
				output.Warning("LIVE mode: orders will reach the broker")
			}

			var st store.DataStore
			if !noStore {
				sqlStore, serr := store.NewSQLiteStore(config.DefaultConfigDir() + "/trader.db")
				if serr != nil {
					app.Logger.Warn().Err(serr).Msg("store unavailable, continuing without persistence")
				} else {
					defer sqlStore.Close()
					st = sqlStore
				}
			}

			notifier := notify.New(cfg.Instrument(), notify.NewTerminalChannel())
			if webhookURL != "" {
				notifier.AddChannel(notify.NewWebhookChannel(webhookURL))
			}

			strat := strategy.New(strategy.Config{
				RSIPeriod:       cfg.Strategy.RSIPeriod,
				OversoldLevel:   cfg.Strategy.RSIOversoldLevel,
				RungSpacingPips: cfg.Strategy.RungSpacingPips,
				TPTargetPips:    cfg.Strategy.TPTargetPips,
				LotSize:         cfg.Trading.LotSize,
				MaxLadderDepth:  cfg.Strategy.MaxLadderDepth,
				Instrument:      cfg.Instrument(),
			})

			session := trading.NewSession(b, strat, st, notifier, app.Logger, trading.SessionConfig{
				PollInterval:  time.Duration(cfg.Session.PollIntervalMinutes) * time.Minute,
				MaxSpreadPips: cfg.Session.MaxSpreadPips,
				FetchCount:    cfg.Session.FetchCount,
				Resolution:    cfg.Session.CandlesResolution,
			})

			audit, err := security.NewAuditLogger(security.DefaultAuditConfig())
			if err != nil {
				app.Logger.Warn().Err(err).Msg("audit trail unavailable")
			} else {
				defer audit.Close()
				_ = audit.LogLogin(ctx, creds.Server, true, "")
				session.SetAudit(audit)
			}

			output.Success("Session started on %s (%s)", cfg.Trading.InstrumentSymbol, cfg.Trading.Mode)
			err = session.Run(ctx)
			if ctx.Err() != nil {
				output.Info("Session stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "override trading mode (live|paper)")
	cmd.Flags().StringVar(&webhookURL, "webhook", "", "webhook URL for notifications")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "disable SQLite persistence")
	return cmd
}
