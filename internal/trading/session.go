// Package trading drives the strategy against a broker: the live session
// loop and the backtest runner.
package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"lowrider-trader/internal/broker"
	apperrors "lowrider-trader/internal/errors"
	"lowrider-trader/internal/logging"
	"lowrider-trader/internal/models"
	"lowrider-trader/internal/notify"
	"lowrider-trader/internal/security"
	"lowrider-trader/internal/store"
	"lowrider-trader/internal/strategy"
	"lowrider-trader/pkg/utils"
)

// SessionState is the phase of the cycle lifecycle.
type SessionState string

const (
	// StateCycleStarting means no cycle is open and the session waits for
	// an entry signal.
	StateCycleStarting SessionState = "CYCLE_STARTING"
	// StateCycleActive means an anchor filled and the ladder is managed.
	StateCycleActive SessionState = "CYCLE_ACTIVE"
	// StateCycleTerminating means every filled trade took profit and the
	// cycle is being flattened and recorded.
	StateCycleTerminating SessionState = "CYCLE_TERMINATING"
)

// SessionConfig holds the live-loop parameters.
type SessionConfig struct {
	PollInterval  time.Duration
	MaxSpreadPips float64
	FetchCount    int
	Resolution    string
	// BoundaryGrace is how long past the candle boundary to wait before
	// fetching, so the provider has published the bar.
	BoundaryGrace time.Duration
}

// Session runs the ladder strategy live against a broker, one tick per
// candle boundary.
type Session struct {
	broker   broker.Broker
	strat    *strategy.Lowrider
	store    store.DataStore // may be nil
	notifier *notify.Notifier
	log      zerolog.Logger
	cfg      SessionConfig
	retryCfg utils.RetryConfig
	audit    *security.AuditLogger // may be nil

	// candleRetryWait is the pause before the second candle fetch when
	// the provider has not published the boundary bar yet.
	candleRetryWait time.Duration

	state      SessionState
	cycleStart time.Time
	lastBarTS  time.Time
}

// NewSession wires a session. store may be nil to skip persistence.
func NewSession(b broker.Broker, strat *strategy.Lowrider, st store.DataStore, n *notify.Notifier, log zerolog.Logger, cfg SessionConfig) *Session {
	if cfg.BoundaryGrace <= 0 {
		cfg.BoundaryGrace = 2 * time.Second
	}
	return &Session{
		broker:          b,
		strat:           strat,
		store:           st,
		notifier:        n,
		log:             logging.WithSymbol(log, b.Instrument().Symbol),
		cfg:             cfg,
		retryCfg:        utils.DefaultRetryConfig(),
		candleRetryWait: 3 * time.Second,
		state:           StateCycleStarting,
		cycleStart:      time.Now().UTC(),
	}
}

// SetAudit attaches an order audit trail.
func (s *Session) SetAudit(a *security.AuditLogger) {
	s.audit = a
}

// State returns the current lifecycle phase.
func (s *Session) State() SessionState {
	return s.state
}

// Run loops forever: sleep to the next candle boundary, tick, repeat.
// Recoverable tick errors are logged and the loop continues; only context
// cancellation and fatal sequencing errors stop it.
func (s *Session) Run(ctx context.Context) error {
	if err := s.resumeCycle(ctx); err != nil {
		return err
	}

	s.log.Info().
		Str("state", string(s.state)).
		Dur("poll_interval", s.cfg.PollInterval).
		Msg("session started")

	for {
		wait := utils.SecondsUntilBoundary(time.Now().UTC(), s.cfg.PollInterval, s.cfg.BoundaryGrace)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		now := time.Now().UTC()
		if !utils.IsForexOpen(now) {
			s.log.Debug().Time("next_open", utils.NextForexOpen(now)).Msg("market closed")
			continue
		}

		if err := s.Tick(ctx, now); err != nil {
			if isFatal(err) {
				return err
			}
			s.log.Error().Err(err).Msg("tick failed")
			if s.notifier != nil {
				_ = s.notifier.SessionError(ctx, err, "tick")
			}
		}
	}
}

// resumeCycle adopts a cycle the broker already tracks, typically one
// rebuilt from position tags after a restart. The snapshot window is
// rewound to the cycle start so its positions stay in view.
func (s *Session) resumeCycle(ctx context.Context) error {
	cycle, err := s.broker.GetActiveCycle(ctx)
	if err != nil {
		return err
	}
	if cycle == nil || cycle.Closed() {
		return nil
	}

	s.state = StateCycleActive
	if !cycle.StartedAt.IsZero() && cycle.StartedAt.Before(s.cycleStart) {
		s.cycleStart = cycle.StartedAt.Add(-time.Minute)
	}
	s.log.Info().
		Str("cycle_id", cycle.ID).
		Int("trades", len(cycle.Trades)).
		Int("max_depth", cycle.DeepestDepth()).
		Msg("resumed open cycle")
	return nil
}

func isFatal(err error) bool {
	return apperrors.Is(err, apperrors.ErrNonMonotonicBar) ||
		apperrors.Is(err, apperrors.ErrSymbolMismatch) ||
		apperrors.Is(err, context.Canceled)
}

// Tick runs one pass of the cycle loop at the given wall-clock time.
func (s *Session) Tick(ctx context.Context, now time.Time) error {
	snap, err := utils.RetryWithResult(ctx, s.retryCfg, func() (*models.AccountSnapshot, error) {
		return s.broker.GetAccountSnapshot(ctx, s.cycleStart, now)
	})
	if err != nil {
		return err
	}

	if s.shouldTerminate(snap) {
		return s.terminateCycle(ctx, now)
	}

	candles, err := s.fetchNewCandles(ctx, now)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNoNewCandle) {
			s.log.Debug().Time("last_bar", s.lastBarTS).Msg("no new bar, skipping tick")
			return nil
		}
		return err
	}
	bar := candles[len(candles)-1]
	s.lastBarTS = bar.Timestamp

	if s.store != nil {
		inst := s.broker.Instrument()
		if err := s.store.SaveCandles(ctx, inst.Symbol, s.cfg.Resolution, candles); err != nil {
			s.log.Warn().Err(err).Msg("candle cache write failed")
		}
	}

	spread, err := s.broker.GetCurrentSpread(ctx)
	if err != nil {
		return err
	}

	cycle, err := s.broker.GetActiveCycle(ctx)
	if err != nil {
		return err
	}
	decision := s.strat.Evaluate(candles, cycle)

	var actions []string
	if spread > s.cfg.MaxSpreadPips {
		s.log.Warn().
			Float64("spread_pips", spread).
			Float64("max_spread_pips", s.cfg.MaxSpreadPips).
			Msg("spread above ceiling, holding placements")
	} else {
		actions, err = s.applyDecision(ctx, decision, cycle, snap)
		if err != nil {
			return err
		}
	}

	s.logTickState(bar, spread, snap, decision, actions)
	return nil
}

// shouldTerminate reports whether the cycle has fully taken profit: at
// least one recorded position and none still active. Pending orders that
// never filled do not keep a cycle alive.
func (s *Session) shouldTerminate(snap *models.AccountSnapshot) bool {
	return snap.HasPositions() && !snap.HasActive()
}

func (s *Session) terminateCycle(ctx context.Context, now time.Time) error {
	s.state = StateCycleTerminating

	cycle, err := s.broker.GetActiveCycle(ctx)
	if err != nil {
		return err
	}

	flattened, err := s.broker.FlattenAll(ctx)
	if err != nil {
		return err
	}

	inst := s.broker.Instrument()
	if cycle != nil {
		pnl := cycle.RealizedPnL(inst)
		logging.LogCycleClosed(s.log, cycle.ID, len(cycle.Trades), pnl)

		if s.store != nil {
			rec := store.CycleRecord{
				ID:          cycle.ID,
				Symbol:      cycle.Symbol,
				StartedAt:   cycle.StartedAt,
				ClosedAt:    now,
				Trades:      len(cycle.Trades),
				MaxDepth:    cycle.DeepestDepth(),
				RealizedPnL: pnl,
			}
			if err := s.store.SaveCycle(ctx, rec); err != nil {
				s.log.Warn().Err(err).Msg("cycle record write failed")
			}
			for _, t := range cycle.Trades {
				if err := s.store.SaveTrade(ctx, t); err != nil {
					s.log.Warn().Err(err).Msg("trade record write failed")
				}
			}
		}
		if s.notifier != nil {
			_ = s.notifier.CycleClosed(ctx, cycle.ID, pnl, len(cycle.Trades))
		}
		if s.audit != nil {
			_ = s.audit.LogCycleClosed(ctx, cycle.ID, cycle.Symbol, len(cycle.Trades), pnl)
			_ = s.audit.LogFlatten(ctx, cycle.Symbol, len(flattened))
		}
	} else if len(flattened) > 0 {
		s.log.Info().Int("flattened", len(flattened)).Msg("orphan positions flattened")
	}

	s.state = StateCycleStarting
	s.cycleStart = now
	s.lastBarTS = time.Time{}
	return nil
}

// fetchNewCandles pulls the bar window and insists the newest bar moved
// since the previous tick. One bounded retry covers providers that
// publish the bar a moment late.
func (s *Session) fetchNewCandles(ctx context.Context, now time.Time) ([]models.Candle, error) {
	inst := s.broker.Instrument()
	from := now.Add(-time.Duration(s.cfg.FetchCount) * s.cfg.PollInterval)

	fetch := func() ([]models.Candle, error) {
		candles, err := s.broker.GetCandlesRange(ctx, inst.Symbol, s.cfg.Resolution, from, now)
		if err != nil {
			return nil, err
		}
		if len(candles) == 0 {
			return nil, apperrors.ErrNoCandles
		}
		if !candles[len(candles)-1].Timestamp.After(s.lastBarTS) {
			return nil, apperrors.ErrNoNewCandle
		}
		return candles, nil
	}

	candles, err := fetch()
	if err == nil || !apperrors.Is(err, apperrors.ErrNoNewCandle) {
		return candles, err
	}

	timer := time.NewTimer(s.candleRetryWait)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil, ctx.Err()
	case <-timer.C:
	}
	return fetch()
}

// applyDecision turns a strategy decision into placements, returning a
// short action log for the tick summary.
func (s *Session) applyDecision(ctx context.Context, d strategy.Decision, cycle *models.Cycle, snap *models.AccountSnapshot) ([]string, error) {
	var actions []string

	switch d.Action {
	case strategy.ActionOpenAnchor:
		// The account must be flat before a new anchor goes in. Positions
		// without a tracked cycle mean state was lost (restart); entry
		// stays suppressed until the broker view is reconciled.
		if snap.HasPositions() {
			s.log.Warn().
				Int("positions", len(snap.Positions)).
				Msg("untracked positions in account, holding anchor entry")
			return actions, nil
		}

		anchor, err := s.broker.PlaceMarketBuy(ctx, d.Anchor.LotSize, &d.Anchor.TPPrice)
		if err != nil {
			return actions, err
		}
		// cycleStart is not touched here: the snapshot window must keep
		// covering the anchor, which opened moments ago. The window
		// advances only on termination.
		s.state = StateCycleActive
		logging.LogOrder(s.log, anchor.ID, anchor.Symbol, string(anchor.Side), 0, anchor.ExecutedPrice)
		actions = append(actions, "anchor")
		if s.audit != nil {
			_ = s.audit.LogOrderPlaced(ctx, anchor.ID, anchor.CycleID, anchor.Symbol, 0, anchor.ExecutedPrice, anchor.LotSize, false)
		}
		if s.notifier != nil {
			_ = s.notifier.CycleStarted(ctx, anchor.CycleID, anchor)
		}
		if s.store != nil {
			if err := s.store.SaveTrade(ctx, anchor); err != nil {
				s.log.Warn().Err(err).Msg("trade record write failed")
			}
		}

		rung, err := s.placeRung(ctx, anchor.CycleID, *d.FirstRung)
		if err != nil {
			return actions, err
		}
		if rung != nil {
			actions = append(actions, "rung_1")
		}
		return actions, nil

	case strategy.ActionAddRung, strategy.ActionNone:
		// Ladder patching below covers both: AddRung is the common case
		// of one missing depth past the deepest fill, and after a crash
		// restart the same walk re-derives any interior gaps.
	}

	if cycle == nil || !snap.HasPositions() {
		return actions, nil
	}

	patched, err := s.patchLadder(ctx, cycle)
	if err != nil {
		return actions, err
	}
	actions = append(actions, patched...)
	return actions, nil
}

// patchLadder places the next missing rung, if any. At most one pending
// order may be outstanding, so at most one rung goes in per tick; the
// walk is ascending and idempotent. A depth skipped on a stale quote
// does not stop the walk: deeper rungs sit at lower entries and may
// still be placeable.
func (s *Session) patchLadder(ctx context.Context, cycle *models.Cycle) ([]string, error) {
	if cycle.Closed() || cycle.PendingCount() > 0 {
		return nil, nil
	}

	anchor := cycle.TradeAtDepth(0)
	if anchor == nil {
		return nil, nil
	}
	if anchor.ExecutedPrice <= 0 {
		s.log.Warn().Str("anchor_id", anchor.ID).Msg("anchor has no fill price, holding ladder")
		return nil, nil
	}
	deepest := cycle.DeepestDepth()

	for _, depth := range s.strat.MissingDepths(cycle) {
		if depth == 0 || depth > deepest+1 {
			continue
		}
		rung := s.strat.RungAt(anchor.ExecutedPrice, depth)
		placed, err := s.placeRung(ctx, cycle.ID, rung)
		if err != nil {
			return nil, err
		}
		if placed == nil {
			continue
		}
		return []string{fmt.Sprintf("rung_%d", depth)}, nil
	}
	return nil, nil
}

// placeRung places one pending limit buy after the stale-quote check:
// if the bid is already below the rung entry the limit would fill
// immediately at a worse basis than planned, so the rung is skipped and
// re-derived next tick.
func (s *Session) placeRung(ctx context.Context, cycleID string, rung strategy.RungPlan) (*models.Trade, error) {
	quote, err := s.broker.GetCurrentQuote(ctx)
	if err != nil {
		return nil, err
	}
	if quote.Bid < rung.EntryPrice {
		s.log.Warn().
			Int("depth", rung.Depth).
			Float64("bid", quote.Bid).
			Float64("entry", rung.EntryPrice).
			Msg("quote below rung entry, skipping placement")
		return nil, nil
	}

	tag := models.FormatPositionTag(cycleID, rung.Depth)
	trade, err := s.broker.AddRung(ctx, rung.EntryPrice, rung.TPPrice, rung.LotSize, rung.Depth, tag)
	if err != nil {
		return nil, err
	}
	logging.LogOrder(s.log, trade.ID, trade.Symbol, string(trade.Side), rung.Depth, rung.EntryPrice)
	if s.audit != nil {
		_ = s.audit.LogOrderPlaced(ctx, trade.ID, trade.CycleID, trade.Symbol, rung.Depth, rung.EntryPrice, rung.LotSize, true)
	}
	if s.notifier != nil {
		_ = s.notifier.RungPlaced(ctx, trade)
	}
	if s.store != nil {
		if err := s.store.SaveTrade(ctx, trade); err != nil {
			s.log.Warn().Err(err).Msg("trade record write failed")
		}
	}
	return trade, nil
}

func (s *Session) logTickState(bar models.Candle, spread float64, snap *models.AccountSnapshot, d strategy.Decision, actions []string) {
	s.log.Info().
		Str("state", string(s.state)).
		Time("bar", bar.Timestamp).
		Float64("close", bar.Close).
		Float64("spread_pips", spread).
		Float64("rsi_prev", d.RSIPrev).
		Float64("rsi", d.RSICur).
		Str("signal", d.Action.String()).
		Float64("cycle_pnl", snap.CycleNetPnL).
		Int("positions", len(snap.Positions)).
		Int("pending", snap.NumPendingOrders).
		Strs("actions", actions).
		Msg("tick")
}
