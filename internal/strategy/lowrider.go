// Package strategy implements the laddered mean-reversion entry logic.
//
// The strategy waits for an oversold RSI reading that starts curling back
// up, opens an anchor market buy with a tight take-profit, and keeps a
// ladder of limit buys spaced below the anchor so pullbacks add size at
// better prices. Every trade carries its own take-profit; the cycle ends
// when every filled trade has taken profit.
package strategy

import (
	"lowrider-trader/internal/indicators"
	"lowrider-trader/internal/models"
)

// Action is the kind of placement the strategy wants.
type Action int

const (
	// ActionNone means hold: no signal, or the ladder is already complete.
	ActionNone Action = iota
	// ActionOpenAnchor means start a new cycle: market buy plus first rung.
	ActionOpenAnchor
	// ActionAddRung means extend the active ladder by one pending rung.
	ActionAddRung
)

func (a Action) String() string {
	switch a {
	case ActionOpenAnchor:
		return "OPEN_ANCHOR"
	case ActionAddRung:
		return "ADD_RUNG"
	default:
		return "NONE"
	}
}

// RungPlan describes one limit buy to place.
type RungPlan struct {
	Depth      int
	EntryPrice float64
	TPPrice    float64
	LotSize    float64
}

// AnchorPlan describes the market buy that opens a cycle. ReferencePrice
// is the close the plan was derived from; live fills may differ slightly.
type AnchorPlan struct {
	ReferencePrice float64
	TPPrice        float64
	LotSize        float64
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Action    Action
	RSIPrev   float64
	RSICur    float64
	Anchor    *AnchorPlan
	FirstRung *RungPlan
	NextRung  *RungPlan
}

// Config holds the strategy parameters.
type Config struct {
	RSIPeriod       int
	OversoldLevel   float64
	RungSpacingPips float64
	TPTargetPips    float64
	LotSize         float64
	MaxLadderDepth  int
	Instrument      models.Instrument
}

// Lowrider is the ladder strategy. It is stateless between calls: every
// evaluation derives its view from the candle history and cycle passed in.
type Lowrider struct {
	cfg Config
	rsi *indicators.RSI
}

// New creates a strategy instance.
func New(cfg Config) *Lowrider {
	return &Lowrider{cfg: cfg, rsi: indicators.NewRSI(cfg.RSIPeriod)}
}

// Config returns the parameters the strategy runs with.
func (s *Lowrider) Config() Config {
	return s.cfg
}

// EntrySignal reports whether the last two RSI readings form the
// dip-then-curl edge: previous at or below the oversold level, current
// strictly above the previous. Returns the two readings for logging.
func (s *Lowrider) EntrySignal(candles []models.Candle) (bool, float64, float64) {
	values, err := s.rsi.Calculate(candles)
	if err != nil || len(values) < 2 {
		return false, 0, 0
	}
	prev := values[len(values)-2]
	cur := values[len(values)-1]
	fired := prev <= s.cfg.OversoldLevel && cur > prev
	return fired, prev, cur
}

// RungAt derives the rung at the given ladder depth from the anchor entry
// price. Depth 0 is the anchor itself.
func (s *Lowrider) RungAt(anchorEntry float64, depth int) RungPlan {
	entry := anchorEntry - s.cfg.Instrument.Pips(s.cfg.RungSpacingPips*float64(depth))
	return RungPlan{
		Depth:      depth,
		EntryPrice: entry,
		TPPrice:    entry + s.cfg.Instrument.Pips(s.cfg.TPTargetPips),
		LotSize:    s.cfg.LotSize,
	}
}

// MissingDepths returns the ladder depths not yet present in the cycle,
// ascending, up to the configured maximum. A nil cycle means the whole
// ladder is missing.
func (s *Lowrider) MissingDepths(cycle *models.Cycle) []int {
	existing := map[int]struct{}{}
	if cycle != nil {
		existing = cycle.ExistingDepths()
	}
	var missing []int
	for depth := 0; depth < s.cfg.MaxLadderDepth; depth++ {
		if _, ok := existing[depth]; !ok {
			missing = append(missing, depth)
		}
	}
	return missing
}

// Evaluate decides the next placement given the candle history and the
// active cycle (nil or closed means no cycle). It is pure: no placement
// happens here.
func (s *Lowrider) Evaluate(candles []models.Candle, cycle *models.Cycle) Decision {
	fired, prev, cur := s.EntrySignal(candles)
	d := Decision{Action: ActionNone, RSIPrev: prev, RSICur: cur}

	active := cycle != nil && !cycle.Closed() && len(cycle.Trades) > 0
	if !active {
		if !fired || len(candles) == 0 {
			return d
		}
		ref := candles[len(candles)-1].Close
		first := s.RungAt(ref, 1)
		d.Action = ActionOpenAnchor
		d.Anchor = &AnchorPlan{
			ReferencePrice: ref,
			TPPrice:        ref + s.cfg.Instrument.Pips(s.cfg.TPTargetPips),
			LotSize:        s.cfg.LotSize,
		}
		d.FirstRung = &first
		return d
	}

	// Extend the ladder one rung at a time: the next rung goes in only
	// after the previous one has filled, and only one pending order may
	// be outstanding.
	if cycle.PendingCount() > 0 {
		return d
	}
	deepest := cycle.DeepestDepth()
	next := deepest + 1
	if next >= s.cfg.MaxLadderDepth {
		return d
	}
	anchor := cycle.TradeAtDepth(0)
	if anchor == nil {
		return d
	}
	rung := s.RungAt(anchor.ExecutedPrice, next)
	d.Action = ActionAddRung
	d.NextRung = &rung
	return d
}
