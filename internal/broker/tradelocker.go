// Package broker provides broker integration implementations.
package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/go-querystring/query"

	apperrors "lowrider-trader/internal/errors"
	"lowrider-trader/internal/models"
	"lowrider-trader/pkg/utils"
)

// recoverLookbackDays bounds how far back startup cycle recovery scans
// for tagged positions still working at the broker.
const recoverLookbackDays = 7

// TradeLockerBroker implements the Broker interface against the
// TradeLocker REST API. It handles authentication, account and instrument
// discovery, candle history, order placement and position mapping into
// the internal models.
type TradeLockerBroker struct {
	client     *resty.Client
	instrument models.Instrument

	email    string
	password string
	server   string

	token     string
	accountID string

	// symbol -> tradableInstrumentId
	instrumentMap map[string]int64

	retryCfg utils.RetryConfig

	// Live-side cycle bookkeeping: the broker owns the trade records it
	// creates; the session owns the current-cycle pointer lifetime.
	current *models.Cycle
	cycles  []*models.Cycle

	mu sync.RWMutex
}

// TradeLockerConfig holds configuration for the TradeLocker broker.
type TradeLockerConfig struct {
	Email      string
	Password   string
	Server     string
	BaseURL    string
	Instrument models.Instrument
	AccountID  string
}

// NewTradeLockerBroker creates a live broker, authenticates and loads the
// account's instrument table.
func NewTradeLockerBroker(ctx context.Context, cfg TradeLockerConfig) (*TradeLockerBroker, error) {
	b := &TradeLockerBroker{
		client: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(15 * time.Second).
			SetHeader("accept", "application/json"),
		instrument:    cfg.Instrument,
		email:         cfg.Email,
		password:      cfg.Password,
		server:        cfg.Server,
		accountID:     cfg.AccountID,
		instrumentMap: make(map[string]int64),
		retryCfg:      utils.DefaultRetryConfig(),
	}

	if err := b.Authenticate(ctx); err != nil {
		return nil, err
	}
	if b.accountID == "" {
		if err := b.autoAssignAccount(ctx); err != nil {
			return nil, err
		}
	}
	if err := b.loadInstruments(ctx); err != nil {
		return nil, err
	}
	if err := b.recoverCycle(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// Instrument returns the configured instrument.
func (b *TradeLockerBroker) Instrument() models.Instrument {
	return b.instrument
}

// Authenticate obtains a JWT access token.
func (b *TradeLockerBroker) Authenticate(ctx context.Context) error {
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"email":    b.email,
			"password": b.password,
			"server":   b.server,
		}).
		SetResult(&out).
		Post("/auth/jwt/token")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConnectionFailed, err.Error())
	}
	if resp.StatusCode() != 201 {
		return apperrors.NewBrokerError("AUTH", fmt.Sprintf("authentication failed: %s", resp.String()), nil)
	}
	if out.AccessToken == "" {
		return apperrors.NewDataError("auth", b.instrument.Symbol, "missing accessToken in response", nil)
	}

	b.mu.Lock()
	b.token = out.AccessToken
	b.mu.Unlock()
	return nil
}

func (b *TradeLockerBroker) authedRequest(ctx context.Context) (*resty.Request, error) {
	b.mu.RLock()
	token := b.token
	b.mu.RUnlock()

	if token == "" {
		return nil, apperrors.ErrNotAuthenticated
	}
	return b.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetHeader("accNum", "1"), nil
}

func (b *TradeLockerBroker) autoAssignAccount(ctx context.Context) error {
	req, err := b.authedRequest(ctx)
	if err != nil {
		return err
	}

	var out struct {
		Accounts []struct {
			ID string `json:"id"`
		} `json:"accounts"`
	}
	resp, err := req.SetResult(&out).Get("/auth/jwt/all-accounts")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConnectionFailed, err.Error())
	}
	if resp.IsError() {
		return apperrors.NewBrokerError("ACCOUNTS", resp.String(), nil)
	}
	if len(out.Accounts) == 0 {
		return apperrors.NewBrokerError("ACCOUNTS", "no accounts available", nil)
	}

	b.accountID = out.Accounts[0].ID
	return nil
}

func (b *TradeLockerBroker) loadInstruments(ctx context.Context) error {
	req, err := b.authedRequest(ctx)
	if err != nil {
		return err
	}

	var out []struct {
		Symbol               string `json:"symbol"`
		TradableInstrumentID int64  `json:"tradableInstrumentId"`
	}
	resp, err := req.SetResult(&out).Get(fmt.Sprintf("/trade/accounts/%s/instruments", b.accountID))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConnectionFailed, err.Error())
	}
	if resp.IsError() {
		return apperrors.NewBrokerError("INSTRUMENTS", resp.String(), nil)
	}

	b.mu.Lock()
	for _, item := range out {
		b.instrumentMap[item.Symbol] = item.TradableInstrumentID
	}
	b.mu.Unlock()

	if _, ok := b.instrumentMap[b.instrument.Symbol]; !ok {
		return apperrors.Wrapf(apperrors.ErrInstrumentUnknown, "%s not tradable on this account", b.instrument.Symbol)
	}
	return nil
}

func (b *TradeLockerBroker) tradableID(symbol string) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	id, ok := b.instrumentMap[symbol]
	if !ok {
		return 0, apperrors.Wrapf(apperrors.ErrInstrumentUnknown, "%s", symbol)
	}
	return id, nil
}

// candleQuery is the /trade/history query string.
type candleQuery struct {
	RouteID              string `url:"routeId"`
	From                 int64  `url:"from"`
	To                   int64  `url:"to"`
	Resolution           string `url:"resolution"`
	TradableInstrumentID int64  `url:"tradableInstrumentId"`
}

// GetCandlesRange fetches the bar history between from and to. Bar
// timestamps arrive as unix milliseconds.
func (b *TradeLockerBroker) GetCandlesRange(ctx context.Context, symbol, resolution string, from, to time.Time) ([]models.Candle, error) {
	if symbol != b.instrument.Symbol {
		return nil, apperrors.Wrapf(apperrors.ErrSymbolMismatch, "%s (configured %s)", symbol, b.instrument.Symbol)
	}
	tid, err := b.tradableID(symbol)
	if err != nil {
		return nil, err
	}

	params, err := query.Values(candleQuery{
		RouteID:              "452",
		From:                 from.UTC().UnixMilli(),
		To:                   to.UTC().UnixMilli(),
		Resolution:           resolution,
		TradableInstrumentID: tid,
	})
	if err != nil {
		return nil, err
	}

	return utils.RetryWithResult(ctx, b.retryCfg, func() ([]models.Candle, error) {
		req, err := b.authedRequest(ctx)
		if err != nil {
			return nil, err
		}

		var payload map[string]interface{}
		resp, err := req.
			SetQueryParamsFromValues(params).
			SetResult(&payload).
			Get("/trade/history")
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConnectionFailed, err.Error())
		}
		if resp.IsError() {
			return nil, apperrors.NewBrokerError("HISTORY", resp.String(), nil)
		}
		return parseBarDetails(payload, symbol)
	})
}

// parseBarDetails converts the provider bar payload into candles. The
// schema nests barDetails either at the top level or under "d".
func parseBarDetails(payload map[string]interface{}, symbol string) ([]models.Candle, error) {
	raw, ok := payload["barDetails"]
	if !ok {
		if d, dok := payload["d"].(map[string]interface{}); dok {
			raw, ok = d["barDetails"]
		}
	}
	if !ok {
		return nil, apperrors.NewDataError("candles", symbol, "missing barDetails in payload", nil)
	}

	bars, ok := raw.([]interface{})
	if !ok {
		return nil, apperrors.NewDataError("candles", symbol, "barDetails is not a list", nil)
	}

	out := make([]models.Candle, 0, len(bars))
	for _, entry := range bars {
		bar, ok := entry.(map[string]interface{})
		if !ok {
			return nil, apperrors.NewDataError("candles", symbol, "malformed bar entry", nil)
		}
		t, terr := barField(bar, "t")
		o, oerr := barField(bar, "o")
		h, herr := barField(bar, "h")
		l, lerr := barField(bar, "l")
		c, cerr := barField(bar, "c")
		if terr != nil || oerr != nil || herr != nil || lerr != nil || cerr != nil {
			return nil, apperrors.NewDataError("candles", symbol, "bar missing required field", nil)
		}
		v, _ := barField(bar, "v") // volume may be absent

		out = append(out, models.Candle{
			Timestamp: time.UnixMilli(int64(t)).UTC(),
			Open:      o,
			High:      h,
			Low:       l,
			Close:     c,
			Volume:    v,
		})
	}
	return out, nil
}

func barField(bar map[string]interface{}, key string) (float64, error) {
	v, ok := bar[key].(float64)
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	return v, nil
}

// GetCurrentQuote fetches the current bid/ask.
func (b *TradeLockerBroker) GetCurrentQuote(ctx context.Context) (models.Quote, error) {
	tid, err := b.tradableID(b.instrument.Symbol)
	if err != nil {
		return models.Quote{}, err
	}

	return utils.RetryWithResult(ctx, b.retryCfg, func() (models.Quote, error) {
		req, err := b.authedRequest(ctx)
		if err != nil {
			return models.Quote{}, err
		}

		var out struct {
			D struct {
				Bid float64 `json:"bp"`
				Ask float64 `json:"ap"`
			} `json:"d"`
		}
		resp, err := req.
			SetQueryParam("routeId", "452").
			SetQueryParam("tradableInstrumentId", fmt.Sprintf("%d", tid)).
			SetResult(&out).
			Get("/trade/quotes")
		if err != nil {
			return models.Quote{}, apperrors.Wrap(apperrors.ErrConnectionFailed, err.Error())
		}
		if resp.IsError() {
			return models.Quote{}, apperrors.NewBrokerError("QUOTES", resp.String(), nil)
		}
		return models.Quote{
			Symbol:    b.instrument.Symbol,
			Bid:       out.D.Bid,
			Ask:       out.D.Ask,
			Timestamp: time.Now().UTC(),
		}, nil
	})
}

// GetCurrentSpread returns the live spread in pips.
func (b *TradeLockerBroker) GetCurrentSpread(ctx context.Context) (float64, error) {
	q, err := b.GetCurrentQuote(ctx)
	if err != nil {
		return 0, err
	}
	return q.Spread(b.instrument), nil
}

type orderRequest struct {
	TradableInstrumentID int64    `json:"tradableInstrumentId"`
	Qty                  float64  `json:"qty"`
	Side                 string   `json:"side"`
	Type                 string   `json:"type"`
	Validity             string   `json:"validity"`
	Price                *float64 `json:"price,omitempty"`
	TakeProfit           *float64 `json:"takeProfit,omitempty"`
	StopLoss             *float64 `json:"stopLoss,omitempty"`
	StrategyID           string   `json:"strategyId,omitempty"`
}

func (b *TradeLockerBroker) placeOrder(ctx context.Context, body orderRequest) (string, map[string]interface{}, error) {
	req, err := b.authedRequest(ctx)
	if err != nil {
		return "", nil, err
	}

	var out map[string]interface{}
	resp, err := req.
		SetBody(body).
		SetResult(&out).
		Post(fmt.Sprintf("/trade/accounts/%s/orders", b.accountID))
	if err != nil {
		return "", nil, apperrors.Wrap(apperrors.ErrConnectionFailed, err.Error())
	}
	if resp.IsError() {
		return "", nil, apperrors.NewBrokerError("ORDER", resp.String(), nil)
	}

	orderID, _ := out["orderId"].(string)
	if orderID == "" {
		if d, ok := out["d"].(map[string]interface{}); ok {
			orderID, _ = d["orderId"].(string)
		}
	}
	if orderID == "" {
		return "", nil, apperrors.NewDataError("order", b.instrument.Symbol, "missing orderId in response", nil)
	}
	return orderID, out, nil
}

// PlaceMarketBuy places a market BUY with an optional take-profit. The
// ask quoted just before placement is recorded as the requested price,
// and the executed price is read back from the resulting position when
// the broker reports it in time.
func (b *TradeLockerBroker) PlaceMarketBuy(ctx context.Context, lotSize float64, tpPrice *float64) (*models.Trade, error) {
	tid, err := b.tradableID(b.instrument.Symbol)
	if err != nil {
		return nil, err
	}

	var reference float64
	if quote, qerr := b.GetCurrentQuote(ctx); qerr == nil {
		reference = quote.Ask
	}

	orderID, raw, err := b.placeOrder(ctx, orderRequest{
		TradableInstrumentID: tid,
		Qty:                  lotSize,
		Side:                 "buy",
		Type:                 "market",
		Validity:             "IOC",
		TakeProfit:           tpPrice,
	})
	if err != nil {
		return nil, err
	}

	executed := reference
	if p, ok := b.newestActivePosition(ctx); ok && p.Price > 0 {
		executed = p.Price
	}

	trade := &models.Trade{
		ID:             orderID,
		Symbol:         b.instrument.Symbol,
		Side:           models.SideBuy,
		LotSize:        lotSize,
		RequestedPrice: reference,
		ExecutedPrice:  executed,
		OpenTime:       time.Now().UTC(),
		TPPrice:        tpPrice,
		IsPending:      false,
		Raw:            raw,
	}
	b.attachLive(trade)
	return trade, nil
}

// PlaceLimitBuy places a pending LIMIT BUY with an optional take-profit.
func (b *TradeLockerBroker) PlaceLimitBuy(ctx context.Context, entryPrice, lotSize float64, tpPrice *float64, tag string) (*models.Trade, error) {
	depth := models.ParseDepthFromTag(tag)
	if depth == models.DepthUnknown {
		depth = 0
	}
	return b.addRung(ctx, entryPrice, tpPrice, lotSize, depth, tag)
}

// AddRung places a pending LIMIT BUY with its take-profit attached,
// tagged with the ladder depth.
func (b *TradeLockerBroker) AddRung(ctx context.Context, entryPrice, tpPrice, lotSize float64, ladderDepth int, tag string) (*models.Trade, error) {
	return b.addRung(ctx, entryPrice, &tpPrice, lotSize, ladderDepth, tag)
}

func (b *TradeLockerBroker) addRung(ctx context.Context, entryPrice float64, tpPrice *float64, lotSize float64, ladderDepth int, tag string) (*models.Trade, error) {
	tid, err := b.tradableID(b.instrument.Symbol)
	if err != nil {
		return nil, err
	}

	price := entryPrice
	orderID, raw, err := b.placeOrder(ctx, orderRequest{
		TradableInstrumentID: tid,
		Qty:                  lotSize,
		Side:                 "buy",
		Type:                 "limit",
		Validity:             "GTC",
		Price:                &price,
		TakeProfit:           tpPrice,
		StrategyID:           tag,
	})
	if err != nil {
		return nil, err
	}

	trade := &models.Trade{
		ID:             orderID,
		Symbol:         b.instrument.Symbol,
		Side:           models.SideBuy,
		LotSize:        lotSize,
		RequestedPrice: entryPrice,
		ExecutedPrice:  entryPrice,
		OpenTime:       time.Now().UTC(),
		TPPrice:        tpPrice,
		LadderDepth:    ladderDepth,
		IsPending:      true,
		Tag:            tag,
		Raw:            raw,
	}
	b.attachLive(trade)
	return trade, nil
}

// livePosition is a broker-side position or working order as reported
// by the positions endpoint.
type livePosition struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Price      float64 `json:"price"`
	TakeProfit float64 `json:"takeProfit"`
	Qty        float64 `json:"qty"`
	StrategyID string  `json:"strategyId"`
	OpenedAt   int64   `json:"openDate"`
	PnL        float64 `json:"unrealizedPl"`
}

func (p livePosition) openedTime() time.Time {
	return time.UnixMilli(p.OpenedAt).UTC()
}

func (b *TradeLockerBroker) fetchPositions(ctx context.Context, from, to time.Time) ([]livePosition, float64, error) {
	req, err := b.authedRequest(ctx)
	if err != nil {
		return nil, 0, err
	}

	var out struct {
		D struct {
			Positions []livePosition `json:"positions"`
			Balance   float64        `json:"balance"`
		} `json:"d"`
	}
	resp, err := req.
		SetQueryParam("from", fmt.Sprintf("%d", from.UTC().UnixMilli())).
		SetQueryParam("to", fmt.Sprintf("%d", to.UTC().UnixMilli())).
		SetResult(&out).
		Get(fmt.Sprintf("/trade/accounts/%s/positions", b.accountID))
	if err != nil {
		return nil, 0, apperrors.Wrap(apperrors.ErrConnectionFailed, err.Error())
	}
	if resp.IsError() {
		return nil, 0, apperrors.NewBrokerError("POSITIONS", resp.String(), nil)
	}
	return out.D.Positions, out.D.Balance, nil
}

// GetAccountSnapshot fetches positions and pending orders for the cycle
// window and projects them into an AccountSnapshot. Ladder depths are
// reconstructed from the order tags.
func (b *TradeLockerBroker) GetAccountSnapshot(ctx context.Context, from, to time.Time) (*models.AccountSnapshot, error) {
	return utils.RetryWithResult(ctx, b.retryCfg, func() (*models.AccountSnapshot, error) {
		positions, balance, err := b.fetchPositions(ctx, from, to)
		if err != nil {
			return nil, err
		}

		snap := &models.AccountSnapshot{
			AccountBalance: balance,
			TakenAt:        time.Now().UTC(),
		}
		for _, p := range positions {
			opened := p.openedTime()
			if opened.Before(from) || opened.After(to) {
				continue
			}
			status := models.PositionStatus(p.Status)
			switch status {
			case models.PositionPending, models.PositionActive, models.PositionClosed:
			default:
				return nil, apperrors.NewDataError("positions", b.instrument.Symbol,
					fmt.Sprintf("unexpected position status %q", p.Status), nil)
			}
			if status == models.PositionPending {
				snap.NumPendingOrders++
			}
			if status == models.PositionActive {
				snap.CycleGrossPnL += p.PnL
			}
			snap.Positions = append(snap.Positions, models.SnapshotPosition{
				ID:         p.ID,
				Depth:      models.ParseDepthFromTag(p.StrategyID),
				Status:     status,
				EntryPrice: p.Price,
				TPPrice:    p.TakeProfit,
				LotSize:    p.Qty,
			})
		}
		snap.AccountOpenGrossPnL = snap.CycleGrossPnL
		snap.CycleNetPnL = snap.CycleGrossPnL
		snap.AccountOpenNetPnL = snap.AccountOpenGrossPnL
		return snap, nil
	})
}

// recoverCycle rebuilds the tracked cycle from tagged broker positions.
// After a restart the in-memory cycle is gone while the ladder may
// still be working at the broker, so the tags are the source of truth.
func (b *TradeLockerBroker) recoverCycle(ctx context.Context) error {
	now := time.Now().UTC()
	positions, _, err := b.fetchPositions(ctx, now.AddDate(0, 0, -recoverLookbackDays), now.Add(time.Minute))
	if err != nil {
		return err
	}

	var cycle *models.Cycle
	for _, p := range positions {
		status := models.PositionStatus(p.Status)
		if status != models.PositionPending && status != models.PositionActive {
			continue
		}
		cycleID := models.ParseCycleIDFromTag(p.StrategyID)
		if cycleID == "" {
			continue
		}
		opened := p.openedTime()
		if cycle == nil {
			cycle = &models.Cycle{
				ID:        cycleID,
				Symbol:    b.instrument.Symbol,
				StartedAt: opened,
			}
		}
		if opened.Before(cycle.StartedAt) {
			cycle.StartedAt = opened
		}
		t := &models.Trade{
			ID:             p.ID,
			Symbol:         b.instrument.Symbol,
			Side:           models.SideBuy,
			LotSize:        p.Qty,
			RequestedPrice: p.Price,
			ExecutedPrice:  p.Price,
			OpenTime:       opened,
			LadderDepth:    models.ParseDepthFromTag(p.StrategyID),
			IsPending:      status == models.PositionPending,
			Tag:            p.StrategyID,
		}
		if tp := p.TakeProfit; tp > 0 {
			t.TPPrice = &tp
		}
		cycle.Add(t)
	}
	if cycle == nil {
		return nil
	}

	b.mu.Lock()
	b.cycles = append(b.cycles, cycle)
	b.current = cycle
	b.mu.Unlock()
	return nil
}

// newestActivePosition returns the most recently opened active position,
// used to read back the fill price of a just-placed market order.
func (b *TradeLockerBroker) newestActivePosition(ctx context.Context) (livePosition, bool) {
	now := time.Now().UTC()
	positions, _, err := b.fetchPositions(ctx, now.Add(-5*time.Minute), now.Add(time.Minute))
	if err != nil {
		return livePosition{}, false
	}

	var newest livePosition
	found := false
	for _, p := range positions {
		if models.PositionStatus(p.Status) != models.PositionActive {
			continue
		}
		if !found || p.OpenedAt > newest.OpenedAt {
			newest = p
			found = true
		}
	}
	return newest, found
}

// GetOpenTrades returns the trades of the current live cycle that have
// not been closed.
func (b *TradeLockerBroker) GetOpenTrades(ctx context.Context) ([]*models.Trade, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.current == nil {
		return nil, nil
	}
	return b.current.OpenTrades(), nil
}

// GetActiveCycle returns the live cycle being tracked, if any. A cycle
// that has closed is still returned until FlattenAll retires it, so the
// session can observe and persist the closure.
func (b *TradeLockerBroker) GetActiveCycle(ctx context.Context) (*models.Cycle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.current, nil
}

// FlattenAll closes all open positions and cancels all pending orders
// for the account.
func (b *TradeLockerBroker) FlattenAll(ctx context.Context) ([]*models.Trade, error) {
	req, err := b.authedRequest(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := req.Delete(fmt.Sprintf("/trade/accounts/%s/positions", b.accountID))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConnectionFailed, err.Error())
	}
	if resp.IsError() {
		return nil, apperrors.NewBrokerError("FLATTEN", resp.String(), nil)
	}

	req, err = b.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	resp, err = req.Delete(fmt.Sprintf("/trade/accounts/%s/orders", b.accountID))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConnectionFailed, err.Error())
	}
	if resp.IsError() {
		return nil, apperrors.NewBrokerError("CANCEL", resp.String(), nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var flattened []*models.Trade
	if b.current != nil {
		now := time.Now().UTC()
		for _, t := range b.current.Trades {
			if t.IsClosed() {
				continue
			}
			if t.IsPending {
				if err := t.Cancel(now); err != nil {
					return flattened, err
				}
			} else if err := t.CloseAt(t.ExecutedPrice, now); err != nil {
				return flattened, err
			}
			flattened = append(flattened, t)
		}
		b.current = nil
	}
	return flattened, nil
}

// CloseAll flattens everything and reports whether the cycle is closed.
func (b *TradeLockerBroker) CloseAll(ctx context.Context) (bool, error) {
	if _, err := b.FlattenAll(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (b *TradeLockerBroker) attachLive(t *models.Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil || b.current.Closed() {
		cycle := &models.Cycle{
			ID:        fmt.Sprintf("RSILR_%s", time.Now().UTC().Format("2006-01-02T15:04:05")),
			Symbol:    b.instrument.Symbol,
			StartedAt: time.Now().UTC(),
		}
		b.cycles = append(b.cycles, cycle)
		b.current = cycle
	}
	b.current.Add(t)
}

// Ensure TradeLockerBroker implements Broker interface
var _ Broker = (*TradeLockerBroker)(nil)
