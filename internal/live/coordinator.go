// Package live runs the strategy against streaming market data and a broker:
// one invocation of AdvanceOneCycle is one externally triggered evaluation
// tick for one symbol.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sweep-trading-bot/config"
	"sweep-trading-bot/internal/detect"
	"sweep-trading-bot/internal/market"
	"sweep-trading-bot/internal/plan"
	"sweep-trading-bot/internal/session"
	"sweep-trading-bot/internal/state"
	"sweep-trading-bot/internal/store"
)

// Reason codes owned by the coordinator.
const (
	ReasonLockContention        = "LOCK_CONTENTION"
	ReasonMarketDataUnavailable = "MARKET_DATA_UNAVAILABLE"
	ReasonQuoteUnavailable      = "QUOTE_UNAVAILABLE"
	ReasonBrokerUnavailable     = "BROKER_UNAVAILABLE"
	ReasonPositionAbsent        = "RECONCILE_POSITION_ABSENT"
	ReasonPositionRecovered     = "RECONCILE_POSITION_RECOVERED"
	ReasonKillSwitchActive      = "KILL_SWITCH_ACTIVE"
	ReasonDailyTradeCap         = "DAILY_TRADE_CAP"
	ReasonOrderPlaced           = "ORDER_PLACED"
	ReasonOrderRejected         = "ORDER_REJECTED"
	ReasonDryRun                = "DRY_RUN"
)

// AuditSink mirrors journal entries to secondary storage (postgres). May be
// absent; journal writes to the primary store always happen.
type AuditSink interface {
	AppendAudit(ctx context.Context, entry *store.JournalEntry) error
}

// CycleResult is the outcome of one live evaluation cycle.
type CycleResult struct {
	Skipped     bool                `json:"skipped"`
	State       *state.SessionState `json:"state,omitempty"`
	ReasonCodes []string            `json:"reasonCodes"`
}

// Coordinator wires the state machine to the store, market data and broker.
type Coordinator struct {
	cfg     *config.Config
	store   store.SessionStore
	data    market.DataProvider
	broker  Broker
	machine *state.Machine
	audit   AuditSink
	log     zerolog.Logger
}

// NewCoordinator builds a coordinator. audit may be nil.
func NewCoordinator(cfg *config.Config, st store.SessionStore, data market.DataProvider, broker Broker, audit AuditSink, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		store:   st,
		data:    data,
		broker:  broker,
		machine: state.NewMachine(cfg.Strategy),
		audit:   audit,
		log:     log.With().Str("component", "coordinator").Logger(),
	}
}

// AdvanceOneCycle acquires the per-symbol lock, advances the session state one
// evaluation, reconciles against the broker, plans and optionally executes an
// entry, persists the result and appends an audit entry. Lock contention is
// expected and returns a skipped result, not an error. The lock is always
// released on the way out.
func (c *Coordinator) AdvanceOneCycle(ctx context.Context, symbol string, now time.Time) (*CycleResult, error) {
	nowMs := now.UnixMilli()
	dayKey := session.DayKey(nowMs, c.cfg.Session)

	token := uuid.NewString()
	lockKey := store.LockKey(symbol)
	lockTTL := time.Duration(c.cfg.Live.LockTTLSeconds) * time.Second
	ok, err := c.store.TryAcquireLock(ctx, lockKey, token, lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire lock for %s: %w", symbol, err)
	}
	if !ok {
		c.log.Debug().Str("symbol", symbol).Msg("cycle skipped, lock held elsewhere")
		return &CycleResult{Skipped: true, ReasonCodes: []string{ReasonLockContention}}, nil
	}
	defer func() {
		if err := c.store.ReleaseLock(ctx, lockKey, token); err != nil {
			c.log.Error().Err(err).Str("symbol", symbol).Msg("release lock failed")
		}
	}()

	st, err := c.store.Load(ctx, symbol, dayKey)
	if err != nil {
		return nil, fmt.Errorf("load state for %s: %w", symbol, err)
	}
	if st == nil {
		st = state.New(symbol, dayKey)
	}

	rs := detect.NewReasons()
	if st.EnsureDay(dayKey) {
		rs.Add(state.ReasonDayReset)
	}
	before := st.Lifecycle

	view, quote := c.buildView(ctx, symbol, dayKey, nowMs, rs)
	if view != nil {
		c.machine.Evaluate(st, nowMs, view, rs)
	} else {
		st.LastRunTsMs = nowMs
		st.LastReasonCodes = rs.Codes()
	}

	if c.cfg.Live.ReconcileEnabled {
		c.reconcile(ctx, st, nowMs, rs)
	}

	var accepted *plan.Plan
	if view != nil && quote != nil {
		accepted = c.maybeEnter(ctx, st, nowMs, quote, rs)
	}

	stateTTL := time.Duration(c.cfg.Live.StateTTLHours) * time.Hour
	if err := c.store.Save(ctx, st, stateTTL); err != nil {
		return nil, fmt.Errorf("persist state for %s: %w", symbol, err)
	}

	c.journal(ctx, st, before, nowMs, accepted, rs)

	return &CycleResult{State: st, ReasonCodes: rs.Codes()}, nil
}

// buildView fetches candles and the quote. Market data failure degrades the
// cycle to a no-evaluation tick instead of aborting it.
func (c *Coordinator) buildView(ctx context.Context, symbol, dayKey string, nowMs int64, rs *detect.Reasons) (*state.View, *market.Quote) {
	windows, err := session.Resolve(dayKey, c.cfg.Session)
	if err != nil {
		c.log.Error().Err(err).Str("symbol", symbol).Msg("resolve session windows")
		rs.Add(ReasonMarketDataUnavailable)
		return nil, nil
	}

	strat := c.cfg.Strategy
	base, err := c.data.FetchCandles(ctx, symbol, strat.BaseTimeframe, c.cfg.Live.CandleLimit)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("fetch base candles failed, degraded cycle")
		rs.Add(ReasonMarketDataUnavailable)
		return nil, nil
	}
	confirm := base
	if strat.ConfirmTimeframe != strat.BaseTimeframe {
		confirm, err = c.data.FetchCandles(ctx, symbol, strat.ConfirmTimeframe, c.cfg.Live.CandleLimit)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("fetch confirm candles failed, degraded cycle")
			rs.Add(ReasonMarketDataUnavailable)
			return nil, nil
		}
	}

	base = market.ClosedBefore(market.SortDedupe(base), strat.BaseTimeframe, nowMs)
	confirm = market.ClosedBefore(market.SortDedupe(confirm), strat.ConfirmTimeframe, nowMs)

	var quote *market.Quote
	q, err := c.data.FetchQuote(ctx, symbol)
	if err != nil {
		// Detectors run on candles alone; only planning needs the quote.
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("fetch quote failed")
		rs.Add(ReasonQuoteUnavailable)
	} else {
		quote = q
	}

	spread := 0.0
	if quote != nil {
		spread = quote.Spread()
	}

	return &state.View{
		BaseCandles:    base,
		ConfirmCandles: confirm,
		ATR:            market.ATR(confirm, strat.ATRPeriod),
		Spread:         spread,
		Windows:        windows,
		PipSize:        c.cfg.PipSize(symbol),
	}, quote
}

// reconcile lines the local trade snapshot up with the broker's view. Broker
// failure is recorded and the cycle continues.
func (c *Coordinator) reconcile(ctx context.Context, st *state.SessionState, nowMs int64, rs *detect.Reasons) {
	positions, err := c.broker.ListOpenPositions(ctx, st.Symbol)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", st.Symbol).Msg("broker reconciliation failed")
		rs.Add(ReasonBrokerUnavailable)
		return
	}

	switch {
	case st.Lifecycle == state.StateInTrade && len(positions) == 0:
		// The broker closed the position behind our back (stop or target hit
		// server-side). Outcome unknown, so neither counter moves.
		c.log.Info().Str("symbol", st.Symbol).Msg("open trade absent at broker, closing day")
		st.Trade = nil
		st.Lifecycle = state.StateDone
		rs.Add(ReasonPositionAbsent)

	case st.Lifecycle != state.StateInTrade && len(positions) > 0 && st.Trade == nil:
		pos := positions[0]
		c.log.Warn().Str("symbol", st.Symbol).Str("dealId", pos.DealID).Msg("recovering trade from broker position")
		st.Trade = &state.TradeSnapshot{
			SetupID:    "recovered-" + pos.DealID,
			Side:       pos.Side,
			EntryPrice: pos.EntryPrice,
			OpenedTsMs: nowMs,
			BrokerRef:  pos.DealID,
		}
		st.Lifecycle = state.StateInTrade
		rs.Add(ReasonPositionRecovered)
	}
}

// maybeEnter plans and executes an entry once the zone is touched, honoring
// the kill switch and the daily trade cap. Returns the accepted plan, if any.
func (c *Coordinator) maybeEnter(ctx context.Context, st *state.SessionState, nowMs int64, quote *market.Quote, rs *detect.Reasons) *plan.Plan {
	if st.Lifecycle != state.StateWaitingRetrace || st.Zone == nil || !st.Zone.Touched {
		return nil
	}
	if st.KillSwitch {
		rs.Add(ReasonKillSwitchActive)
		return nil
	}
	if c.cfg.Risk.MaxDailyTrades > 0 && st.TradesPlaced >= c.cfg.Risk.MaxDailyTrades {
		rs.Add(ReasonDailyTradeCap)
		return nil
	}

	p, reason := plan.Build(plan.Request{
		Symbol:  st.Symbol,
		DayKey:  st.DayKey,
		Quote:   quote,
		Zone:    st.Zone,
		Sweep:   st.Sweep,
		PipSize: c.cfg.PipSize(st.Symbol),
	}, c.cfg.Risk)
	rs.Add(reason)
	if p == nil {
		return nil
	}

	dryRun := c.cfg.Live.DryRun || !c.cfg.Live.TradingEnabled
	brokerRef := ""
	if dryRun {
		rs.Add(ReasonDryRun)
	} else {
		res, err := c.broker.PlaceOrder(ctx, p)
		if err != nil {
			c.log.Error().Err(err).Str("symbol", st.Symbol).Msg("place order failed")
			rs.Add(ReasonBrokerUnavailable)
			return nil
		}
		if !res.Accepted {
			c.log.Warn().Str("symbol", st.Symbol).Str("reason", res.Reason).Msg("order rejected by broker")
			rs.Add(ReasonOrderRejected)
			return nil
		}
		brokerRef = res.BrokerOrderID
		rs.Add(ReasonOrderPlaced)
	}

	st.MarkEntered(&state.TradeSnapshot{
		SetupID:      p.SetupID,
		Side:         p.Side,
		EntryPrice:   p.EntryPrice,
		StopPrice:    p.StopPrice,
		TargetPrice:  p.TargetPrice,
		RiskMultiple: p.RMultiple,
		OpenedTsMs:   nowMs,
		BrokerRef:    brokerRef,
		DryRun:       dryRun,
	})
	c.log.Info().
		Str("symbol", st.Symbol).
		Str("side", p.Side).
		Float64("entry", p.EntryPrice).
		Float64("stop", p.StopPrice).
		Float64("target", p.TargetPrice).
		Float64("notional", p.Notional).
		Bool("dryRun", dryRun).
		Msg("entered trade")
	return p
}

// journal appends the cycle audit entry; journaling failures are logged, not
// fatal, since state has already been persisted.
func (c *Coordinator) journal(ctx context.Context, st *state.SessionState, before state.Lifecycle, nowMs int64, accepted *plan.Plan, rs *detect.Reasons) {
	entry := &store.JournalEntry{
		ID:          uuid.NewString(),
		Symbol:      st.Symbol,
		DayKey:      st.DayKey,
		TsMs:        nowMs,
		StateBefore: before,
		StateAfter:  st.Lifecycle,
		ReasonCodes: rs.Codes(),
	}
	if accepted != nil {
		if data, err := json.Marshal(accepted); err == nil {
			entry.PlanJSON = string(data)
		}
	}
	if err := c.store.AppendJournal(ctx, entry); err != nil {
		c.log.Error().Err(err).Str("symbol", st.Symbol).Msg("append journal failed")
	}
	if c.audit != nil {
		if err := c.audit.AppendAudit(ctx, entry); err != nil {
			c.log.Error().Err(err).Str("symbol", st.Symbol).Msg("mirror audit entry failed")
		}
	}
}
