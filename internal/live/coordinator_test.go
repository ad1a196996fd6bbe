package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sweep-trading-bot/config"
	"sweep-trading-bot/internal/detect"
	"sweep-trading-bot/internal/market"
	"sweep-trading-bot/internal/plan"
	"sweep-trading-bot/internal/session"
	"sweep-trading-bot/internal/state"
	"sweep-trading-bot/internal/store"
)

type fakeData struct {
	candles   []market.Candle
	candleErr error
	quote     *market.Quote
	quoteErr  error
}

func (f *fakeData) FetchCandles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	return f.candles, f.candleErr
}

func (f *fakeData) FetchQuote(ctx context.Context, symbol string) (*market.Quote, error) {
	return f.quote, f.quoteErr
}

type fakeBroker struct {
	positions []Position
	posErr    error
	result    *OrderResult
	orderErr  error
	placed    []*plan.Plan
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, p *plan.Plan) (*OrderResult, error) {
	f.placed = append(f.placed, p)
	return f.result, f.orderErr
}

func (f *fakeBroker) ListOpenPositions(ctx context.Context, symbol string) ([]Position, error) {
	return f.positions, f.posErr
}

type fakeAudit struct {
	entries []*store.JournalEntry
}

func (f *fakeAudit) AppendAudit(ctx context.Context, entry *store.JournalEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func liveConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Symbols = []string{"EURUSD"}
	cfg.Session.Mode = session.ClockFixedOffset
	cfg.Session.UTCOffsetMinutes = 0
	return cfg
}

func cycleTime() time.Time {
	return time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
}

// waitingRetraceState seeds a session one touch past the full setup: zone
// touched, sweep rejected, ready for the planner.
func waitingRetraceState(nowMs int64) *state.SessionState {
	st := state.New("EURUSD", "2025-01-02")
	st.Lifecycle = state.StateWaitingRetrace
	st.Sweep = &detect.SweepSnapshot{Side: detect.BuySide, BreachPrice: 1.1062, Rejected: true}
	st.Zone = &detect.ZoneSnapshot{
		Direction:   detect.Bearish,
		PriceLow:    1.1020,
		PriceHigh:   1.1030,
		CreatedTsMs: 1_000,
		ExpiresTsMs: nowMs + 3_600_000,
		EntryMode:   detect.MidlineTouch,
		Touched:     true,
		TouchedTsMs: nowMs - 60_000,
	}
	return st
}

func TestCycleSkipsOnLockContention(t *testing.T) {
	ctx := context.Background()
	cfg := liveConfig(t)
	mem := store.NewMemoryStore()

	held, err := mem.TryAcquireLock(ctx, store.LockKey("EURUSD"), "other-owner", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	c := NewCoordinator(cfg, mem, &fakeData{}, &fakeBroker{}, nil, zerolog.Nop())
	res, err := c.AdvanceOneCycle(ctx, "EURUSD", cycleTime())
	require.NoError(t, err)

	assert.True(t, res.Skipped)
	assert.Equal(t, []string{ReasonLockContention}, res.ReasonCodes)
	assert.Nil(t, res.State)

	// Nothing was evaluated or persisted.
	st, err := mem.Load(ctx, "EURUSD", "2025-01-02")
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.Empty(t, mem.Journal())
}

func TestCycleReleasesLock(t *testing.T) {
	ctx := context.Background()
	cfg := liveConfig(t)
	mem := store.NewMemoryStore()

	c := NewCoordinator(cfg, mem, &fakeData{}, &fakeBroker{}, nil, zerolog.Nop())
	_, err := c.AdvanceOneCycle(ctx, "EURUSD", cycleTime())
	require.NoError(t, err)

	ok, err := mem.TryAcquireLock(ctx, store.LockKey("EURUSD"), "probe", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCycleDegradesOnCandleFailure(t *testing.T) {
	ctx := context.Background()
	cfg := liveConfig(t)
	mem := store.NewMemoryStore()
	data := &fakeData{candleErr: errors.New("feed down")}

	c := NewCoordinator(cfg, mem, data, &fakeBroker{}, nil, zerolog.Nop())
	res, err := c.AdvanceOneCycle(ctx, "EURUSD", cycleTime())
	require.NoError(t, err)

	assert.False(t, res.Skipped)
	assert.Contains(t, res.ReasonCodes, ReasonMarketDataUnavailable)
	assert.Equal(t, state.StateIdle, res.State.Lifecycle)

	// The degraded tick is still persisted and journaled.
	st, err := mem.Load(ctx, "EURUSD", "2025-01-02")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, cycleTime().UnixMilli(), st.LastRunTsMs)

	journal := mem.Journal()
	require.Len(t, journal, 1)
	assert.Contains(t, journal[0].ReasonCodes, ReasonMarketDataUnavailable)
}

func TestCycleReconcileClosesAbsentTrade(t *testing.T) {
	ctx := context.Background()
	cfg := liveConfig(t)
	mem := store.NewMemoryStore()

	st := state.New("EURUSD", "2025-01-02")
	st.Lifecycle = state.StateInTrade
	st.Trade = &state.TradeSnapshot{SetupID: "s1", Side: plan.SideSell, BrokerRef: "D1"}
	require.NoError(t, mem.Save(ctx, st, time.Hour))

	// Broker reports no open position: stop or target was hit server-side.
	c := NewCoordinator(cfg, mem, &fakeData{quote: &market.Quote{Price: 1.1}}, &fakeBroker{}, nil, zerolog.Nop())
	res, err := c.AdvanceOneCycle(ctx, "EURUSD", cycleTime())
	require.NoError(t, err)

	assert.Equal(t, state.StateDone, res.State.Lifecycle)
	assert.Nil(t, res.State.Trade)
	assert.Contains(t, res.ReasonCodes, ReasonPositionAbsent)

	// Outcome unknown, so neither win nor loss is counted.
	assert.Zero(t, res.State.TradesWon)
	assert.Zero(t, res.State.TradesLost)
}

func TestCycleReconcileRecoversUntrackedPosition(t *testing.T) {
	ctx := context.Background()
	cfg := liveConfig(t)
	mem := store.NewMemoryStore()
	broker := &fakeBroker{positions: []Position{
		{DealID: "D7", Side: plan.SideBuy, EntryPrice: 1.1010, Size: 1500},
	}}

	c := NewCoordinator(cfg, mem, &fakeData{quote: &market.Quote{Price: 1.1}}, broker, nil, zerolog.Nop())
	res, err := c.AdvanceOneCycle(ctx, "EURUSD", cycleTime())
	require.NoError(t, err)

	assert.Equal(t, state.StateInTrade, res.State.Lifecycle)
	require.NotNil(t, res.State.Trade)
	assert.Equal(t, "recovered-D7", res.State.Trade.SetupID)
	assert.Equal(t, "D7", res.State.Trade.BrokerRef)
	assert.Contains(t, res.ReasonCodes, ReasonPositionRecovered)
}

func TestCycleDryRunEntrySkipsBroker(t *testing.T) {
	ctx := context.Background()
	cfg := liveConfig(t)
	require.True(t, cfg.Live.DryRun)

	now := cycleTime()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Save(ctx, waitingRetraceState(now.UnixMilli()), time.Hour))

	broker := &fakeBroker{}
	audit := &fakeAudit{}
	data := &fakeData{quote: &market.Quote{Price: 1.1025}}

	c := NewCoordinator(cfg, mem, data, broker, audit, zerolog.Nop())
	res, err := c.AdvanceOneCycle(ctx, "EURUSD", now)
	require.NoError(t, err)

	assert.Equal(t, state.StateInTrade, res.State.Lifecycle)
	require.NotNil(t, res.State.Trade)
	assert.True(t, res.State.Trade.DryRun)
	assert.Empty(t, res.State.Trade.BrokerRef)
	assert.Equal(t, 1, res.State.TradesPlaced)
	assert.Contains(t, res.ReasonCodes, plan.ReasonAccepted)
	assert.Contains(t, res.ReasonCodes, ReasonDryRun)

	// No order reached the broker.
	assert.Empty(t, broker.placed)

	// The accepted plan is journaled and mirrored to the audit sink.
	journal := mem.Journal()
	require.Len(t, journal, 1)
	assert.NotEmpty(t, journal[0].PlanJSON)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, journal[0].ID, audit.entries[0].ID)
}

func TestCycleLiveEntryPlacesOrder(t *testing.T) {
	ctx := context.Background()
	cfg := liveConfig(t)
	cfg.Live.DryRun = false
	cfg.Live.TradingEnabled = true

	now := cycleTime()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Save(ctx, waitingRetraceState(now.UnixMilli()), time.Hour))

	broker := &fakeBroker{result: &OrderResult{Accepted: true, BrokerOrderID: "B123"}}
	data := &fakeData{quote: &market.Quote{Price: 1.1025}}

	c := NewCoordinator(cfg, mem, data, broker, nil, zerolog.Nop())
	res, err := c.AdvanceOneCycle(ctx, "EURUSD", now)
	require.NoError(t, err)

	assert.Equal(t, state.StateInTrade, res.State.Lifecycle)
	require.NotNil(t, res.State.Trade)
	assert.False(t, res.State.Trade.DryRun)
	assert.Equal(t, "B123", res.State.Trade.BrokerRef)
	assert.Contains(t, res.ReasonCodes, ReasonOrderPlaced)

	require.Len(t, broker.placed, 1)
	assert.Equal(t, "EURUSD", broker.placed[0].Symbol)
	assert.Equal(t, "sweep-EURUSD-2025-01-02-1000", broker.placed[0].IdempotencyRef)
}

func TestCycleLiveEntryBrokerFailures(t *testing.T) {
	t.Run("order rejected", func(t *testing.T) {
		ctx := context.Background()
		cfg := liveConfig(t)
		cfg.Live.DryRun = false
		cfg.Live.TradingEnabled = true

		now := cycleTime()
		mem := store.NewMemoryStore()
		require.NoError(t, mem.Save(ctx, waitingRetraceState(now.UnixMilli()), time.Hour))

		broker := &fakeBroker{result: &OrderResult{Accepted: false, Reason: "INSUFFICIENT_MARGIN"}}
		c := NewCoordinator(cfg, mem, &fakeData{quote: &market.Quote{Price: 1.1025}}, broker, nil, zerolog.Nop())
		res, err := c.AdvanceOneCycle(ctx, "EURUSD", now)
		require.NoError(t, err)

		assert.Equal(t, state.StateWaitingRetrace, res.State.Lifecycle)
		assert.Nil(t, res.State.Trade)
		assert.Contains(t, res.ReasonCodes, ReasonOrderRejected)
	})

	t.Run("broker unreachable", func(t *testing.T) {
		ctx := context.Background()
		cfg := liveConfig(t)
		cfg.Live.DryRun = false
		cfg.Live.TradingEnabled = true
		cfg.Live.ReconcileEnabled = false

		now := cycleTime()
		mem := store.NewMemoryStore()
		require.NoError(t, mem.Save(ctx, waitingRetraceState(now.UnixMilli()), time.Hour))

		broker := &fakeBroker{orderErr: errors.New("gateway timeout")}
		c := NewCoordinator(cfg, mem, &fakeData{quote: &market.Quote{Price: 1.1025}}, broker, nil, zerolog.Nop())
		res, err := c.AdvanceOneCycle(ctx, "EURUSD", now)
		require.NoError(t, err)

		assert.Equal(t, state.StateWaitingRetrace, res.State.Lifecycle)
		assert.Nil(t, res.State.Trade)
		assert.Contains(t, res.ReasonCodes, ReasonBrokerUnavailable)
	})
}

func TestCycleKillSwitchBlocksEntry(t *testing.T) {
	ctx := context.Background()
	cfg := liveConfig(t)

	now := cycleTime()
	st := waitingRetraceState(now.UnixMilli())
	st.KillSwitch = true
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Save(ctx, st, time.Hour))

	c := NewCoordinator(cfg, mem, &fakeData{quote: &market.Quote{Price: 1.1025}}, &fakeBroker{}, nil, zerolog.Nop())
	res, err := c.AdvanceOneCycle(ctx, "EURUSD", now)
	require.NoError(t, err)

	assert.Equal(t, state.StateWaitingRetrace, res.State.Lifecycle)
	assert.Nil(t, res.State.Trade)
	assert.Contains(t, res.ReasonCodes, ReasonKillSwitchActive)
}

func TestCycleDailyTradeCapBlocksEntry(t *testing.T) {
	ctx := context.Background()
	cfg := liveConfig(t)

	now := cycleTime()
	st := waitingRetraceState(now.UnixMilli())
	st.TradesPlaced = cfg.Risk.MaxDailyTrades
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Save(ctx, st, time.Hour))

	c := NewCoordinator(cfg, mem, &fakeData{quote: &market.Quote{Price: 1.1025}}, &fakeBroker{}, nil, zerolog.Nop())
	res, err := c.AdvanceOneCycle(ctx, "EURUSD", now)
	require.NoError(t, err)

	assert.Equal(t, state.StateWaitingRetrace, res.State.Lifecycle)
	assert.Nil(t, res.State.Trade)
	assert.Contains(t, res.ReasonCodes, ReasonDailyTradeCap)
}

func TestCycleQuoteFailureStillEvaluates(t *testing.T) {
	ctx := context.Background()
	cfg := liveConfig(t)

	now := cycleTime()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Save(ctx, waitingRetraceState(now.UnixMilli()), time.Hour))

	data := &fakeData{quoteErr: errors.New("stream gap")}
	c := NewCoordinator(cfg, mem, data, &fakeBroker{}, nil, zerolog.Nop())
	res, err := c.AdvanceOneCycle(ctx, "EURUSD", now)
	require.NoError(t, err)

	// Detectors ran, but planning was withheld without a quote.
	assert.Equal(t, state.StateWaitingRetrace, res.State.Lifecycle)
	assert.Nil(t, res.State.Trade)
	assert.Contains(t, res.ReasonCodes, ReasonQuoteUnavailable)
}
