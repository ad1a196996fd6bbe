package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sweep-trading-bot/config"
	"sweep-trading-bot/internal/detect"
	"sweep-trading-bot/internal/market"
	"sweep-trading-bot/internal/session"
)

const (
	hourMs = int64(3_600_000)
	barMs  = int64(300_000)
)

func testStrategy() config.StrategyConfig {
	return config.StrategyConfig{
		BaseTimeframe:    market.Timeframe5m,
		ConfirmTimeframe: market.Timeframe5m,
		ATRPeriod:        14,
		MinRangeCandles:  12,
		Sweep: detect.SweepConfig{
			BufferPips:       1.0,
			BufferATRMult:    0.1,
			BufferSpreadMult: 1.0,
			RejectionBars:    3,
			InsideMarginPips: 0.5,
			WickBodyRatio:    1.2,
		},
		Confirm: detect.ConfirmConfig{
			TTLMinutes:           90,
			DisplacementBodyATR:  1.0,
			DisplacementRangeATR: 1.2,
			ClosePositionMax:     0.25,
			SwingLookback:        5,
			ShiftBufferPips:      0.3,
			ShiftBufferATRMult:   0.05,
		},
		Zone: detect.ZoneConfig{
			MinATRMult:       0.1,
			MaxATRMult:       2.0,
			TTLMinutes:       120,
			SearchTTLMinutes: 60,
			EntryMode:        detect.MidlineTouch,
		},
	}
}

func testWindows() *session.Windows {
	return &session.Windows{
		AccumStartMs: 0,
		AccumEndMs:   6 * hourMs,
		RaidStartMs:  7 * hourMs,
		RaidEndMs:    11 * hourMs,
	}
}

// accumBars fills the accumulation window with 5m bars inside [1.1000, 1.1050].
func accumBars() []market.Candle {
	out := make([]market.Candle, 72)
	for i := range out {
		out[i] = market.Candle{
			OpenTime: int64(i) * barMs,
			Open:     1.1020, High: 1.1050, Low: 1.1000, Close: 1.1030,
		}
	}
	return out
}

// raidSetupBars appends a complete buy-side setup to the accumulation bars:
// breach, rejection, displacement, structure shift and a 3-candle gap.
func raidSetupBars() []market.Candle {
	r := 7 * hourMs
	return append(accumBars(),
		market.Candle{OpenTime: r, Open: 1.1045, High: 1.1060, Low: 1.1040, Close: 1.1055},
		market.Candle{OpenTime: r + barMs, Open: 1.1036, High: 1.1062, Low: 1.1030, Close: 1.1034},
		market.Candle{OpenTime: r + 2*barMs, Open: 1.1040, High: 1.1041, Low: 1.1008, Close: 1.1009},
		market.Candle{OpenTime: r + 3*barMs, Open: 1.1009, High: 1.1010, Low: 1.0985, Close: 1.0990},
		market.Candle{OpenTime: r + 4*barMs, Open: 1.0990, High: 1.0992, Low: 1.0975, Close: 1.0976},
		market.Candle{OpenTime: r + 5*barMs, Open: 1.0975, High: 1.0978, Low: 1.0960, Close: 1.0962},
	)
}

func viewFor(candles []market.Candle) *View {
	return &View{
		BaseCandles:    candles,
		ConfirmCandles: candles,
		ATR:            0.0020,
		Spread:         0,
		Windows:        testWindows(),
		PipSize:        0.0001,
	}
}

func TestEvaluateHappyPathToWaitingRetrace(t *testing.T) {
	m := NewMachine(testStrategy())
	st := New("EURUSD", "2025-01-02")

	candles := raidSetupBars()
	now := 7*hourMs + 6*barMs
	rs := detect.NewReasons()
	m.Evaluate(st, now, viewFor(candles), rs)

	// One evaluation cascades range -> sweep -> rejection -> confirmation ->
	// zone, then waits for the retrace.
	assert.Equal(t, StateWaitingRetrace, st.Lifecycle)
	require.NotNil(t, st.Range)
	assert.Equal(t, 1.1050, st.Range.High)
	assert.Equal(t, 1.1000, st.Range.Low)

	require.NotNil(t, st.Sweep)
	assert.Equal(t, detect.BuySide, st.Sweep.Side)
	assert.True(t, st.Sweep.Rejected)

	require.NotNil(t, st.Confirmation)
	assert.Equal(t, detect.Bearish, st.Confirmation.Direction)

	// Two overlapping gap candidates exist; the later one wins.
	require.NotNil(t, st.Zone)
	assert.Equal(t, 7*hourMs+5*barMs, st.Zone.CreatedTsMs)
	assert.False(t, st.Zone.Touched)

	assert.Contains(t, rs.Codes(), detect.ReasonAsiaRangeReady)
	assert.Contains(t, rs.Codes(), detect.ReasonSweepRejected)
	assert.Contains(t, rs.Codes(), detect.ReasonConfirmed)
	assert.Contains(t, rs.Codes(), detect.ReasonZoneCreated)
	assert.Equal(t, rs.Codes(), st.LastReasonCodes)
	assert.Equal(t, now, st.LastRunTsMs)

	// Next bar retraces to the zone midline: touched, still WAITING_RETRACE.
	candles = append(candles, market.Candle{
		OpenTime: 7*hourMs + 6*barMs, Open: 1.0962, High: 1.0983, Low: 1.0960, Close: 1.0970,
	})
	rs = detect.NewReasons()
	m.Evaluate(st, now+barMs, viewFor(candles), rs)

	assert.Equal(t, StateWaitingRetrace, st.Lifecycle)
	assert.True(t, st.Zone.Touched)
	assert.Contains(t, rs.Codes(), detect.ReasonZoneTouched)
}

func TestEvaluatePersistedStateWithoutCursors(t *testing.T) {
	// A state saved before any candle view serializes without a cursors map;
	// evaluating the loaded copy must rebuild it rather than panic.
	data, err := json.Marshal(New("EURUSD", "2025-01-02"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "cursors")

	var st SessionState
	require.NoError(t, json.Unmarshal(data, &st))
	require.Nil(t, st.Cursors)

	m := NewMachine(testStrategy())
	rs := detect.NewReasons()
	m.Evaluate(&st, 6*hourMs, viewFor(accumBars()), rs)

	require.NotNil(t, st.Cursors)
	assert.Equal(t, 71*barMs, st.Cursors[string(market.Timeframe5m)])
}

func TestEvaluateNoSweepDayEndsDone(t *testing.T) {
	m := NewMachine(testStrategy())
	st := New("EURUSD", "2025-01-02")

	// Quiet raid window, evaluated after it closes.
	candles := accumBars()
	r := 7 * hourMs
	for i := int64(0); i < 48; i++ {
		candles = append(candles, market.Candle{
			OpenTime: r + i*barMs, Open: 1.1020, High: 1.1045, Low: 1.1005, Close: 1.1030,
		})
	}

	rs := detect.NewReasons()
	m.Evaluate(st, testWindows().RaidEndMs, viewFor(candles), rs)

	assert.Equal(t, StateDone, st.Lifecycle)
	assert.Contains(t, rs.Codes(), detect.ReasonRaidWindowClosedNoSweep)
	assert.Contains(t, rs.Codes(), ReasonDayDone)
}

func TestEvaluateNoRangeDayEndsDoneAfterRaidClose(t *testing.T) {
	m := NewMachine(testStrategy())
	st := New("EURUSD", "2025-01-02")

	// Too few accumulation candles all day.
	candles := accumBars()[:3]

	rs := detect.NewReasons()
	m.Evaluate(st, testWindows().RaidEndMs, viewFor(candles), rs)

	assert.Equal(t, StateDone, st.Lifecycle)
	assert.Contains(t, rs.Codes(), detect.ReasonAsiaInsufficientCandles)
	assert.Contains(t, rs.Codes(), ReasonDayDone)
}

func TestCooldownCycleKeepsRange(t *testing.T) {
	m := NewMachine(testStrategy())
	st := New("EURUSD", "2025-01-02")
	st.Range = &detect.RangeSnapshot{High: 1.1050, Low: 1.1000}
	st.Sweep = &detect.SweepSnapshot{Side: detect.BuySide, Rejected: true}
	st.MarkEntered(&TradeSnapshot{SetupID: "s1", OpenedTsMs: 8 * hourMs})

	st.RecordExit(false, 8*hourMs, 30)
	assert.Equal(t, StateCooldown, st.Lifecycle)
	assert.Equal(t, 1, st.TradesLost)

	// Still cooling down.
	rs := detect.NewReasons()
	m.Evaluate(st, 8*hourMs+10*60_000, viewFor(accumBars()), rs)
	assert.Equal(t, StateCooldown, st.Lifecycle)
	assert.Contains(t, rs.Codes(), ReasonCooldownActive)

	// Cooldown expires: leg snapshots cleared, range kept, back through IDLE.
	rs = detect.NewReasons()
	m.Evaluate(st, 8*hourMs+31*60_000, viewFor(accumBars()), rs)
	assert.Contains(t, rs.Codes(), ReasonCooldownExpired)
	assert.Nil(t, st.Sweep)
	assert.Nil(t, st.Zone)
	require.NotNil(t, st.Range)
	assert.Equal(t, 1.1050, st.Range.High)
}

func TestEnsureDayResets(t *testing.T) {
	st := New("EURUSD", "2025-01-02")
	st.Lifecycle = StateDone
	st.TradesPlaced = 2
	st.KillSwitch = true

	assert.False(t, st.EnsureDay("2025-01-02"))

	assert.True(t, st.EnsureDay("2025-01-03"))
	assert.Equal(t, "EURUSD", st.Symbol)
	assert.Equal(t, "2025-01-03", st.DayKey)
	assert.Equal(t, StateIdle, st.Lifecycle)
	assert.Zero(t, st.TradesPlaced)
	assert.False(t, st.KillSwitch)
}

func TestRecordExitWinFinishesDay(t *testing.T) {
	st := New("EURUSD", "2025-01-02")
	st.MarkEntered(&TradeSnapshot{SetupID: "s1"})

	st.RecordExit(true, 9*hourMs, 30)
	assert.Equal(t, StateDone, st.Lifecycle)
	assert.Equal(t, 1, st.TradesWon)
	assert.Nil(t, st.Trade)
}
