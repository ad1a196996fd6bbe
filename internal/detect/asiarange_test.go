package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sweep-trading-bot/internal/market"
	"sweep-trading-bot/internal/session"
)

const hourMs = int64(3_600_000)

// testWindows is an accumulation window over [0, 6h) and a raid window over
// [7h, 11h), matching a 00:00-06:00 / 07:00-11:00 day at UTC.
func testWindows() *session.Windows {
	return &session.Windows{
		AccumStartMs: 0,
		AccumEndMs:   6 * hourMs,
		RaidStartMs:  7 * hourMs,
		RaidEndMs:    11 * hourMs,
	}
}

// flatCandles emits count 5m bars from startMs oscillating inside [low, high].
func flatCandles(startMs int64, count int, low, high float64) []market.Candle {
	out := make([]market.Candle, count)
	for i := range out {
		out[i] = market.Candle{
			OpenTime: startMs + int64(i)*300_000,
			Open:     low + (high-low)*0.4,
			High:     high,
			Low:      low,
			Close:    low + (high-low)*0.6,
		}
	}
	return out
}

func TestDetectRangeWindowStillOpen(t *testing.T) {
	win := testWindows()
	candles := flatCandles(0, 20, 1.1000, 1.1050)

	rng, reason := DetectRange(5*hourMs, win, candles, market.Timeframe5m, 12)
	assert.Nil(t, rng)
	assert.Equal(t, ReasonAsiaWindowOpen, reason)
}

func TestDetectRangeInsufficientCandles(t *testing.T) {
	win := testWindows()
	candles := flatCandles(0, 5, 1.1000, 1.1050)

	rng, reason := DetectRange(6*hourMs, win, candles, market.Timeframe5m, 12)
	assert.Nil(t, rng)
	assert.Equal(t, ReasonAsiaInsufficientCandles, reason)
}

func TestDetectRangeReady(t *testing.T) {
	win := testWindows()
	candles := flatCandles(0, 72, 1.1000, 1.1050)
	// One bar outside the window must not widen the range.
	candles = append(candles, market.Candle{OpenTime: 6 * hourMs, High: 1.2000, Low: 1.0000, Open: 1.1, Close: 1.1})

	rng, reason := DetectRange(6*hourMs, win, candles, market.Timeframe5m, 12)
	require.NotNil(t, rng)
	assert.Equal(t, ReasonAsiaRangeReady, reason)
	assert.Equal(t, 1.1050, rng.High)
	assert.Equal(t, 1.1000, rng.Low)
	assert.Equal(t, 72, rng.CandleCount)
	assert.Equal(t, win.AccumStartMs, rng.StartMs)
	assert.Equal(t, win.AccumEndMs, rng.EndMs)
}

func TestDetectRangeDegenerate(t *testing.T) {
	win := testWindows()
	candles := flatCandles(0, 20, 1.1000, 1.1000) // high == low

	rng, reason := DetectRange(6*hourMs, win, candles, market.Timeframe5m, 12)
	assert.Nil(t, rng)
	assert.Equal(t, ReasonAsiaRangeInvalid, reason)
}
