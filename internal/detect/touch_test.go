package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sweep-trading-bot/internal/market"
)

func bearishZone(mode EntryMode) *ZoneSnapshot {
	return &ZoneSnapshot{
		Direction:   Bearish,
		PriceLow:    1.1020,
		PriceHigh:   1.1030,
		CreatedTsMs: 0,
		ExpiresTsMs: 2 * hourMs,
		EntryMode:   mode,
	}
}

func TestEvaluateTouchMidline(t *testing.T) {
	zone := bearishZone(MidlineTouch)
	candles := []market.Candle{
		// High short of the 1.1025 midline.
		{OpenTime: 300_000, Open: 1.1010, High: 1.1024, Low: 1.1005, Close: 1.1012},
		{OpenTime: 600_000, Open: 1.1012, High: 1.1026, Low: 1.1008, Close: 1.1015},
	}

	status, reason := EvaluateTouch(zone, candles, 900_000)

	assert.Equal(t, TouchTouched, status)
	assert.Equal(t, ReasonZoneTouched, reason)
	assert.True(t, zone.Touched)
	assert.Equal(t, int64(600_000), zone.TouchedTsMs)
}

func TestEvaluateTouchFirstTouchOverlap(t *testing.T) {
	zone := bearishZone(FirstTouch)
	candles := []market.Candle{
		// Any overlap with the zone counts.
		{OpenTime: 300_000, Open: 1.1010, High: 1.1021, Low: 1.1005, Close: 1.1012},
	}

	status, _ := EvaluateTouch(zone, candles, 600_000)
	assert.Equal(t, TouchTouched, status)
	assert.Equal(t, int64(300_000), zone.TouchedTsMs)
}

func TestEvaluateTouchFullFillRequiresFarEdge(t *testing.T) {
	zone := bearishZone(FullFill)
	candles := []market.Candle{
		// Reaches the midline but not the far edge at 1.1030.
		{OpenTime: 300_000, Open: 1.1010, High: 1.1026, Low: 1.1005, Close: 1.1012},
	}

	status, reason := EvaluateTouch(zone, candles, 600_000)
	assert.Equal(t, TouchPending, status)
	assert.Equal(t, ReasonZoneTouchPending, reason)

	candles = append(candles, market.Candle{OpenTime: 600_000, Open: 1.1012, High: 1.1031, Low: 1.1008, Close: 1.1020})
	status, _ = EvaluateTouch(zone, candles, 900_000)
	assert.Equal(t, TouchTouched, status)
}

func TestEvaluateTouchIgnoresBarsAtOrBeforeCreation(t *testing.T) {
	zone := bearishZone(FirstTouch)
	candles := []market.Candle{
		// Same bar that created the zone: excluded from touch scanning.
		{OpenTime: 0, Open: 1.1010, High: 1.1035, Low: 1.1005, Close: 1.1012},
	}

	status, _ := EvaluateTouch(zone, candles, 300_000)
	assert.Equal(t, TouchPending, status)
}

func TestEvaluateTouchExpiry(t *testing.T) {
	zone := bearishZone(MidlineTouch)

	status, reason := EvaluateTouch(zone, nil, zone.ExpiresTsMs+1)
	assert.Equal(t, TouchExpired, status)
	assert.Equal(t, ReasonZoneExpired, reason)
}

func TestEvaluateTouchIdempotent(t *testing.T) {
	zone := bearishZone(MidlineTouch)
	zone.Touched = true
	zone.TouchedTsMs = 123

	// Re-evaluation never rewrites the recorded touch, even past expiry.
	status, _ := EvaluateTouch(zone, nil, zone.ExpiresTsMs+hourMs)
	assert.Equal(t, TouchTouched, status)
	assert.Equal(t, int64(123), zone.TouchedTsMs)
}
