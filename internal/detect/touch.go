package detect

import "sweep-trading-bot/internal/market"

// TouchStatus is the outcome of one touch evaluation.
type TouchStatus string

const (
	TouchPending TouchStatus = "pending"
	TouchTouched TouchStatus = "touched"
	TouchExpired TouchStatus = "expired"
)

// EvaluateTouch checks whether price has revisited the zone per its entry
// mode. An already-touched zone returns immediately without re-scanning, so
// the recorded touch timestamp never changes. If the zone is untouched and
// past its expiry the outcome is terminal. Candles must be closed bars,
// ordered by open time.
func EvaluateTouch(zone *ZoneSnapshot, candles []market.Candle, nowMs int64) (TouchStatus, string) {
	if zone.Touched {
		return TouchTouched, ReasonZoneTouched
	}

	for _, c := range candles {
		if c.OpenTime <= zone.CreatedTsMs {
			continue
		}
		if touches(c, zone) {
			zone.Touched = true
			zone.TouchedTsMs = c.OpenTime
			return TouchTouched, ReasonZoneTouched
		}
	}

	if nowMs > zone.ExpiresTsMs {
		return TouchExpired, ReasonZoneExpired
	}
	return TouchPending, ReasonZoneTouchPending
}

func touches(c market.Candle, zone *ZoneSnapshot) bool {
	switch zone.EntryMode {
	case FirstTouch:
		return c.Low <= zone.PriceHigh && c.High >= zone.PriceLow
	case MidlineTouch:
		mid := zone.Midline()
		if zone.Direction == Bullish {
			return c.Low <= mid
		}
		return c.High >= mid
	case FullFill:
		if zone.Direction == Bullish {
			return c.Low <= zone.PriceLow
		}
		return c.High >= zone.PriceHigh
	}
	return false
}
