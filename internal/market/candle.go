// Package market holds the candle and quote primitives shared by the
// detectors, the live coordinator and the replay harness.
package market

import "sort"

// Timeframe is a bar duration label, e.g. "1m", "5m", "15m", "1h".
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
)

// Minutes returns the bar duration in minutes, or 0 for an unknown label.
func (tf Timeframe) Minutes() int {
	switch tf {
	case Timeframe1m:
		return 1
	case Timeframe5m:
		return 5
	case Timeframe15m:
		return 15
	case Timeframe30m:
		return 30
	case Timeframe1h:
		return 60
	default:
		return 0
	}
}

// Millis returns the bar duration in milliseconds.
func (tf Timeframe) Millis() int64 {
	return int64(tf.Minutes()) * 60_000
}

// Candle represents a single OHLCV bar. OpenTime is the bar-open instant in
// epoch milliseconds; the bar closes at OpenTime + timeframe.
type Candle struct {
	OpenTime int64   `json:"openTime"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// CloseTime returns the bar-close instant in epoch milliseconds.
func (c Candle) CloseTime(tf Timeframe) int64 {
	return c.OpenTime + tf.Millis()
}

// Bullish reports whether the bar closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports whether the bar closed below its open.
func (c Candle) Bearish() bool { return c.Close < c.Open }

// Body returns the absolute open-to-close distance.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns the high-to-low distance.
func (c Candle) Range() float64 { return c.High - c.Low }

// UpperWick returns the distance from the body top to the high.
func (c Candle) UpperWick() float64 {
	top := c.Open
	if c.Close > top {
		top = c.Close
	}
	return c.High - top
}

// LowerWick returns the distance from the low to the body bottom.
func (c Candle) LowerWick() float64 {
	bottom := c.Open
	if c.Close < bottom {
		bottom = c.Close
	}
	return bottom - c.Low
}

// Quote is a point-in-time price snapshot.
type Quote struct {
	Price     float64 `json:"price"`
	Bid       float64 `json:"bid"`
	Offer     float64 `json:"offer"`
	UpdatedAt int64   `json:"updatedAt"`
}

// Spread returns the offer-bid distance, or 0 when the quote has no book.
func (q Quote) Spread() float64 {
	if q.Offer > q.Bid {
		return q.Offer - q.Bid
	}
	return 0
}

// SortDedupe returns the candles ordered by OpenTime with duplicate bars
// removed (the last occurrence of a timestamp wins). The input is not
// modified.
func SortDedupe(candles []Candle) []Candle {
	if len(candles) == 0 {
		return nil
	}
	out := make([]Candle, len(candles))
	copy(out, candles)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })

	deduped := out[:0]
	for _, c := range out {
		if n := len(deduped); n > 0 && deduped[n-1].OpenTime == c.OpenTime {
			deduped[n-1] = c
			continue
		}
		deduped = append(deduped, c)
	}
	return deduped
}

// Aggregate rolls ordered 1-minute candles up to the target timeframe. Bars
// are bucketed on timeframe boundaries; a trailing partial bucket is emitted
// as-is since callers filter by close time anyway.
func Aggregate(oneMin []Candle, tf Timeframe) []Candle {
	step := tf.Millis()
	if step <= 60_000 || len(oneMin) == 0 {
		return oneMin
	}

	var out []Candle
	var cur *Candle
	for _, c := range oneMin {
		bucket := c.OpenTime - (c.OpenTime % step)
		if cur == nil || cur.OpenTime != bucket {
			if cur != nil {
				out = append(out, *cur)
			}
			cc := c
			cc.OpenTime = bucket
			cur = &cc
			continue
		}
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}

// ClosedBefore returns the prefix of candles whose close time is at or before
// nowMs. Evaluation logic must never see a bar that is still forming.
func ClosedBefore(candles []Candle, tf Timeframe, nowMs int64) []Candle {
	n := len(candles)
	for n > 0 && candles[n-1].CloseTime(tf) > nowMs {
		n--
	}
	return candles[:n]
}

// Between returns the candles whose open time falls in [fromMs, toMs).
func Between(candles []Candle, fromMs, toMs int64) []Candle {
	lo := sort.Search(len(candles), func(i int) bool { return candles[i].OpenTime >= fromMs })
	hi := sort.Search(len(candles), func(i int) bool { return candles[i].OpenTime >= toMs })
	return candles[lo:hi]
}
