// Package detect implements the pure pattern detectors of the sweep strategy:
// session range, liquidity sweep, confirmation, imbalance zone and touch.
// Detectors consume closed candles plus the prior partial snapshot and return
// an updated snapshot, a status and machine-readable reason codes; they never
// perform I/O.
package detect

import "sweep-trading-bot/internal/market"

// Side identifies which side of the range a sweep breached.
type Side string

const (
	BuySide  Side = "buy_side"  // breach above range high
	SellSide Side = "sell_side" // breach below range low
)

// Direction is the implied trade direction of a confirmed setup.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// ReversalDirection returns the trade direction implied by a rejected sweep:
// a rejected buy-side sweep sets up a short, a rejected sell-side sweep a long.
func (s Side) ReversalDirection() Direction {
	if s == BuySide {
		return Bearish
	}
	return Bullish
}

// EntryMode selects how a retracement into the zone qualifies as a touch.
type EntryMode string

const (
	FirstTouch   EntryMode = "first_touch"   // any overlap with the zone
	MidlineTouch EntryMode = "midline_touch" // price reaches the zone midpoint
	FullFill     EntryMode = "full_fill"     // price reaches the zone's far edge
)

// RangeSnapshot is the accumulation-window range, created once per day and
// immutable afterward.
type RangeSnapshot struct {
	High        float64          `json:"high"`
	Low         float64          `json:"low"`
	CandleCount int              `json:"candleCount"`
	Timeframe   market.Timeframe `json:"timeframe"`
	StartMs     int64            `json:"startMs"`
	EndMs       int64            `json:"endMs"`
}

// SweepSnapshot records the first qualifying breach of the range and, once
// confirmed, its rejection. Only Rejected/RejectedTsMs mutate after creation.
type SweepSnapshot struct {
	Side         Side    `json:"side"`
	BreachTsMs   int64   `json:"breachTsMs"`
	BreachPrice  float64 `json:"breachPrice"`
	Buffer       float64 `json:"buffer"`
	Rejected     bool    `json:"rejected"`
	RejectedTsMs int64   `json:"rejectedTsMs,omitempty"`
}

// ConfirmationSnapshot records the displacement and structure-shift events
// that validate a rejected sweep.
type ConfirmationSnapshot struct {
	Direction          Direction `json:"direction"`
	DisplacementTsMs   int64     `json:"displacementTsMs"`
	StructureShiftTsMs int64     `json:"structureShiftTsMs"`
}

// ZoneSnapshot is the selected imbalance zone (iFVG). Touched/TouchedTsMs is
// the only allowed mutation after creation.
type ZoneSnapshot struct {
	Direction   Direction `json:"direction"`
	PriceLow    float64   `json:"priceLow"`
	PriceHigh   float64   `json:"priceHigh"`
	CreatedTsMs int64     `json:"createdTsMs"`
	ExpiresTsMs int64     `json:"expiresTsMs"`
	EntryMode   EntryMode `json:"entryMode"`
	Touched     bool      `json:"touched"`
	TouchedTsMs int64     `json:"touchedTsMs,omitempty"`
}

// Midline returns the zone midpoint.
func (z *ZoneSnapshot) Midline() float64 { return (z.PriceLow + z.PriceHigh) / 2 }

// FarEdge returns the deep edge of the zone: the low for a bullish zone,
// the high for a bearish one.
func (z *ZoneSnapshot) FarEdge() float64 {
	if z.Direction == Bullish {
		return z.PriceLow
	}
	return z.PriceHigh
}

// NearEdge returns the edge price first reaches on retracement.
func (z *ZoneSnapshot) NearEdge() float64 {
	if z.Direction == Bullish {
		return z.PriceHigh
	}
	return z.PriceLow
}
