// Package plan turns a completed setup plus a live quote into a concrete
// order plan, or a rejection reason. The planner is pure and deterministic;
// identifiers are derived from the setup rather than generated randomly so
// that retries and replays produce identical plans.
package plan

import (
	"fmt"
	"math"

	"sweep-trading-bot/config"
	"sweep-trading-bot/internal/detect"
	"sweep-trading-bot/internal/market"
)

// OrderType is the execution style of a planned entry.
type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

// Sides of a planned order.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Rejection reason codes. Every rejection path reports exactly one of these.
const (
	ReasonInvalidPrice    = "PLAN_INVALID_PRICE"
	ReasonInvalidStop     = "PLAN_INVALID_STOP"
	ReasonStopTooTight    = "PLAN_STOP_TOO_TIGHT"
	ReasonInvalidNotional = "PLAN_INVALID_NOTIONAL"
	ReasonInvalidTarget   = "PLAN_INVALID_TARGET"
	ReasonAccepted        = "PLAN_ACCEPTED"
)

// Request carries everything the planner needs for one decision.
type Request struct {
	Symbol  string
	DayKey  string
	Quote   *market.Quote
	Zone    *detect.ZoneSnapshot
	Sweep   *detect.SweepSnapshot
	PipSize float64
}

// Plan is a fully specified order: entry reference, protective stop, target
// and size. It is never persisted; the accepted plan becomes a TradeSnapshot.
type Plan struct {
	SetupID        string    `json:"setupId"`
	IdempotencyRef string    `json:"idempotencyRef"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`
	OrderType      OrderType `json:"orderType"`
	LimitPrice     float64   `json:"limitPrice,omitempty"`
	EntryPrice     float64   `json:"entryPrice"`
	StopPrice      float64   `json:"stopPrice"`
	TargetPrice    float64   `json:"targetPrice"`
	RiskPrice      float64   `json:"riskPrice"` // entry-to-stop distance
	RiskCurrency   float64   `json:"riskCurrency"`
	Notional       float64   `json:"notional"`
	Leverage       float64   `json:"leverage"`
	RMultiple      float64   `json:"rMultiple"`
}

// Build computes a plan for a touched zone, or returns nil with a rejection
// reason code.
func Build(req Request, risk config.RiskConfig) (*Plan, string) {
	if req.Quote == nil || req.Quote.Price <= 0 {
		return nil, ReasonInvalidPrice
	}

	side := SideSell
	if req.Zone.Direction == detect.Bullish {
		side = SideBuy
	}

	stopBuffer := risk.StopBufferPips*req.PipSize + risk.StopBufferSpreadMult*req.Quote.Spread()
	var stop float64
	if side == SideBuy {
		stop = req.Sweep.BreachPrice - stopBuffer
	} else {
		stop = req.Sweep.BreachPrice + stopBuffer
	}
	if stop <= 0 {
		return nil, ReasonInvalidStop
	}

	orderType := Market
	if risk.OrderType == string(Limit) {
		orderType = Limit
	}
	entry := req.Quote.Price
	limitPrice := 0.0
	if orderType == Limit {
		limitPrice = limitEntry(req.Zone)
		entry = limitPrice
	}
	if entry <= 0 {
		return nil, ReasonInvalidPrice
	}

	stopDist := math.Abs(entry - stop)
	if (side == SideBuy && stop >= entry) || (side == SideSell && stop <= entry) {
		return nil, ReasonInvalidStop
	}
	if stopDist < risk.MinStopPips*req.PipSize {
		return nil, ReasonStopTooTight
	}

	riskCurrency := risk.ReferenceEquity * risk.RiskPercent / 100
	notional := riskCurrency * entry / stopDist
	if notional < risk.MinNotional {
		notional = risk.MinNotional
	}
	if notional > risk.MaxNotional {
		notional = risk.MaxNotional
	}
	if notional <= 0 || math.IsNaN(notional) || math.IsInf(notional, 0) {
		return nil, ReasonInvalidNotional
	}

	var target float64
	if side == SideBuy {
		target = entry + stopDist*risk.TargetRMultiple
	} else {
		target = entry - stopDist*risk.TargetRMultiple
	}
	if target <= 0 {
		return nil, ReasonInvalidTarget
	}

	setupID := fmt.Sprintf("%s-%s-%d", req.Symbol, req.DayKey, req.Zone.CreatedTsMs)
	return &Plan{
		SetupID:        setupID,
		IdempotencyRef: "sweep-" + setupID,
		Symbol:         req.Symbol,
		Side:           side,
		OrderType:      orderType,
		LimitPrice:     limitPrice,
		EntryPrice:     entry,
		StopPrice:      stop,
		TargetPrice:    target,
		RiskPrice:      stopDist,
		RiskCurrency:   riskCurrency,
		Notional:       notional,
		Leverage:       risk.Leverage,
		RMultiple:      risk.TargetRMultiple,
	}, ReasonAccepted
}

// limitEntry picks the resting price inside the zone: near edge for first
// touch, midpoint for midline, far edge for full fill.
func limitEntry(zone *detect.ZoneSnapshot) float64 {
	switch zone.EntryMode {
	case detect.FirstTouch:
		return zone.NearEdge()
	case detect.FullFill:
		return zone.FarEdge()
	default:
		return zone.Midline()
	}
}
