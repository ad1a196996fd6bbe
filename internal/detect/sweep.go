package detect

import (
	"sweep-trading-bot/internal/market"
	"sweep-trading-bot/internal/session"
)

// SweepStatus is the lifecycle status of the sweep detector.
type SweepStatus string

const (
	SweepNone          SweepStatus = "none"     // nothing breached yet
	SweepDetectedState SweepStatus = "detected" // breach recorded, rejection pending
	SweepRejectedState SweepStatus = "rejected" // rejection confirmed, setup live
	SweepExpiredState  SweepStatus = "expired"  // bar budget elapsed, terminal
)

// SweepConfig holds the sweep detector knobs.
type SweepConfig struct {
	BufferPips       float64 `json:"buffer_pips" default:"1.0"`         // fixed breach buffer in pips
	BufferATRMult    float64 `json:"buffer_atr_mult" default:"0.1"`     // ATR-scaled breach buffer
	BufferSpreadMult float64 `json:"buffer_spread_mult" default:"1.0"`  // spread-scaled breach buffer
	RejectionBars    int     `json:"rejection_bars" default:"3"`        // bar budget after the breach
	InsideMarginPips float64 `json:"inside_margin_pips" default:"0.5"`  // close must re-enter by this much
	WickBodyRatio    float64 `json:"wick_body_ratio" default:"1.2"`     // 0 disables the wick gate
}

// Buffer computes the adaptive breach buffer: the largest of the fixed pip
// buffer, the ATR multiple and the spread multiple.
func (c SweepConfig) Buffer(atr, spread, pipSize float64) float64 {
	buf := c.BufferPips * pipSize
	if v := c.BufferATRMult * atr; v > buf {
		buf = v
	}
	if v := c.BufferSpreadMult * spread; v > buf {
		buf = v
	}
	return buf
}

// SweepOutcome is the result of one sweep evaluation.
type SweepOutcome struct {
	Status   SweepStatus
	Snapshot *SweepSnapshot
	Reason   string
}

// EvaluateSweep advances the sweep lifecycle one step. With no prior sweep it
// scans the raid-window candles for the first qualifying breach; with a live
// sweep it scans forward from the breach bar for a rejection close back inside
// the range. A rejected sweep is terminal and is returned unchanged, as is an
// expired one via the bar budget. A rejection still pending when the raid
// window closes expires the same way: no further raid bars can arrive, so the
// budget can never be met. Candles must be closed bars at the base timeframe,
// ordered by open time.
func EvaluateSweep(prior *SweepSnapshot, rng *RangeSnapshot, candles []market.Candle, win *session.Windows, nowMs int64, atr, spread, pipSize float64, cfg SweepConfig) SweepOutcome {
	if prior != nil && prior.Rejected {
		return SweepOutcome{Status: SweepRejectedState, Snapshot: prior, Reason: ReasonSweepRejected}
	}

	raid := market.Between(candles, win.RaidStartMs, win.RaidEndMs)

	if prior == nil {
		snap, reason := scanBreach(rng, raid, atr, spread, pipSize, cfg)
		if snap == nil {
			if nowMs >= win.RaidEndMs {
				return SweepOutcome{Status: SweepNone, Reason: ReasonRaidWindowClosedNoSweep}
			}
			return SweepOutcome{Status: SweepNone, Reason: reason}
		}
		prior = snap
	}

	out := scanRejection(prior, rng, raid, pipSize, cfg)
	if out.Status == SweepDetectedState && nowMs >= win.RaidEndMs {
		return SweepOutcome{Status: SweepExpiredState, Snapshot: prior, Reason: ReasonSweepRejectionTimeout}
	}
	return out
}

// scanBreach finds the first bar breaching the range plus buffer on exactly
// one side. A bar breaching both sides is ambiguous and skipped entirely
// rather than resolved by penetration depth.
func scanBreach(rng *RangeSnapshot, raid []market.Candle, atr, spread, pipSize float64, cfg SweepConfig) (*SweepSnapshot, string) {
	buf := cfg.Buffer(atr, spread, pipSize)
	upper := rng.High + buf
	lower := rng.Low - buf

	sawAmbiguous := false
	for _, c := range raid {
		buyBreach := c.High > upper
		sellBreach := c.Low < lower
		switch {
		case buyBreach && sellBreach:
			sawAmbiguous = true
		case buyBreach:
			return &SweepSnapshot{Side: BuySide, BreachTsMs: c.OpenTime, BreachPrice: c.High, Buffer: buf}, ReasonSweepDetectedBuySide
		case sellBreach:
			return &SweepSnapshot{Side: SellSide, BreachTsMs: c.OpenTime, BreachPrice: c.Low, Buffer: buf}, ReasonSweepDetectedSellSide
		}
	}
	if sawAmbiguous {
		return nil, ReasonSweepAmbiguousBothSides
	}
	return nil, ReasonNoSweepDetected
}

// scanRejection looks for the first close back inside the range within the
// bar budget, optionally gated on rejection-wick dominance.
func scanRejection(snap *SweepSnapshot, rng *RangeSnapshot, raid []market.Candle, pipSize float64, cfg SweepConfig) SweepOutcome {
	margin := cfg.InsideMarginPips * pipSize

	scanned := 0
	for _, c := range raid {
		if c.OpenTime <= snap.BreachTsMs {
			continue
		}
		if scanned >= cfg.RejectionBars {
			break
		}
		scanned++

		if rejects(c, snap.Side, rng, margin, cfg.WickBodyRatio) {
			snap.Rejected = true
			snap.RejectedTsMs = c.OpenTime
			return SweepOutcome{Status: SweepRejectedState, Snapshot: snap, Reason: ReasonSweepRejected}
		}
	}

	if scanned >= cfg.RejectionBars {
		return SweepOutcome{Status: SweepExpiredState, Snapshot: snap, Reason: ReasonSweepRejectionTimeout}
	}
	return SweepOutcome{Status: SweepDetectedState, Snapshot: snap, Reason: ReasonSweepRejectionPending}
}

func rejects(c market.Candle, side Side, rng *RangeSnapshot, margin, wickRatio float64) bool {
	switch side {
	case BuySide:
		if c.Close > rng.High-margin {
			return false
		}
		if wickRatio > 0 && c.UpperWick() < wickRatio*c.Body() {
			return false
		}
	case SellSide:
		if c.Close < rng.Low+margin {
			return false
		}
		if wickRatio > 0 && c.LowerWick() < wickRatio*c.Body() {
			return false
		}
	}
	return true
}
