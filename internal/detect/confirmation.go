package detect

import "sweep-trading-bot/internal/market"

// ConfirmStatus is the outcome of one confirmation evaluation.
type ConfirmStatus string

const (
	ConfirmPending   ConfirmStatus = "pending"
	ConfirmConfirmed ConfirmStatus = "confirmed"
	ConfirmExpired   ConfirmStatus = "expired"
)

// ConfirmConfig holds the confirmation detector knobs.
type ConfirmConfig struct {
	TTLMinutes           int     `json:"ttl_minutes" default:"90"`              // window after rejection to confirm in
	DisplacementBodyATR  float64 `json:"displacement_body_atr" default:"1.0"`   // min body as ATR multiple
	DisplacementRangeATR float64 `json:"displacement_range_atr" default:"1.2"`  // min full range as ATR multiple
	ClosePositionMax     float64 `json:"close_position_max" default:"0.25"`     // close within this fraction of the extreme
	SwingLookback        int     `json:"swing_lookback" default:"5"`            // bars defining the prior swing extreme
	ShiftBufferPips      float64 `json:"shift_buffer_pips" default:"0.3"`       // fixed structure-shift buffer
	ShiftBufferATRMult   float64 `json:"shift_buffer_atr_mult" default:"0.05"`  // ATR-scaled structure-shift buffer
}

// ConfirmOutcome is the result of one confirmation evaluation.
type ConfirmOutcome struct {
	Status   ConfirmStatus
	Snapshot *ConfirmationSnapshot
	Reason   string
}

// EvaluateConfirmation looks for a displacement bar followed by a structure
// shift within the TTL window after the sweep's rejection. It is derived
// fresh on every call from the candles alone, so it carries no partial state.
// Candles must be closed bars at the confirm timeframe, ordered by open time.
func EvaluateConfirmation(sweep *SweepSnapshot, candles []market.Candle, nowMs int64, atr, pipSize float64, cfg ConfirmConfig) ConfirmOutcome {
	direction := sweep.Side.ReversalDirection()
	deadline := sweep.RejectedTsMs + int64(cfg.TTLMinutes)*60_000

	// Only bars from the rejection point forward participate, but the swing
	// lookback may reach further back, so keep the full slice and track the
	// first eligible index.
	start := 0
	for start < len(candles) && candles[start].OpenTime < sweep.RejectedTsMs {
		start++
	}

	dispIdx := -1
	for i := start; i < len(candles); i++ {
		if candles[i].OpenTime > deadline {
			break
		}
		if isDisplacement(candles[i], direction, atr, cfg) {
			dispIdx = i
			break
		}
	}

	if dispIdx < 0 {
		if nowMs > deadline {
			return ConfirmOutcome{Status: ConfirmExpired, Reason: ReasonConfirmExpired}
		}
		return ConfirmOutcome{Status: ConfirmPending, Reason: ReasonConfirmNoDisplacement}
	}

	shiftBuf := cfg.ShiftBufferPips*pipSize + cfg.ShiftBufferATRMult*atr
	for j := dispIdx + 1; j < len(candles); j++ {
		if candles[j].OpenTime > deadline {
			break
		}
		if isStructureShift(candles, j, direction, shiftBuf, cfg.SwingLookback) {
			return ConfirmOutcome{
				Status: ConfirmConfirmed,
				Snapshot: &ConfirmationSnapshot{
					Direction:          direction,
					DisplacementTsMs:   candles[dispIdx].OpenTime,
					StructureShiftTsMs: candles[j].OpenTime,
				},
				Reason: ReasonConfirmed,
			}
		}
	}

	if nowMs > deadline {
		return ConfirmOutcome{Status: ConfirmExpired, Reason: ReasonConfirmExpired}
	}
	return ConfirmOutcome{Status: ConfirmPending, Reason: ReasonConfirmNoStructureShift}
}

// isDisplacement checks for a strong-bodied candle committed in the implied
// direction: body and range clear their ATR multiples and the close sits
// within ClosePositionMax of the directional extreme.
func isDisplacement(c market.Candle, direction Direction, atr float64, cfg ConfirmConfig) bool {
	if atr <= 0 || c.Range() <= 0 {
		return false
	}
	if c.Body() < cfg.DisplacementBodyATR*atr || c.Range() < cfg.DisplacementRangeATR*atr {
		return false
	}
	switch direction {
	case Bullish:
		return c.Bullish() && (c.High-c.Close) <= cfg.ClosePositionMax*c.Range()
	case Bearish:
		return c.Bearish() && (c.Close-c.Low) <= cfg.ClosePositionMax*c.Range()
	}
	return false
}

// isStructureShift checks whether bar j closes beyond the prior N-bar swing
// extreme by the buffer: above the swing high for bullish, below the swing
// low for bearish.
func isStructureShift(candles []market.Candle, j int, direction Direction, buffer float64, lookback int) bool {
	lo := j - lookback
	if lo < 0 {
		lo = 0
	}
	if lo == j {
		return false
	}

	switch direction {
	case Bullish:
		swingHigh := candles[lo].High
		for _, c := range candles[lo:j] {
			if c.High > swingHigh {
				swingHigh = c.High
			}
		}
		return candles[j].Close > swingHigh+buffer
	case Bearish:
		swingLow := candles[lo].Low
		for _, c := range candles[lo:j] {
			if c.Low < swingLow {
				swingLow = c.Low
			}
		}
		return candles[j].Close < swingLow-buffer
	}
	return false
}
