package detect

import (
	"sweep-trading-bot/internal/market"
	"sweep-trading-bot/internal/session"
)

// DetectRange builds the accumulation-window range once the window has fully
// closed. Returns nil plus a reason code while the window is still open, when
// too few candles fall inside it, or when the resulting range is degenerate.
// Candles must be at the accumulation timeframe, ordered by open time.
func DetectRange(nowMs int64, win *session.Windows, candles []market.Candle, tf market.Timeframe, minCandles int) (*RangeSnapshot, string) {
	if nowMs < win.AccumEndMs {
		return nil, ReasonAsiaWindowOpen
	}

	inWindow := market.Between(candles, win.AccumStartMs, win.AccumEndMs)
	if len(inWindow) < minCandles {
		return nil, ReasonAsiaInsufficientCandles
	}

	high := inWindow[0].High
	low := inWindow[0].Low
	for _, c := range inWindow[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	if high <= low {
		return nil, ReasonAsiaRangeInvalid
	}

	return &RangeSnapshot{
		High:        high,
		Low:         low,
		CandleCount: len(inWindow),
		Timeframe:   tf,
		StartMs:     win.AccumStartMs,
		EndMs:       win.AccumEndMs,
	}, ReasonAsiaRangeReady
}
