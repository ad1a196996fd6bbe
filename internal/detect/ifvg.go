package detect

import "sweep-trading-bot/internal/market"

// ZoneConfig holds the imbalance-zone detector knobs.
type ZoneConfig struct {
	MinATRMult       float64   `json:"min_atr_mult" default:"0.1"`        // minimum gap size as ATR multiple
	MaxATRMult       float64   `json:"max_atr_mult" default:"2.0"`        // maximum gap size as ATR multiple
	TTLMinutes       int       `json:"ttl_minutes" default:"120"`         // zone lifetime from creation
	SearchTTLMinutes int       `json:"search_ttl_minutes" default:"60"`   // give up looking this long after the shift
	EntryMode        EntryMode `json:"entry_mode" default:"midline_touch" validate:"oneof=first_touch midline_touch full_fill"`
}

// DetectZone scans the confirm-timeframe candles from the displacement bar
// forward for 3-candle gaps in the confirmed direction whose size falls inside
// the ATR band and whose closing bar is at or after both confirmation
// timestamps. Among qualifying candidates the most recently created one wins.
// Returns nil with a reason code when no candidate exists yet.
func DetectZone(conf *ConfirmationSnapshot, candles []market.Candle, atr float64, cfg ZoneConfig) (*ZoneSnapshot, string) {
	if atr <= 0 {
		return nil, ReasonZonePending
	}
	minGap := cfg.MinATRMult * atr
	maxGap := cfg.MaxATRMult * atr

	var best *ZoneSnapshot
	for i := 2; i < len(candles); i++ {
		third := candles[i]
		if third.OpenTime < conf.DisplacementTsMs || third.OpenTime < conf.StructureShiftTsMs {
			continue
		}
		first := candles[i-2]

		var low, high float64
		switch conf.Direction {
		case Bullish:
			// Gap up: the first bar's high never overlaps the third bar's low.
			if first.High >= third.Low {
				continue
			}
			low, high = first.High, third.Low
		case Bearish:
			if first.Low <= third.High {
				continue
			}
			low, high = third.High, first.Low
		default:
			continue
		}

		gap := high - low
		if gap < minGap || gap > maxGap {
			continue
		}

		zone := &ZoneSnapshot{
			Direction:   conf.Direction,
			PriceLow:    low,
			PriceHigh:   high,
			CreatedTsMs: third.OpenTime,
			ExpiresTsMs: third.OpenTime + int64(cfg.TTLMinutes)*60_000,
			EntryMode:   cfg.EntryMode,
		}
		if best == nil || zone.CreatedTsMs >= best.CreatedTsMs {
			best = zone
		}
	}

	if best == nil {
		return nil, ReasonZonePending
	}
	return best, ReasonZoneCreated
}
