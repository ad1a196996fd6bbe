package config

// Patch is a partial configuration override: only non-nil fields replace the
// base value. Patches are what profile files and matrix scenarios carry, so
// the effective configuration stays type-checked end to end instead of being
// assembled from untyped maps.
type Patch struct {
	Strategy StrategyPatch `json:"strategy" yaml:"strategy"`
	Risk     RiskPatch     `json:"risk" yaml:"risk"`
	Replay   ReplayPatch   `json:"replay" yaml:"replay"`
}

// StrategyPatch overrides detector knobs.
type StrategyPatch struct {
	BaseTimeframe    *string `json:"base_timeframe" yaml:"base_timeframe"`
	ConfirmTimeframe *string `json:"confirm_timeframe" yaml:"confirm_timeframe"`
	ATRPeriod        *int    `json:"atr_period" yaml:"atr_period"`
	MinRangeCandles  *int    `json:"min_range_candles" yaml:"min_range_candles"`

	SweepBufferPips       *float64 `json:"sweep_buffer_pips" yaml:"sweep_buffer_pips"`
	SweepBufferATRMult    *float64 `json:"sweep_buffer_atr_mult" yaml:"sweep_buffer_atr_mult"`
	RejectionBars         *int     `json:"rejection_bars" yaml:"rejection_bars"`
	InsideMarginPips      *float64 `json:"inside_margin_pips" yaml:"inside_margin_pips"`
	WickBodyRatio         *float64 `json:"wick_body_ratio" yaml:"wick_body_ratio"`
	ConfirmTTLMinutes     *int     `json:"confirm_ttl_minutes" yaml:"confirm_ttl_minutes"`
	DisplacementBodyATR   *float64 `json:"displacement_body_atr" yaml:"displacement_body_atr"`
	DisplacementRangeATR  *float64 `json:"displacement_range_atr" yaml:"displacement_range_atr"`
	ClosePositionMax      *float64 `json:"close_position_max" yaml:"close_position_max"`
	SwingLookback         *int     `json:"swing_lookback" yaml:"swing_lookback"`
	ZoneMinATRMult        *float64 `json:"zone_min_atr_mult" yaml:"zone_min_atr_mult"`
	ZoneMaxATRMult        *float64 `json:"zone_max_atr_mult" yaml:"zone_max_atr_mult"`
	ZoneTTLMinutes        *int     `json:"zone_ttl_minutes" yaml:"zone_ttl_minutes"`
	EntryMode             *string  `json:"entry_mode" yaml:"entry_mode"`
}

// RiskPatch overrides sizing knobs.
type RiskPatch struct {
	RiskPercent     *float64 `json:"risk_percent" yaml:"risk_percent"`
	TargetRMultiple *float64 `json:"target_r_multiple" yaml:"target_r_multiple"`
	StopBufferPips  *float64 `json:"stop_buffer_pips" yaml:"stop_buffer_pips"`
	MinStopPips     *float64 `json:"min_stop_pips" yaml:"min_stop_pips"`
	MinNotional     *float64 `json:"min_notional" yaml:"min_notional"`
	MaxNotional     *float64 `json:"max_notional" yaml:"max_notional"`
	OrderType       *string  `json:"order_type" yaml:"order_type"`
	CooldownMinutes *int     `json:"cooldown_minutes" yaml:"cooldown_minutes"`
	MaxDailyTrades  *int     `json:"max_daily_trades" yaml:"max_daily_trades"`
}

// ReplayPatch overrides harness knobs.
type ReplayPatch struct {
	TickMinutes           *int     `json:"tick_minutes" yaml:"tick_minutes"`
	SlippagePips          *float64 `json:"slippage_pips" yaml:"slippage_pips"`
	PreferStopWhenBothHit *bool    `json:"prefer_stop_when_both_hit" yaml:"prefer_stop_when_both_hit"`
	ForceCloseAtEnd       *bool    `json:"force_close_at_end" yaml:"force_close_at_end"`
}

// Apply returns a copy of base with every non-nil patch field overridden.
// The base is never mutated, so one loaded configuration can fan out to many
// scenario variants safely.
func Apply(base *Config, p Patch) *Config {
	out := *base
	out.Strategy = applyStrategy(base.Strategy, p.Strategy)
	out.Risk = applyRisk(base.Risk, p.Risk)
	out.Replay = applyReplay(base.Replay, p.Replay)
	return &out
}

func applyStrategy(s StrategyConfig, p StrategyPatch) StrategyConfig {
	setString((*string)(&s.BaseTimeframe), p.BaseTimeframe)
	setString((*string)(&s.ConfirmTimeframe), p.ConfirmTimeframe)
	setInt(&s.ATRPeriod, p.ATRPeriod)
	setInt(&s.MinRangeCandles, p.MinRangeCandles)

	setFloat(&s.Sweep.BufferPips, p.SweepBufferPips)
	setFloat(&s.Sweep.BufferATRMult, p.SweepBufferATRMult)
	setInt(&s.Sweep.RejectionBars, p.RejectionBars)
	setFloat(&s.Sweep.InsideMarginPips, p.InsideMarginPips)
	setFloat(&s.Sweep.WickBodyRatio, p.WickBodyRatio)

	setInt(&s.Confirm.TTLMinutes, p.ConfirmTTLMinutes)
	setFloat(&s.Confirm.DisplacementBodyATR, p.DisplacementBodyATR)
	setFloat(&s.Confirm.DisplacementRangeATR, p.DisplacementRangeATR)
	setFloat(&s.Confirm.ClosePositionMax, p.ClosePositionMax)
	setInt(&s.Confirm.SwingLookback, p.SwingLookback)

	setFloat(&s.Zone.MinATRMult, p.ZoneMinATRMult)
	setFloat(&s.Zone.MaxATRMult, p.ZoneMaxATRMult)
	setInt(&s.Zone.TTLMinutes, p.ZoneTTLMinutes)
	setString((*string)(&s.Zone.EntryMode), p.EntryMode)
	return s
}

func applyRisk(r RiskConfig, p RiskPatch) RiskConfig {
	setFloat(&r.RiskPercent, p.RiskPercent)
	setFloat(&r.TargetRMultiple, p.TargetRMultiple)
	setFloat(&r.StopBufferPips, p.StopBufferPips)
	setFloat(&r.MinStopPips, p.MinStopPips)
	setFloat(&r.MinNotional, p.MinNotional)
	setFloat(&r.MaxNotional, p.MaxNotional)
	setString(&r.OrderType, p.OrderType)
	setInt(&r.CooldownMinutes, p.CooldownMinutes)
	setInt(&r.MaxDailyTrades, p.MaxDailyTrades)
	return r
}

func applyReplay(r ReplayConfig, p ReplayPatch) ReplayConfig {
	setInt(&r.TickMinutes, p.TickMinutes)
	setFloat(&r.SlippagePips, p.SlippagePips)
	if p.PreferStopWhenBothHit != nil {
		r.PreferStopWhenBothHit = *p.PreferStopWhenBothHit
	}
	if p.ForceCloseAtEnd != nil {
		r.ForceCloseAtEnd = *p.ForceCloseAtEnd
	}
	return r
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
