// Package state owns the per-symbol-per-day session record and the state
// machine that advances it through the sweep setup phases.
package state

import (
	"sweep-trading-bot/internal/detect"
)

// Lifecycle is the setup phase for one symbol on one trading day.
type Lifecycle string

const (
	StateIdle           Lifecycle = "IDLE"
	StateAsiaRangeReady Lifecycle = "ASIA_RANGE_READY"
	StateSweepDetected  Lifecycle = "SWEEP_DETECTED"
	StateConfirming     Lifecycle = "CONFIRMING"
	StateWaitingRetrace Lifecycle = "WAITING_RETRACE"
	StateInTrade        Lifecycle = "IN_TRADE"
	StateDone           Lifecycle = "DONE"
	StateCooldown       Lifecycle = "COOLDOWN"
)

// Reason codes owned by the state machine rather than a detector.
const (
	ReasonDayReset        = "DAY_RESET"
	ReasonDayDone         = "DAY_DONE"
	ReasonCooldownActive  = "COOLDOWN_ACTIVE"
	ReasonCooldownExpired = "COOLDOWN_EXPIRED"
)

// TradeSnapshot records the open position derived from an accepted plan.
type TradeSnapshot struct {
	SetupID      string  `json:"setupId"`
	Side         string  `json:"side"` // BUY or SELL
	EntryPrice   float64 `json:"entryPrice"`
	StopPrice    float64 `json:"stopPrice"`
	TargetPrice  float64 `json:"targetPrice"`
	RiskMultiple float64 `json:"riskMultiple"`
	OpenedTsMs   int64   `json:"openedTsMs"`
	BrokerRef    string  `json:"brokerRef,omitempty"`
	DryRun       bool    `json:"dryRun"`
}

// SessionState is the aggregate session record for one symbol on one trading
// day. It is the only persisted mutable object in the system.
type SessionState struct {
	Symbol    string    `json:"symbol"`
	DayKey    string    `json:"dayKey"`
	Lifecycle Lifecycle `json:"lifecycle"`

	CooldownUntilMs int64 `json:"cooldownUntilMs,omitempty"`
	KillSwitch      bool  `json:"killSwitch,omitempty"`

	Range        *detect.RangeSnapshot        `json:"range,omitempty"`
	Sweep        *detect.SweepSnapshot        `json:"sweep,omitempty"`
	Confirmation *detect.ConfirmationSnapshot `json:"confirmation,omitempty"`
	Zone         *detect.ZoneSnapshot         `json:"zone,omitempty"`
	Trade        *TradeSnapshot               `json:"trade,omitempty"`

	// Cursors tracks the last processed bar-open per timeframe label.
	Cursors map[string]int64 `json:"cursors,omitempty"`

	TradesPlaced int `json:"tradesPlaced"`
	TradesWon    int `json:"tradesWon"`
	TradesLost   int `json:"tradesLost"`

	LastRunTsMs     int64    `json:"lastRunTsMs"`
	LastReasonCodes []string `json:"lastReasonCodes,omitempty"`
}

// New returns a fresh IDLE session state for the symbol and day.
func New(symbol, dayKey string) *SessionState {
	return &SessionState{
		Symbol:    symbol,
		DayKey:    dayKey,
		Lifecycle: StateIdle,
		Cursors:   make(map[string]int64),
	}
}

// EnsureDay resets the state in place when the trading day has changed. This
// is the only allowed full reset; it reports whether a reset happened.
func (s *SessionState) EnsureDay(dayKey string) bool {
	if s.DayKey == dayKey {
		return false
	}
	*s = *New(s.Symbol, dayKey)
	return true
}

// MarkEntered records an accepted entry and moves the session into the trade.
func (s *SessionState) MarkEntered(t *TradeSnapshot) {
	s.Trade = t
	s.Lifecycle = StateInTrade
	s.TradesPlaced++
}

// RecordExit closes the open trade. A win finishes the day; a loss starts the
// cooldown cycle when one is configured, otherwise also finishes the day.
func (s *SessionState) RecordExit(won bool, nowMs int64, cooldownMinutes int) {
	s.Trade = nil
	if won {
		s.TradesWon++
		s.Lifecycle = StateDone
		return
	}
	s.TradesLost++
	if cooldownMinutes > 0 {
		s.CooldownUntilMs = nowMs + int64(cooldownMinutes)*60_000
		s.Lifecycle = StateCooldown
		return
	}
	s.Lifecycle = StateDone
}

// BeginNextLeg clears the per-leg snapshots after a cooldown so a fresh sweep
// can be detected against the same daily range.
func (s *SessionState) BeginNextLeg() {
	s.Sweep = nil
	s.Confirmation = nil
	s.Zone = nil
	s.CooldownUntilMs = 0
	s.Lifecycle = StateIdle
}
