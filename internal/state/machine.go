package state

import (
	"sweep-trading-bot/config"
	"sweep-trading-bot/internal/detect"
	"sweep-trading-bot/internal/market"
	"sweep-trading-bot/internal/session"
)

// View is the market data slice one evaluation sees: closed bars only, the
// current volatility reading and the session windows for the day.
type View struct {
	BaseCandles    []market.Candle // base timeframe, closed before "now"
	ConfirmCandles []market.Candle // confirm timeframe, closed before "now"
	ATR            float64
	Spread         float64
	Windows        *session.Windows
	PipSize        float64
}

// Machine advances a SessionState using the detectors. It is deterministic
// for a given (state, now, view) and performs no I/O, so live and replay
// share it verbatim.
type Machine struct {
	strat config.StrategyConfig
}

// NewMachine builds a machine from the strategy knobs.
func NewMachine(strat config.StrategyConfig) *Machine {
	return &Machine{strat: strat}
}

// Evaluate runs the next applicable detector for the current phase and
// advances on a definitive outcome, cascading through phases that resolve in
// the same evaluation. Expired or disallowed outcomes move straight to DONE.
// Reason codes for every step land in rs.
func (m *Machine) Evaluate(st *SessionState, nowMs int64, view *View, rs *detect.Reasons) {
	st.LastRunTsMs = nowMs
	if st.Cursors == nil {
		// A state persisted before any candle view omits the cursors map.
		st.Cursors = make(map[string]int64)
	}
	if len(view.BaseCandles) > 0 {
		st.Cursors[string(m.strat.BaseTimeframe)] = view.BaseCandles[len(view.BaseCandles)-1].OpenTime
	}
	if len(view.ConfirmCandles) > 0 {
		st.Cursors[string(m.strat.ConfirmTimeframe)] = view.ConfirmCandles[len(view.ConfirmCandles)-1].OpenTime
	}

	// Cascade while phases keep resolving; the bound covers the longest
	// possible chain IDLE -> WAITING_RETRACE plus the cooldown hop.
	for i := 0; i < 6; i++ {
		before := st.Lifecycle
		m.step(st, nowMs, view, rs)
		if st.Lifecycle == before {
			break
		}
	}
	st.LastReasonCodes = rs.Codes()
}

func (m *Machine) step(st *SessionState, nowMs int64, view *View, rs *detect.Reasons) {
	switch st.Lifecycle {
	case StateCooldown:
		if nowMs >= st.CooldownUntilMs {
			st.BeginNextLeg()
			rs.Add(ReasonCooldownExpired)
			return
		}
		rs.Add(ReasonCooldownActive)

	case StateIdle:
		if st.Range == nil {
			snap, reason := detect.DetectRange(nowMs, view.Windows, view.BaseCandles, m.strat.BaseTimeframe, m.strat.MinRangeCandles)
			rs.Add(reason)
			if snap == nil {
				// A day whose accumulation window never produced a valid
				// range is over once the raid window closes.
				if nowMs >= view.Windows.RaidEndMs {
					st.Lifecycle = StateDone
					rs.Add(ReasonDayDone)
				}
				return
			}
			st.Range = snap
		}
		st.Lifecycle = StateAsiaRangeReady

	case StateAsiaRangeReady, StateSweepDetected:
		out := detect.EvaluateSweep(st.Sweep, st.Range, view.BaseCandles, view.Windows, nowMs, view.ATR, view.Spread, view.PipSize, m.strat.Sweep)
		rs.Add(out.Reason)
		switch out.Status {
		case detect.SweepRejectedState:
			st.Sweep = out.Snapshot
			st.Lifecycle = StateConfirming
		case detect.SweepDetectedState:
			st.Sweep = out.Snapshot
			st.Lifecycle = StateSweepDetected
		case detect.SweepExpiredState:
			st.Sweep = out.Snapshot
			st.Lifecycle = StateDone
			rs.Add(ReasonDayDone)
		case detect.SweepNone:
			if out.Reason == detect.ReasonRaidWindowClosedNoSweep {
				st.Lifecycle = StateDone
				rs.Add(ReasonDayDone)
			}
		}

	case StateConfirming:
		if st.Confirmation == nil {
			out := detect.EvaluateConfirmation(st.Sweep, view.ConfirmCandles, nowMs, view.ATR, view.PipSize, m.strat.Confirm)
			rs.Add(out.Reason)
			switch out.Status {
			case detect.ConfirmConfirmed:
				st.Confirmation = out.Snapshot
			case detect.ConfirmExpired:
				st.Lifecycle = StateDone
				rs.Add(ReasonDayDone)
				return
			default:
				return
			}
		}

		zone, reason := detect.DetectZone(st.Confirmation, view.ConfirmCandles, view.ATR, m.strat.Zone)
		rs.Add(reason)
		if zone == nil {
			searchDeadline := st.Confirmation.StructureShiftTsMs + int64(m.strat.Zone.SearchTTLMinutes)*60_000
			if nowMs > searchDeadline {
				st.Lifecycle = StateDone
				rs.AddAll(detect.ReasonZoneSearchExpired, ReasonDayDone)
			}
			return
		}
		st.Zone = zone
		st.Lifecycle = StateWaitingRetrace

	case StateWaitingRetrace:
		status, reason := detect.EvaluateTouch(st.Zone, view.ConfirmCandles, nowMs)
		rs.Add(reason)
		if status == detect.TouchExpired {
			st.Lifecycle = StateDone
			rs.Add(ReasonDayDone)
		}
		// A touched zone stays in WAITING_RETRACE; entering the trade is the
		// caller's decision (planner plus execution policy).

	case StateInTrade, StateDone:
		// Exits and reconciliation are owned by the coordinator or the
		// replay exit model, not the machine.
	}
}
