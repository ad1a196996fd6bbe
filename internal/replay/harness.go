// Package replay drives the detectors, state machine and planner bar-by-bar
// over historical 1-minute candles with a simulated fill/exit model. A run is
// pure and deterministic: no broker, no store, no clock.
package replay

import (
	"fmt"
	"sort"

	"sweep-trading-bot/config"
	"sweep-trading-bot/internal/detect"
	"sweep-trading-bot/internal/market"
	"sweep-trading-bot/internal/plan"
	"sweep-trading-bot/internal/session"
	"sweep-trading-bot/internal/state"
)

// Exit reasons of the simulated position model.
const (
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
	ExitForceClose = "force_close"
)

// EventType tags timeline entries.
type EventType string

const (
	EventTransition EventType = "transition"
	EventEntry      EventType = "entry"
	EventExit       EventType = "exit"
	EventNote       EventType = "note"
)

// Event is one timeline record of a run.
type Event struct {
	TsMs    int64           `json:"tsMs"`
	Type    EventType       `json:"type"`
	From    state.Lifecycle `json:"from,omitempty"`
	To      state.Lifecycle `json:"to,omitempty"`
	Note    string          `json:"note,omitempty"`
	Reasons []string        `json:"reasons,omitempty"`
}

// Trade is one completed simulated trade.
type Trade struct {
	SetupID      string  `json:"setupId"`
	Side         string  `json:"side"`
	EntryTsMs    int64   `json:"entryTsMs"`
	EntryPrice   float64 `json:"entryPrice"`
	ExitTsMs     int64   `json:"exitTsMs"`
	ExitPrice    float64 `json:"exitPrice"`
	StopPrice    float64 `json:"stopPrice"`
	TargetPrice  float64 `json:"targetPrice"`
	ExitReason   string  `json:"exitReason"`
	RiskPrice    float64 `json:"riskPrice"`
	RiskCurrency float64 `json:"riskCurrency"`
	Notional     float64 `json:"notional"`
	RMultiple    float64 `json:"rMultiple"`
	PnL          float64 `json:"pnl"`
}

// ReasonCount pairs a reason code with how often it occurred across the run.
type ReasonCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// Summary aggregates one run.
type Summary struct {
	Trades         int            `json:"trades"`
	Wins           int            `json:"wins"`
	Losses         int            `json:"losses"`
	WinRate        float64        `json:"winRate"`
	AvgWinR        float64        `json:"avgWinR"`
	AvgLossR       float64        `json:"avgLossR"`
	ExpectancyR    float64        `json:"expectancyR"`
	NetR           float64        `json:"netR"`
	NetPnL         float64        `json:"netPnl"`
	MaxDrawdownR   float64        `json:"maxDrawdownR"`
	AvgHoldMinutes float64        `json:"avgHoldMinutes"`
	ExitReasons    map[string]int `json:"exitReasons"`
	TopReasonCodes []ReasonCount  `json:"topReasonCodes"`
}

// Result is the full output of one run.
type Result struct {
	Summary  Summary `json:"summary"`
	Trades   []Trade `json:"trades"`
	Timeline []Event `json:"timeline"`
}

type openPosition struct {
	trade Trade
}

// Run replays the strategy over the candle series. Candles are sorted and
// deduplicated first; evaluation at each tick sees only bars already closed.
func Run(oneMin []market.Candle, pipSize float64, cfg *config.Config) (*Result, error) {
	if len(oneMin) == 0 {
		return nil, fmt.Errorf("replay: empty candle series")
	}
	if pipSize <= 0 {
		return nil, fmt.Errorf("replay: pip size must be positive")
	}

	symbol := "REPLAY"
	if len(cfg.Symbols) > 0 {
		symbol = cfg.Symbols[0]
	}

	bars := market.SortDedupe(oneMin)
	base := market.Aggregate(bars, cfg.Strategy.BaseTimeframe)
	confirm := base
	if cfg.Strategy.ConfirmTimeframe != cfg.Strategy.BaseTimeframe {
		confirm = market.Aggregate(bars, cfg.Strategy.ConfirmTimeframe)
	}

	machine := state.NewMachine(cfg.Strategy)
	st := state.New(symbol, session.DayKey(bars[0].OpenTime, cfg.Session))

	res := &Result{}
	reasonCounts := make(map[string]int)
	tickMs := int64(cfg.Replay.TickMinutes) * 60_000

	var pos *openPosition
	var windows *session.Windows
	windowsDay := ""

	for _, bar := range bars {
		nowMs := bar.CloseTime(market.Timeframe1m)

		if pos != nil && bar.OpenTime >= pos.trade.EntryTsMs {
			if exited := checkExit(pos, bar, cfg.Replay.PreferStopWhenBothHit); exited != "" {
				closePosition(res, st, pos, exited, nowMs, exitPrice(pos, exited), cfg.Risk.CooldownMinutes)
				pos = nil
			}
		}

		if nowMs%tickMs != 0 {
			continue
		}

		dayKey := session.DayKey(nowMs, cfg.Session)
		if st.EnsureDay(dayKey) {
			res.Timeline = append(res.Timeline, Event{TsMs: nowMs, Type: EventNote, Note: state.ReasonDayReset})
		}
		if dayKey != windowsDay {
			w, err := session.Resolve(dayKey, cfg.Session)
			if err != nil {
				return nil, fmt.Errorf("replay: resolve windows for %s: %w", dayKey, err)
			}
			windows, windowsDay = w, dayKey
		}

		view := &state.View{
			BaseCandles:    market.ClosedBefore(base, cfg.Strategy.BaseTimeframe, nowMs),
			ConfirmCandles: market.ClosedBefore(confirm, cfg.Strategy.ConfirmTimeframe, nowMs),
			ATR:            market.ATR(market.ClosedBefore(confirm, cfg.Strategy.ConfirmTimeframe, nowMs), cfg.Strategy.ATRPeriod),
			Spread:         0,
			Windows:        windows,
			PipSize:        pipSize,
		}

		rs := detect.NewReasons()
		before := st.Lifecycle
		machine.Evaluate(st, nowMs, view, rs)
		for _, code := range rs.Codes() {
			reasonCounts[code]++
		}
		if st.Lifecycle != before {
			res.Timeline = append(res.Timeline, Event{
				TsMs: nowMs, Type: EventTransition, From: before, To: st.Lifecycle, Reasons: rs.Codes(),
			})
		}

		if pos == nil && st.Lifecycle == state.StateWaitingRetrace && st.Zone != nil && st.Zone.Touched {
			pos = tryEnter(res, st, nowMs, bar.Close, pipSize, cfg, reasonCounts)
		}
	}

	if pos != nil && cfg.Replay.ForceCloseAtEnd {
		last := bars[len(bars)-1]
		closePosition(res, st, pos, ExitForceClose, last.CloseTime(market.Timeframe1m), last.Close, cfg.Risk.CooldownMinutes)
		pos = nil
	}

	res.Summary = summarize(res.Trades, reasonCounts)
	return res, nil
}

// tryEnter runs the planner against the simulated quote and opens a position
// with adverse slippage applied to the fill.
func tryEnter(res *Result, st *state.SessionState, nowMs int64, lastClose, pipSize float64, cfg *config.Config, reasonCounts map[string]int) *openPosition {
	if st.KillSwitch {
		reasonCounts["KILL_SWITCH_ACTIVE"]++
		return nil
	}
	if cfg.Risk.MaxDailyTrades > 0 && st.TradesPlaced >= cfg.Risk.MaxDailyTrades {
		reasonCounts["DAILY_TRADE_CAP"]++
		return nil
	}

	p, reason := plan.Build(plan.Request{
		Symbol:  st.Symbol,
		DayKey:  st.DayKey,
		Quote:   &market.Quote{Price: lastClose},
		Zone:    st.Zone,
		Sweep:   st.Sweep,
		PipSize: pipSize,
	}, cfg.Risk)
	reasonCounts[reason]++
	if p == nil {
		return nil
	}

	slip := cfg.Replay.SlippagePips * pipSize
	entry := p.EntryPrice
	if p.Side == plan.SideBuy {
		entry += slip
	} else {
		entry -= slip
	}

	pos := &openPosition{trade: Trade{
		SetupID:      p.SetupID,
		Side:         p.Side,
		EntryTsMs:    nowMs,
		EntryPrice:   entry,
		StopPrice:    p.StopPrice,
		TargetPrice:  p.TargetPrice,
		RiskPrice:    p.RiskPrice,
		RiskCurrency: p.RiskCurrency,
		Notional:     p.Notional,
	}}

	// The session record mirrors live entry bookkeeping; exit accounting stays
	// on the simulated position.
	st.MarkEntered(&state.TradeSnapshot{
		SetupID:      p.SetupID,
		Side:         p.Side,
		EntryPrice:   entry,
		StopPrice:    p.StopPrice,
		TargetPrice:  p.TargetPrice,
		RiskMultiple: p.RMultiple,
		OpenedTsMs:   nowMs,
		DryRun:       true,
	})
	res.Timeline = append(res.Timeline, Event{
		TsMs: nowMs, Type: EventEntry, To: state.StateInTrade,
		Note: fmt.Sprintf("%s %s entry=%.5f stop=%.5f target=%.5f", p.Side, p.SetupID, entry, p.StopPrice, p.TargetPrice),
	})
	return pos
}

// checkExit returns the exit reason hit by this bar, or "". When both stop
// and target are crossed inside one bar the configured tie-break decides.
func checkExit(pos *openPosition, bar market.Candle, preferStop bool) string {
	t := pos.trade
	var stopHit, targetHit bool
	if t.Side == plan.SideBuy {
		stopHit = bar.Low <= t.StopPrice
		targetHit = bar.High >= t.TargetPrice
	} else {
		stopHit = bar.High >= t.StopPrice
		targetHit = bar.Low <= t.TargetPrice
	}

	switch {
	case stopHit && targetHit:
		if preferStop {
			return ExitStopLoss
		}
		return ExitTakeProfit
	case stopHit:
		return ExitStopLoss
	case targetHit:
		return ExitTakeProfit
	}
	return ""
}

func exitPrice(pos *openPosition, reason string) float64 {
	if reason == ExitStopLoss {
		return pos.trade.StopPrice
	}
	return pos.trade.TargetPrice
}

func closePosition(res *Result, st *state.SessionState, pos *openPosition, reason string, exitTsMs int64, price float64, cooldownMinutes int) {
	t := pos.trade
	t.ExitTsMs = exitTsMs
	t.ExitPrice = price
	t.ExitReason = reason

	move := price - t.EntryPrice
	if t.Side == plan.SideSell {
		move = -move
	}
	if t.RiskPrice > 0 {
		t.RMultiple = move / t.RiskPrice
	}
	if t.EntryPrice > 0 {
		t.PnL = t.Notional / t.EntryPrice * move
	}

	res.Trades = append(res.Trades, t)
	res.Timeline = append(res.Timeline, Event{
		TsMs: exitTsMs, Type: EventExit, From: state.StateInTrade,
		Note: fmt.Sprintf("%s exit=%.5f r=%.2f reason=%s", t.SetupID, price, t.RMultiple, reason),
	})
	st.RecordExit(t.RMultiple > 0, exitTsMs, cooldownMinutes)
}

// summarize folds the trades and reason counts into the run summary.
func summarize(trades []Trade, reasonCounts map[string]int) Summary {
	s := Summary{ExitReasons: make(map[string]int)}
	s.Trades = len(trades)

	var winR, lossR, netR, netPnL, holdMin float64
	var peak, maxDD float64
	for _, t := range trades {
		s.ExitReasons[t.ExitReason]++
		netR += t.RMultiple
		netPnL += t.PnL
		holdMin += float64(t.ExitTsMs-t.EntryTsMs) / 60_000
		if t.RMultiple > 0 {
			s.Wins++
			winR += t.RMultiple
		} else {
			s.Losses++
			lossR += t.RMultiple
		}
		if netR > peak {
			peak = netR
		}
		if dd := peak - netR; dd > maxDD {
			maxDD = dd
		}
	}

	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
		s.ExpectancyR = netR / float64(s.Trades)
		s.AvgHoldMinutes = holdMin / float64(s.Trades)
	}
	if s.Wins > 0 {
		s.AvgWinR = winR / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLossR = lossR / float64(s.Losses)
	}
	s.NetR = netR
	s.NetPnL = netPnL
	s.MaxDrawdownR = maxDD

	codes := make([]ReasonCount, 0, len(reasonCounts))
	for code, n := range reasonCounts {
		codes = append(codes, ReasonCount{Code: code, Count: n})
	}
	sort.Slice(codes, func(i, j int) bool {
		if codes[i].Count != codes[j].Count {
			return codes[i].Count > codes[j].Count
		}
		return codes[i].Code < codes[j].Code
	})
	if len(codes) > 10 {
		codes = codes[:10]
	}
	s.TopReasonCodes = codes
	return s
}
