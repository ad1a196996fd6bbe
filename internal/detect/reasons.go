package detect

import "strings"

// Reason codes emitted by the detectors. Codes are stable identifiers used in
// live responses, the audit journal and replay diagnostics.
const (
	ReasonAsiaWindowOpen          = "ASIA_WINDOW_OPEN"
	ReasonAsiaInsufficientCandles = "ASIA_INSUFFICIENT_CANDLES"
	ReasonAsiaRangeInvalid        = "ASIA_RANGE_INVALID"
	ReasonAsiaRangeReady          = "ASIA_RANGE_READY"

	ReasonNoSweepDetected         = "NO_SWEEP_DETECTED"
	ReasonRaidWindowClosedNoSweep = "RAID_WINDOW_CLOSED_NO_SWEEP"
	ReasonSweepAmbiguousBothSides = "SWEEP_AMBIGUOUS_BOTH_SIDES"
	ReasonSweepDetectedBuySide    = "SWEEP_DETECTED_BUY_SIDE"
	ReasonSweepDetectedSellSide   = "SWEEP_DETECTED_SELL_SIDE"
	ReasonSweepRejectionPending   = "SWEEP_REJECTION_PENDING"
	ReasonSweepRejected           = "SWEEP_REJECTED"
	ReasonSweepRejectionTimeout   = "SWEEP_REJECTION_TIMEOUT"

	ReasonConfirmNoDisplacement   = "CONFIRM_NO_DISPLACEMENT"
	ReasonConfirmNoStructureShift = "CONFIRM_NO_STRUCTURE_SHIFT"
	ReasonConfirmExpired          = "CONFIRM_EXPIRED"
	ReasonConfirmed               = "CONFIRMED"

	ReasonZonePending       = "ZONE_PENDING"
	ReasonZoneCreated       = "ZONE_CREATED"
	ReasonZoneSearchExpired = "ZONE_SEARCH_EXPIRED"
	ReasonZoneExpired       = "ZONE_EXPIRED"
	ReasonZoneTouchPending  = "ZONE_TOUCH_PENDING"
	ReasonZoneTouched       = "ZONE_TOUCHED"
)

// Reasons accumulates reason codes through an evaluation cycle. Codes are
// upper-cased and de-duplicated, preserving first-occurrence order so that
// repeated runs over identical inputs produce identical output.
type Reasons struct {
	order []string
	seen  map[string]struct{}
}

// NewReasons returns an empty accumulator.
func NewReasons() *Reasons {
	return &Reasons{seen: make(map[string]struct{})}
}

// Add records a code, ignoring empty strings and duplicates.
func (r *Reasons) Add(code string) {
	if code == "" {
		return
	}
	code = strings.ToUpper(code)
	if _, ok := r.seen[code]; ok {
		return
	}
	r.seen[code] = struct{}{}
	r.order = append(r.order, code)
}

// AddAll records every code in order.
func (r *Reasons) AddAll(codes ...string) {
	for _, c := range codes {
		r.Add(c)
	}
}

// Codes returns the accumulated codes in first-occurrence order.
func (r *Reasons) Codes() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Has reports whether the code was recorded.
func (r *Reasons) Has(code string) bool {
	_, ok := r.seen[strings.ToUpper(code)]
	return ok
}
