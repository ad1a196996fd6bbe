// Package session converts configured local clock windows into absolute
// instants for a given trading day.
package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockMode selects how local clock labels are anchored to absolute time.
type ClockMode string

const (
	// ClockFixedOffset anchors windows at a fixed UTC offset, ignoring DST.
	ClockFixedOffset ClockMode = "fixed_offset"
	// ClockNamedZone anchors windows in an IANA timezone, DST-aware.
	ClockNamedZone ClockMode = "named_zone"
)

// ClockWindow is a pair of local "HH:MM" labels.
type ClockWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Config describes the session clock for one deployment.
type Config struct {
	Mode              ClockMode   `json:"mode" default:"named_zone"`
	ZoneName          string      `json:"zone_name" default:"Europe/London"`
	UTCOffsetMinutes  int         `json:"utc_offset_minutes"` // fixed_offset mode only
	AccumulationClock ClockWindow `json:"accumulation_clock"`
	RaidClock         ClockWindow `json:"raid_clock"`
}

// Windows holds the absolute boundaries (epoch ms) of the accumulation and
// raid windows for one trading day. Immutable once resolved.
type Windows struct {
	AccumStartMs int64
	AccumEndMs   int64
	RaidStartMs  int64
	RaidEndMs    int64
}

// Resolve computes the session windows for the given day key ("YYYY-MM-DD").
// Each window is normalized so end > start, wrapping the end to the next day
// when the labels cross midnight, and the raid window is pushed forward a day
// if it would otherwise begin before the accumulation window closes.
func Resolve(dayKey string, cfg Config) (*Windows, error) {
	loc, err := location(cfg)
	if err != nil {
		return nil, err
	}

	accumStart, err := instantAt(dayKey, cfg.AccumulationClock.Start, loc)
	if err != nil {
		return nil, fmt.Errorf("accumulation start: %w", err)
	}
	accumEnd, err := instantAt(dayKey, cfg.AccumulationClock.End, loc)
	if err != nil {
		return nil, fmt.Errorf("accumulation end: %w", err)
	}
	raidStart, err := instantAt(dayKey, cfg.RaidClock.Start, loc)
	if err != nil {
		return nil, fmt.Errorf("raid start: %w", err)
	}
	raidEnd, err := instantAt(dayKey, cfg.RaidClock.End, loc)
	if err != nil {
		return nil, fmt.Errorf("raid end: %w", err)
	}

	const day = 24 * int64(time.Hour/time.Millisecond)
	if accumEnd <= accumStart {
		accumEnd += day
	}
	if raidEnd <= raidStart {
		raidEnd += day
	}
	if raidStart < accumEnd {
		raidStart += day
		raidEnd += day
	}

	return &Windows{
		AccumStartMs: accumStart,
		AccumEndMs:   accumEnd,
		RaidStartMs:  raidStart,
		RaidEndMs:    raidEnd,
	}, nil
}

func location(cfg Config) (*time.Location, error) {
	switch cfg.Mode {
	case ClockFixedOffset:
		return time.FixedZone("session", cfg.UTCOffsetMinutes*60), nil
	case ClockNamedZone:
		loc, err := time.LoadLocation(cfg.ZoneName)
		if err != nil {
			return nil, fmt.Errorf("load zone %q: %w", cfg.ZoneName, err)
		}
		return loc, nil
	default:
		return nil, fmt.Errorf("unknown clock mode %q", cfg.Mode)
	}
}

// instantAt resolves dayKey + "HH:MM" in loc to epoch milliseconds by
// iterative correction: start from the naive UTC reading, re-derive the local
// wall time at that instant and correct by the observed delta until stable.
// Converges in two passes for any fixed offset and any DST transition.
func instantAt(dayKey, clock string, loc *time.Location) (int64, error) {
	hour, minute, err := parseClock(clock)
	if err != nil {
		return 0, err
	}
	day, err := time.Parse("2006-01-02", dayKey)
	if err != nil {
		return 0, fmt.Errorf("bad day key %q: %w", dayKey, err)
	}

	wantDay := day.Format("2006-01-02")
	guess := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		local := guess.In(loc)
		deltaDays := int64(dayOrdinal(wantDay) - dayOrdinal(local.Format("2006-01-02")))
		deltaMins := int64(hour*60+minute) - int64(local.Hour()*60+local.Minute())
		delta := deltaDays*24*60 + deltaMins
		if delta == 0 {
			break
		}
		guess = guess.Add(time.Duration(delta) * time.Minute)
	}
	return guess.UnixMilli(), nil
}

func parseClock(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad clock label %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad clock hour %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad clock minute %q", s)
	}
	return hour, minute, nil
}

func dayOrdinal(dayKey string) int {
	t, _ := time.Parse("2006-01-02", dayKey)
	return int(t.Unix() / 86400)
}

// DayKey formats an instant as the trading-day key in the session zone.
func DayKey(nowMs int64, cfg Config) string {
	loc, err := location(cfg)
	if err != nil {
		loc = time.UTC
	}
	return time.UnixMilli(nowMs).In(loc).Format("2006-01-02")
}
