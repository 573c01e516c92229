// Package schedule parses and evaluates recurrence rules for scheduled
// pipeline queries.
package schedule

import (
	"encoding/json"
	"time"

	"github.com/adhocore/gronx"
)

type Schedule struct {
	Kind       string `json:"kind"`        // "cron", "interval", "once"
	CronExpr   string `json:"cron_expr"`   // Cron expression (if kind=cron)
	IntervalMs int64  `json:"interval_ms"` // Interval in ms (if kind=interval)
	AtMs       int64  `json:"at_ms"`       // Unix ms timestamp (if kind=once)
}

func Parse(raw string) (*Schedule, error) {
	var s Schedule
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// NextRun returns when the schedule fires next, or nil if it never fires
// again (invalid rule, or a one-shot time already in the past).
func NextRun(scheduleJSON string) *time.Time {
	s, err := Parse(scheduleJSON)
	if err != nil {
		return nil
	}

	var next time.Time
	now := time.Now()

	switch s.Kind {
	case "cron":
		nextTime, err := gronx.NextTick(s.CronExpr, false)
		if err != nil {
			return nil
		}
		next = nextTime
	case "interval":
		if s.IntervalMs <= 0 {
			return nil
		}
		next = now.Add(time.Duration(s.IntervalMs) * time.Millisecond)
	case "once":
		t := time.UnixMilli(s.AtMs)
		if !t.After(now) {
			return nil
		}
		next = t
	default:
		return nil
	}

	return &next
}

// Valid reports whether the schedule can ever fire.
func Valid(scheduleJSON string) bool {
	s, err := Parse(scheduleJSON)
	if err != nil {
		return false
	}
	switch s.Kind {
	case "cron":
		return gronx.New().IsValid(s.CronExpr)
	case "interval":
		return s.IntervalMs > 0
	case "once":
		return s.AtMs > 0
	default:
		return false
	}
}
