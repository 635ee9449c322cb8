package reminder

import (
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/taskrunner/internal/model"
)

// WithinWindow reports whether t falls in the inclusive daily window.
// A nil window is unrestricted. Windows do not wrap past midnight: when
// start is after end nothing matches. An unparseable bound never matches.
func WithinWindow(w *model.TimeWindow, t time.Time) bool {
	if w == nil {
		return true
	}
	start, ok := parseClock(w.Start)
	if !ok {
		return false
	}
	end, ok := parseClock(w.End)
	if !ok {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	return m >= start && m <= end
}

// IsSnoozed reports whether the item's snooze deadline is still ahead of now.
func IsSnoozed(item model.Item, now time.Time) bool {
	return item.SnoozeUntil != nil && item.SnoozeUntil.After(now)
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, bool) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
