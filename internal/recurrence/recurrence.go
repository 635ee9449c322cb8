// Package recurrence decides whether a task or habit occurs on a given
// calendar day, and whether a completed recurring item should reopen.
package recurrence

import (
	"time"

	"github.com/dukerupert/taskrunner/internal/model"
)

// IsDueToday reports whether item occurs on today's calendar day.
// ScheduledDate is a calendar date; its year, month and day are compared
// without converting locations.
func IsDueToday(item model.Item, today time.Time) bool {
	switch item.Recurrence {
	case model.RecurrenceOnce:
		if item.ScheduledDate == nil {
			return false
		}
		return sameDay(*item.ScheduledDate, today)
	case model.RecurrenceDaily:
		return true
	case model.RecurrenceWeekly:
		return item.HasWeekDay(today.Weekday())
	case model.RecurrenceMonthly:
		// MonthDay past the end of the month never matches; no clamping.
		return today.Day() == item.MonthDay
	default:
		return false
	}
}

// ShouldReset reports whether a completed item reopens on today's date.
// One-time items never reset, and neither does anything completed today.
func ShouldReset(item model.Item, today time.Time) bool {
	if item.Status != model.StatusCompleted || !item.Recurrence.Recurring() {
		return false
	}
	if item.LastCompletedAt == nil || !item.LastCompletedAt.Before(StartOfDay(today)) {
		return false
	}
	return IsDueToday(item, today)
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
