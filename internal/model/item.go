package model

import "time"

// Item kinds. Tasks and habits share every scheduling field.
const (
	KindTask  = "task"
	KindHabit = "habit"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type Recurrence string

const (
	RecurrenceOnce    Recurrence = "once"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// Recurring reports whether r repeats after completion.
func (r Recurrence) Recurring() bool {
	return r == RecurrenceDaily || r == RecurrenceWeekly || r == RecurrenceMonthly
}

// TimeWindow is a daily "HH:MM" range in which reminders may fire.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Item is a task or habit as seen by the reminder scheduler.
type Item struct {
	ID                 int64          `json:"id"`
	Kind               string         `json:"kind"`
	OwnerID            int64          `json:"owner_id"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	Status             Status         `json:"status"`
	NotifyEnabled      bool           `json:"notify_enabled"`
	Recurrence         Recurrence     `json:"recurrence"`
	ScheduledDate      *time.Time     `json:"scheduled_date"`
	WeekDays           []time.Weekday `json:"week_days"`
	MonthDay           int            `json:"month_day"`
	TimeWindow         *TimeWindow    `json:"time_window"`
	ReminderExpression string         `json:"reminder_expression"`
	SnoozeUntil        *time.Time     `json:"snooze_until"`
	LastCompletedAt    *time.Time     `json:"last_completed_at"`
	CompletionHistory  []time.Time    `json:"completion_history,omitempty"`
	Streak             int            `json:"streak"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// HasWeekDay reports whether d is one of the item's weekly days.
func (i *Item) HasWeekDay(d time.Weekday) bool {
	for _, wd := range i.WeekDays {
		if wd == d {
			return true
		}
	}
	return false
}
