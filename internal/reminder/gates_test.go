package reminder

import (
	"testing"
	"time"

	"github.com/dukerupert/taskrunner/internal/model"
)

func clock(hour, minute int) time.Time {
	return time.Date(2026, 2, 5, hour, minute, 0, 0, time.UTC)
}

func TestWithinWindowEdges(t *testing.T) {
	w := &model.TimeWindow{Start: "09:00", End: "17:00"}

	cases := []struct {
		hour, minute int
		want         bool
	}{
		{8, 59, false},
		{9, 0, true},
		{12, 30, true},
		{17, 0, true},
		{17, 1, false},
	}
	for _, tc := range cases {
		if got := WithinWindow(w, clock(tc.hour, tc.minute)); got != tc.want {
			t.Errorf("WithinWindow(%02d:%02d) = %v, want %v", tc.hour, tc.minute, got, tc.want)
		}
	}
}

func TestWithinWindowNilIsUnrestricted(t *testing.T) {
	for h := 0; h < 24; h++ {
		if !WithinWindow(nil, clock(h, 0)) {
			t.Errorf("nil window rejected %02d:00", h)
		}
	}
}

func TestWithinWindowNoWraparound(t *testing.T) {
	w := &model.TimeWindow{Start: "22:00", End: "06:00"}
	for _, tm := range []time.Time{clock(23, 0), clock(2, 0), clock(22, 0), clock(6, 0), clock(12, 0)} {
		if WithinWindow(w, tm) {
			t.Errorf("inverted window matched %s", tm.Format("15:04"))
		}
	}
}

func TestWithinWindowMalformed(t *testing.T) {
	for _, w := range []*model.TimeWindow{
		{Start: "9am", End: "17:00"},
		{Start: "09:00", End: ""},
		{Start: "24:00", End: "25:00"},
		{Start: "09:60", End: "10:00"},
	} {
		if WithinWindow(w, clock(9, 30)) {
			t.Errorf("malformed window %+v should not match", w)
		}
	}
}

func TestIsSnoozed(t *testing.T) {
	now := clock(9, 0)
	until := now.Add(10 * time.Minute)
	item := model.Item{SnoozeUntil: &until}

	if !IsSnoozed(item, now) {
		t.Error("expected snoozed at now")
	}
	if IsSnoozed(item, now.Add(10*time.Minute)) {
		t.Error("snooze deadline itself should no longer suppress")
	}
	if IsSnoozed(item, now.Add(11*time.Minute)) {
		t.Error("expired snooze should not suppress")
	}
	if IsSnoozed(model.Item{}, now) {
		t.Error("item without snooze should not be snoozed")
	}
}
