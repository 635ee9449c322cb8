package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/taskrunner/internal/database"
	"github.com/dukerupert/taskrunner/internal/model"
	"github.com/dukerupert/taskrunner/internal/store"
	"github.com/dukerupert/taskrunner/internal/websocket"
)

func setupSweepTestDB(t *testing.T) (*store.ItemStore, *store.PushStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewItemStore(db), store.NewPushStore(db)
}

func TestSweepResetsRecurringItems(t *testing.T) {
	items, subs := setupSweepTestDB(t)
	ctx := context.Background()

	// Thursday 2026-02-05, 00:05.
	now := time.Date(2026, 2, 5, 0, 5, 0, 0, time.UTC)
	yesterday := now.Add(-12 * time.Hour)

	create := func(it model.Item) int64 {
		t.Helper()
		it.OwnerID = 1
		it.Title = string(it.Recurrence)
		it.NotifyEnabled = true
		created, err := items.Create(ctx, it)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := items.Complete(ctx, created.ID, yesterday); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		return created.ID
	}

	daily := create(model.Item{Recurrence: model.RecurrenceDaily})
	weeklyToday := create(model.Item{Recurrence: model.RecurrenceWeekly, WeekDays: []time.Weekday{time.Thursday}})
	weeklyOther := create(model.Item{Recurrence: model.RecurrenceWeekly, WeekDays: []time.Weekday{time.Friday}})
	monthlyToday := create(model.Item{Recurrence: model.RecurrenceMonthly, MonthDay: 5})
	monthlyOther := create(model.Item{Recurrence: model.RecurrenceMonthly, MonthDay: 6})
	once := create(model.Item{Recurrence: model.RecurrenceOnce, ScheduledDate: &now})

	sink := &fakeSink{}
	s := New(Config{Location: time.UTC}, items, subs, &fakeTransport{}, nil, quietLogger(), WithEvents(sink))

	res, err := s.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Reset != 3 {
		t.Errorf("reset = %d, want 3 (%+v)", res.Reset, res)
	}

	want := map[int64]model.Status{
		daily:        model.StatusPending,
		weeklyToday:  model.StatusPending,
		weeklyOther:  model.StatusCompleted,
		monthlyToday: model.StatusPending,
		monthlyOther: model.StatusCompleted,
		once:         model.StatusCompleted,
	}
	for id, status := range want {
		it, err := items.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if it.Status != status {
			t.Errorf("item %d (%s) status = %s, want %s", id, it.Recurrence, it.Status, status)
		}
		if it.Streak != 1 || len(it.CompletionHistory) != 1 {
			t.Errorf("item %d history changed: streak %d, history %v", id, it.Streak, it.CompletionHistory)
		}
	}

	if len(sink.events) != 3 {
		t.Errorf("events = %d, want 3", len(sink.events))
	}
	for _, ev := range sink.events {
		if ev.Type != websocket.EventItemReset {
			t.Errorf("event type = %s", ev.Type)
		}
	}
}

func TestSweepIdempotent(t *testing.T) {
	items, subs := setupSweepTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 5, 7, 0, 0, 0, time.UTC)

	it, err := items.Create(ctx, model.Item{OwnerID: 1, Title: "stretch", Recurrence: model.RecurrenceDaily, NotifyEnabled: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := items.Complete(ctx, it.ID, now.AddDate(0, 0, -1)); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	s := New(Config{Location: time.UTC}, items, subs, &fakeTransport{}, nil, quietLogger())

	first, err := s.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	second, err := s.Sweep(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if first.Reset != 1 || second.Reset != 0 {
		t.Errorf("first reset %d, second reset %d; want 1 and 0", first.Reset, second.Reset)
	}
}

func TestSweepSkipsCompletedToday(t *testing.T) {
	items, subs := setupSweepTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 5, 18, 0, 0, 0, time.UTC)

	it, err := items.Create(ctx, model.Item{OwnerID: 1, Title: "stretch", Recurrence: model.RecurrenceDaily, NotifyEnabled: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := items.Complete(ctx, it.ID, now.Add(-time.Hour)); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	s := New(Config{Location: time.UTC}, items, subs, &fakeTransport{}, nil, quietLogger())
	res, err := s.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Reset != 0 {
		t.Errorf("reset = %d, want 0", res.Reset)
	}
}

func TestSweepUpdateErrorDoesNotAbort(t *testing.T) {
	yesterday := time.Date(2026, 2, 4, 8, 0, 0, 0, time.UTC)
	completed := func(id int64) model.Item {
		return model.Item{
			ID:              id,
			Status:          model.StatusCompleted,
			Recurrence:      model.RecurrenceDaily,
			LastCompletedAt: &yesterday,
		}
	}
	items := &fakeItems{
		reset:     []model.Item{completed(1), completed(2)},
		updateErr: map[int64]error{1: errBoom},
	}
	s := New(Config{Location: time.UTC}, items, &fakeDirectory{}, &fakeTransport{}, nil, quietLogger())

	res, err := s.Sweep(context.Background(), nineAM)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Failed != 1 || res.Reset != 1 {
		t.Errorf("result = %+v", res)
	}
	if items.updated[2] != model.StatusPending {
		t.Errorf("item 2 not reset: %v", items.updated)
	}
}
