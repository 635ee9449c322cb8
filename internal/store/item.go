package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/taskrunner/internal/model"
)

const dateLayout = "2006-01-02"

// ItemStore persists items and their completion history.
type ItemStore struct {
	db *sql.DB
}

func NewItemStore(db *sql.DB) *ItemStore {
	return &ItemStore{db: db}
}

func scanItem(scanner interface{ Scan(...any) error }) (*model.Item, error) {
	var it model.Item
	var notify sql.NullInt64
	var scheduled, windowStart, windowEnd sql.NullString
	var weekDays string
	var snoozeUntil, lastCompleted sql.NullTime

	err := scanner.Scan(
		&it.ID, &it.Kind, &it.OwnerID, &it.Title, &it.Description,
		&it.Status, &notify, &it.Recurrence, &scheduled, &weekDays, &it.MonthDay,
		&windowStart, &windowEnd, &it.ReminderExpression,
		&snoozeUntil, &lastCompleted, &it.Streak,
		&it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Rows written before the column existed are NULL and default to on.
	it.NotifyEnabled = !notify.Valid || notify.Int64 != 0

	if scheduled.Valid && scheduled.String != "" {
		d, err := time.Parse(dateLayout, scheduled.String)
		if err != nil {
			return nil, fmt.Errorf("parse scheduled_date %q: %w", scheduled.String, err)
		}
		it.ScheduledDate = &d
	}
	it.WeekDays, err = parseWeekDays(weekDays)
	if err != nil {
		return nil, err
	}
	// A row with a single bound yields a window that never matches.
	if windowStart.Valid || windowEnd.Valid {
		it.TimeWindow = &model.TimeWindow{Start: windowStart.String, End: windowEnd.String}
	}
	if snoozeUntil.Valid {
		it.SnoozeUntil = &snoozeUntil.Time
	}
	if lastCompleted.Valid {
		it.LastCompletedAt = &lastCompleted.Time
	}
	return &it, nil
}

const itemCols = `id, kind, owner_id, title, description, status, notify_enabled, recurrence,
	scheduled_date, week_days, month_day, window_start, window_end, reminder_expression,
	snooze_until, last_completed_at, streak, created_at, updated_at`

func (s *ItemStore) listItems(ctx context.Context, query string, args ...any) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// Create inserts an item. Status defaults to pending and kind to task.
func (s *ItemStore) Create(ctx context.Context, it model.Item) (*model.Item, error) {
	if it.Kind == "" {
		it.Kind = model.KindTask
	}
	if it.Status == "" {
		it.Status = model.StatusPending
	}
	if it.Recurrence == "" {
		it.Recurrence = model.RecurrenceOnce
	}

	var scheduled, wStart, wEnd sql.NullString
	if it.ScheduledDate != nil {
		scheduled = sql.NullString{String: it.ScheduledDate.Format(dateLayout), Valid: true}
	}
	if w := it.TimeWindow; w != nil {
		noStart, noEnd := strings.TrimSpace(w.Start) == "", strings.TrimSpace(w.End) == ""
		if noStart != noEnd {
			return nil, ErrHalfWindow
		}
		// An empty window is stored as no window.
		if !noStart {
			wStart = sql.NullString{String: w.Start, Valid: true}
			wEnd = sql.NullString{String: w.End, Valid: true}
		}
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO items (kind, owner_id, title, description, status, notify_enabled, recurrence,
			scheduled_date, week_days, month_day, window_start, window_end, reminder_expression,
			snooze_until, last_completed_at, streak)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.Kind, it.OwnerID, it.Title, it.Description, it.Status, boolInt(it.NotifyEnabled), it.Recurrence,
		scheduled, formatWeekDays(it.WeekDays), it.MonthDay, wStart, wEnd, it.ReminderExpression,
		nullTime(it.SnoozeUntil), nullTime(it.LastCompletedAt), it.Streak,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ItemStore) GetByID(ctx context.Context, id int64) (*model.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemCols+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}

	history, err := s.ListCompletions(ctx, id)
	if err != nil {
		return nil, err
	}
	it.CompletionHistory = history
	return it, nil
}

// ListDispatchCandidates returns pending items that have not opted out of
// notifications.
func (s *ItemStore) ListDispatchCandidates(ctx context.Context) ([]model.Item, error) {
	items, err := s.listItems(ctx,
		`SELECT `+itemCols+` FROM items
		 WHERE status = ? AND (notify_enabled IS NULL OR notify_enabled != 0)
		 ORDER BY id ASC`,
		model.StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("list dispatch candidates: %w", err)
	}
	return items, nil
}

// ListResetCandidates returns completed recurring items whose last
// completion is before cutoff.
func (s *ItemStore) ListResetCandidates(ctx context.Context, cutoff time.Time) ([]model.Item, error) {
	items, err := s.listItems(ctx,
		`SELECT `+itemCols+` FROM items
		 WHERE status = ? AND recurrence IN (?, ?, ?)
		   AND last_completed_at IS NOT NULL AND last_completed_at < ?
		 ORDER BY id ASC`,
		model.StatusCompleted,
		model.RecurrenceDaily, model.RecurrenceWeekly, model.RecurrenceMonthly,
		cutoff.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list reset candidates: %w", err)
	}
	return items, nil
}

func (s *ItemStore) UpdateStatus(ctx context.Context, id int64, status model.Status) error {
	_, err := s.db.ExecContext(ctx, `UPDATE items SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update item status: %w", err)
	}
	return nil
}

// SetSnoozeUntil suppresses reminders for the item until the given time.
func (s *ItemStore) SetSnoozeUntil(ctx context.Context, id int64, until time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE items SET snooze_until = ? WHERE id = ?`, until.UTC(), id)
	if err != nil {
		return fmt.Errorf("set snooze: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Complete records a completion, marks the item completed and bumps its
// streak.
func (s *ItemStore) Complete(ctx context.Context, id int64, at time.Time) (*model.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE items SET status = ?, last_completed_at = ?, streak = streak + 1 WHERE id = ?`,
		model.StatusCompleted, at.UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("complete item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO item_completions (item_id, completed_at) VALUES (?, ?)`, id, at.UTC(),
	); err != nil {
		return nil, fmt.Errorf("insert completion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(ctx, id)
}

// UndoLastCompletion removes the most recent completion and reopens the item.
func (s *ItemStore) UndoLastCompletion(ctx context.Context, id int64) (*model.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var completionID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM item_completions WHERE item_id = ? ORDER BY id DESC LIMIT 1`, id,
	).Scan(&completionID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest completion: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM item_completions WHERE id = ?`, completionID); err != nil {
		return nil, fmt.Errorf("delete completion: %w", err)
	}

	var previous sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT completed_at FROM item_completions WHERE item_id = ? ORDER BY id DESC LIMIT 1`, id,
	).Scan(&previous)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("previous completion: %w", err)
	}

	var last any
	if previous.Valid {
		last = previous.Time.UTC()
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET status = ?, last_completed_at = ?, streak = MAX(streak - 1, 0) WHERE id = ?`,
		model.StatusPending, last, id,
	); err != nil {
		return nil, fmt.Errorf("reopen item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(ctx, id)
}

// ListCompletions returns completion times in insertion order.
func (s *ItemStore) ListCompletions(ctx context.Context, id int64) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT completed_at FROM item_completions WHERE item_id = ? ORDER BY id ASC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var history []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		history = append(history, t)
	}
	return history, rows.Err()
}

func formatWeekDays(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func parseWeekDays(s string) ([]time.Weekday, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var days []time.Weekday
	for _, p := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 6 {
			return nil, fmt.Errorf("invalid week day %q", p)
		}
		days = append(days, time.Weekday(n))
	}
	return days, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
