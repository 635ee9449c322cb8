package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/taskrunner/internal/cronexpr"
	"github.com/dukerupert/taskrunner/internal/model"
	"github.com/dukerupert/taskrunner/internal/push"
	"github.com/dukerupert/taskrunner/internal/recurrence"
	"github.com/dukerupert/taskrunner/internal/token"
	"github.com/dukerupert/taskrunner/internal/websocket"
)

// fireKeyLayout identifies the minute a reminder fired in.
const fireKeyLayout = "2006-01-02T15:04"

// SkipReason explains why a candidate produced no delivery.
type SkipReason string

const (
	SkipNotPending      SkipReason = "not_pending"
	SkipNotifyDisabled  SkipReason = "notify_disabled"
	SkipOutsideWindow   SkipReason = "outside_window"
	SkipNotDue          SkipReason = "not_due"
	SkipSnoozed         SkipReason = "snoozed"
	SkipNoExpression    SkipReason = "no_expression"
	SkipMalformed       SkipReason = "malformed_expression"
	SkipNoMatch         SkipReason = "no_match"
	SkipAlreadySent     SkipReason = "already_sent"
	SkipNoSubscriptions SkipReason = "no_subscriptions"
	SkipPanic           SkipReason = "panic"
)

// DispatchResult summarises one dispatch pass.
type DispatchResult struct {
	Candidates int
	Matched    int
	Delivered  int
	Failed     int
	Skipped    map[SkipReason]int
}

func (r *DispatchResult) skip(reason SkipReason) {
	if r.Skipped == nil {
		r.Skipped = make(map[SkipReason]int)
	}
	r.Skipped[reason]++
}

// Dispatch evaluates every pending item against now and delivers reminders
// for those that fire. It never changes item status. The returned error is
// non-nil only when candidates could not be loaded; per-item failures are
// logged and counted.
func (s *Scheduler) Dispatch(ctx context.Context, now time.Time) (DispatchResult, error) {
	var res DispatchResult

	items, err := s.items.ListDispatchCandidates(ctx)
	if err != nil {
		return res, fmt.Errorf("load dispatch candidates: %w", err)
	}
	res.Candidates = len(items)

	for _, item := range items {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		s.dispatchItem(ctx, item, now, &res)
	}
	return res, nil
}

// dispatchItem handles one candidate. A panic is contained to this item.
func (s *Scheduler) dispatchItem(ctx context.Context, item model.Item, now time.Time, res *DispatchResult) {
	logger := s.logger.With("item_id", item.ID)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("reminder dispatch panicked", "panic", r)
			res.skip(SkipPanic)
		}
	}()

	if reason, ok := s.gate(logger, item, now); !ok {
		logger.Debug("reminder skipped", "reason", reason)
		res.skip(reason)
		return
	}
	res.Matched++

	refID := fmt.Sprintf("item-%d", item.ID)
	fireKey := now.Format(fireKeyLayout)

	sent, err := s.subs.WasSent(ctx, model.NotifTypeReminder, refID, fireKey)
	if err != nil {
		logger.Warn("dedup check failed, sending anyway", "error", err)
	} else if sent {
		logger.Debug("reminder already sent this minute", "fire_key", fireKey)
		res.skip(SkipAlreadySent)
		return
	}

	subs, err := s.subs.ListByOwner(ctx, item.OwnerID)
	if err != nil {
		logger.Error("resolve subscriptions", "owner_id", item.OwnerID, "error", err)
		res.Failed++
		return
	}
	if len(subs) == 0 {
		logger.Info("no push subscriptions for owner", "owner_id", item.OwnerID)
		res.skip(SkipNoSubscriptions)
		return
	}

	payload := s.buildPayload(logger, item)

	delivered := 0
	for i := range subs {
		sub := &subs[i]
		if err := s.transport.Send(ctx, sub, payload); err != nil {
			res.Failed++
			if errors.Is(err, push.ErrExpired) {
				logger.Info("removing expired push subscription", "subscription_id", sub.ID)
				if err := s.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
					logger.Error("delete expired subscription", "subscription_id", sub.ID, "error", err)
				}
				continue
			}
			logger.Warn("push delivery failed", "subscription_id", sub.ID, "error", err)
			continue
		}
		delivered++
	}
	res.Delivered += delivered

	if delivered == 0 {
		return
	}
	if err := s.subs.RecordSent(ctx, model.NotifTypeReminder, refID, fireKey); err != nil {
		logger.Error("record sent reminder", "error", err)
	}
	logger.Info("reminder sent", "owner_id", item.OwnerID, "devices", delivered)
	s.broadcast(websocket.Event{
		Type:    websocket.EventReminderSent,
		ItemID:  item.ID,
		OwnerID: item.OwnerID,
		At:      now,
		Extra:   map[string]any{"devices": delivered},
	})
}

// gate applies the eligibility checks in order and reports the first one
// that rejects the item.
func (s *Scheduler) gate(logger *slog.Logger, item model.Item, now time.Time) (SkipReason, bool) {
	if item.Status != model.StatusPending {
		return SkipNotPending, false
	}
	if !item.NotifyEnabled {
		return SkipNotifyDisabled, false
	}
	if !WithinWindow(item.TimeWindow, now) {
		return SkipOutsideWindow, false
	}
	if !recurrence.IsDueToday(item, now) {
		return SkipNotDue, false
	}
	if IsSnoozed(item, now) {
		return SkipSnoozed, false
	}

	if strings.TrimSpace(item.ReminderExpression) == "" {
		logger.Debug("item has no reminder expression")
		return SkipNoExpression, false
	}
	expr, err := cronexpr.Parse(item.ReminderExpression)
	if err != nil {
		logger.Warn("malformed reminder expression", "expression", item.ReminderExpression, "error", err)
		return SkipMalformed, false
	}
	if !expr.Match(now) {
		return SkipNoMatch, false
	}
	return "", true
}

func (s *Scheduler) buildPayload(logger *slog.Logger, item model.Item) push.Payload {
	kind := item.Kind
	if kind == "" {
		kind = model.KindTask
	}

	body := item.Description
	if body == "" {
		if kind == model.KindHabit {
			body = "Time for your habit"
		} else {
			body = "Reminder for your task"
		}
	}

	payload := push.Payload{
		Title: item.Title,
		Body:  body,
		Tag:   fmt.Sprintf("item-%d", item.ID),
		Data: push.Data{
			ItemID:   item.ID,
			Kind:     kind,
			DeepLink: s.deepLink(kind, item.ID),
		},
	}

	if s.tokens == nil {
		return payload
	}
	tok, err := s.tokens.Issue(item.ID, token.ActionSnooze)
	if err != nil {
		logger.Warn("issue snooze token, sending without snooze action", "error", err)
		return payload
	}
	payload.Data.SnoozeToken = tok
	payload.Actions = []push.Action{{Action: token.ActionSnooze, Title: "Snooze"}}
	return payload
}

func (s *Scheduler) deepLink(kind string, id int64) string {
	segment := "tasks"
	if kind == model.KindHabit {
		segment = "habits"
	}
	return fmt.Sprintf("%s/%s/%d", strings.TrimRight(s.cfg.BaseURL, "/"), segment, id)
}
