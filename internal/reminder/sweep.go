package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/taskrunner/internal/model"
	"github.com/dukerupert/taskrunner/internal/recurrence"
	"github.com/dukerupert/taskrunner/internal/websocket"
)

// SweepResult counts what one sweep pass did.
type SweepResult struct {
	Examined int
	Reset    int
	Failed   int
}

// Sweep reopens completed recurring items whose next occurrence is today.
// Only status is written; completion history and streak are left alone.
// Running it twice on the same day changes nothing the second time.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult

	items, err := s.items.ListResetCandidates(ctx, recurrence.StartOfDay(now))
	if err != nil {
		return res, fmt.Errorf("load reset candidates: %w", err)
	}
	res.Examined = len(items)

	for _, item := range items {
		if !recurrence.ShouldReset(item, now) {
			continue
		}
		if err := s.items.UpdateStatus(ctx, item.ID, model.StatusPending); err != nil {
			s.logger.Error("reset item", "item_id", item.ID, "error", err)
			res.Failed++
			continue
		}
		res.Reset++
		s.logger.Debug("item reset to pending", "item_id", item.ID, "recurrence", item.Recurrence)
		s.broadcast(websocket.Event{
			Type:    websocket.EventItemReset,
			ItemID:  item.ID,
			OwnerID: item.OwnerID,
			At:      now,
		})
	}
	return res, nil
}
