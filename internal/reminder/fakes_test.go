package reminder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/taskrunner/internal/model"
	"github.com/dukerupert/taskrunner/internal/push"
	"github.com/dukerupert/taskrunner/internal/websocket"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeItems struct {
	mu        sync.Mutex
	dispatch  []model.Item
	reset     []model.Item
	listErr   error
	updateErr map[int64]error
	updated   map[int64]model.Status

	// block, when set, stalls ListResetCandidates until closed.
	entered chan struct{}
	block   chan struct{}
}

func (f *fakeItems) ListDispatchCandidates(ctx context.Context) ([]model.Item, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.dispatch, nil
}

func (f *fakeItems) ListResetCandidates(ctx context.Context, cutoff time.Time) ([]model.Item, error) {
	if f.block != nil {
		close(f.entered)
		<-f.block
	}
	return f.reset, nil
}

func (f *fakeItems) UpdateStatus(ctx context.Context, id int64, status model.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[id]; err != nil {
		return err
	}
	if f.updated == nil {
		f.updated = make(map[int64]model.Status)
	}
	f.updated[id] = status
	return nil
}

type fakeDirectory struct {
	subs       map[int64][]model.PushSubscription
	panicOwner int64
	listErr    error
	wasSentErr error
	sent       map[string]bool
	deleted    []string
}

func (f *fakeDirectory) ListByOwner(ctx context.Context, ownerID int64) ([]model.PushSubscription, error) {
	if f.panicOwner != 0 && ownerID == f.panicOwner {
		panic("directory exploded")
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.subs[ownerID], nil
}

func (f *fakeDirectory) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	f.deleted = append(f.deleted, endpoint)
	return nil
}

func (f *fakeDirectory) WasSent(ctx context.Context, notifType, refID, fireKey string) (bool, error) {
	if f.wasSentErr != nil {
		return false, f.wasSentErr
	}
	return f.sent[notifType+"|"+refID+"|"+fireKey], nil
}

func (f *fakeDirectory) RecordSent(ctx context.Context, notifType, refID, fireKey string) error {
	if f.sent == nil {
		f.sent = make(map[string]bool)
	}
	f.sent[notifType+"|"+refID+"|"+fireKey] = true
	return nil
}

type delivery struct {
	endpoint string
	payload  push.Payload
}

type fakeTransport struct {
	errs      map[string]error
	delivered []delivery
}

func (f *fakeTransport) Send(ctx context.Context, sub *model.PushSubscription, payload push.Payload) error {
	if err := f.errs[sub.Endpoint]; err != nil {
		return err
	}
	f.delivered = append(f.delivered, delivery{endpoint: sub.Endpoint, payload: payload})
	return nil
}

type fakeTokens struct {
	err error
}

func (f fakeTokens) Issue(itemID int64, action string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "tok-" + action, nil
}

type fakeSink struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (f *fakeSink) Broadcast(ev websocket.Event) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

var errBoom = errors.New("boom")
