// Package reminder runs the per-minute reminder tick: it reopens completed
// recurring items and dispatches push reminders for items that fire in the
// current minute.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/taskrunner/internal/model"
	"github.com/dukerupert/taskrunner/internal/push"
	"github.com/dukerupert/taskrunner/internal/websocket"
)

// ErrTickInProgress is returned by Tick while a previous tick is still running.
var ErrTickInProgress = errors.New("tick already in progress")

// ItemStore loads scheduling candidates and writes reset status.
type ItemStore interface {
	ListDispatchCandidates(ctx context.Context) ([]model.Item, error)
	ListResetCandidates(ctx context.Context, cutoff time.Time) ([]model.Item, error)
	UpdateStatus(ctx context.Context, id int64, status model.Status) error
}

// SubscriptionDirectory resolves where an owner's reminders go. It also
// remembers which reminders were already sent.
type SubscriptionDirectory interface {
	ListByOwner(ctx context.Context, ownerID int64) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
	WasSent(ctx context.Context, notifType, refID, fireKey string) (bool, error)
	RecordSent(ctx context.Context, notifType, refID, fireKey string) error
}

// Transport delivers one payload to one subscription. push.Service
// implements it.
type Transport interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload push.Payload) error
}

// TokenIssuer mints the action tokens attached to reminder payloads.
type TokenIssuer interface {
	Issue(itemID int64, action string) (string, error)
}

// EventSink receives live updates; websocket.Hub implements it.
type EventSink interface {
	Broadcast(ev websocket.Event)
}

// HousekeepingFunc runs once a day at local midnight.
type HousekeepingFunc func(ctx context.Context, now time.Time) error

// Config holds the scheduler settings. A zero Interval means one minute.
type Config struct {
	Interval time.Duration
	Location *time.Location
	BaseURL  string
}

// Scheduler owns the reminder tick and its dependencies.
type Scheduler struct {
	mu sync.Mutex

	cfg       Config
	items     ItemStore
	subs      SubscriptionDirectory
	transport Transport
	tokens    TokenIssuer
	events    EventSink
	cleanup   HousekeepingFunc
	now       func() time.Time
	logger    *slog.Logger

	running atomic.Bool
	cron    *cron.Cron
	cancel  context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithEvents sends item resets and sent reminders to sink.
func WithEvents(sink EventSink) Option {
	return func(s *Scheduler) { s.events = sink }
}

// WithHousekeeping schedules fn to run daily at local midnight.
func WithHousekeeping(fn HousekeepingFunc) Option {
	return func(s *Scheduler) { s.cleanup = fn }
}

// New creates a Scheduler. tokens may be nil, in which case reminders are
// sent without a snooze action.
func New(cfg Config, items ItemStore, subs SubscriptionDirectory, transport Transport, tokens TokenIssuer, logger *slog.Logger, opts ...Option) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	s := &Scheduler{
		cfg:       cfg,
		items:     items,
		subs:      subs,
		transport: transport,
		tokens:    tokens,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins ticking every cfg.Interval, measured from now rather than
// aligned to the minute.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	logger := cronLogger{s.logger}
	c := cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	c.Schedule(cron.Every(s.cfg.Interval), cron.FuncJob(func() {
		// Errors are logged inside Tick.
		_ = s.Tick(ctx)
	}))

	if s.cleanup != nil {
		if _, err := c.AddFunc("@daily", func() {
			now := s.now().In(s.cfg.Location)
			if err := s.cleanup(ctx, now); err != nil {
				s.logger.Error("housekeeping failed", "error", err)
			}
		}); err != nil {
			cancel()
			return fmt.Errorf("schedule housekeeping: %w", err)
		}
	}

	c.Start()
	s.cron = c
	s.cancel = cancel
	s.logger.Info("reminder scheduler started", "interval", s.cfg.Interval, "location", s.cfg.Location.String())
	return nil
}

// Stop waits for a running tick to finish, then stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	cancel()
	s.logger.Info("reminder scheduler stopped")
}

// Tick runs one reset sweep followed by one dispatch pass at the current
// time. Only one tick runs at a time; an overlapping call returns
// ErrTickInProgress without doing any work.
func (s *Scheduler) Tick(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous tick still running, skipping")
		return ErrTickInProgress
	}
	defer s.running.Store(false)

	started := time.Now()
	now := s.now().In(s.cfg.Location)

	var errs []error

	sweep, err := s.Sweep(ctx, now)
	if err != nil {
		s.logger.Error("reset sweep failed", "error", err)
		errs = append(errs, err)
	}

	dispatch, err := s.Dispatch(ctx, now)
	if err != nil {
		s.logger.Error("dispatch failed", "error", err)
		errs = append(errs, err)
	}

	s.logger.Info("tick complete",
		"at", now.Format("2006-01-02 15:04"),
		"reset", sweep.Reset,
		"candidates", dispatch.Candidates,
		"matched", dispatch.Matched,
		"delivered", dispatch.Delivered,
		"failed", dispatch.Failed,
		"duration", time.Since(started),
	)
	return errors.Join(errs...)
}

func (s *Scheduler) broadcast(ev websocket.Event) {
	if s.events != nil {
		s.events.Broadcast(ev)
	}
}

// cronLogger bridges robfig/cron logging onto slog. Cron's routine
// bookkeeping messages go to debug.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
