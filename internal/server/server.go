package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/taskrunner/internal/config"
	"github.com/dukerupert/taskrunner/internal/handler"
	"github.com/dukerupert/taskrunner/internal/middleware"
	"github.com/dukerupert/taskrunner/internal/push"
	"github.com/dukerupert/taskrunner/internal/reminder"
	"github.com/dukerupert/taskrunner/internal/store"
	"github.com/dukerupert/taskrunner/internal/token"
	ws "github.com/dukerupert/taskrunner/internal/websocket"
)

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	itemStore   *store.ItemStore
	pushStore   *store.PushStore
	tokenStore  *store.TokenStore
	pushService *push.Service
	scheduler   *reminder.Scheduler
	rateLimiter *middleware.RateLimiter
	snoozeH     *handler.SnoozeHandler
	itemH       *handler.ItemHandler
	pushH       *handler.PushHandler
	retention   time.Duration
	logger      *slog.Logger
}

// New wires stores, delivery and the reminder scheduler. opts are applied to
// the scheduler after the defaults.
func New(db *sql.DB, cfg *config.Config, logger *slog.Logger, opts ...reminder.Option) (*Server, error) {
	hub := ws.NewHub(logger.With("component", "websocket"))

	itemStore := store.NewItemStore(db)
	pushStore := store.NewPushStore(db)
	tokenStore := store.NewTokenStore(db)

	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		logger.Warn("VAPID keys not configured, push delivery will fail; run `taskrunner vapid-keys`")
	}
	pushSvc := push.NewService(push.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subscriber:      cfg.VAPIDSubscriber,
	})

	secret := []byte(cfg.TokenSecret)
	if len(secret) == 0 {
		logger.Warn("token_secret not configured, using an ephemeral secret; snooze links stop working on restart")
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
	}
	issuer := token.NewIssuer(secret, cfg.TokenLife)

	s := &Server{
		db:          db,
		hub:         hub,
		itemStore:   itemStore,
		pushStore:   pushStore,
		tokenStore:  tokenStore,
		pushService: pushSvc,
		rateLimiter: middleware.NewRateLimiter(cfg.SnoozeRate, time.Minute),
		snoozeH:     handler.NewSnoozeHandler(itemStore, tokenStore, issuer, cfg.Snooze, logger.With("component", "snooze")),
		itemH:       handler.NewItemHandler(itemStore, logger.With("component", "item")),
		pushH:       handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler")),
		retention:   cfg.Retention,
		logger:      logger,
	}

	s.scheduler = reminder.New(
		reminder.Config{
			Interval: cfg.Tick,
			Location: cfg.Location,
			BaseURL:  cfg.BaseURL,
		},
		itemStore, pushStore, pushSvc, issuer,
		logger.With("component", "reminder"),
		append([]reminder.Option{
			reminder.WithEvents(hub),
			reminder.WithHousekeeping(s.housekeeping),
		}, opts...)...,
	)
	return s, nil
}

// Scheduler returns the reminder scheduler.
func (s *Server) Scheduler() *reminder.Scheduler {
	return s.scheduler
}

// housekeeping prunes the dedup ledger, spent tokens and idle rate limit
// buckets. It runs once a day from the scheduler.
func (s *Server) housekeeping(ctx context.Context, now time.Time) error {
	sent, err := s.pushStore.CleanupSent(ctx, now.Add(-s.retention))
	if err != nil {
		return err
	}
	tokens, err := s.tokenStore.DeleteExpired(ctx, now)
	if err != nil {
		return err
	}
	visitors := s.rateLimiter.Cleanup(time.Hour)
	s.logger.Info("housekeeping complete", "sent_reminders", sent, "used_tokens", tokens, "rate_limit_keys", visitors)
	return nil
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

	mux.Handle("POST /api/reminders/snooze", s.rateLimited(s.snoozeH.Snooze))

	mux.HandleFunc("GET /api/items/{id}", s.itemH.Get)
	mux.HandleFunc("POST /api/items/{id}/complete", s.itemH.Complete)
	mux.HandleFunc("DELETE /api/items/{id}/completions/latest", s.itemH.UndoCompletion)

	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check ping", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":     status,
		"ws_clients": s.hub.ClientCount(),
	})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.RealIP)(h)
}
