package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/taskrunner/internal/config"
	"github.com/dukerupert/taskrunner/internal/database"
	"github.com/dukerupert/taskrunner/internal/model"
)

func setupTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.TokenSecret = "test-secret"
	cfg.VAPIDPublicKey = "pub-key"
	cfg.VAPIDPrivateKey = "priv-key"
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(db, cfg, slog.Default())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func TestHealth(t *testing.T) {
	srv := setupTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
}

func TestRoutesWired(t *testing.T) {
	srv := setupTestServer(t, nil)
	router := srv.Router()

	cases := []struct {
		method, path, body string
		want               int
	}{
		{"GET", "/api/push/vapid-key", "", http.StatusOK},
		{"GET", "/api/items/1", "", http.StatusNotFound},
		{"POST", "/api/items/1/complete", "", http.StatusNotFound},
		{"DELETE", "/api/items/1/completions/latest", "", http.StatusNotFound},
		{"POST", "/api/reminders/snooze", `{"token":"bad"}`, http.StatusUnauthorized},
		{"GET", "/api/push/subscriptions", "", http.StatusBadRequest},
		{"GET", "/ws?owner_id=abc", "", http.StatusBadRequest},
	}
	for _, tc := range cases {
		var req *http.Request
		if tc.body != "" {
			req = httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		} else {
			req = httptest.NewRequest(tc.method, tc.path, nil)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s %s: status = %d, want %d", tc.method, tc.path, rec.Code, tc.want)
		}
	}
}

func TestSnoozeRateLimited(t *testing.T) {
	srv := setupTestServer(t, func(c *config.Config) { c.SnoozeRate = 2 })
	router := srv.Router()

	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/reminders/snooze", strings.NewReader(`{}`)))
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusBadRequest || codes[1] != http.StatusBadRequest {
		t.Errorf("first two codes = %v, want 400", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third code = %d, want 429", codes[2])
	}
}

func TestHousekeepingPrunesSentReminders(t *testing.T) {
	srv := setupTestServer(t, nil)
	ctx := context.Background()

	if err := srv.pushStore.RecordSent(ctx, model.NotifTypeReminder, "item-1", "2026-02-01T09:00"); err != nil {
		t.Fatalf("record sent: %v", err)
	}

	// sent_at is the insert time, so anything later than retention from now prunes it.
	if err := srv.housekeeping(ctx, time.Now().Add(srv.retention+time.Hour)); err != nil {
		t.Fatalf("housekeeping: %v", err)
	}
	sent, err := srv.pushStore.WasSent(ctx, model.NotifTypeReminder, "item-1", "2026-02-01T09:00")
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if sent {
		t.Error("old sent reminder should have been pruned")
	}
}
