package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/taskrunner/internal/database"
)

func setupTokenTestDB(t *testing.T) *TokenStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTokenStore(db)
}

func TestMarkUsedOnce(t *testing.T) {
	ts := setupTokenTestDB(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	first, err := ts.MarkUsed(ctx, "abc", exp)
	if err != nil {
		t.Fatalf("mark used: %v", err)
	}
	if !first {
		t.Error("first use should succeed")
	}

	second, err := ts.MarkUsed(ctx, "abc", exp)
	if err != nil {
		t.Fatalf("mark used again: %v", err)
	}
	if second {
		t.Error("second use should be rejected")
	}
}

func TestDeleteExpiredTokens(t *testing.T) {
	ts := setupTokenTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)

	ts.MarkUsed(ctx, "old", now.Add(-time.Minute))
	ts.MarkUsed(ctx, "fresh", now.Add(time.Hour))

	n, err := ts.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	again, _ := ts.MarkUsed(ctx, "fresh", now.Add(time.Hour))
	if again {
		t.Error("unexpired record should still block reuse")
	}
}
