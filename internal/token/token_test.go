package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memLedger struct {
	mu   sync.Mutex
	used map[string]bool
}

func (l *memLedger) MarkUsed(_ context.Context, jti string, _ time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.used == nil {
		l.used = map[string]bool{}
	}
	if l.used[jti] {
		return false, nil
	}
	l.used[jti] = true
	return true, nil
}

func newTestIssuer(now time.Time) *Issuer {
	iss := NewIssuer([]byte("test-secret"), time.Hour)
	iss.now = func() time.Time { return now }
	return iss
}

func TestIssueVerify(t *testing.T) {
	now := time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC)
	iss := newTestIssuer(now)

	raw, err := iss.Issue(42, ActionSnooze)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := iss.Verify(raw, ActionSnooze)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.ItemID != 42 {
		t.Errorf("item_id = %d, want 42", claims.ItemID)
	}
	if claims.Action != ActionSnooze {
		t.Errorf("action = %q, want %q", claims.Action, ActionSnooze)
	}
	if claims.ID == "" {
		t.Error("expected a token id")
	}
}

func TestTokensAreUnique(t *testing.T) {
	iss := newTestIssuer(time.Now())
	a, _ := iss.Issue(1, ActionSnooze)
	b, _ := iss.Issue(1, ActionSnooze)
	if a == b {
		t.Error("expected distinct tokens for the same item")
	}
}

func TestVerifyExpired(t *testing.T) {
	now := time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC)
	iss := newTestIssuer(now)
	raw, _ := iss.Issue(1, ActionSnooze)

	iss.now = func() time.Time { return now.Add(61 * time.Minute) }
	if _, err := iss.Verify(raw, ActionSnooze); !errors.Is(err, ErrExpired) {
		t.Errorf("err = %v, want ErrExpired", err)
	}
}

func TestVerifyWrongActionOrSecret(t *testing.T) {
	now := time.Now()
	iss := newTestIssuer(now)
	raw, _ := iss.Issue(1, ActionSnooze)

	if _, err := iss.Verify(raw, "complete"); !errors.Is(err, ErrInvalid) {
		t.Errorf("wrong action: err = %v, want ErrInvalid", err)
	}

	other := NewIssuer([]byte("other-secret"), time.Hour)
	if _, err := other.Verify(raw, ActionSnooze); !errors.Is(err, ErrInvalid) {
		t.Errorf("wrong secret: err = %v, want ErrInvalid", err)
	}

	if _, err := iss.Verify("not-a-token", ActionSnooze); !errors.Is(err, ErrInvalid) {
		t.Errorf("garbage: err = %v, want ErrInvalid", err)
	}
}

func TestConsumeSingleUse(t *testing.T) {
	iss := newTestIssuer(time.Now())
	ledger := &memLedger{}
	raw, _ := iss.Issue(9, ActionSnooze)

	claims, err := iss.Consume(context.Background(), ledger, raw, ActionSnooze)
	if err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if claims.ItemID != 9 {
		t.Errorf("item_id = %d, want 9", claims.ItemID)
	}

	if _, err := iss.Consume(context.Background(), ledger, raw, ActionSnooze); !errors.Is(err, ErrUsed) {
		t.Errorf("second consume: err = %v, want ErrUsed", err)
	}
}
