package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TokenStore remembers consumed single-use token IDs until they expire.
type TokenStore struct {
	db *sql.DB
}

func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

// MarkUsed records jti as consumed. It returns false if jti was already used.
func (s *TokenStore) MarkUsed(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO used_tokens (jti, expires_at) VALUES (?, ?)`,
		jti, expiresAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("mark token used: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// DeleteExpired removes records for tokens that can no longer verify anyway.
func (s *TokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM used_tokens WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
