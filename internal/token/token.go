// Package token issues and verifies the signed, short-lived action tokens
// embedded in reminder notifications.
package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ActionSnooze is the only action reminders currently carry.
const ActionSnooze = "snooze"

const issuer = "taskrunner"

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
	ErrUsed    = errors.New("token already used")
)

// Claims binds a token to one item and one action.
type Claims struct {
	ItemID int64  `json:"item_id"`
	Action string `json:"action"`
	jwt.RegisteredClaims
}

// Ledger records consumed token IDs.
type Ledger interface {
	MarkUsed(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
}

// Issuer signs and verifies single-use action tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer that signs with secret. Tokens expire after ttl.
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}
}

// Issue returns a signed token for {itemID, action}.
func (i *Issuer) Issue(itemID int64, action string) (string, error) {
	now := i.now()
	claims := Claims{
		ItemID: itemID,
		Action: action,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   strconv.FormatInt(itemID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and action. It does not consume the token.
func (i *Issuer) Verify(raw, action string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if claims.Action != action || claims.ID == "" || claims.ItemID == 0 {
		return nil, ErrInvalid
	}
	return &claims, nil
}

// Consume verifies raw and marks it used so it cannot be replayed.
func (i *Issuer) Consume(ctx context.Context, ledger Ledger, raw, action string) (*Claims, error) {
	claims, err := i.Verify(raw, action)
	if err != nil {
		return nil, err
	}

	first, err := ledger.MarkUsed(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return nil, fmt.Errorf("consume token: %w", err)
	}
	if !first {
		return nil, ErrUsed
	}
	return claims, nil
}
