// Package state holds the channels that carry funnel state between requests:
// the signed navigation token and the per-browser durable store.
package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zatekoja/reviewfunnel/internal/domain/funnel"
)

const tokenIssuer = "reviewfunnel"

// ErrInvalidToken is returned for tokens that are malformed, expired or signed
// with another key.
var ErrInvalidToken = errors.New("invalid navigation token")

type navigationClaims struct {
	Stage      funnel.Stage    `json:"stage,omitempty"`
	Rating     int             `json:"rating,omitempty"`
	Comment    string          `json:"comment,omitempty"`
	LocationID string          `json:"location_id,omitempty"`
	Display    *funnel.Display `json:"display,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies the navigation token. The token is the
// highest-priority state channel and is scoped to one funnel session.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenCodec(secret string, ttl time.Duration) *TokenCodec {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Encode signs st together with the stage the customer is on.
func (c *TokenCodec) Encode(st funnel.State, stage funnel.Stage) (string, error) {
	now := c.now()
	claims := navigationClaims{
		Stage:      stage,
		Rating:     st.Rating,
		Comment:    st.Comment,
		LocationID: st.LocationID,
		Display:    st.Display,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   st.SessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign navigation token: %w", err)
	}
	return signed, nil
}

// Decode verifies token and returns the navigation snapshot it carries along
// with the stage it was issued for.
func (c *TokenCodec) Decode(token string) (funnel.Snapshot, funnel.Stage, error) {
	var claims navigationClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return funnel.Snapshot{}, "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	st := funnel.State{
		SessionID:  claims.Subject,
		Rating:     claims.Rating,
		Comment:    claims.Comment,
		LocationID: claims.LocationID,
		Display:    claims.Display,
	}
	return funnel.SnapshotOf(funnel.ChannelNavigation, st), claims.Stage, nil
}
