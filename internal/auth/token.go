// Package auth verifies bearer tokens issued by the hospital identity service
// and resolves them into the actor used by the pharmacy and finance workflows.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meridian-hms/meridian/internal/shared"
)

// Issuer is the iss claim expected on every token.
const Issuer = "meridian"

var (
	// ErrMissingToken indicates the request carried no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken indicates the token failed signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims carries the identity fields the services need.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

// Actor converts the claims into the shared actor.
func (c Claims) Actor() shared.Actor {
	return shared.Actor{ID: c.UserID, Role: strings.ToLower(strings.TrimSpace(c.Role))}
}

// Verifier signs and verifies HS256 tokens with a shared secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier constructs a Verifier. An empty secret rejects every token.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for actor valid for ttl. Used by operators and tests;
// production tokens come from the identity service.
func (v *Verifier) Issue(actor shared.Actor, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New("auth: signing secret not configured")
	}
	if actor.ID <= 0 || actor.Role == "" {
		return "", fmt.Errorf("auth: actor requires id and role")
	}
	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   strconv.FormatInt(actor.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: actor.ID,
		Role:   actor.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify parses raw and returns its claims.
func (v *Verifier) Verify(raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, ErrMissingToken
	}
	if len(v.secret) == 0 {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID <= 0 || strings.TrimSpace(claims.Role) == "" {
		return Claims{}, fmt.Errorf("%w: missing user_id or role", ErrInvalidToken)
	}
	return claims, nil
}
