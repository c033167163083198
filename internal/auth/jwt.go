// Package auth provides bearer-token authentication for the Control API.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrAuthDisabled = errors.New("auth: service disabled (no secret configured)")
	ErrInvalidToken = errors.New("auth: invalid or expired token")
)

// Principal identifies the caller a validated token was issued to.
type Principal struct {
	Subject string   `json:"sub"`
	Scopes  []string `json:"scopes,omitempty"`
}

// HasScope reports whether the principal carries the given scope.
func (p Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type claims struct {
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies HS256 bearer tokens for the Control API.
type Service struct {
	secret []byte
	expiry time.Duration
}

// NewService builds a token service. An empty secret disables auth entirely
// (Validate always returns ErrAuthDisabled), matching local/dev usage.
func NewService(secret string, expiry time.Duration) *Service {
	return &Service{secret: []byte(secret), expiry: expiry}
}

// Enabled reports whether a signing secret is configured.
func (s *Service) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// Issue signs a new token for the given subject and scopes.
func (s *Service) Issue(subject string, scopes ...string) (string, error) {
	if !s.Enabled() {
		return "", ErrAuthDisabled
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("auth: subject is required")
	}

	now := time.Now()
	c := claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.expiry > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(s.expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(s.secret)
}

// Validate parses and verifies a bearer token, returning the principal it
// was issued to.
func (s *Service) Validate(token string) (Principal, error) {
	if !s.Enabled() {
		return Principal{}, ErrAuthDisabled
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return Principal{}, ErrInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || strings.TrimSpace(c.Subject) == "" {
		return Principal{}, ErrInvalidToken
	}

	return Principal{Subject: c.Subject, Scopes: c.Scopes}, nil
}
