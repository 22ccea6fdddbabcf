package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "mojochat"

// ErrUnauthorized is returned for every credential failure. Callers must not
// leak the underlying cause to clients.
var ErrUnauthorized = errors.New("unauthorized")

// Verifier turns a bearer credential into a stable subject identifier.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Service issues and verifies HS256 bearer tokens whose subject is the user id.
// Verification is a pure per-request check: no refresh, revocation or cache.
type Service struct {
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

// NewService constructs an auth service with the supplied signing secret and token lifetime.
func NewService(secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		secret:   []byte(secret),
		tokenTTL: ttl,
		now:      time.Now,
	}
}

// IssueToken signs a token for the user and returns it with its expiry.
func (s *Service) IssueToken(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("invalid user id")
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify validates signature, issuer and expiry and yields the subject claim.
func (s *Service) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}

// HashPassword returns a salted bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// VerifyPassword compares a bcrypt hash with a plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
