// Package core - Core Business Logic
// Protocol-agnostic progression engine: availability gate, attempt
// lifecycle, scoring, aggregation, progress and badges
package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"missionhub/pkg/models"
)

// ErrInvalidToken is returned for any token that fails verification
var ErrInvalidToken = errors.New("invalid token")

// Roles carried in learner tokens
const (
	RoleLearner = "learner"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Identity is the verified caller of an engine operation
type Identity struct {
	LearnerID string `json:"learner_id"`
	Cohort    string `json:"cohort,omitempty"`
	Role      string `json:"role"`
}

// CanAuthor reports whether the caller may read authored content
func (i Identity) CanAuthor() bool {
	return i.Role == RoleTeacher || i.Role == RoleAdmin
}

// TokenService verifies bearer tokens issued by the platform's auth
// service. Issue exists for dev tooling and tests.
type TokenService interface {
	Verify(tokenString string) (*Identity, error)
	Issue(identity Identity, ttl time.Duration) (string, error)
}

type tokenService struct {
	secret []byte
	issuer string
	now    Clock
}

// JWT claims structure
type jwtClaims struct {
	LearnerID string `json:"learner_id"`
	Cohort    string `json:"cohort,omitempty"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// NewTokenService creates an HS256 token service
func NewTokenService(secret, issuer string) TokenService {
	return &tokenService{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Verify checks signature, expiry and issuer
func (s *tokenService) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, models.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid || claims.LearnerID == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, models.ErrUnauthorized)
	}
	if s.issuer != "" && !claims.VerifyIssuer(s.issuer, true) {
		return nil, fmt.Errorf("%w: wrong issuer: %w", ErrInvalidToken, models.ErrUnauthorized)
	}

	role := claims.Role
	if role == "" {
		role = RoleLearner
	}
	return &Identity{LearnerID: claims.LearnerID, Cohort: claims.Cohort, Role: role}, nil
}

// Issue signs a token for identity
func (s *tokenService) Issue(identity Identity, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &jwtClaims{
		LearnerID: identity.LearnerID,
		Cohort:    identity.Cohort,
		Role:      identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.LearnerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
