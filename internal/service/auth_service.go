package service

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"certexam/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid user id")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// AuthService mints and validates candidate tokens. Real identity
// lives upstream; the engine only needs an opaque user id it can trust
// for the lifetime of an attempt, so login is a token exchange, not a
// credential check.
type AuthService struct {
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService() *AuthService {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "super-secret-key-change-in-production"
	}
	return &AuthService{
		jwtSecret: []byte(secret),
		tokenTTL:  24 * time.Hour,
	}
}

// Login issues a candidate token for the given user id.
func (s *AuthService) Login(userID string) (*model.LoginResponse, error) {
	if userID == "" {
		return nil, ErrInvalidCredentials
	}

	claims := &model.CandidateClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &model.LoginResponse{
		Token:  tokenString,
		UserID: userID,
	}, nil
}

// ValidateToken validates a candidate JWT and returns its claims.
func (s *AuthService) ValidateToken(tokenString string) (*model.CandidateClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.CandidateClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.CandidateClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
