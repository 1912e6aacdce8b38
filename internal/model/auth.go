package model

import "github.com/golang-jwt/jwt/v5"

// CandidateClaims are JWT claims for an exam candidate. Identity
// resolution itself lives outside this service; the token just carries
// the opaque user id every attempt operation is scoped to.
type CandidateClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// LoginRequest is the request body for candidate login
type LoginRequest struct {
	UserID string `json:"userId"`
}

// LoginResponse is returned after a successful login
type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}
