package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/yourusername/fasalrakshak-api/internal/domain/entity"
	"github.com/yourusername/fasalrakshak-api/internal/domain/repository"
	apperrors "github.com/yourusername/fasalrakshak-api/internal/pkg/errors"
)

// JWTCustomClaims contains the custom claim fields for a session token.
type JWTCustomClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTService mints and validates stateless bearer tokens. Revocation is a
// set-membership check against the injected key-value store: revoked tokens
// are keyed by token hash with a TTL equal to the remaining token lifetime,
// so the set cleans itself up as tokens expire naturally.
type JWTService struct {
	secret        []byte
	tokenLifetime time.Duration
	revocations   repository.CacheRepository
}

// NewJWTService creates a new JWT service and returns an error on problems.
func NewJWTService(secret string, lifetimeDays int, revocations repository.CacheRepository) (*JWTService, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	if revocations == nil {
		return nil, fmt.Errorf("revocation store is required for JWTService")
	}
	if lifetimeDays <= 0 {
		lifetimeDays = 7
	}

	return &JWTService{
		secret:        []byte(secret),
		tokenLifetime: time.Duration(lifetimeDays) * 24 * time.Hour,
		revocations:   revocations,
	}, nil
}

// GenerateToken mints a signed bearer token for the account.
func (s *JWTService) GenerateToken(user *entity.User) (string, error) {
	now := time.Now()
	claims := JWTCustomClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenLifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseToken verifies signature and expiry, rejects revoked tokens, and
// returns the claims.
func (s *JWTService) ParseToken(tokenString string) (*JWTCustomClaims, error) {
	claims, err := s.parseClaims(tokenString)
	if err != nil {
		return nil, err
	}

	revoked, err := s.isRevoked(tokenString)
	if err != nil {
		// A store failure must not let a revoked token through.
		log.Printf("[JWTService] Revocation check failed: %v", err)
		return nil, apperrors.ErrUnauthorized
	}
	if revoked {
		return nil, apperrors.ErrUnauthorized
	}

	return claims, nil
}

// RevokeToken adds a token to the revocation set until its natural expiry.
// Invalid or already-expired tokens are a no-op.
func (s *JWTService) RevokeToken(tokenString string) error {
	claims, err := s.parseClaims(tokenString)
	if err != nil {
		// Nothing to revoke: the token can never authenticate anyway.
		return nil
	}

	ttl := s.tokenLifetime
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
		if ttl <= 0 {
			return nil
		}
	}

	return s.revocations.Set(revocationKey(tokenString), "1", ttl)
}

func (s *JWTService) parseClaims(tokenString string) (*JWTCustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTCustomClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrExpiredToken
		}
		return nil, apperrors.ErrUnauthorized
	}

	claims, ok := token.Claims.(*JWTCustomClaims)
	if !ok || !token.Valid {
		return nil, apperrors.ErrUnauthorized
	}
	return claims, nil
}

func (s *JWTService) isRevoked(tokenString string) (bool, error) {
	_, err := s.revocations.Get(revocationKey(tokenString))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// revocationKey hashes the token so revocation-set keys stay short and the
// store never holds a usable token value.
func revocationKey(tokenString string) string {
	sum := sha256.Sum256([]byte(tokenString))
	return "revoked:" + hex.EncodeToString(sum[:])
}
