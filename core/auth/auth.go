// Package auth issues and verifies the API keys guarding the HTTP API.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	Issuer = "AvaProtocol"
	JwtAlg = "HS256"

	AdminRole    = ApiRole("admin")
	ReadonlyRole = ApiRole("readonly")
)

var (
	ErrorInvalidToken        = errors.New("Invalid Bearer Token")
	ErrorMalformedAuthHeader = errors.New("Malform auth header")
	ErrorMissingRole         = errors.New("API key lacks the required role")
)

type ApiRole string

func (r ApiRole) Valid() bool {
	return r == AdminRole || r == ReadonlyRole
}

type APIClaim struct {
	jwt.RegisteredClaims
	Roles []ApiRole `json:"roles"`
}

// Allows reports whether the key may call an endpoint requiring role. Admin
// keys may call everything.
func (c *APIClaim) Allows(role ApiRole) bool {
	return slices.Contains(c.Roles, AdminRole) || slices.Contains(c.Roles, role)
}

// CreateAPIKey signs a key for subject. A zero ttl never expires.
func CreateAPIKey(secret []byte, subject string, roles []ApiRole, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	if subject == "" {
		return "", errors.New("subject cannot be empty")
	}
	if len(roles) < 1 {
		return "", errors.New("at least one role is required")
	}
	for _, r := range roles {
		if !r.Valid() {
			return "", fmt.Errorf("unknown role %q", r)
		}
	}

	now := time.Now()
	claims := &APIClaim{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   Issuer,
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Roles: roles,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyAPIKey checks signature, issuer and expiry of key.
func VerifyAPIKey(secret []byte, key string) (*APIClaim, error) {
	claims := &APIClaim{}
	token, err := jwt.ParseWithClaims(key, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("Unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{JwtAlg}), jwt.WithIssuer(Issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrorInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrorInvalidToken
	}
	return claims, nil
}

// FromAuthHeader extracts the key from an "Authorization: Bearer <key>"
// header value.
func FromAuthHeader(header string) (string, error) {
	scheme, key, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(key) == "" {
		return "", ErrorMalformedAuthHeader
	}
	return strings.TrimSpace(key), nil
}
