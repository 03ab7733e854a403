package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BrianStatesThat/thepepassport/internal/db"
)

// RoleAuthenticated is the database role for signed-in visitors.
const RoleAuthenticated = "authenticated"

// HumanTokenIssuer is the issuer of captcha (X-C-T) tokens. Such tokens
// never grant access.
const HumanTokenIssuer = "thepepassport-captcha"

// ErrHumanToken is returned when a captcha token is presented as an access token.
var ErrHumanToken = errors.New("captcha token is not an access token")

// Claims are the access token claims issued by the hosted auth service.
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// GenerateJWT signs an access token. Used by tests and local tooling; in
// production tokens come from the auth service.
func GenerateJWT(subject, role, email, secretKey string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role:  role,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return tokenString, nil
}

// ValidateJWT verifies a JWT string and returns the claims if valid.
func ValidateJWT(tokenString string, secretKey string) (*Claims, error) {
	if secretKey == "" {
		return nil, errors.New("no JWT secret configured")
	}
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid JWT")
	}
	if claims.Issuer == HumanTokenIssuer {
		return nil, ErrHumanToken
	}
	return claims, nil
}

// Credentials converts verified claims into the credentials passed to the
// row store. A token without a subject identifies nobody and maps to
// db.Anonymous; a subject without a role is authenticated.
func (c *Claims) Credentials() db.Credentials {
	if c.Subject == "" {
		return db.Anonymous
	}
	role := c.Role
	if role == "" {
		role = RoleAuthenticated
	}
	raw := map[string]interface{}{"sub": c.Subject, "role": role}
	if c.Email != "" {
		raw["email"] = c.Email
	}
	return db.Credentials{Role: role, Subject: c.Subject, Claims: raw}
}
