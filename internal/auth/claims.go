package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// defaultTokenTTL is used by GenerateToken when no lifetime is given.
const defaultTokenTTL = 12 * time.Hour

// Claims are the JWT claims accepted by JWTValidator.
type Claims struct {
	jwt.RegisteredClaims
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// GenerateToken signs an HS256 token for subject. It is used by the
// gateway's token command and by tests.
func GenerateToken(subject, name, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Name: name,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token's signature, expiry and subject and returns
// its claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenEmpty
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}

// JWTValidator accepts tokens signed with a shared secret.
type JWTValidator struct {
	secret string
}

// NewJWTValidator creates a validator for secret.
func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: secret}
}

// Validate parses token and builds an identity whose profile carries the
// subject and display name.
func (v *JWTValidator) Validate(_ context.Context, token string) (*Identity, error) {
	claims, err := ParseToken(token, v.secret)
	if err != nil {
		return nil, err
	}

	profile, err := json.Marshal(struct {
		ID    string `json:"id"`
		Name  string `json:"name,omitempty"`
		Email string `json:"email,omitempty"`
	}{claims.Subject, claims.Name, claims.Email})
	if err != nil {
		return nil, fmt.Errorf("encoding profile: %w", err)
	}
	info, err := json.Marshal(struct {
		Subject   string `json:"sub"`
		ExpiresAt int64  `json:"exp,omitempty"`
		ID        string `json:"jti,omitempty"`
	}{claims.Subject, expiry(claims), claims.ID})
	if err != nil {
		return nil, fmt.Errorf("encoding token info: %w", err)
	}

	return &Identity{Subject: claims.Subject, TokenInfo: info, Profile: profile}, nil
}

func expiry(c *Claims) int64 {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Unix()
}
