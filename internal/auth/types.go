package auth

import (
	"context"
	"encoding/json"
	"errors"
)

// Domain errors for the auth package.
var (
	// ErrTokenInvalid is returned when a token is malformed, expired or
	// rejected by the identity provider.
	ErrTokenInvalid = errors.New("auth: token invalid")

	// ErrTokenEmpty is returned when no token was supplied.
	ErrTokenEmpty = errors.New("auth: token empty")

	// ErrExchangeFailed is returned when the identity helper could not be
	// reached or answered with something unreadable.
	ErrExchangeFailed = errors.New("auth: token exchange failed")
)

// Identity is the result of a successful token validation.
type Identity struct {
	// Subject is the stable user id reported by the provider.
	Subject string `json:"subject"`

	// TokenInfo is the provider's description of the token.
	TokenInfo json.RawMessage `json:"tokeninfo,omitempty"`

	// Profile is the user's public profile, forwarded to the client.
	Profile json.RawMessage `json:"profile,omitempty"`
}

// Validator checks a bearer token.
type Validator interface {
	Validate(ctx context.Context, token string) (*Identity, error)
}

// Logger defines the logging interface used by the validators.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
