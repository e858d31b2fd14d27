package auth

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// DefaultSocketPath is where the identity helper listens by default.
const DefaultSocketPath = "/tmp/gapi.sock"

const defaultExchangeTimeout = 10 * time.Second

// exchangeRequest is written to the identity helper.
type exchangeRequest struct {
	AccessToken  string `json:"access_token"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURL  string `json:"redirect_url"`
}

// exchangeResponse is the helper's answer. Error is set when the provider
// rejected the token.
type exchangeResponse struct {
	TokenInfo json.RawMessage `json:"tokeninfo"`
	Profile   json.RawMessage `json:"profile"`
	Error     string          `json:"error,omitempty"`
}

// SocketConfig configures a SocketExchange.
type SocketConfig struct {
	Path         string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
}

// SocketExchange validates tokens through a local identity helper that
// speaks newline-delimited JSON on a unix socket. One connection is opened
// per validation.
type SocketExchange struct {
	cfg    SocketConfig
	dialer net.Dialer
	logger Logger
}

// NewSocketExchange creates an exchange for cfg.
func NewSocketExchange(cfg SocketConfig) *SocketExchange {
	if cfg.Path == "" {
		cfg.Path = DefaultSocketPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultExchangeTimeout
	}
	return &SocketExchange{cfg: cfg, logger: noopLogger{}}
}

// SetLogger sets the logger for the exchange.
func (s *SocketExchange) SetLogger(logger Logger) {
	s.logger = logger
}

// Validate sends token to the helper and returns the identity it reports.
func (s *SocketExchange) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrTokenEmpty
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	conn, err := s.dialer.DialContext(ctx, "unix", s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: dialling %s: %w", ErrExchangeFailed, s.cfg.Path, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
		}
	}

	req := exchangeRequest{
		AccessToken:  token,
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		RedirectURL:  s.cfg.RedirectURL,
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("%w: writing request: %w", ErrExchangeFailed, err)
	}

	var resp exchangeResponse
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrExchangeFailed, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrTokenInvalid, resp.Error)
	}
	if len(resp.TokenInfo) == 0 || string(resp.TokenInfo) == "null" {
		return nil, fmt.Errorf("%w: no token info", ErrTokenInvalid)
	}

	id := &Identity{
		Subject:   subjectOf(resp.TokenInfo),
		TokenInfo: resp.TokenInfo,
		Profile:   resp.Profile,
	}
	s.logger.Debug("token exchanged", "subject", id.Subject)
	return id, nil
}

// subjectOf extracts the user id from provider token info, which names it
// "sub" or "user_id" depending on the provider.
func subjectOf(info json.RawMessage) string {
	var fields struct {
		Sub    string `json:"sub"`
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(info, &fields); err != nil {
		return ""
	}
	if fields.Sub != "" {
		return fields.Sub
	}
	return fields.UserID
}
