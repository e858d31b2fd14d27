package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrBadArgument is returned when an argument cannot be converted.
	ErrBadArgument = errors.New("gateway: bad argument")

	errNotAuthenticated = errors.New("send AUTH~<token> first")
)

// Session is the per-connection state a transport keeps between commands.
type Session struct {
	ID            string
	WebSocket     bool
	Authenticated bool
}

type handlerFunc func(ctx context.Context, g *Gateway, sess *Session, args []string, resp *Response) error

// commandSpec describes one protocol command. Token counts include the
// command name; maxTokens of 0 means unbounded.
type commandSpec struct {
	minTokens int
	maxTokens int
	wsOnly    bool
	run       handlerFunc
}

var commands = map[string]commandSpec{
	"ALIST":        {minTokens: 1, maxTokens: 1, run: cmdAList},
	"SETNODE":      {minTokens: 3, maxTokens: 3, run: cmdSetNode},
	"ROOMLIST":     {minTokens: 1, maxTokens: 1, run: cmdRoomList},
	"ROOM":         {minTokens: 3, maxTokens: 3, run: cmdRoom},
	"SCENELIST":    {minTokens: 1, maxTokens: 1, run: cmdSceneList},
	"SCENE":        {minTokens: 3, maxTokens: 5, run: cmdScene},
	"CONTROLLER":   {minTokens: 2, maxTokens: 3, run: cmdController},
	"CRON":         {minTokens: 1, maxTokens: 1, run: cmdCron},
	"SWITCH":       {minTokens: 1, maxTokens: 1, run: cmdSwitch},
	"ATHOME":       {minTokens: 1, maxTokens: 1, run: cmdAtHome},
	"POLLINTERVAL": {minTokens: 2, maxTokens: 2, run: cmdPollInterval},
	"ALARMLIST":    {minTokens: 1, maxTokens: 1, run: cmdAlarmList},
	"TEST":         {minTokens: 1, maxTokens: 1, run: cmdTest},
	"EXIT":         {minTokens: 1, maxTokens: 1, run: cmdExit},
	"AUTH":         {minTokens: 2, maxTokens: 2, wsOnly: true, run: cmdAuth},
}

// Tokenize splits a command line on "~" and trims every token. Trailing
// empty tokens, left by a terminating separator, are dropped.
func Tokenize(line string) []string {
	parts := strings.Split(strings.TrimSpace(line), fieldSep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	for len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// Dispatch parses and executes one command line. Errors are reported in the
// returned response, never as a Go error, so every transport answers on the
// same channel it would use for success. sess may be nil for internal
// callers such as the cron runner.
func (g *Gateway) Dispatch(ctx context.Context, line string, sess *Session) *Response {
	if sess == nil {
		sess = &Session{Authenticated: true}
	}

	tokens := Tokenize(line)
	name := tokens[0]
	resp := &Response{Command: name}

	err := g.dispatch(ctx, name, tokens, sess, resp)
	if err != nil {
		resp.SetError(err)
		g.logger.Warn("command failed", "command", name, "session", sess.ID, "error", err)
	} else {
		g.logger.Debug("command handled", "command", name, "session", sess.ID)
	}
	g.metrics.CommandHandled(name, err)
	return resp
}

func (g *Gateway) dispatch(ctx context.Context, name string, tokens []string, sess *Session, resp *Response) error {
	spec, ok := commands[name]
	if !ok || (spec.wsOnly && !sess.WebSocket) {
		return &ProtocolError{Code: CodeUnknownCommand, Message: "Unknown command"}
	}
	if sess.WebSocket && g.AuthRequired() && !sess.Authenticated && name != "AUTH" {
		return &CommandError{Main: "Not authenticated", Err: errNotAuthenticated}
	}
	if len(tokens) < spec.minTokens || (spec.maxTokens > 0 && len(tokens) > spec.maxTokens) {
		return &ProtocolError{Code: CodeWrongArgCount, Message: "Wrong number of arguments"}
	}
	return spec.run(ctx, g, sess, tokens, resp)
}

func parseNode(text string) (uint8, error) {
	n, err := strconv.ParseUint(text, 10, 8)
	if err != nil {
		return 0, &CommandError{Main: "Invalid node", Err: fmt.Errorf("%w: %q", ErrBadArgument, text)}
	}
	return uint8(n), nil
}

func parseInt(what, text string) (int, error) {
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, &CommandError{Main: "Invalid " + what, Err: fmt.Errorf("%w: %q", ErrBadArgument, text)}
	}
	return n, nil
}
