package socket

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-zwave/internal/gateway"
)

const (
	// maxLineSize bounds one command line.
	maxLineSize = 64 * 1024

	// writeTimeout bounds writing one reply to a slow client.
	writeTimeout = 10 * time.Second

	// Accept errors are retried after acceptRetryDelay, doubling up to
	// maxAcceptRetryDelay while they persist.
	acceptRetryDelay    = 5 * time.Millisecond
	maxAcceptRetryDelay = 5 * time.Second

	transportTCP = "tcp"

	stoppingMessage = "Server is stopping, closing socket connection\n"
)

// Dispatcher executes one protocol command. *gateway.Gateway implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, line string, sess *gateway.Session) *gateway.Response
}

// Metrics tracks open sessions. *metrics.Metrics implements it.
type Metrics interface {
	SessionOpened(transport string)
	SessionClosed(transport string)
}

// Logger is the logging surface used by the server.
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

type noopMetrics struct{}

func (noopMetrics) SessionOpened(string) {}
func (noopMetrics) SessionClosed(string) {}

// Server accepts line protocol connections.
//
// Thread Safety: Start and Close may be called from different goroutines;
// each connection is served on its own goroutine.
type Server struct {
	addr       string
	dispatcher Dispatcher
	logger     Logger
	metrics    Metrics

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closing  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a server that will listen on addr (host:port).
func New(addr string, d Dispatcher) *Server {
	return &Server{
		addr:       addr,
		dispatcher: d,
		logger:     noopLogger{},
		metrics:    noopMetrics{},
		conns:      make(map[net.Conn]struct{}),
	}
}

// SetLogger sets the logger for the server.
func (s *Server) SetLogger(logger Logger) {
	s.logger = logger
}

// SetMetrics sets the session gauge sink.
func (s *Server) SetMetrics(m Metrics) {
	s.metrics = m
}

// Start binds the listener and begins accepting in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	srvCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.listener = ln
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("line socket listening", "address", ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(srvCtx, ln)
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting, tells every connected client the server is
// stopping, and waits for the connection goroutines to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closing || s.listener == nil {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.cancel()
	err := s.listener.Close()
	for conn := range s.conns {
		//nolint:errcheck // Best-effort farewell
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		//nolint:errcheck // Best-effort farewell
		conn.Write([]byte(stoppingMessage))
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("line socket closed")
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() || errors.Is(err, net.ErrClosed) {
				return
			}
			if delay == 0 {
				delay = acceptRetryDelay
			} else {
				delay = min(delay*2, maxAcceptRetryDelay)
			}
			s.logger.Warn("accept failed, retrying", "error", err, "delay", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(ctx, conn)
		}()
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// serve runs one connection until the client hangs up or the server
// closes it.
func (s *Server) serve(ctx context.Context, conn net.Conn) {
	sess := &gateway.Session{ID: uuid.NewString()}
	remote := conn.RemoteAddr().String()

	s.metrics.SessionOpened(transportTCP)
	s.logger.Debug("line client connected", "session", sess.ID, "remote", remote)
	defer func() {
		s.untrack(conn)
		conn.Close()
		s.metrics.SessionClosed(transportTCP)
		s.logger.Debug("line client disconnected", "session", sess.ID, "remote", remote)
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || (len(line) == 1 && line[0] == '\r') {
			continue
		}

		resp := s.dispatcher.Dispatch(ctx, line, sess)

		//nolint:errcheck // Best-effort deadline; write error caught below
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := conn.Write([]byte(resp.Flat() + "\n")); err != nil {
			s.logger.Debug("line write failed", "session", sess.ID, "error", err)
			return
		}
	}
	if err := scanner.Err(); err != nil && !s.isClosing() {
		s.logger.Warn("line read failed", "session", sess.ID, "error", err)
	}
}
