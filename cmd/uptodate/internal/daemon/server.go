package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/albertocavalcante/uptodate/internal/log"
)

const (
	// shutdownTimeout bounds how long Shutdown waits for client goroutines.
	shutdownTimeout = 5 * time.Second

	// writeTimeout drops clients that stop reading.
	writeTimeout = 5 * time.Second
)

// Server accepts clients on a Unix socket and serves one project.
type Server struct {
	paths     *Paths
	listener  net.Listener
	handler   *Handler
	startTime time.Time
	version   string

	clients   map[*ClientConn]struct{}
	clientsMu sync.RWMutex

	shutdown     chan struct{}
	shutdownOnce sync.Once
	shutdownMu   sync.Mutex
	isShutdown   bool
	shutdownErr  error
	wg           sync.WaitGroup
}

// ClientConn is one connected client.
type ClientConn struct {
	conn      net.Conn
	encoder   *json.Encoder
	decoder   *json.Decoder
	encoderMu sync.Mutex

	mu         sync.Mutex
	subscribed bool
	closed     bool
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Paths   *Paths
	Version string
	Handler *Handler
}

// NewServer creates a server. The handler is bound to it.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		paths:     cfg.Paths,
		version:   cfg.Version,
		handler:   cfg.Handler,
		clients:   make(map[*ClientConn]struct{}),
		shutdown:  make(chan struct{}),
		startTime: time.Now(),
	}
	if s.handler != nil {
		s.handler.server = s
	}
	return s
}

// Start listens on the socket and serves until ctx is done, a termination
// signal arrives or a client requests shutdown.
func (s *Server) Start(ctx context.Context) error {
	logger := log.Component("daemon")

	if s.handler == nil {
		return errors.New("daemon: server has no handler")
	}

	if _, err := CleanupStale(s.paths); err != nil {
		logger.Warn("failed to clean up stale files", "error", err)
	}
	if err := s.paths.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	listener, err := net.Listen("unix", s.paths.Socket)
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.paths.Socket, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}
	if err := s.paths.WritePID(); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	logger.Info("daemon started",
		"pid", os.Getpid(),
		"socket", s.paths.Socket,
		"version", s.version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.wg.Add(1)
	go s.acceptLoop(serveCtx)

	select {
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-s.shutdown:
		logger.Info("shutdown requested via RPC")
	}

	cancel()
	return s.Shutdown()
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	logger := log.Component("daemon")

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closing() || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn("accept error", "error", err)
			continue
		}

		client := &ClientConn{
			conn:    conn,
			encoder: json.NewEncoder(conn),
			decoder: json.NewDecoder(bufio.NewReader(conn)),
		}

		s.clientsMu.Lock()
		s.clients[client] = struct{}{}
		count := len(s.clients)
		s.clientsMu.Unlock()
		logger.Debug("client connected", "client_count", count)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleClient(ctx, client)
		}()
	}
}

// handleClient serves one connection. A malformed message ends the
// connection since the stream cannot be resynchronized.
func (s *Server) handleClient(ctx context.Context, client *ClientConn) {
	logger := log.Component("daemon")
	defer func() {
		client.Close()
		s.clientsMu.Lock()
		delete(s.clients, client)
		count := len(s.clients)
		s.clientsMu.Unlock()
		logger.Debug("client disconnected", "client_count", count)
	}()

	for {
		var req Request
		if err := client.decoder.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Debug("failed to decode request", "error", err)
			_ = client.Send(NewErrorResponse(nil, ErrCodeParseError, "Parse error", nil))
			return
		}

		if req.JSONRPC != JSONRPCVersion {
			resp := NewErrorResponse(req.ID, ErrCodeInvalidRequest, "Invalid Request: unsupported JSON-RPC version", nil)
			if err := client.Send(resp); err != nil {
				return
			}
			continue
		}

		if resp := s.handler.HandleRequest(ctx, client, &req); resp != nil {
			if err := client.Send(resp); err != nil {
				logger.Debug("failed to send response", "error", err)
				return
			}
		}
	}
}

func (s *Server) closing() bool {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	return s.isShutdown
}

// Shutdown stops the server: the listener closes, subscribers are told, the
// watcher stops, clients are disconnected and the daemon files removed.
// Later calls return the first result.
func (s *Server) Shutdown() error {
	s.shutdownMu.Lock()
	if s.isShutdown {
		s.shutdownMu.Unlock()
		return s.shutdownErr
	}
	s.isShutdown = true
	s.shutdownMu.Unlock()

	logger := log.Component("daemon")
	logger.Info("shutting down daemon")

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Warn("failed to close listener", "error", err)
		}
	}

	if notif, err := NewNotification(MethodWatchEvent, map[string]string{
		"event":   "shutdown",
		"message": "daemon is shutting down",
	}); err == nil {
		s.Broadcast(notif)
	}

	if s.handler != nil {
		s.handler.Stop()
	}

	s.clientsMu.RLock()
	for client := range s.clients {
		client.Close()
	}
	s.clientsMu.RUnlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out waiting for clients")
	}

	var err error
	if s.listener != nil {
		err = s.paths.Cleanup()
	}
	if err != nil {
		logger.Warn("failed to clean up daemon files", "error", err)
	}

	s.shutdownMu.Lock()
	s.shutdownErr = err
	s.shutdownMu.Unlock()

	logger.Info("daemon stopped")
	return err
}

// RequestShutdown asks Start to return. It is safe to call more than once.
func (s *Server) RequestShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// Broadcast sends a notification to every subscribed client.
func (s *Server) Broadcast(notif *Notification) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		if client.Subscribed() {
			_ = client.Send(notif)
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Send writes one message to the client.
func (c *ClientConn) Send(msg any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return net.ErrClosed
	}

	c.encoderMu.Lock()
	defer c.encoderMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.encoder.Encode(msg)
}

// Close closes the connection once.
func (c *ClientConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.Close()
}

// Subscribe enables watch event delivery.
func (c *ClientConn) Subscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = true
}

// Subscribed reports whether the client receives watch events.
func (c *ClientConn) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}
