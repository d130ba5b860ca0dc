package daemon

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"time"
)

// ErrNotConnected is returned when trying to use a disconnected client.
var ErrNotConnected = errors.New("not connected to daemon")

// ErrDaemonNotRunning is returned when nothing listens on the socket.
var ErrDaemonNotRunning = errors.New("daemon not running")

// maxPendingEvents caps notifications buffered while waiting for a reply.
const maxPendingEvents = 100

// Client talks to a daemon. Calls are serialized; watch events that arrive
// while a call waits for its reply are kept for NextEvent.
type Client struct {
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
	idGen   IDGenerator

	mu      sync.Mutex
	pending []*Notification
}

// message is any frame the server may send.
type message struct {
	ID     *int64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// Connect dials the daemon socket.
func Connect(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		if isNotListening(err) {
			return nil, ErrDaemonNotRunning
		}
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	return &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		decoder: json.NewDecoder(bufio.NewReader(conn)),
	}, nil
}

// isNotListening reports a missing socket file or a refused connection.
func isNotListening(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, os.ErrNotExist)
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) read() (*message, error) {
	var msg message
	if err := c.decoder.Decode(&msg); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &msg, nil
}

func (c *Client) queue(msg *message) {
	if len(c.pending) >= maxPendingEvents {
		c.pending = c.pending[1:]
	}
	c.pending = append(c.pending, &Notification{
		JSONRPC: JSONRPCVersion,
		Method:  msg.Method,
		Params:  msg.Params,
	})
}

// call sends a request and waits for the reply with the same ID.
func (c *Client) call(method string, params any, result any) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.idGen.Next()
	req, err := NewRequest(id, method, params)
	if err != nil {
		return err
	}
	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	for {
		msg, err := c.read()
		if err != nil {
			return err
		}
		if msg.Method != "" {
			c.queue(msg)
			continue
		}
		if msg.ID != nil && *msg.ID != id {
			continue
		}
		if msg.Error != nil {
			return msg.Error
		}
		if result != nil && len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, result); err != nil {
				return fmt.Errorf("failed to unmarshal result: %w", err)
			}
		}
		return nil
	}
}

// NextEvent returns the next watch event, waiting up to timeout for one to
// arrive. A zero timeout waits forever.
func (c *Client) NextEvent(timeout time.Duration) (*Notification, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) > 0 {
		next := c.pending[0]
		c.pending = c.pending[1:]
		return next, nil
	}

	if timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
	}

	for {
		msg, err := c.read()
		if err != nil {
			return nil, err
		}
		if msg.Method != "" {
			return &Notification{JSONRPC: JSONRPCVersion, Method: msg.Method, Params: msg.Params}, nil
		}
	}
}

// Ping checks the daemon is alive.
func (c *Client) Ping() (*PingResult, error) {
	var result PingResult
	if err := c.call(MethodPing, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown() (*ShutdownResult, error) {
	var result ShutdownResult
	if err := c.call(MethodShutdown, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StatusGet checks tasks in the daemon.
func (c *Client) StatusGet(params *StatusGetParams) (*StatusGetResult, error) {
	var result StatusGetResult
	if err := c.call(MethodStatusGet, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Invalidate drops the daemon's cached snapshots.
func (c *Client) Invalidate() (*InvalidateResult, error) {
	var result InvalidateResult
	if err := c.call(MethodInvalidate, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WatchStart starts the daemon's watcher and subscribes this client to its
// events.
func (c *Client) WatchStart(params *WatchStartParams) (*WatchStartResult, error) {
	var result WatchStartResult
	if err := c.call(MethodWatchStart, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WatchStop stops the daemon's watcher.
func (c *Client) WatchStop() (*WatchStopResult, error) {
	var result WatchStopResult
	if err := c.call(MethodWatchStop, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WatchStatus reports the daemon's watcher state.
func (c *Client) WatchStatus() (*WatchStatusResult, error) {
	var result WatchStatusResult
	if err := c.call(MethodWatchStatus, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
