// Package daemon keeps a project's snapshot cache warm in a background
// process and answers up-to-date queries over a Unix socket. Messages are
// newline-delimited JSON-RPC 2.0.
package daemon

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// JSONRPCVersion is the only protocol version accepted.
const JSONRPCVersion = "2.0"

// JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603

	// ErrCodeTaskError reports a task that could not be resolved.
	ErrCodeTaskError = -32001
)

// Method names.
const (
	MethodPing        = "ping"
	MethodShutdown    = "shutdown"
	MethodStatusGet   = "status/get"
	MethodInvalidate  = "cache/invalidate"
	MethodWatchStart  = "watch/start"
	MethodWatchStop   = "watch/stop"
	MethodWatchStatus = "watch/status"
	MethodWatchEvent  = "watch/event" // server to client only
)

// Request is a JSON-RPC request. A nil ID marks a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Notification is a server push with no reply.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCError is the error member of a response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

func marshalParams(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return data, nil
}

// NewRequest builds a request with the given ID.
func NewRequest(id int64, method string, params any) (*Request, error) {
	data, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{JSONRPC: JSONRPCVersion, ID: &id, Method: method, Params: data}, nil
}

// NewNotification builds a notification.
func NewNotification(method string, params any) (*Notification, error) {
	data, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Notification{JSONRPC: JSONRPCVersion, Method: method, Params: data}, nil
}

// NewResponse builds a successful response. A nil result is sent as null.
func NewResponse(id int64, result any) (*Response, error) {
	data := json.RawMessage("null")
	if result != nil {
		var err error
		if data, err = json.Marshal(result); err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
	}
	return &Response{JSONRPC: JSONRPCVersion, ID: &id, Result: data}, nil
}

// NewErrorResponse builds an error response. Data that fails to marshal is
// dropped.
func NewErrorResponse(id *int64, code int, message string, data any) *Response {
	resp := &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
	if data != nil {
		if d, err := json.Marshal(data); err == nil {
			resp.Error.Data = d
		}
	}
	return resp
}

// PingResult answers ping.
type PingResult struct {
	Pong      bool   `json:"pong"`
	Version   string `json:"version"`
	Root      string `json:"root"`
	Uptime    string `json:"uptime"`
	StartTime string `json:"start_time"`
}

// ShutdownResult answers shutdown.
type ShutdownResult struct {
	Message string `json:"message"`
}

// StatusGetParams selects tasks for status/get. No tasks selects every
// configured task.
type StatusGetParams struct {
	Tasks []string `json:"tasks,omitempty"`
	All   bool     `json:"all,omitempty"`
}

// TaskStatus is the status of one task.
type TaskStatus struct {
	Task     string   `json:"task"`
	UpToDate bool     `json:"up_to_date"`
	Changes  []string `json:"changes,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// StatusGetResult answers status/get.
type StatusGetResult struct {
	UpToDate bool         `json:"up_to_date"`
	Tasks    []TaskStatus `json:"tasks"`
}

// InvalidateResult answers cache/invalidate.
type InvalidateResult struct {
	Invalidated bool `json:"invalidated"`
}

// WatchStartParams configures watch/start.
type WatchStartParams struct {
	Debounce int `json:"debounce,omitempty"` // milliseconds
}

// WatchStartResult answers watch/start.
type WatchStartResult struct {
	Status string   `json:"status"` // "watching" or "already_watching"
	Root   string   `json:"root"`
	Tasks  []string `json:"tasks"`
}

// WatchStopResult answers watch/stop.
type WatchStopResult struct {
	Status string `json:"status"` // "stopped" or "not_watching"
}

// WatchStatusResult answers watch/status.
type WatchStatusResult struct {
	Watching  bool     `json:"watching"`
	Root      string   `json:"root,omitempty"`
	Tasks     []string `json:"tasks,omitempty"`
	LastEvent string   `json:"last_event,omitempty"`
}

// IDGenerator hands out request IDs.
type IDGenerator struct {
	counter atomic.Int64
}

// Next returns the next ID, starting at 1.
func (g *IDGenerator) Next() int64 {
	return g.counter.Add(1)
}
