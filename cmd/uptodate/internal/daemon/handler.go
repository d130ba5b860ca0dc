package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/uptodate/cmd/uptodate/internal/watch"
	"github.com/albertocavalcante/uptodate/internal/log"
	"github.com/albertocavalcante/uptodate/pkg/change"
	"github.com/albertocavalcante/uptodate/pkg/uptodate"
)

// Resolver maps task names to tasks. No names selects every task.
type Resolver func(names []string) ([]uptodate.Task, error)

// HandlerConfig wires the handler to a project.
type HandlerConfig struct {
	Root      string
	Checker   watch.Checker
	Snapshots watch.Snapshots
	Resolve   Resolver
}

// Handler answers RPC calls against one project. While watching, cached
// snapshots are dropped by the watcher as files change, so status/get can
// reuse them; otherwise every status/get starts from a cold cache.
type Handler struct {
	server *Server
	config HandlerConfig

	watchMu     sync.RWMutex
	watching    bool
	watchCancel context.CancelFunc
	watchDone   chan struct{}
	watchTasks  []string
	lastEvent   time.Time
}

// NewHandler creates a handler for the given project.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Checker == nil || cfg.Snapshots == nil || cfg.Resolve == nil {
		return nil, errors.New("daemon: checker, snapshots and resolver are required")
	}
	return &Handler{config: cfg}, nil
}

// HandleRequest dispatches one request. Requests without an ID get no reply.
func (h *Handler) HandleRequest(ctx context.Context, client *ClientConn, req *Request) *Response {
	log.Component("daemon").Debug("handling request", "method", req.Method, "id", req.ID)

	if req.ID == nil {
		return nil
	}

	var (
		result any
		rpcErr *Response
	)
	switch req.Method {
	case MethodPing:
		result = h.ping()
	case MethodShutdown:
		result = h.shutdown()
	case MethodStatusGet:
		result, rpcErr = h.statusGet(ctx, req)
	case MethodInvalidate:
		h.config.Snapshots.Invalidate()
		result = InvalidateResult{Invalidated: true}
	case MethodWatchStart:
		result, rpcErr = h.watchStart(ctx, client, req)
	case MethodWatchStop:
		result = h.watchStop()
	case MethodWatchStatus:
		result = h.WatchStatus()
	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}
	if rpcErr != nil {
		return rpcErr
	}

	resp, err := NewResponse(*req.ID, result)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to create response", err.Error())
	}
	return resp
}

func (h *Handler) ping() PingResult {
	result := PingResult{Pong: true, Root: h.config.Root}
	if h.server != nil {
		result.Version = h.server.version
		result.Uptime = h.server.Uptime().Round(time.Second).String()
		result.StartTime = h.server.startTime.Format(time.RFC3339)
	}
	return result
}

// shutdown schedules the server to stop once the reply has gone out.
func (h *Handler) shutdown() ShutdownResult {
	if h.server != nil {
		time.AfterFunc(100*time.Millisecond, h.server.RequestShutdown)
	}
	return ShutdownResult{Message: "daemon shutting down"}
}

func (h *Handler) statusGet(ctx context.Context, req *Request) (any, *Response) {
	var params StatusGetParams
	if err := decodeParams(req, &params); err != nil {
		return nil, NewErrorResponse(req.ID, ErrCodeInvalidParams, "Invalid params", err.Error())
	}

	tasks, err := h.config.Resolve(params.Tasks)
	if err != nil {
		return nil, NewErrorResponse(req.ID, ErrCodeTaskError, err.Error(), nil)
	}

	if !h.isWatching() {
		h.config.Snapshots.Invalidate()
	}

	statuses := CheckTasks(ctx, h.config.Checker, tasks, params.All)
	result := StatusGetResult{UpToDate: true, Tasks: statuses}
	for _, s := range statuses {
		if !s.UpToDate {
			result.UpToDate = false
		}
	}
	return result, nil
}

func (h *Handler) watchStart(ctx context.Context, client *ClientConn, req *Request) (any, *Response) {
	var params WatchStartParams
	if err := decodeParams(req, &params); err != nil {
		return nil, NewErrorResponse(req.ID, ErrCodeInvalidParams, "Invalid params", err.Error())
	}

	if client != nil {
		client.Subscribe()
	}

	result, err := h.Watch(ctx, params.Debounce)
	if err != nil {
		return nil, NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to start watcher", err.Error())
	}
	return result, nil
}

// Watch starts a report-only watcher over every task, streaming its events
// to subscribed clients. Debounce is in milliseconds; zero uses the
// watcher default. Watching twice is not an error.
func (h *Handler) Watch(ctx context.Context, debounce int) (WatchStartResult, error) {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()

	if h.watching {
		return WatchStartResult{Status: "already_watching", Root: h.config.Root, Tasks: h.watchTasks}, nil
	}

	tasks, err := h.config.Resolve(nil)
	if err != nil {
		return WatchStartResult{}, err
	}

	w, err := watch.New(watch.Config{
		Root:      h.config.Root,
		Tasks:     tasks,
		Checker:   h.config.Checker,
		Snapshots: h.config.Snapshots,
		Debounce:  debounce,
		NoColor:   true,
		JSON:      true,
		Writer:    &eventWriter{handler: h},
	})
	if err != nil {
		return WatchStartResult{}, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	h.watching = true
	h.watchCancel = cancel
	h.watchDone = done
	h.watchTasks = make([]string, len(tasks))
	for i, t := range tasks {
		h.watchTasks[i] = t.Name
	}

	go h.runWatcher(watchCtx, w, done)

	return WatchStartResult{Status: "watching", Root: h.config.Root, Tasks: h.watchTasks}, nil
}

// runWatcher runs w until its context ends, then clears the watch state if
// it still belongs to w.
func (h *Handler) runWatcher(ctx context.Context, w *watch.Watcher, done chan struct{}) {
	logger := log.Component("daemon")
	defer close(done)
	defer func() { _ = w.Close() }()

	if err := w.Run(ctx); err != nil {
		logger.Warn("watcher stopped with error", "error", err)
		h.BroadcastEvent(map[string]any{"event": "error", "error": err.Error()})
	}

	h.watchMu.Lock()
	if h.watchDone == done {
		h.watching = false
		h.watchCancel = nil
		h.watchDone = nil
		h.watchTasks = nil
	}
	h.watchMu.Unlock()

	logger.Info("watcher stopped")
}

func (h *Handler) watchStop() WatchStopResult {
	if !h.stopWatcher() {
		return WatchStopResult{Status: "not_watching"}
	}
	return WatchStopResult{Status: "stopped"}
}

// stopWatcher cancels the running watcher and waits for it to exit. It
// reports whether one was running.
func (h *Handler) stopWatcher() bool {
	h.watchMu.Lock()
	if !h.watching {
		h.watchMu.Unlock()
		return false
	}
	cancel, done := h.watchCancel, h.watchDone
	h.watching = false
	h.watchCancel = nil
	h.watchDone = nil
	h.watchTasks = nil
	h.watchMu.Unlock()

	cancel()
	<-done
	return true
}

func (h *Handler) isWatching() bool {
	h.watchMu.RLock()
	defer h.watchMu.RUnlock()
	return h.watching
}

// WatchStatus reports the watcher state.
func (h *Handler) WatchStatus() WatchStatusResult {
	h.watchMu.RLock()
	defer h.watchMu.RUnlock()

	result := WatchStatusResult{Watching: h.watching}
	if h.watching {
		result.Root = h.config.Root
		result.Tasks = h.watchTasks
	}
	if !h.lastEvent.IsZero() {
		result.LastEvent = h.lastEvent.Format(time.RFC3339)
	}
	return result
}

// Stop stops the watcher, if any.
func (h *Handler) Stop() {
	h.stopWatcher()
}

// BroadcastEvent pushes a watch event to subscribed clients.
func (h *Handler) BroadcastEvent(event any) {
	h.watchMu.Lock()
	h.lastEvent = time.Now()
	h.watchMu.Unlock()

	if h.server == nil {
		return
	}
	notif, err := NewNotification(MethodWatchEvent, event)
	if err != nil {
		return
	}
	h.server.Broadcast(notif)
}

// eventWriter turns the watcher's JSON event lines into notifications.
type eventWriter struct {
	handler *Handler
}

var _ io.Writer = (*eventWriter)(nil)

func (e *eventWriter) Write(p []byte) (int, error) {
	for line := range bytes.Lines(p) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		e.handler.BroadcastEvent(json.RawMessage(bytes.Clone(line)))
	}
	return len(p), nil
}

func decodeParams(req *Request, v any) error {
	if len(req.Params) == 0 {
		return nil
	}
	return json.Unmarshal(req.Params, v)
}

// CheckTasks checks tasks concurrently. Results keep the order of tasks.
// With all set every change is listed instead of the capped summary.
func CheckTasks(ctx context.Context, checker watch.Checker, tasks []uptodate.Task, all bool) []TaskStatus {
	statuses := make([]TaskStatus, len(tasks))
	g, ctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		g.Go(func() error {
			statuses[i] = checkTask(ctx, checker, task, all)
			return nil
		})
	}
	_ = g.Wait()
	return statuses
}

func checkTask(ctx context.Context, checker watch.Checker, task uptodate.Task, all bool) TaskStatus {
	status := TaskStatus{Task: task.Name}

	state, err := checker.Begin(ctx, task)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	var changes iter.Seq[change.Change] = state.Changes()
	if all {
		changes = state.AllChanges()
	}
	for ch := range changes {
		status.Changes = append(status.Changes, ch.Message())
	}
	status.UpToDate = len(status.Changes) == 0
	return status
}
