package daemon

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	req, err := NewRequest(42, MethodStatusGet, StatusGetParams{Tasks: []string{"compile"}})
	require.NoError(t, err)
	assert.Equal(t, JSONRPCVersion, req.JSONRPC)
	require.NotNil(t, req.ID)
	assert.Equal(t, int64(42), *req.ID)
	assert.Equal(t, MethodStatusGet, req.Method)
	assert.JSONEq(t, `{"tasks":["compile"]}`, string(req.Params))

	req, err = NewRequest(1, MethodPing, nil)
	require.NoError(t, err)
	assert.Nil(t, req.Params)
}

func TestNewRequest_UnmarshalableParams(t *testing.T) {
	_, err := NewRequest(1, MethodPing, make(chan int))
	assert.Error(t, err)
}

func TestNewResponse(t *testing.T) {
	resp, err := NewResponse(3, InvalidateResult{Invalidated: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"invalidated":true}`, string(resp.Result))
	assert.Nil(t, resp.Error)

	resp, err = NewResponse(4, nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(resp.Result))
}

func TestNewErrorResponse(t *testing.T) {
	id := int64(9)
	resp := NewErrorResponse(&id, ErrCodeInvalidParams, "Invalid params", "tasks must be a list")

	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
	assert.Equal(t, `"tasks must be a list"`, string(resp.Error.Data))
	assert.EqualError(t, resp.Error, "RPC error -32602: Invalid params")

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "result", "an error response carries no result")
}

func TestNewNotification(t *testing.T) {
	notif, err := NewNotification(MethodWatchEvent, json.RawMessage(`{"event":"ready"}`))
	require.NoError(t, err)
	assert.Equal(t, MethodWatchEvent, notif.Method)
	assert.JSONEq(t, `{"event":"ready"}`, string(notif.Params))
}

func TestTaskStatus_OmitsEmpty(t *testing.T) {
	data, err := json.Marshal(TaskStatus{Task: "compile", UpToDate: true})
	require.NoError(t, err)
	assert.Equal(t, `{"task":"compile","up_to_date":true}`, string(data))
}

func TestIDGenerator(t *testing.T) {
	var gen IDGenerator
	assert.Equal(t, int64(1), gen.Next())

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int64]bool{}
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.Next()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50, "IDs are unique")
}
