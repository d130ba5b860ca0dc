package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortTempDir creates a short temp directory for Unix sockets, whose
// paths are limited to about 104 bytes on macOS.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "ud")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func socketAccepts(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

type running struct {
	paths  *Paths
	server *Server
	errCh  chan error
	cancel context.CancelFunc
}

// startServer serves the fixture's project until the test ends.
func startServer(t *testing.T, f *fixture) *running {
	t.Helper()
	paths := StatePaths(shortTempDir(t))
	server := NewServer(ServerConfig{
		Paths:   paths,
		Version: "test-1.0",
		Handler: f.handler(t),
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})

	require.Eventually(t, func() bool { return socketAccepts(paths.Socket) }, 5*time.Second, 20*time.Millisecond,
		"server did not start in time")
	return &running{paths: paths, server: server, errCh: errCh, cancel: cancel}
}

func connect(t *testing.T, socket string) *Client {
	t.Helper()
	client, err := Connect(socket)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// rawExchange writes line to the socket and decodes one response.
func rawExchange(t *testing.T, socket, line string) (*Response, *json.Decoder) {
	t.Helper()
	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	dec := json.NewDecoder(bufio.NewReader(conn))
	var resp Response
	require.NoError(t, dec.Decode(&resp))
	return &resp, dec
}

func TestServer_Ping(t *testing.T) {
	f := newFixture(t)
	srv := startServer(t, f)
	client := connect(t, srv.paths.Socket)

	result, err := client.Ping()
	require.NoError(t, err)
	assert.True(t, result.Pong)
	assert.Equal(t, "test-1.0", result.Version)
	assert.Equal(t, f.root, result.Root)
	assert.NotEmpty(t, result.StartTime)
	assert.NotEmpty(t, result.Uptime)
}

func TestServer_WritesPIDFile(t *testing.T) {
	srv := startServer(t, newFixture(t))

	status := GetStatus(srv.paths)
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)
}

func TestServer_StatusGet(t *testing.T) {
	f := newFixture(t)
	srv := startServer(t, f)
	client := connect(t, srv.paths.Socket)

	result, err := client.StatusGet(nil)
	require.NoError(t, err)
	assert.False(t, result.UpToDate, "out of date before the first run")

	f.run(t)
	result, err = client.StatusGet(&StatusGetParams{Tasks: []string{"compile"}})
	require.NoError(t, err)
	assert.True(t, result.UpToDate, "%+v", result.Tasks)
}

func TestServer_RPCErrorReachesClient(t *testing.T) {
	srv := startServer(t, newFixture(t))
	client := connect(t, srv.paths.Socket)

	_, err := client.StatusGet(&StatusGetParams{Tasks: []string{"lint"}})
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeTaskError, rpcErr.Code)

	// The connection stays usable.
	_, err = client.Ping()
	assert.NoError(t, err)
}

func TestServer_WatchEvents(t *testing.T) {
	f := newFixture(t)
	srv := startServer(t, f)
	client := connect(t, srv.paths.Socket)

	_, err := client.WatchStart(&WatchStartParams{Debounce: 50})
	require.NoError(t, err)

	seen := map[string]bool{}
	deadline := time.Now().Add(5 * time.Second)
	for !seen["stale"] && time.Now().Before(deadline) {
		notif, err := client.NextEvent(time.Until(deadline))
		require.NoError(t, err)
		require.Equal(t, MethodWatchEvent, notif.Method)

		var event struct {
			Event string `json:"event"`
		}
		require.NoError(t, json.Unmarshal(notif.Params, &event))
		seen[event.Event] = true
	}
	assert.True(t, seen["ready"], "saw %v", seen)
	assert.True(t, seen["stale"], "saw %v", seen)

	status, err := client.WatchStatus()
	require.NoError(t, err)
	assert.True(t, status.Watching)
	assert.NotEmpty(t, status.LastEvent)

	stopped, err := client.WatchStop()
	require.NoError(t, err)
	assert.Equal(t, "stopped", stopped.Status)
}

func TestServer_Invalidate(t *testing.T) {
	srv := startServer(t, newFixture(t))
	client := connect(t, srv.paths.Socket)

	result, err := client.Invalidate()
	require.NoError(t, err)
	assert.True(t, result.Invalidated)
}

func TestServer_ShutdownViaRPC(t *testing.T) {
	srv := startServer(t, newFixture(t))
	client := connect(t, srv.paths.Socket)

	_, err := client.Shutdown()
	require.NoError(t, err)

	select {
	case err := <-srv.errCh:
		assert.NoError(t, err)
		srv.errCh <- err // for cleanup
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}

	assert.NoFileExists(t, srv.paths.Socket)
	assert.NoFileExists(t, srv.paths.PID)
}

func TestServer_ShutdownIsIdempotent(t *testing.T) {
	srv := startServer(t, newFixture(t))

	srv.server.RequestShutdown()
	srv.server.RequestShutdown()
	assert.NoError(t, srv.server.Shutdown())
	assert.NoError(t, srv.server.Shutdown())
}

func TestServer_RejectsWrongVersion(t *testing.T) {
	srv := startServer(t, newFixture(t))

	resp, _ := rawExchange(t, srv.paths.Socket, `{"jsonrpc":"1.0","id":1,"method":"ping"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidRequest, resp.Error.Code)
}

func TestServer_ParseErrorClosesConnection(t *testing.T) {
	srv := startServer(t, newFixture(t))

	resp, dec := rawExchange(t, srv.paths.Socket, "{not json}")
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParseError, resp.Error.Code)

	var next Response
	assert.Error(t, dec.Decode(&next), "the connection should be closed")
}

func TestServer_StartWithoutHandler(t *testing.T) {
	server := NewServer(ServerConfig{Paths: StatePaths(shortTempDir(t))})
	assert.Error(t, server.Start(context.Background()))
}

func TestConnect_NotRunning(t *testing.T) {
	socket := filepath.Join(shortTempDir(t), SocketName)

	_, err := Connect(socket)
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
}

func TestClient_NotConnected(t *testing.T) {
	var client Client

	_, err := client.Ping()
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = client.NextEvent(time.Millisecond)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, client.Close())
}
