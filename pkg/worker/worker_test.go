package worker

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/relayd/pkg/store"
	"github.com/cuemby/relayd/pkg/types"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	docRoot := t.TempDir()
	require.NoError(t, os.WriteFile(docRoot+"/index.html", []byte("hello world"), 0o644))

	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return Config{
		DocRoot:  docRoot,
		Artifact: docRoot + "/does-not-exist.so",
		Store:    s,
	}
}

// newTestWorker starts a worker on slot 0 against cfg and returns its
// control channels, cancelling the worker's context on test cleanup.
func newTestWorker(t *testing.T, cfg Config) (toWorker chan *types.Connection, fromWorker chan *types.Connection) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	toWorker = make(chan *types.Connection, 1)
	fromWorker = make(chan *types.Connection, 1)
	dead := make(chan int, 1)

	w := New(0, 1, toWorker, fromWorker, dead, cfg)
	go w.Run(ctx)
	return toWorker, fromWorker
}

func TestWorker_GetServesFile(t *testing.T) {
	cfg := testConfig(t)
	toWorker, fromWorker := newTestWorker(t, cfg)

	server, client := net.Pipe()
	defer client.Close()
	toWorker <- &types.Connection{Conn: server, Seq: 1}

	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte("GET /index.html HTTP/1.0\r\n\r\n"))
	require.NoError(t, err)

	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	require.NoError(t, err)
	resp := string(buf[:n])
	require.Contains(t, resp, "HTTP/1.0 200 OK")
	require.Contains(t, resp, "hello world")

	select {
	case <-fromWorker:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never returned the connection")
	}
}

func TestWorker_HeadOmitsBody(t *testing.T) {
	cfg := testConfig(t)
	toWorker, fromWorker := newTestWorker(t, cfg)

	server, client := net.Pipe()
	defer client.Close()
	toWorker <- &types.Connection{Conn: server, Seq: 1}

	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte("HEAD /index.html HTTP/1.0\r\n\r\n"))
	require.NoError(t, err)

	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	require.NoError(t, err)
	resp := string(buf[:n])
	require.Contains(t, resp, "HTTP/1.0 200 OK")
	require.NotContains(t, resp, "hello world")

	<-fromWorker
}

func TestWorker_UnknownMethodGets405(t *testing.T) {
	cfg := testConfig(t)
	toWorker, fromWorker := newTestWorker(t, cfg)

	server, client := net.Pipe()
	defer client.Close()
	toWorker <- &types.Connection{Conn: server, Seq: 1}

	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte("FOO / HTTP/1.0\r\n\r\n"))
	require.NoError(t, err)

	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.0 405 Method Not Allowed\r\nAllow: GET, HEAD\r\n\r\n", string(buf[:n]))

	<-fromWorker
}

func TestWorker_MalformedRequestGets400(t *testing.T) {
	cfg := testConfig(t)
	toWorker, fromWorker := newTestWorker(t, cfg)

	server, client := net.Pipe()
	defer client.Close()
	toWorker <- &types.Connection{Conn: server, Seq: 1}

	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte("GET\r\n\r\n"))
	require.NoError(t, err)

	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), "HTTP/1.0 400 Bad Request")

	<-fromWorker
}

func TestWorker_PostPersistsBodyAndReturnsConn(t *testing.T) {
	cfg := testConfig(t)
	toWorker, fromWorker := newTestWorker(t, cfg)

	server, client := net.Pipe()
	defer client.Close()
	toWorker <- &types.Connection{Conn: server, Seq: 1}

	client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte("POST /submit HTTP/1.0\r\nContent-Length: 5\r\n\r\nhello"))
	require.NoError(t, err)

	select {
	case <-fromWorker:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never returned the connection")
	}

	got, err := cfg.Store.Get("0")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	counter, err := cfg.Store.Get("__counter__")
	require.NoError(t, err)
	require.Equal(t, "1", string(counter))
}

func TestWorker_ReadErrorReturnsConnWithoutCrashing(t *testing.T) {
	cfg := testConfig(t)
	toWorker, fromWorker := newTestWorker(t, cfg)

	server, client := net.Pipe()
	toWorker <- &types.Connection{Conn: server, Seq: 1}
	client.Close() // causes the worker's Read to fail immediately

	select {
	case <-fromWorker:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never returned the connection after a read error")
	}
}
