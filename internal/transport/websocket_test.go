package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// startEngineStub runs a WebSocket server that hands each connection to fn.
func startEngineStub(t *testing.T, fn func(conn *websocket.Conn)) Endpoint {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sc2api" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fn(conn)
	}))
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return Endpoint{Host: host, Port: port}
}

func echoHandler(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(mt, data); err != nil {
			return
		}
	}
}

func TestEndpointURL(t *testing.T) {
	ep := Endpoint{Host: "127.0.0.1", Port: 8167}

	assert.Equal(t, "127.0.0.1:8167", ep.Addr())
	assert.Equal(t, "ws://127.0.0.1:8167/sc2api", ep.URL())
}

func TestTransportSendReceive(t *testing.T) {
	ep := startEngineStub(t, echoHandler)

	tr, err := Dial(context.Background(), ep, 5*time.Second)
	require.NoError(t, err)
	defer tr.Close()

	frame := []byte{0x04, 0x00, 0x00, 0x00, 0xAA, 0xBB, 0xCC, 0xDD}
	require.NoError(t, tr.Send(frame))

	got, err := tr.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, frame, got)
}

func TestTransportConcurrentSends(t *testing.T) {
	ep := startEngineStub(t, echoHandler)

	tr, err := Dial(context.Background(), ep, 5*time.Second)
	require.NoError(t, err)
	defer tr.Close()

	const senders = 10

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, tr.Send([]byte(fmt.Sprintf("frame-%d", i))))
		}()
	}
	wg.Wait()

	seen := make(map[string]bool, senders)
	for n := 0; n < senders; n++ {
		frame, err := tr.Receive(time.Second)
		require.NoError(t, err)
		seen[string(frame)] = true
	}
	assert.Len(t, seen, senders)
}

func TestTransportReceiveTimeout(t *testing.T) {
	t.Run("timeout leaves the connection usable", func(t *testing.T) {
		// The stub swallows the first message and answers the second, like
		// an engine whose reply to an abandoned exchange never arrives.
		ep := startEngineStub(t, func(conn *websocket.Conn) {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			conn.WriteMessage(websocket.BinaryMessage, []byte("second answer"))
		})

		tr, err := Dial(context.Background(), ep, 5*time.Second)
		require.NoError(t, err)
		defer tr.Close()

		require.NoError(t, tr.Send([]byte("first")))
		_, err = tr.Receive(50 * time.Millisecond)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTimeout)

		require.NoError(t, tr.Send([]byte("second")))
		got, err := tr.Receive(time.Second)
		require.NoError(t, err)
		assert.Equal(t, []byte("second answer"), got)
	})

	t.Run("late frame is buffered for the next receive", func(t *testing.T) {
		ep := startEngineStub(t, func(conn *websocket.Conn) {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			time.Sleep(150 * time.Millisecond)
			conn.WriteMessage(websocket.BinaryMessage, []byte("late"))
			conn.ReadMessage() // hold the connection open
		})

		tr, err := Dial(context.Background(), ep, 5*time.Second)
		require.NoError(t, err)
		defer tr.Close()

		require.NoError(t, tr.Send([]byte("request")))
		_, err = tr.Receive(10 * time.Millisecond)
		assert.ErrorIs(t, err, ErrTimeout)

		got, err := tr.Receive(time.Second)
		require.NoError(t, err)
		assert.Equal(t, []byte("late"), got)
	})
}

func TestTransportPeerClose(t *testing.T) {
	ep := startEngineStub(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
		// return closes the connection without a reply
	})

	tr, err := Dial(context.Background(), ep, 5*time.Second)
	require.NoError(t, err)
	defer tr.Close()

	require.NoError(t, tr.Send([]byte("doomed")))

	_, err = tr.Receive(time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClosed)

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("Done was not closed after the peer dropped the connection")
	}

	err = tr.Send([]byte("after close"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTransportClose(t *testing.T) {
	ep := startEngineStub(t, echoHandler)

	tr, err := Dial(context.Background(), ep, 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close()) // idempotent

	err = tr.Send([]byte("too late"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = tr.Receive(time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDial(t *testing.T) {
	t.Run("reports a connection error when nothing listens", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		ep := Endpoint{Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port}
		require.NoError(t, ln.Close())

		_, err = Dial(context.Background(), ep, 50*time.Millisecond)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConnection)
	})

	t.Run("cancelled context aborts the retry loop", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		ep := Endpoint{Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port}
		require.NoError(t, ln.Close())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		_, err = Dial(ctx, ep, time.Minute)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConnection)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}
