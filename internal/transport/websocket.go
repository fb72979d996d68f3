// Package transport moves protocol frames over a WebSocket connection to a
// StarCraft II engine.
//
// A transport owns exactly one connection. A single pump goroutine performs
// every read and hands frames to Receive through a one-slot channel, so the
// engine's strict request/response pairing is preserved without internal
// queueing. Writes are serialized by a mutex.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// dialRetryInterval paces connection attempts while an engine process
	// is still booting its listener.
	dialRetryInterval = time.Second

	handshakeTimeout  = 10 * time.Second
	writeTimeout      = 10 * time.Second
	closeGraceTimeout = time.Second
)

var (
	// ErrConnection is returned when the connection cannot be established
	// or a write fails mid-flight.
	ErrConnection = errors.New("connection failed")

	// ErrClosed is returned for any operation on a transport whose
	// connection is gone, whether closed locally or dropped by the engine.
	ErrClosed = errors.New("transport closed")

	// ErrTimeout is returned when Receive gives up waiting. The connection
	// stays open; a later frame is still delivered to the next Receive.
	ErrTimeout = errors.New("receive timed out")
)

// Transport is a frame pipe to a single engine.
type Transport struct {
	endpoint Endpoint
	conn     *websocket.Conn
	logger   zerolog.Logger

	writeMu sync.Mutex

	frames chan []byte
	stop   chan struct{}
	done   chan struct{}
	reason error // set by the pump before done is closed

	closed    atomic.Bool
	closeOnce sync.Once
}

// Dial connects to an engine endpoint, retrying at a fixed interval until
// the timeout elapses. Engines take several seconds to open their listener
// after launch, so the first attempts are expected to fail.
func Dial(ctx context.Context, endpoint Endpoint, timeout time.Duration) (*Transport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	deadline := time.Now().Add(timeout)
	logger := log.With().Str("component", "transport").Str("endpoint", endpoint.Addr()).Logger()

	for attempt := 1; ; attempt++ {
		conn, _, err := dialer.DialContext(ctx, endpoint.URL(), nil)
		if err == nil {
			t := &Transport{
				endpoint: endpoint,
				conn:     conn,
				logger:   logger,
				frames:   make(chan []byte, 1),
				stop:     make(chan struct{}),
				done:     make(chan struct{}),
			}
			go t.pump()
			logger.Info().Int("attempts", attempt).Msg("connected to engine")
			return t, nil
		}

		logger.Debug().Err(err).Int("attempt", attempt).Msg("dial attempt failed")

		if time.Now().Add(dialRetryInterval).After(deadline) {
			return nil, fmt.Errorf("dial %s: gave up after %s: %v: %w",
				endpoint.URL(), timeout, err, ErrConnection)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial %s: %v: %w", endpoint.URL(), ctx.Err(), ErrConnection)
		case <-time.After(dialRetryInterval):
		}
	}
}

// Endpoint returns the endpoint this transport is connected to.
func (t *Transport) Endpoint() Endpoint {
	return t.endpoint
}

// pump is the transport's only reader. It forwards binary messages to
// Receive and records why reading stopped before signalling done.
func (t *Transport) pump() {
	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			t.reason = fmt.Errorf("connection lost: %v: %w", err, ErrClosed)
			close(t.done)
			t.logger.Debug().Err(err).Msg("receive pump stopped")
			return
		}
		if messageType != websocket.BinaryMessage {
			t.logger.Debug().Int("message_type", messageType).Msg("discarding non-binary message")
			continue
		}
		select {
		case t.frames <- data:
		case <-t.stop:
			// Closing; loop once more so ReadMessage reports the close.
		}
	}
}

// Send writes one frame as a binary message.
func (t *Transport) Send(frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.closed.Load() {
		return fmt.Errorf("send on closed transport: %w", ErrClosed)
	}
	select {
	case <-t.done:
		return t.closeReason()
	default:
	}

	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Close()
		return fmt.Errorf("send %d byte frame: %v: %w", len(frame), err, ErrConnection)
	}
	return nil
}

// Receive returns the next frame, waiting up to timeout. A timeout leaves
// the connection open and the in-flight frame, if any, buffered for the
// next call.
func (t *Transport) Receive(timeout time.Duration) ([]byte, error) {
	select {
	case frame := <-t.frames:
		return frame, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame := <-t.frames:
		return frame, nil
	case <-t.done:
		// The pump hands off its last frame before announcing the close.
		select {
		case frame := <-t.frames:
			return frame, nil
		default:
		}
		return nil, t.closeReason()
	case <-timer.C:
		return nil, fmt.Errorf("no frame within %s: %w", timeout, ErrTimeout)
	}
}

// Close shuts the connection down. It is safe to call more than once and
// unblocks any in-flight Receive.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.stop)

		deadline := time.Now().Add(closeGraceTimeout)
		t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		t.conn.Close()

		t.logger.Debug().Msg("transport closed")
	})
	return nil
}

// Done is closed once the connection is gone for any reason.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

func (t *Transport) closeReason() error {
	if t.reason != nil {
		return t.reason
	}
	return ErrClosed
}
