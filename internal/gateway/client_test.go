// File: internal/gateway/client_test.go
package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		URL:              "ws://test.invalid/ws",
		ReconnectDelay:   10 * time.Millisecond,
		HandshakeTimeout: time.Second,
		IdleTimeout:      time.Second,
		MaxMessageSize:   1 << 20,
	}
}

// --- Fakes ---

// fakeConn serves scripted frames, then reports a closed connection.
type fakeConn struct {
	frames  [][]byte
	pos     int
	mu      sync.Mutex
	closeCh chan struct{}
	once    sync.Once
}

func newFakeConn(frames ...string) *fakeConn {
	raw := make([][]byte, len(frames))
	for i, f := range frames {
		raw[i] = []byte(f)
	}
	return &fakeConn{frames: raw, closeCh: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	if c.pos < len(c.frames) {
		frame := c.frames[c.pos]
		c.pos++
		c.mu.Unlock()
		return websocket.TextMessage, frame, nil
	}
	c.mu.Unlock()

	// Out of frames: behave like a dropped connection.
	c.Close()
	<-c.closeCh
	return 0, nil, io.ErrUnexpectedEOF
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (c *fakeConn) SetReadLimit(int64)              {}
func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closeCh) })
	return nil
}

// fakeDialer hands out one scripted connection per dial and signals each
// attempt.
type fakeDialer struct {
	mu       sync.Mutex
	conns    []*fakeConn
	pos      int
	attempts chan struct{}
}

func (d *fakeDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	select {
	case d.attempts <- struct{}{}:
	default:
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pos < len(d.conns) {
		conn := d.conns[d.pos]
		d.pos++
		return conn, nil
	}
	return nil, errors.New("dial refused")
}

// drain empties the coalesced change channel until the store satisfies
// check or the deadline passes.
func waitFor(t *testing.T, client *Client, check func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if check() {
			return
		}
		select {
		case <-client.Changes():
		case <-deadline:
			t.Fatal("condition not reached before deadline")
		}
	}
}

// --- Tests ---

func TestFramesApplyInArrivalOrder(t *testing.T) {
	store := state.NewStore(zap.NewNop())
	conn := newFakeConn(
		`{"type":"full_state","agents":[{"id":"a1","status":"running"}]}`,
		`{"type":"delta_batch","deltas":[
			{"type":"tools_update","tools":[{"tool_name":"scan","agent_id":"a1","status":"running","timestamp":"T1"}]},
			{"type":"chat_update","messages":[{"role":"assistant","content":"found it","timestamp":"T2"}]}
		]}`,
		`{"type":"heartbeat"}`,
	)
	dialer := &fakeDialer{conns: []*fakeConn{conn}, attempts: make(chan struct{}, 16)}
	client := NewClientWithDialer(testGatewayConfig(), store, zap.NewNop(), dialer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = client.Run(ctx)
	}()

	waitFor(t, client, func() bool {
		snap := store.Snapshot()
		return len(snap.Agents) == 1 && len(snap.Tools) == 1 && len(snap.Chat) == 1
	})

	snap := store.Snapshot()
	assert.Equal(t, "a1", snap.Agents[0].ID)
	assert.Equal(t, "scan", snap.Tools[0].ToolName)
	assert.Equal(t, "found it", snap.Chat[0].Content)

	cancel()
	<-done
}

func TestMalformedFrameDoesNotCloseConnection(t *testing.T) {
	store := state.NewStore(zap.NewNop())
	conn := newFakeConn(
		`{this is not json`,
		`{"type":"unknown_kind"}`,
		`{"type":"delta_batch","deltas":[{"type":"chat_update","messages":[{"role":"user","content":"after garbage"}]}]}`,
	)
	dialer := &fakeDialer{conns: []*fakeConn{conn}, attempts: make(chan struct{}, 16)}
	client := NewClientWithDialer(testGatewayConfig(), store, zap.NewNop(), dialer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = client.Run(ctx)
	}()

	waitFor(t, client, func() bool {
		return len(store.Snapshot().Chat) == 1
	})
	assert.Equal(t, "after garbage", store.Snapshot().Chat[0].Content)

	cancel()
	<-done
}

func TestEveryCloseSchedulesExactlyOneReconnect(t *testing.T) {
	store := state.NewStore(zap.NewNop())
	dialer := &fakeDialer{attempts: make(chan struct{}, 64)}
	client := NewClientWithDialer(testGatewayConfig(), store, zap.NewNop(), dialer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = client.Run(ctx)
	}()

	// Every failed dial is a close; each must be followed by exactly one
	// new attempt after the fixed delay.
	const want = 5
	for i := 0; i < want; i++ {
		select {
		case <-dialer.attempts:
		case <-time.After(2 * time.Second):
			t.Fatalf("attempt %d never happened", i+1)
		}
	}

	cancel()
	<-done
	assert.GreaterOrEqual(t, client.Attempts(), int64(want))
}

func TestFullStateResyncAfterReconnect(t *testing.T) {
	store := state.NewStore(zap.NewNop())
	first := newFakeConn(
		`{"type":"delta_batch","deltas":[{"type":"chat_update","messages":[{"role":"user","content":"pre-drop"}]}]}`,
	)
	second := newFakeConn(
		`{"type":"full_state","chat":[{"role":"user","content":"authoritative"}]}`,
	)
	dialer := &fakeDialer{conns: []*fakeConn{first, second}, attempts: make(chan struct{}, 16)}
	client := NewClientWithDialer(testGatewayConfig(), store, zap.NewNop(), dialer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = client.Run(ctx)
	}()

	waitFor(t, client, func() bool {
		snap := store.Snapshot()
		return len(snap.Chat) == 1 && snap.Chat[0].Content == "authoritative"
	})

	cancel()
	<-done
}

func TestDialsRealWebsocketServer(t *testing.T) {
	store := state.NewStore(zap.NewNop())
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		err = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"full_state","agents":[{"id":"a1","status":"running"}]}`))
		require.NoError(t, err)

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := testGatewayConfig()
	cfg.URL = "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	client := NewClient(cfg, store, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = client.Run(ctx)
	}()

	waitFor(t, client, func() bool {
		return len(store.Snapshot().Agents) == 1
	})
	assert.Equal(t, StateOpen, client.Phase())

	cancel()
	<-done
}

func TestPhaseStringValues(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "waiting_retry", StateWaitingRetry.String())
}
