package wschannel_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pagebridge/internal/channel"
	"github.com/xkilldash9x/pagebridge/internal/channel/wschannel"
)

// fakeController answers invoke frames through handler and lets the test
// push frames to the connected client.
type fakeController struct {
	t        *testing.T
	handler  channel.HandlerFunc
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conn  *websocket.Conn
	sends []string
	ready chan struct{}
}

func newFakeController(t *testing.T, handler channel.HandlerFunc) (*fakeController, *httptest.Server) {
	t.Helper()
	fc := &fakeController{t: t, handler: handler, ready: make(chan struct{})}
	srv := httptest.NewServer(http.HandlerFunc(fc.serve))
	t.Cleanup(srv.Close)
	return fc, srv
}

func (fc *fakeController) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := fc.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fc.mu.Lock()
	fc.conn = conn
	fc.mu.Unlock()
	close(fc.ready)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := channel.DecodeEnvelope(data)
		if err != nil {
			continue
		}
		switch env.Kind {
		case channel.KindSend:
			fc.mu.Lock()
			fc.sends = append(fc.sends, env.Topic)
			fc.mu.Unlock()
		case channel.KindInvoke:
			result, herr := fc.handler(context.Background(), env.Request())
			if errors.Is(herr, errDropConnection) {
				_ = conn.Close()
				return
			}
			hangUp := errors.Is(herr, errReplyThenDrop)
			if hangUp {
				herr = nil
			}
			reply, err := channel.NewReply(env.ID, result, herr)
			if err != nil {
				return
			}
			fc.writeFrame(reply)
			if hangUp {
				_ = conn.Close()
				return
			}
		}
	}
}

func (fc *fakeController) writeFrame(env *channel.Envelope) {
	data, err := channel.EncodeEnvelope(env)
	require.NoError(fc.t, err)
	fc.mu.Lock()
	defer fc.mu.Unlock()
	_ = fc.conn.WriteMessage(websocket.TextMessage, data)
}

func (fc *fakeController) push(topic string, args ...any) {
	<-fc.ready
	env, err := channel.NewPush(topic, args...)
	require.NoError(fc.t, err)
	fc.writeFrame(env)
}

func (fc *fakeController) sent() []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]string(nil), fc.sends...)
}

var (
	errDropConnection = errors.New("drop")
	// errReplyThenDrop answers the request and closes the connection right after.
	errReplyThenDrop = errors.New("reply then drop")
)

func dial(t *testing.T, srv *httptest.Server) *wschannel.Client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := wschannel.Dial(context.Background(), url, zaptest.NewLogger(t), wschannel.Options{
		DialTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_RoundTrip(t *testing.T) {
	calls := 0
	_, srv := newFakeController(t, func(ctx context.Context, req channel.Request) (any, error) {
		calls++
		op, err := req.Args.String(0)
		if err != nil || op != "length" {
			return nil, errors.New("unexpected request")
		}
		return calls * 10, nil
	})
	c := dial(t, srv)

	for _, want := range []int{10, 20} {
		reply, err := c.SendAndWait(context.Background(), "SYNC", "length")
		require.NoError(t, err)
		n, err := reply.Int()
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}

func TestClient_RemoteError(t *testing.T) {
	_, srv := newFakeController(t, func(ctx context.Context, req channel.Request) (any, error) {
		return nil, errors.New("window 9 not found")
	})
	c := dial(t, srv)

	_, err := c.SendAndWait(context.Background(), "OPENER", 9)
	var remote *channel.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "OPENER", remote.Topic)
	assert.Equal(t, "window 9 not found", remote.Message)
}

func TestClient_OneWay(t *testing.T) {
	fc, srv := newFakeController(t, nil)
	c := dial(t, srv)

	require.NoError(t, c.SendOneWay("NAV", "goBack"))
	require.NoError(t, c.SendOneWay("NAV", "goForward"))
	assert.Eventually(t, func() bool { return len(fc.sent()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestClient_PushesArriveInOrder(t *testing.T) {
	fc, srv := newFakeController(t, nil)
	c := dial(t, srv)

	var mu sync.Mutex
	var got []string
	c.Subscribe("VIS", func(args channel.Args) {
		s, err := args.String(0)
		if err != nil {
			return
		}
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	states := []string{"hidden", "hidden", "visible", "hidden"}
	for _, s := range states {
		fc.push("VIS", s)
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(states)
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, states, got)
	mu.Unlock()
}

func TestClient_DisconnectReleasesWaiters(t *testing.T) {
	_, srv := newFakeController(t, func(ctx context.Context, req channel.Request) (any, error) {
		return nil, errDropConnection
	})
	c := dial(t, srv)

	_, err := c.SendAndWait(context.Background(), "SYNC", "length")
	assert.ErrorIs(t, err, channel.ErrClosed)

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after the controller dropped the connection")
	}
	assert.ErrorIs(t, c.SendOneWay("NAV", "goBack"), channel.ErrClosed)
}

func TestClient_ReplyBeforeDisconnectIsKept(t *testing.T) {
	for i := 0; i < 20; i++ {
		_, srv := newFakeController(t, func(ctx context.Context, req channel.Request) (any, error) {
			return 4, errReplyThenDrop
		})
		c := dial(t, srv)

		reply, err := c.SendAndWait(context.Background(), "LENGTH")
		require.NoError(t, err, "iteration %d", i)
		n, err := reply.Int()
		require.NoError(t, err)
		assert.Equal(t, 4, n)

		select {
		case <-c.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("connection drop not observed")
		}
	}
}

func TestClient_RoundTripTimeout(t *testing.T) {
	release := make(chan struct{})
	_, srv := newFakeController(t, func(ctx context.Context, req channel.Request) (any, error) {
		<-release
		return 1, nil
	})
	c := dial(t, srv)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.SendAndWait(ctx, "SYNC", "length")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDial_Unreachable(t *testing.T) {
	_, err := wschannel.Dial(context.Background(), "ws://127.0.0.1:1/none", zaptest.NewLogger(t), wschannel.Options{DialTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}
