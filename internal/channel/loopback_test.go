package channel_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pagebridge/internal/channel"
)

// recordingHandler remembers every request and answers round-trips with
// the number of requests seen so far.
type recordingHandler struct {
	mu       sync.Mutex
	requests []channel.Request
	fail     error
	block    chan struct{}
}

func (h *recordingHandler) Serve(ctx context.Context, req channel.Request) (any, error) {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
	if h.fail != nil {
		return nil, h.fail
	}
	return len(h.requests), nil
}

func (h *recordingHandler) topics() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.requests))
	for i, r := range h.requests {
		out[i] = r.Topic
	}
	return out
}

func newTestLoopback(t *testing.T, h channel.Handler) *channel.Loopback {
	t.Helper()
	lb := channel.NewLoopback(zaptest.NewLogger(t), 8)
	lb.Bind(h)
	t.Cleanup(func() { _ = lb.Close() })
	return lb
}

func TestLoopback_PreservesIssueOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := &recordingHandler{}
	lb := newTestLoopback(t, h)

	require.NoError(t, lb.SendOneWay("a"))
	require.NoError(t, lb.SendOneWay("b"))
	reply, err := lb.SendAndWait(context.Background(), "c")
	require.NoError(t, err)

	n, err := reply.Int()
	require.NoError(t, err)
	assert.Equal(t, 3, n, "the round-trip is served after both notifications")
	assert.Equal(t, []string{"a", "b", "c"}, h.topics())

	require.NoError(t, lb.Close())
}

func TestLoopback_OneWayDoesNotWait(t *testing.T) {
	h := &recordingHandler{block: make(chan struct{})}
	lb := newTestLoopback(t, h)

	done := make(chan error, 1)
	go func() { done <- lb.SendOneWay("goBack") }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("SendOneWay blocked on a busy controller")
	}
	close(h.block)
	assert.Eventually(t, func() bool { return len(h.topics()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestLoopback_RemoteFailure(t *testing.T) {
	h := &recordingHandler{fail: errors.New("no such window")}
	lb := newTestLoopback(t, h)

	_, err := lb.SendAndWait(context.Background(), "opener")
	var remote *channel.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "opener", remote.Topic)
	assert.Contains(t, remote.Message, "no such window")
}

func TestLoopback_RoundTripHonoursContext(t *testing.T) {
	h := &recordingHandler{block: make(chan struct{})}
	lb := newTestLoopback(t, h)
	defer close(h.block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := lb.SendAndWait(ctx, "length")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoopback_CloseFailsPendingRoundTrips(t *testing.T) {
	h := &recordingHandler{block: make(chan struct{})}
	lb := channel.NewLoopback(zaptest.NewLogger(t), 8)
	lb.Bind(h)

	errCh := make(chan error, 1)
	go func() {
		_, err := lb.SendAndWait(context.Background(), "length")
		errCh <- err
	}()

	// Let the worker pick the request up and block in the handler.
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		_ = lb.Close()
		close(closed)
	}()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, channel.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("pending round-trip not released by Close")
	}

	close(h.block)
	<-closed

	assert.ErrorIs(t, lb.SendOneWay("x"), channel.ErrClosed)
	_, err := lb.SendAndWait(context.Background(), "x")
	assert.ErrorIs(t, err, channel.ErrClosed)
	assert.ErrorIs(t, lb.Push("x"), channel.ErrClosed)
}

func TestLoopback_OneWayQueueFull(t *testing.T) {
	h := &recordingHandler{block: make(chan struct{})}
	lb := channel.NewLoopback(zaptest.NewLogger(t), 1)
	lb.Bind(h)
	defer func() {
		close(h.block)
		_ = lb.Close()
	}()

	// One request is held by the worker, one fills the queue.
	require.NoError(t, lb.SendOneWay("a"))
	require.Eventually(t, func() bool { return lb.SendOneWay("b") == nil }, time.Second, time.Millisecond)
	assert.ErrorIs(t, lb.SendOneWay("c"), channel.ErrQueueFull)
}

func TestLoopback_PushDelivery(t *testing.T) {
	lb := newTestLoopback(t, &recordingHandler{})

	var got []string
	unsubscribe := lb.Subscribe("visibility", func(args channel.Args) {
		s, err := args.String(0)
		require.NoError(t, err)
		got = append(got, s)
	})

	require.NoError(t, lb.Push("visibility", "hidden"))
	require.NoError(t, lb.Push("visibility", "visible"))
	require.NoError(t, lb.Push("other", "ignored"))
	unsubscribe()
	unsubscribe()
	require.NoError(t, lb.Push("visibility", "hidden"))

	assert.Equal(t, []string{"hidden", "visible"}, got)
}
