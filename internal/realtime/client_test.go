package realtime_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/pulse/internal/realtime"
)

// ---------------------------------------------------------------------------
// Reconnection
// ---------------------------------------------------------------------------

func TestClient_ReconnectCeiling(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	dialer := failingDialer()
	var errorsSeen atomic.Int32

	opts := baseOptions(dialer, clock)
	opts.Handlers.OnError = func(string) { errorsSeen.Add(1) }
	c := realtime.New(opts)
	t.Cleanup(c.Close)

	c.Connect()

	for attempt := 1; attempt <= realtime.DefaultMaxReconnectAttempts; attempt++ {
		require.Eventually(t, func() bool {
			return len(clock.pending(realtime.DefaultReconnectDelay)) == 1
		}, waitFor, tick, "retry %d was not scheduled", attempt)
		assert.Equal(t, attempt, dialer.calls())
		assert.Equal(t, attempt, c.Status().Attempts)

		require.True(t, clock.fire(clock.pending(realtime.DefaultReconnectDelay)[0]))
	}

	// The sixth failure exhausts the budget.
	require.Eventually(t, func() bool {
		return dialer.calls() == 6 && c.State() == realtime.StateDisconnected
	}, waitFor, tick)

	assert.Empty(t, clock.pending(realtime.DefaultReconnectDelay), "no sixth retry")
	scheduled := clock.scheduled(realtime.DefaultReconnectDelay)
	assert.Len(t, scheduled, 5)
	for _, timer := range scheduled {
		assert.Equal(t, realtime.DefaultReconnectDelay, timer.d)
	}
	assert.Equal(t, 5, c.Status().Attempts)
	assert.Eventually(t, func() bool { return errorsSeen.Load() == 6 }, waitFor, tick)
}

func TestClient_CustomRetryBudget(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	dialer := failingDialer()
	opts := baseOptions(dialer, clock)
	opts.MaxReconnectAttempts = 2
	opts.ReconnectDelay = 250 * time.Millisecond
	c := realtime.New(opts)
	t.Cleanup(c.Close)

	c.Connect()
	for range 2 {
		require.Eventually(t, func() bool { return len(clock.pending(opts.ReconnectDelay)) == 1 }, waitFor, tick)
		clock.fire(clock.pending(opts.ReconnectDelay)[0])
	}

	require.Eventually(t, func() bool { return dialer.calls() == 3 && c.State() == realtime.StateDisconnected }, waitFor, tick)
	assert.Len(t, clock.scheduled(opts.ReconnectDelay), 2)
}

func TestClient_OpenResetsAttempts(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	var dials atomic.Int32
	dialer := &fakeDialer{dial: func(context.Context, string) (realtime.Conn, error) {
		if dials.Add(1) <= 2 {
			return nil, errRefused
		}
		return newFakeConn(), nil
	}}
	c := realtime.New(baseOptions(dialer, clock))
	t.Cleanup(c.Close)

	c.Connect()
	for range 2 {
		require.Eventually(t, func() bool { return len(clock.pending(realtime.DefaultReconnectDelay)) == 1 }, waitFor, tick)
		clock.fire(clock.pending(realtime.DefaultReconnectDelay)[0])
	}

	require.Eventually(t, c.IsOpen, waitFor, tick)
	assert.Equal(t, 0, c.Status().Attempts)
	assert.Len(t, clock.pending(realtime.DefaultHeartbeatInterval), 1, "heartbeat starts on open")
}

func TestClient_TransportCloseSchedulesReconnect(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	dialer := newConnDialer()
	c := realtime.New(baseOptions(dialer, clock))
	t.Cleanup(c.Close)

	c.Connect()
	require.Eventually(t, c.IsOpen, waitFor, tick)
	heartbeat := clock.pending(realtime.DefaultHeartbeatInterval)
	require.Len(t, heartbeat, 1)

	_ = dialer.last().Close()

	require.Eventually(t, func() bool { return len(clock.pending(realtime.DefaultReconnectDelay)) == 1 }, waitFor, tick)
	assert.False(t, c.IsOpen())
	assert.True(t, heartbeat[0].isStopped(), "heartbeat cleared on close")

	clock.fire(clock.pending(realtime.DefaultReconnectDelay)[0])
	require.Eventually(t, c.IsOpen, waitFor, tick)
	assert.Equal(t, 2, dialer.calls())
}

// ---------------------------------------------------------------------------
// Connect preconditions
// ---------------------------------------------------------------------------

func TestClient_ConnectIsIdempotentWhilePending(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	dialer := &fakeDialer{dial: func(ctx context.Context, _ string) (realtime.Conn, error) {
		select {
		case <-release:
			return newFakeConn(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	c := realtime.New(baseOptions(dialer, &fakeClock{}))
	t.Cleanup(c.Close)

	c.Connect()
	c.Connect()
	c.Connect()

	require.Eventually(t, func() bool { return dialer.calls() == 1 }, waitFor, tick)
	assert.Equal(t, realtime.StateConnecting, c.State())

	close(release)
	require.Eventually(t, c.IsOpen, waitFor, tick)

	c.Connect()
	assert.Equal(t, 1, dialer.calls())
}

func TestClient_ConnectPreconditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(o *realtime.Options)
	}{
		{name: "disabled", mutate: func(o *realtime.Options) { o.Disabled = true }},
		{name: "no project", mutate: func(o *realtime.Options) { o.ProjectID = 0 }},
		{name: "no credential provider", mutate: func(o *realtime.Options) { o.Credentials = nil }},
		{name: "empty token", mutate: func(o *realtime.Options) { o.Credentials = staticToken("") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clock := &fakeClock{}
			dialer := newConnDialer()
			opts := baseOptions(dialer, clock)
			tt.mutate(&opts)
			c := realtime.New(opts)
			t.Cleanup(c.Close)

			c.Connect()

			assert.Equal(t, 0, dialer.calls())
			assert.Equal(t, realtime.StateDisconnected, c.State())
			assert.Empty(t, clock.scheduled(realtime.DefaultReconnectDelay), "no retry for a missing precondition")
		})
	}
}

func TestClient_BadEndpointReportsError(t *testing.T) {
	t.Parallel()

	messages := make(chan string, 1)
	clock := &fakeClock{}
	dialer := newConnDialer()
	opts := baseOptions(dialer, clock)
	opts.APIBaseURL = ""
	opts.Handlers.OnError = func(msg string) { messages <- msg }
	c := realtime.New(opts)
	t.Cleanup(c.Close)

	c.Connect()

	select {
	case msg := <-messages:
		assert.NotEmpty(t, msg)
	case <-t.Context().Done():
		t.Fatal("no error reported")
	}
	assert.Equal(t, 0, dialer.calls())
	assert.Empty(t, clock.scheduled(realtime.DefaultReconnectDelay))
}

func TestClient_DialsProjectEndpoint(t *testing.T) {
	t.Parallel()

	dialer := newConnDialer()
	opts := baseOptions(dialer, &fakeClock{})
	opts.Credentials = staticToken("a b")
	c := realtime.New(opts)
	t.Cleanup(c.Close)

	c.Connect()
	require.Eventually(t, c.IsOpen, waitFor, tick)

	assert.Equal(t, []string{"ws://backend.test/ws/projects/7?token=a+b"}, dialer.dialed())
}

// ---------------------------------------------------------------------------
// Teardown
// ---------------------------------------------------------------------------

func TestClient_DisconnectCancelsHeartbeat(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	dialer := newConnDialer()
	c := realtime.New(baseOptions(dialer, clock))
	t.Cleanup(c.Close)

	c.Connect()
	require.Eventually(t, c.IsOpen, waitFor, tick)
	heartbeat := clock.pending(realtime.DefaultHeartbeatInterval)
	require.Len(t, heartbeat, 1)
	conn := dialer.last()

	c.Disconnect()
	c.Disconnect()

	assert.True(t, heartbeat[0].isStopped())
	assert.True(t, conn.isClosed())
	assert.False(t, c.IsOpen())
	assert.Equal(t, realtime.StateDisconnected, c.State())

	// A callback that slipped past Stop must not touch the old connection.
	clock.forceFire(heartbeat[0])
	assert.Empty(t, conn.written())
	assert.Empty(t, clock.pending(realtime.DefaultHeartbeatInterval))
	assert.Empty(t, clock.scheduled(realtime.DefaultReconnectDelay), "deliberate disconnect does not reconnect")
}

func TestClient_DisconnectCancelsReconnect(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	dialer := failingDialer()
	c := realtime.New(baseOptions(dialer, clock))
	t.Cleanup(c.Close)

	c.Connect()
	require.Eventually(t, func() bool { return len(clock.pending(realtime.DefaultReconnectDelay)) == 1 }, waitFor, tick)
	retry := clock.pending(realtime.DefaultReconnectDelay)[0]

	c.Disconnect()

	assert.True(t, retry.isStopped())
	clock.forceFire(retry)
	assert.Equal(t, 1, dialer.calls(), "cancelled retry must not dial")
	assert.Equal(t, realtime.StateDisconnected, c.State())
}

func TestClient_CloseIsFinal(t *testing.T) {
	t.Parallel()

	dialer := newConnDialer()
	c := realtime.New(baseOptions(dialer, &fakeClock{}))

	c.Close()
	c.Close()
	c.Connect()

	assert.Equal(t, 0, dialer.calls())
	assert.Equal(t, realtime.StateClosed, c.State())
	assert.Equal(t, "closed", c.Status().State)
}

// ---------------------------------------------------------------------------
// Heartbeat
// ---------------------------------------------------------------------------

func TestClient_Heartbeat(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	dialer := newConnDialer()
	c := realtime.New(baseOptions(dialer, clock))
	t.Cleanup(c.Close)

	c.Connect()
	require.Eventually(t, c.IsOpen, waitFor, tick)
	conn := dialer.last()

	require.True(t, clock.fire(clock.pending(realtime.DefaultHeartbeatInterval)[0]))
	assert.Equal(t, []string{`{"type":"ping"}`}, conn.written())
	require.Len(t, clock.pending(realtime.DefaultHeartbeatInterval), 1, "next heartbeat scheduled")

	conn.failWrites(errors.New("broken pipe"))
	require.True(t, clock.fire(clock.pending(realtime.DefaultHeartbeatInterval)[0]))

	assert.True(t, c.IsOpen(), "send failure alone does not drop the connection")
	assert.Empty(t, clock.scheduled(realtime.DefaultReconnectDelay))
	assert.Equal(t, 1, dialer.calls())
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

type recorder struct {
	mu     sync.Mutex
	events []string
	data   []map[string]any
}

func (r *recorder) add(name string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, name)
	r.data = append(r.data, data)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.events...)
}

func (r *recorder) handlers() realtime.Handlers {
	return realtime.Handlers{
		OnConnected:   func(d map[string]any) { r.add("connected", d) },
		OnCardMoved:   func(d map[string]any) { r.add("card_moved", d) },
		OnCardUpdated: func(d map[string]any) { r.add("card_updated", d) },
		OnCardCreated: func(d map[string]any) { r.add("card_created", d) },
		OnCardDeleted: func(d map[string]any) { r.add("card_deleted", d) },
		OnError:       func(msg string) { r.add("error:"+msg, nil) },
	}
}

func TestClient_DispatchesByTag(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	dialer := newConnDialer()
	opts := baseOptions(dialer, &fakeClock{})
	opts.Handlers = rec.handlers()
	c := realtime.New(opts)
	t.Cleanup(c.Close)

	c.Connect()
	require.Eventually(t, c.IsOpen, waitFor, tick)
	conn := dialer.last()

	for _, msg := range []string{
		`{"type":"connected","data":{"project_id":7}}`,
		`{"type":"card_moved","data":{"card_id":1,"from_column_id":10,"to_column_id":11}}`,
		`{not json`,
		`{"type":"card_archived","data":{}}`,
		`{"type":"card_updated","data":{"card_id":1}}`,
		`{"type":"card_created","data":{"card_id":2}}`,
		`{"type":"card_deleted"}`,
		`{"type":"error","data":{"message":"Formato JSON inválido"}}`,
	} {
		conn.incoming <- []byte(msg)
	}

	want := []string{"connected", "card_moved", "card_updated", "card_created", "card_deleted", "error:Formato JSON inválido"}
	require.Eventually(t, func() bool { return len(rec.snapshot()) == len(want) }, waitFor, tick)
	assert.Equal(t, want, rec.snapshot())
	assert.True(t, c.IsOpen(), "protocol failures do not affect the connection")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.InDelta(t, 11, rec.data[1]["to_column_id"], 0)
	assert.NotNil(t, rec.data[4], "missing data decodes to an empty map")
}

func TestClient_HandlerPanicDoesNotKillDispatcher(t *testing.T) {
	t.Parallel()

	got := make(chan string, 2)
	dialer := newConnDialer()
	opts := baseOptions(dialer, &fakeClock{})
	opts.Handlers = realtime.Handlers{
		OnCardMoved:   func(map[string]any) { panic("boom") },
		OnCardDeleted: func(map[string]any) { got <- "deleted" },
	}
	c := realtime.New(opts)
	t.Cleanup(c.Close)

	c.Connect()
	require.Eventually(t, c.IsOpen, waitFor, tick)
	conn := dialer.last()
	conn.incoming <- []byte(`{"type":"card_moved","data":{}}`)
	conn.incoming <- []byte(`{"type":"card_deleted","data":{}}`)

	select {
	case v := <-got:
		assert.Equal(t, "deleted", v)
	case <-t.Context().Done():
		t.Fatal("dispatcher stopped after panic")
	}
}
