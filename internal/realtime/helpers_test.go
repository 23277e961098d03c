package realtime_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gosuda/pulse/internal/realtime"
)

// ---------------------------------------------------------------------------
// fakeClock records scheduled callbacks; tests fire them explicitly.
// ---------------------------------------------------------------------------

type fakeTimer struct {
	clock   *fakeClock
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (t *fakeTimer) isStopped() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	return t.stopped
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) realtime.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// scheduled returns every timer ever created with duration d.
func (c *fakeClock) scheduled(d time.Duration) []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*fakeTimer
	for _, t := range c.timers {
		if t.d == d {
			out = append(out, t)
		}
	}
	return out
}

// pending returns timers with duration d that have neither fired nor been stopped.
func (c *fakeClock) pending(d time.Duration) []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*fakeTimer
	for _, t := range c.timers {
		if t.d == d && !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs a pending timer's callback on the calling goroutine.
func (c *fakeClock) fire(t *fakeTimer) bool {
	c.mu.Lock()
	if t.stopped || t.fired {
		c.mu.Unlock()
		return false
	}
	t.fired = true
	c.mu.Unlock()

	t.f()
	return true
}

// forceFire runs the callback even if the timer was stopped, mimicking a
// timer that had already expired when Stop was called.
func (c *fakeClock) forceFire(t *fakeTimer) {
	c.mu.Lock()
	t.fired = true
	c.mu.Unlock()

	t.f()
}

// ---------------------------------------------------------------------------
// fakeConn / fakeDialer
// ---------------------------------------------------------------------------

var errConnClosed = errors.New("fake conn closed")

type fakeConn struct {
	incoming  chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	writes   []string
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c.incoming:
		return b, nil
	case <-c.closed:
		return nil, errConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, string(payload))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.writes...)
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeErr = err
}

type fakeDialer struct {
	mu   sync.Mutex
	urls []string
	dial func(ctx context.Context, url string) (realtime.Conn, error)
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (realtime.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	dial := d.dial
	d.mu.Unlock()

	return dial(ctx, url)
}

func (d *fakeDialer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.urls)
}

func (d *fakeDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.urls...)
}

var errRefused = errors.New("connection refused")

func failingDialer() *fakeDialer {
	return &fakeDialer{dial: func(context.Context, string) (realtime.Conn, error) {
		return nil, errRefused
	}}
}

// connDialer hands out a fresh fakeConn per dial and records them.
type connDialer struct {
	fakeDialer
	connsMu sync.Mutex
	conns   []*fakeConn
}

func newConnDialer() *connDialer {
	d := &connDialer{}
	d.dial = func(context.Context, string) (realtime.Conn, error) {
		c := newFakeConn()
		d.connsMu.Lock()
		d.conns = append(d.conns, c)
		d.connsMu.Unlock()
		return c, nil
	}
	return d
}

func (d *connDialer) last() *fakeConn {
	d.connsMu.Lock()
	defer d.connsMu.Unlock()

	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func staticToken(token string) realtime.CredentialProvider {
	return realtime.CredentialFunc(func() (string, bool) { return token, token != "" })
}

func baseOptions(dialer realtime.Dialer, clock realtime.Clock) realtime.Options {
	return realtime.Options{
		ProjectID:   7,
		APIBaseURL:  "http://backend.test",
		Credentials: staticToken("tok"),
		Dialer:      dialer,
		Clock:       clock,
	}
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
