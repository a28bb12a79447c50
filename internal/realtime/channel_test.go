package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"listenlist/internal/auth"
	"listenlist/internal/share"
)

type fakeConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case frame := <-c.frames:
		return frame, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	conns []*fakeConn
	errs  []error // consumed before handing out conns
}

func (d *fakeDialer) Dial(_ context.Context, rawURL string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, rawURL)
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		return nil, err
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

type staticTokens struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *staticTokens) EnsureValid(context.Context) (auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return auth.Session{}, s.err
	}
	return auth.Session{Token: "tok", UserID: 1}, nil
}

func envelopeFrame(t *testing.T, id string) []byte {
	t.Helper()
	env := map[string]any{
		"type": "share.created",
		"data": share.Share{
			ID:        id,
			Sender:    share.UserRef{ID: 2, Username: "bruno"},
			Recipient: share.UserRef{ID: 1, Username: "ana"},
			CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

func TestChannelDeliversDecodedShares(t *testing.T) {
	dialer := &fakeDialer{}
	ch := NewChannel(Config{
		URL:     "ws://example/ws/mensajes/",
		Tokens:  &staticTokens{},
		Dialer:  dialer,
		Backoff: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	require.Eventually(t, func() bool { return dialer.conn(0) != nil }, time.Second, 5*time.Millisecond)
	conn := dialer.conn(0)

	conn.frames <- []byte("not json") // malformed, dropped
	conn.frames <- envelopeFrame(t, "s1")

	select {
	case got := <-ch.Events():
		require.Equal(t, "s1", got.ID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	// Malformed frame must not have killed the connection.
	require.Equal(t, 1, dialer.dialCount())
	require.Equal(t, StateOpen, ch.State())
}

func TestChannelCarriesTokenAsQueryParam(t *testing.T) {
	dialer := &fakeDialer{}
	ch := NewChannel(Config{
		URL:    "ws://example/ws/mensajes/",
		Tokens: &staticTokens{},
		Dialer: dialer,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	require.Eventually(t, func() bool { return dialer.dialCount() > 0 }, time.Second, 5*time.Millisecond)
	dialer.mu.Lock()
	url := dialer.urls[0]
	dialer.mu.Unlock()
	require.True(t, strings.HasSuffix(url, "?token=tok"), "unexpected dial URL %q", url)
}

func TestChannelSchedulesSingleReconnect(t *testing.T) {
	dialer := &fakeDialer{errs: []error{errors.New("down"), errors.New("down")}}
	ch := NewChannel(Config{
		URL:     "ws://example/ws/mensajes/",
		Tokens:  &staticTokens{},
		Dialer:  dialer,
		Backoff: 300 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	require.Eventually(t, func() bool { return dialer.dialCount() == 1 }, time.Second, 5*time.Millisecond)

	// No second attempt before the backoff elapses.
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, dialer.dialCount())
	require.Equal(t, StateReconnectWait, ch.State())

	require.Eventually(t, func() bool { return dialer.dialCount() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestChannelReconnectsAfterConnectionDrop(t *testing.T) {
	dialer := &fakeDialer{}
	ch := NewChannel(Config{
		URL:     "ws://example/ws/mensajes/",
		Tokens:  &staticTokens{},
		Dialer:  dialer,
		Backoff: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	require.Eventually(t, func() bool { return dialer.conn(0) != nil }, time.Second, 5*time.Millisecond)
	dialer.conn(0).Close()

	require.Eventually(t, func() bool { return dialer.dialCount() >= 2 }, 2*time.Second, 10*time.Millisecond)

	// The new connection still delivers events.
	require.Eventually(t, func() bool { return dialer.conn(1) != nil }, time.Second, 5*time.Millisecond)
	dialer.conn(1).frames <- envelopeFrame(t, "s2")
	select {
	case got := <-ch.Events():
		require.Equal(t, "s2", got.ID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered after reconnect")
	}
}

func TestChannelBacksOffLongerOnAuthFailure(t *testing.T) {
	tokens := &staticTokens{err: errors.New("refresh token invalid")}
	dialer := &fakeDialer{}
	ch := NewChannel(Config{
		URL:         "ws://example/ws/mensajes/",
		Tokens:      tokens,
		Dialer:      dialer,
		Backoff:     10 * time.Millisecond,
		AuthBackoff: 400 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	require.Eventually(t, func() bool {
		tokens.mu.Lock()
		defer tokens.mu.Unlock()
		return tokens.calls == 1
	}, time.Second, 5*time.Millisecond)

	// The auth backoff keeps the channel from busy-looping refreshes.
	time.Sleep(150 * time.Millisecond)
	tokens.mu.Lock()
	calls := tokens.calls
	tokens.mu.Unlock()
	require.Equal(t, 1, calls)
	require.Equal(t, 0, dialer.dialCount())
}

func TestChannelTeardown(t *testing.T) {
	dialer := &fakeDialer{}
	ch := NewChannel(Config{
		URL:    "ws://example/ws/mensajes/",
		Tokens: &staticTokens{},
		Dialer: dialer,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ch.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return dialer.conn(0) != nil }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// Events closes so consumers drain and exit.
	_, open := <-ch.Events()
	require.False(t, open)
	require.Equal(t, StateDisconnected, ch.State())
}

func TestChannelStateTransitions(t *testing.T) {
	var mu sync.Mutex
	var states []State
	dialer := &fakeDialer{}
	ch := NewChannel(Config{
		URL:    "ws://example/ws/mensajes/",
		Tokens: &staticTokens{},
		Dialer: dialer,
		OnStateChange: func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	require.Eventually(t, func() bool { return ch.State() == StateOpen }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []State{StateConnecting, StateOpen}, states)
}
