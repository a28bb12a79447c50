// Package realtime maintains the push channel that delivers share
// events, reconnecting with backoff whenever the connection drops.
package realtime

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"listenlist/internal/auth"
	"listenlist/internal/logging"
	"listenlist/internal/share"
)

// State of the channel's connection lifecycle.
type State string

// Channel states. There is no terminal state while the channel runs;
// the only terminal transition is cancelling the Run context.
const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateOpen          State = "open"
	StateReconnectWait State = "reconnect-wait"
)

const (
	defaultBackoff     = 3 * time.Second
	defaultAuthBackoff = 5 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultBufferSize  = 64
)

// TokenSource supplies a valid access token before each connect.
type TokenSource interface {
	EnsureValid(ctx context.Context) (auth.Session, error)
}

// Conn is one open push connection.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens push connections. Injectable for tests.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// Config configures a Channel.
type Config struct {
	// URL is the push endpoint, e.g. ws://host/ws/mensajes/.
	URL string

	// Tokens authenticates each connection attempt.
	Tokens TokenSource

	// Dialer defaults to a gorilla/websocket dialer.
	Dialer Dialer

	// Backoff is the wait after a closed or errored connection.
	Backoff time.Duration

	// AuthBackoff is the longer wait after a failed token refresh, so
	// an invalid refresh token does not busy-loop the channel.
	AuthBackoff time.Duration

	// MaxBackoff caps the growth of consecutive-failure waits.
	MaxBackoff time.Duration

	// BufferSize is the event channel capacity.
	BufferSize int

	// OnStateChange observes every state transition. Optional.
	OnStateChange func(State)
}

// Channel is a reconnecting push-channel client. Decoded shares are
// delivered on Events; malformed frames are logged and dropped.
type Channel struct {
	cfg    Config
	out    chan share.Share
	logger zerolog.Logger

	mu    sync.Mutex
	state State
}

// NewChannel creates a channel. Run must be called to connect.
func NewChannel(cfg Config) *Channel {
	if cfg.Dialer == nil {
		cfg.Dialer = &WebsocketDialer{}
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.AuthBackoff <= 0 {
		cfg.AuthBackoff = defaultAuthBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	return &Channel{
		cfg:    cfg,
		out:    make(chan share.Share, cfg.BufferSize),
		logger: logging.Component("realtime"),
		state:  StateDisconnected,
	}
}

// Events returns the stream of decoded shares.
func (c *Channel) Events() <-chan share.Share {
	return c.out
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}

// Run connects and keeps the channel alive until ctx is cancelled.
// Teardown closes the event stream; the loop owns the sole reconnect
// timer, so at most one wait is ever pending.
func (c *Channel) Run(ctx context.Context) {
	defer close(c.out)
	defer c.setState(StateDisconnected)

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		c.setState(StateConnecting)

		session, err := c.cfg.Tokens.EnsureValid(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("token refresh failed before connect")
			if !c.waitReconnect(ctx, c.cfg.AuthBackoff, failures) {
				return
			}
			failures++
			continue
		}

		conn, err := c.cfg.Dialer.Dial(ctx, c.endpoint(session.Token))
		if err != nil {
			c.logger.Warn().Err(err).Msg("push channel connect failed")
			if !c.waitReconnect(ctx, c.cfg.Backoff, failures) {
				return
			}
			failures++
			continue
		}

		c.setState(StateOpen)
		failures = 0
		c.logger.Debug().Msg("push channel open")

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.logger.Debug().Err(err).Msg("push channel closed")
		if !c.waitReconnect(ctx, c.cfg.Backoff, failures) {
			return
		}
		failures++
	}
}

// consume reads frames until the connection dies or ctx is cancelled.
func (c *Channel) consume(ctx context.Context, conn Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		env, err := share.DecodeEnvelope(raw)
		if err != nil {
			// Undecodable frames are non-fatal; the channel stays open.
			c.logger.Warn().Err(err).Msg("dropping malformed push frame")
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case c.out <- *env.Data:
		}
	}
}

// waitReconnect sleeps for the capped exponential backoff. Returns
// false when ctx was cancelled during the wait.
func (c *Channel) waitReconnect(ctx context.Context, base time.Duration, failures int) bool {
	c.setState(StateReconnectWait)

	wait := base
	for i := 0; i < failures && wait < c.cfg.MaxBackoff; i++ {
		wait *= 2
	}
	if wait > c.cfg.MaxBackoff {
		wait = c.cfg.MaxBackoff
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Channel) endpoint(token string) string {
	return c.cfg.URL + "?token=" + url.QueryEscape(token)
}
