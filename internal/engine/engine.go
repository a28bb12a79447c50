// Package engine composes the REST client, push channel, token guard
// and thread store into one message-synchronization surface. Callers
// read threads from the store and observe changes through the event
// publisher; all mutation flows through the engine.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"listenlist/internal/events"
	"listenlist/internal/logging"
	"listenlist/internal/realtime"
	"listenlist/internal/rest"
	"listenlist/internal/share"
	"listenlist/internal/thread"
)

var (
	// ErrEmptyMessage rejects sends whose text is blank after trimming.
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrRecipientPending rejects sends to a conversation whose partner
	// id has not been resolved yet.
	ErrRecipientPending = errors.New("recipient id not resolved yet")

	// ErrUnknownRecipient reports a username the server cannot resolve.
	ErrUnknownRecipient = errors.New("recipient not found")

	// ErrNoThread reports an operation on a partner id with no thread.
	ErrNoThread = errors.New("no thread for partner")
)

// API is the slice of the messaging API the engine calls. Satisfied by
// *rest.Client; injectable for tests.
type API interface {
	ListShares(ctx context.Context, token, box string) ([]share.Share, error)
	CreateShare(ctx context.Context, token string, req rest.CreateShareRequest) (share.Share, error)
	MarkRead(ctx context.Context, token, shareID string) (share.Share, error)
	UnreadCount(ctx context.Context, token string) (rest.UnreadCounts, error)
	LookupProfile(ctx context.Context, username string) (rest.Profile, error)
}

// Snapshots persists the last full reload so threads can be listed
// without a network round trip. Optional.
type Snapshots interface {
	ReplaceAll(ctx context.Context, viewerID int64, shares []share.Share) error
}

// Config wires an Engine.
type Config struct {
	API    API
	Tokens realtime.TokenSource

	// Realtime configures the push channel. Tokens is filled in from
	// the engine's token source when unset.
	Realtime realtime.Config

	// Snapshots, when set, receives every reload result. Failures are
	// logged, never surfaced: the cache is advisory.
	Snapshots Snapshots

	Now func() time.Time
}

// Engine keeps the thread store converged with the server.
type Engine struct {
	api       API
	tokens    realtime.TokenSource
	channel   *realtime.Channel
	store     *thread.Store
	publisher *events.Publisher
	snapshots Snapshots
	now       func() time.Time
	logger    zerolog.Logger
}

// New creates an engine. Run must be called for push updates to flow.
func New(cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	e := &Engine{
		api:       cfg.API,
		tokens:    cfg.Tokens,
		store:     thread.NewStore(),
		publisher: events.NewPublisher(),
		snapshots: cfg.Snapshots,
		now:       cfg.Now,
		logger:    logging.Component("engine"),
	}

	rt := cfg.Realtime
	if rt.Tokens == nil {
		rt.Tokens = cfg.Tokens
	}
	observer := rt.OnStateChange
	rt.OnStateChange = func(s realtime.State) {
		e.publisher.Publish(events.Event{
			Type:  events.TypeChannelState,
			State: string(s),
		})
		if observer != nil {
			observer(s)
		}
	}
	e.channel = realtime.NewChannel(rt)
	return e
}

// Store exposes the thread collection for reads.
func (e *Engine) Store() *thread.Store { return e.store }

// Subscribe registers a handler for store-change events and returns a
// subscription id for Unsubscribe.
func (e *Engine) Subscribe(filter events.Filter, handler events.Handler) string {
	return e.publisher.Subscribe(filter, handler)
}

// Unsubscribe removes a subscription.
func (e *Engine) Unsubscribe(id string) { e.publisher.Unsubscribe(id) }

// Reload fetches both mailboxes and swaps the result into the store.
// The two requests run concurrently; either failing fails the reload
// and leaves the store untouched.
func (e *Engine) Reload(ctx context.Context) error {
	session, err := e.tokens.EnsureValid(ctx)
	if err != nil {
		return err
	}

	var received, sent []share.Share
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		received, err = e.api.ListShares(gctx, session.Token, rest.BoxReceived)
		return err
	})
	g.Go(func() error {
		var err error
		sent, err = e.api.ListShares(gctx, session.Token, rest.BoxSent)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	combined := make([]share.Share, 0, len(received)+len(sent))
	combined = append(combined, received...)
	combined = append(combined, sent...)

	e.store.Replace(thread.Hydrate(combined, session.UserID))
	e.publisher.Publish(events.Event{Type: events.TypeThreadsReplaced})
	e.logger.Debug().
		Int("received", len(received)).
		Int("sent", len(sent)).
		Int("threads", e.store.Len()).
		Msg("reload complete")

	if e.snapshots != nil {
		if err := e.snapshots.ReplaceAll(ctx, session.UserID, combined); err != nil {
			e.logger.Warn().Err(err).Msg("snapshot save failed")
		}
	}
	return nil
}

// Run connects the push channel and folds its events into the store
// until ctx is cancelled. Blocks; call from a goroutine when the caller
// has other work.
func (e *Engine) Run(ctx context.Context) {
	go e.channel.Run(ctx)

	for raw := range e.channel.Events() {
		e.apply(ctx, raw)
	}
}

// ChannelState reports the push channel's current state.
func (e *Engine) ChannelState() realtime.State { return e.channel.State() }

func (e *Engine) apply(ctx context.Context, raw share.Share) {
	session, err := e.tokens.EnsureValid(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Str("share_id", raw.ID).Msg("dropping push event, no session")
		return
	}

	partnerID, ok := e.store.Upsert(raw, session.UserID)
	if !ok {
		return
	}
	e.publisher.Publish(events.Event{
		Type:      events.TypeThreadUpdated,
		PartnerID: partnerID,
		ShareID:   raw.ID,
	})
}

// Send posts a text message to the partner's conversation and folds the
// server-confirmed share into the store.
func (e *Engine) Send(ctx context.Context, partnerID int64, text string) (share.Share, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return share.Share{}, ErrEmptyMessage
	}
	if partnerID == 0 {
		return share.Share{}, ErrRecipientPending
	}

	session, err := e.tokens.EnsureValid(ctx)
	if err != nil {
		return share.Share{}, err
	}

	created, err := e.api.CreateShare(ctx, session.Token, rest.CreateShareRequest{
		RecipientID: partnerID,
		ContentType: share.ContentOther,
		ItemID:      "message",
		Payload:     json.RawMessage(`{}`),
		MessageText: text,
	})
	if err != nil {
		return share.Share{}, err
	}

	if id, ok := e.store.Upsert(created, session.UserID); ok {
		e.publisher.Publish(events.Event{
			Type:      events.TypeThreadUpdated,
			PartnerID: id,
			ShareID:   created.ID,
		})
	}
	return created, nil
}

// MarkThreadRead marks every unread incoming message of the partner's
// thread read, one request per message. A failed message is skipped so
// the rest still get marked; the errors come back joined. Returns how
// many messages were confirmed read.
func (e *Engine) MarkThreadRead(ctx context.Context, partnerID int64) (int, error) {
	t, ok := e.store.Get(partnerID)
	if !ok {
		return 0, ErrNoThread
	}

	unread := t.UnreadIncoming()
	if len(unread) == 0 {
		return 0, nil
	}

	session, err := e.tokens.EnsureValid(ctx)
	if err != nil {
		return 0, err
	}

	var (
		marked int
		errs   []error
	)
	for _, msg := range unread {
		updated, err := e.api.MarkRead(ctx, session.Token, msg.ID)
		if err != nil {
			e.logger.Warn().Err(err).Str("share_id", msg.ID).Msg("mark read failed")
			errs = append(errs, err)
			continue
		}
		marked++
		if id, ok := e.store.Upsert(updated, session.UserID); ok {
			e.publisher.Publish(events.Event{
				Type:      events.TypeThreadUpdated,
				PartnerID: id,
				ShareID:   updated.ID,
			})
		}
	}
	return marked, errors.Join(errs...)
}

// Recipient is a possibly-incomplete partner reference, e.g. from a
// deep link. KnownID short-circuits the profile lookup when set.
type Recipient struct {
	Username    string
	KnownID     int64
	DisplayName string
}

// ResolveRecipient turns a recipient reference into a ready-to-send
// thread. An existing conversation is reused; otherwise the username is
// resolved through the profile API and a placeholder thread is created.
func (e *Engine) ResolveRecipient(ctx context.Context, ref Recipient) (*thread.Thread, error) {
	ref.Username = strings.TrimSpace(ref.Username)
	if ref.Username == "" && ref.KnownID == 0 {
		return nil, ErrUnknownRecipient
	}

	if ref.KnownID != 0 {
		if t, ok := e.store.Get(ref.KnownID); ok {
			return t, nil
		}
	}
	if ref.Username != "" {
		if t, ok := e.store.FindByUsername(ref.Username); ok {
			return t, nil
		}
	}

	profile := rest.Profile{
		UserID:   ref.KnownID,
		Username: ref.Username,
		Name:     ref.DisplayName,
	}
	if profile.UserID == 0 {
		looked, err := e.api.LookupProfile(ctx, ref.Username)
		if err != nil {
			var terr *rest.TransportError
			if errors.As(err, &terr) && terr.Status == 404 {
				return nil, ErrUnknownRecipient
			}
			return nil, err
		}
		profile = looked
	}
	if profile.UserID == 0 {
		return nil, ErrUnknownRecipient
	}

	// A thread may already exist under the resolved id even when the
	// username lookup above missed, e.g. a stale or differently-cased
	// username on the stored partner.
	if t, ok := e.store.Get(profile.UserID); ok {
		return t, nil
	}

	partner := share.UserRef{
		ID:        profile.UserID,
		Username:  profile.Username,
		FirstName: profile.Name,
	}
	placeholder := thread.NewPlaceholder(partner, e.now())
	e.store.InsertPlaceholder(placeholder)
	e.publisher.Publish(events.Event{
		Type:      events.TypeThreadUpdated,
		PartnerID: partner.ID,
	})

	t, _ := e.store.Get(partner.ID)
	return t, nil
}

// UnreadCounts fetches the viewer's unread totals from the server.
func (e *Engine) UnreadCounts(ctx context.Context) (rest.UnreadCounts, error) {
	session, err := e.tokens.EnsureValid(ctx)
	if err != nil {
		return rest.UnreadCounts{}, err
	}
	return e.api.UnreadCount(ctx, session.Token)
}

// Close releases the event publisher. The push channel stops when the
// Run context is cancelled.
func (e *Engine) Close() {
	e.publisher.Close()
}
