// Package thread turns flat lists of shares into per-conversation views
// and keeps them consistent under REST reloads and push events.
package thread

import (
	"sort"
	"time"

	"listenlist/internal/share"
)

// PlaceholderPreview is shown for a conversation with no messages yet.
const PlaceholderPreview = "New conversation"

// Thread is the synchronized view of all messages between the viewer
// and one other user, keyed by Partner.ID.
type Thread struct {
	Partner            share.UserRef
	Messages           []share.Message // ascending by CreatedAt
	LastMessageAt      time.Time
	LastMessagePreview string
	HasUnread          bool
	IsPlaceholder      bool
}

// Clone returns a deep-enough copy: the message slice is copied so a
// caller cannot mutate store internals through a snapshot.
func (t *Thread) Clone() *Thread {
	copied := *t
	copied.Messages = append([]share.Message(nil), t.Messages...)
	return &copied
}

// recompute re-sorts messages and refreshes the derived fields from the
// last element. Placeholder threads keep their synthetic recency.
func (t *Thread) recompute() {
	sort.SliceStable(t.Messages, func(i, j int) bool {
		return share.Less(t.Messages[i], t.Messages[j])
	})

	if len(t.Messages) == 0 {
		t.HasUnread = false
		return
	}

	last := t.Messages[len(t.Messages)-1]
	t.LastMessageAt = last.CreatedAt
	if preview := last.Preview(); preview != "" || t.LastMessagePreview == PlaceholderPreview {
		t.LastMessagePreview = preview
	}
	t.HasUnread = false
	for _, msg := range t.Messages {
		if msg.Direction == share.DirectionIncoming && !msg.IsRead {
			t.HasUnread = true
			break
		}
	}
}

// UnreadIncoming returns the messages a read tracker should mark read.
func (t *Thread) UnreadIncoming() []share.Message {
	var unread []share.Message
	for _, msg := range t.Messages {
		if msg.Direction == share.DirectionIncoming && !msg.IsRead {
			unread = append(unread, msg)
		}
	}
	return unread
}

// NewPlaceholder creates a thread for a conversation with no messages
// yet, pending the first send. Recency is the creation time so the
// thread surfaces at the head of the list.
func NewPlaceholder(partner share.UserRef, now time.Time) *Thread {
	return &Thread{
		Partner:            partner,
		Messages:           []share.Message{},
		LastMessageAt:      now,
		LastMessagePreview: PlaceholderPreview,
		IsPlaceholder:      true,
	}
}

// Hydrate converts a batch of shares into threads grouped by partner,
// each with ordered messages and derived unread state, sorted most
// recent first. Pure: the same input always yields the same output.
// Shares that do not involve the viewer are dropped.
func Hydrate(shares []share.Share, viewerID int64) []*Thread {
	byPartner := make(map[int64]*Thread, len(shares))
	order := make([]int64, 0, len(shares))

	for _, raw := range shares {
		msg, partner, err := share.Normalize(raw, viewerID)
		if err != nil {
			continue
		}
		t, ok := byPartner[partner.ID]
		if !ok {
			t = &Thread{Partner: partner}
			byPartner[partner.ID] = t
			order = append(order, partner.ID)
		}
		t.Partner = partner
		t.Messages = append(t.Messages, msg)
	}

	threads := make([]*Thread, 0, len(order))
	for _, id := range order {
		t := byPartner[id]
		t.recompute()
		threads = append(threads, t)
	}
	sortByRecency(threads)
	return threads
}

func sortByRecency(threads []*Thread) {
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].LastMessageAt.After(threads[j].LastMessageAt)
	})
}
