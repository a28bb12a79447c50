// Package share defines the wire records exchanged with the ListenList
// messaging API and their normalized, viewer-relative form.
package share

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Content types a share may carry.
const (
	ContentSong     = "song"
	ContentAlbum    = "album"
	ContentArtist   = "artist"
	ContentPlaylist = "playlist"
	ContentOther    = "other"
)

// Message directions relative to the viewer.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Decode errors.
var (
	ErrMissingID      = errors.New("share has no id")
	ErrMissingParties = errors.New("share has no sender or recipient")
	ErrUnknownViewer  = errors.New("share does not involve the viewer")
)

// UserRef identifies one party of a share. ID is the identity key;
// Username is a secondary lookup key used only before an ID is known.
type UserRef struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// DisplayName returns the user's full name when present, else the username.
func (u UserRef) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	return u.Username
}

// Share is a persisted message record between two users. Immutable once
// created except for IsRead/ReadAt, which transition unread -> read.
type Share struct {
	ID          string          `json:"id"`
	Sender      UserRef         `json:"sender"`
	Recipient   UserRef         `json:"recipient"`
	ContentType string          `json:"content_type"`
	ItemID      string          `json:"item_id"`
	Payload     json.RawMessage `json:"payload"`
	MessageText string          `json:"message_text"`
	CreatedAt   time.Time       `json:"created_at"`
	IsRead      bool            `json:"is_read"`
	ReadAt      *time.Time      `json:"read_at"`
}

// Validate checks the fields every consumer relies on. Optional fields
// (payload, message text, read_at) get defaults instead of errors.
func (s *Share) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return ErrMissingID
	}
	if s.Sender.ID == 0 && s.Recipient.ID == 0 {
		return ErrMissingParties
	}
	if s.ContentType == "" {
		s.ContentType = ContentOther
	}
	if len(s.Payload) == 0 {
		s.Payload = json.RawMessage(`{}`)
	}
	return nil
}

// Envelope is the frame delivered on the push channel whenever a share
// is created or updated for either party.
type Envelope struct {
	Type string `json:"type"`
	Data *Share `json:"data"`
}

// DecodeEnvelope parses a push-channel frame. Frames without a data
// payload are rejected; unknown type values are tolerated.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Data == nil {
		return nil, errors.New("envelope has no data")
	}
	if err := env.Data.Validate(); err != nil {
		return nil, fmt.Errorf("envelope share: %w", err)
	}
	return &env, nil
}

// Message is a share normalized relative to the viewer's user id.
type Message struct {
	ID          string
	Text        string
	CreatedAt   time.Time
	ContentType string
	ItemID      string
	Payload     json.RawMessage
	IsRead      bool
	ReadAt      *time.Time
	Direction   string
	Sender      UserRef
	Recipient   UserRef
}

// Normalize converts a share into a directional message plus the
// conversation partner, relative to viewerID. Returns ErrUnknownViewer
// when the share references neither the viewer as sender nor recipient.
func Normalize(s Share, viewerID int64) (Message, UserRef, error) {
	if err := s.Validate(); err != nil {
		return Message{}, UserRef{}, err
	}

	var direction string
	var partner UserRef
	switch viewerID {
	case s.Sender.ID:
		direction = DirectionOutgoing
		partner = s.Recipient
	case s.Recipient.ID:
		direction = DirectionIncoming
		partner = s.Sender
	default:
		return Message{}, UserRef{}, ErrUnknownViewer
	}
	if partner.ID == 0 {
		return Message{}, UserRef{}, ErrMissingParties
	}

	msg := Message{
		ID:          s.ID,
		Text:        s.MessageText,
		CreatedAt:   s.CreatedAt,
		ContentType: s.ContentType,
		ItemID:      s.ItemID,
		Payload:     s.Payload,
		IsRead:      s.IsRead,
		ReadAt:      s.ReadAt,
		Direction:   direction,
		Sender:      s.Sender,
		Recipient:   s.Recipient,
	}
	return msg, partner, nil
}

// Preview returns the text shown in a conversation list for this message.
func (m Message) Preview() string {
	text := strings.TrimSpace(m.Text)
	if text != "" {
		return text
	}
	if m.ContentType != "" && m.ContentType != ContentOther {
		return fmt.Sprintf("Shared (%s)", m.ContentType)
	}
	return ""
}

// Less orders messages chronologically. Equal timestamps compare as
// unordered; used with sort.SliceStable, ties keep insertion order.
func Less(a, b Message) bool {
	return a.CreatedAt.Before(b.CreatedAt)
}
