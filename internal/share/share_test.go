package share

import (
	"encoding/json"
	"testing"
	"time"
)

func refA() UserRef { return UserRef{ID: 1, Username: "ana"} }
func refB() UserRef { return UserRef{ID: 2, Username: "bruno", FirstName: "Bruno", LastName: "Paz"} }

func TestNormalizeDirections(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Share{
		ID:          "11111111-1111-1111-1111-111111111111",
		Sender:      refA(),
		Recipient:   refB(),
		ContentType: ContentOther,
		MessageText: "hola",
		CreatedAt:   created,
	}

	msg, partner, err := Normalize(s, 1)
	if err != nil {
		t.Fatalf("normalize as sender: %v", err)
	}
	if msg.Direction != DirectionOutgoing {
		t.Fatalf("expected outgoing, got %s", msg.Direction)
	}
	if partner.ID != 2 {
		t.Fatalf("expected partner 2, got %d", partner.ID)
	}

	msg, partner, err = Normalize(s, 2)
	if err != nil {
		t.Fatalf("normalize as recipient: %v", err)
	}
	if msg.Direction != DirectionIncoming {
		t.Fatalf("expected incoming, got %s", msg.Direction)
	}
	if partner.ID != 1 {
		t.Fatalf("expected partner 1, got %d", partner.ID)
	}
}

func TestNormalizeUnknownViewer(t *testing.T) {
	s := Share{ID: "x", Sender: refA(), Recipient: refB()}
	if _, _, err := Normalize(s, 99); err != ErrUnknownViewer {
		t.Fatalf("expected ErrUnknownViewer, got %v", err)
	}
}

func TestValidateDefaults(t *testing.T) {
	s := Share{ID: "x", Sender: refA(), Recipient: refB()}
	if err := s.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if s.ContentType != ContentOther {
		t.Fatalf("expected default content type, got %q", s.ContentType)
	}
	if string(s.Payload) != "{}" {
		t.Fatalf("expected default payload, got %q", string(s.Payload))
	}
}

func TestValidateRejectsMissingID(t *testing.T) {
	s := Share{Sender: refA(), Recipient: refB()}
	if err := s.Validate(); err != ErrMissingID {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	raw := []byte(`{"type":"share.created","data":{"id":"abc","sender":{"id":1,"username":"ana"},"recipient":{"id":2,"username":"bruno"},"message_text":"hey","created_at":"2026-03-01T12:00:00Z","is_read":false}}`)
	env, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != "share.created" {
		t.Fatalf("unexpected type %q", env.Type)
	}
	if env.Data.ID != "abc" || env.Data.Sender.ID != 1 {
		t.Fatalf("unexpected share: %#v", env.Data)
	}
}

func TestDecodeEnvelopeRejectsEmptyData(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`{"type":"share.read"}`)); err == nil {
		t.Fatal("expected error for envelope without data")
	}
	if _, err := DecodeEnvelope([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

func TestDecodeEnvelopeToleratesUnknownType(t *testing.T) {
	raw := []byte(`{"type":"share.archived","data":{"id":"abc","sender":{"id":1,"username":"ana"},"recipient":{"id":2,"username":"bruno"}}}`)
	env, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.ID != "abc" {
		t.Fatalf("unexpected share: %#v", env.Data)
	}
}

func TestPreview(t *testing.T) {
	m := Message{Text: "  hola  "}
	if m.Preview() != "hola" {
		t.Fatalf("unexpected preview %q", m.Preview())
	}
	m = Message{ContentType: ContentSong}
	if m.Preview() != "Shared (song)" {
		t.Fatalf("unexpected preview %q", m.Preview())
	}
	m = Message{ContentType: ContentOther}
	if m.Preview() != "" {
		t.Fatalf("expected empty preview, got %q", m.Preview())
	}
}

func TestDisplayName(t *testing.T) {
	if got := refB().DisplayName(); got != "Bruno Paz" {
		t.Fatalf("unexpected display name %q", got)
	}
	if got := refA().DisplayName(); got != "ana" {
		t.Fatalf("unexpected display name %q", got)
	}
}

func TestShareJSONRoundTripKeepsReadState(t *testing.T) {
	readAt := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	s := Share{
		ID:        "abc",
		Sender:    refA(),
		Recipient: refB(),
		Payload:   json.RawMessage(`{"item":"x"}`),
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		IsRead:    true,
		ReadAt:    &readAt,
	}
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Share
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.IsRead || back.ReadAt == nil || !back.ReadAt.Equal(readAt) {
		t.Fatalf("read state lost: %#v", back)
	}
}
