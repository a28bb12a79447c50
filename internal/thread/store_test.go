package thread

import (
	"reflect"
	"testing"

	"listenlist/internal/share"
)

func storeIDs(s *Store) []int64 {
	list := s.List()
	ids := make([]int64, 0, len(list))
	for _, t := range list {
		ids = append(ids, t.Partner.ID)
	}
	return ids
}

func TestUpsertCreatesThread(t *testing.T) {
	s := NewStore()
	partnerID, ok := s.Upsert(wireShare("s1", bruno, ana, at(1), false), 1)
	if !ok || partnerID != 2 {
		t.Fatalf("Upsert = (%d, %v), want (2, true)", partnerID, ok)
	}

	th, ok := s.Get(2)
	if !ok {
		t.Fatal("expected thread for partner 2")
	}
	if th.IsPlaceholder {
		t.Fatal("upserted thread must not be a placeholder")
	}
	if len(th.Messages) != 1 || th.Messages[0].Direction != share.DirectionIncoming {
		t.Fatalf("unexpected messages: %#v", th.Messages)
	}
	if !th.HasUnread {
		t.Fatal("incoming unread message should flag the thread")
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := NewStore()
	raw := wireShare("s1", bruno, ana, at(1), false)

	s.Upsert(raw, 1)
	once := s.List()

	s.Upsert(raw, 1)
	twice := s.List()

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("upsert not idempotent:\nonce:  %#v\ntwice: %#v", once, twice)
	}
}

func TestUpsertDeduplicatesByID(t *testing.T) {
	s := NewStore()
	unread := wireShare("s1", bruno, ana, at(1), false)
	s.Upsert(unread, 1)

	read := unread
	read.IsRead = true
	readAt := at(2)
	read.ReadAt = &readAt
	s.Upsert(read, 1)

	th, _ := s.Get(2)
	if len(th.Messages) != 1 {
		t.Fatalf("expected 1 message after read-state update, got %d", len(th.Messages))
	}
	if !th.Messages[0].IsRead {
		t.Fatal("read flag not replaced in place")
	}
	if th.HasUnread {
		t.Fatal("hasUnread should recompute to false")
	}
}

func TestUpsertDropsUnresolvablePartner(t *testing.T) {
	s := NewStore()
	if _, ok := s.Upsert(wireShare("s1", bruno, carla, at(1), false), 1); ok {
		t.Fatal("foreign share must report ok=false")
	}
	if s.Len() != 0 {
		t.Fatalf("foreign share must be dropped, store has %d threads", s.Len())
	}
}

func TestUpsertReordersByRecency(t *testing.T) {
	s := NewStore()
	s.Upsert(wireShare("s1", bruno, ana, at(1), false), 1)
	s.Upsert(wireShare("s2", carla, ana, at(2), false), 1)
	if got := storeIDs(s); !reflect.DeepEqual(got, []int64{3, 2}) {
		t.Fatalf("unexpected order %v", got)
	}

	// New activity in the older thread moves it back to the head.
	s.Upsert(wireShare("s3", bruno, ana, at(5), false), 1)
	if got := storeIDs(s); !reflect.DeepEqual(got, []int64{2, 3}) {
		t.Fatalf("unexpected order after upsert %v", got)
	}
}

func TestReplacePreservesPlaceholders(t *testing.T) {
	s := NewStore()
	s.InsertPlaceholder(NewPlaceholder(carla, at(10)))

	next := Hydrate([]share.Share{wireShare("s1", bruno, ana, at(1), false)}, 1)
	s.Replace(next)

	if s.Len() != 2 {
		t.Fatalf("expected placeholder to survive replace, have %d threads", s.Len())
	}
	ph, ok := s.Get(3)
	if !ok || !ph.IsPlaceholder {
		t.Fatalf("placeholder lost or demoted: %#v", ph)
	}

	// Once a message arrives for the partner the placeholder is gone for good.
	s.Upsert(wireShare("s2", carla, ana, at(11), false), 1)
	th, _ := s.Get(3)
	if th.IsPlaceholder {
		t.Fatal("thread must stop being a placeholder after its first message")
	}

	s.Replace(Hydrate([]share.Share{
		wireShare("s1", bruno, ana, at(1), false),
		wireShare("s2", carla, ana, at(11), false),
	}, 1))
	th, _ = s.Get(3)
	if th.IsPlaceholder {
		t.Fatal("placeholder flag must stay false through subsequent replaces")
	}
}

func TestReplaceDiscardsNonPlaceholderState(t *testing.T) {
	s := NewStore()
	s.Upsert(wireShare("s1", bruno, ana, at(1), false), 1)
	s.Replace(Hydrate([]share.Share{wireShare("s2", carla, ana, at(2), false)}, 1))

	if _, ok := s.Get(2); ok {
		t.Fatal("non-placeholder thread absent from reload must be dropped")
	}
	if _, ok := s.Get(3); !ok {
		t.Fatal("reloaded thread missing")
	}
}

func TestInsertPlaceholderDoesNotDuplicate(t *testing.T) {
	s := NewStore()
	s.Upsert(wireShare("s1", carla, ana, at(1), false), 1)
	if s.InsertPlaceholder(NewPlaceholder(carla, at(2))) {
		t.Fatal("placeholder must not shadow an existing thread")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 thread, got %d", s.Len())
	}
}

func TestFindByUsername(t *testing.T) {
	s := NewStore()
	s.Upsert(wireShare("s1", bruno, ana, at(1), false), 1)

	th, ok := s.FindByUsername("BRUNO")
	if !ok || th.Partner.ID != 2 {
		t.Fatalf("case-insensitive lookup failed: %v %v", th, ok)
	}
	if _, ok := s.FindByUsername("nadie"); ok {
		t.Fatal("unexpected match")
	}
}

func TestListSnapshotsAreIsolated(t *testing.T) {
	s := NewStore()
	s.Upsert(wireShare("s1", bruno, ana, at(1), false), 1)

	list := s.List()
	list[0].Messages[0].IsRead = true

	th, _ := s.Get(2)
	if th.Messages[0].IsRead {
		t.Fatal("mutating a snapshot must not touch store internals")
	}
}
