package thread

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"listenlist/internal/logging"
	"listenlist/internal/share"
)

// Store is the authoritative in-memory collection of threads. All
// producers (REST reloads, push events, send and mark-read results)
// mutate it through Replace and Upsert only.
type Store struct {
	mu      sync.RWMutex
	threads map[int64]*Thread
	order   []int64 // partner ids, most recent first
	logger  zerolog.Logger
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		threads: make(map[int64]*Thread),
		logger:  logging.Component("thread_store"),
	}
}

// Replace installs the result of a full REST reload. Existing
// placeholder threads with no counterpart in next survive the swap: the
// server has no shares for a brand-new conversation until the first
// message is sent, and a background refresh must not discard it.
func (s *Store) Replace(next []*Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()

	threads := make(map[int64]*Thread, len(next))
	for _, t := range next {
		if t == nil || t.Partner.ID == 0 {
			continue
		}
		replacement := t.Clone()
		replacement.IsPlaceholder = false
		threads[t.Partner.ID] = replacement
	}

	for id, existing := range s.threads {
		if !existing.IsPlaceholder {
			continue
		}
		if _, ok := threads[id]; ok {
			continue
		}
		threads[id] = existing
	}

	s.threads = threads
	s.resortLocked()
}

// Upsert folds one share into the store: push events, confirmed sends
// and mark-read responses all land here. Idempotent by message id;
// applying the same share twice equals applying it once. Returns the
// partner id the share landed under, or false when it was dropped.
func (s *Store) Upsert(raw share.Share, viewerID int64) (int64, bool) {
	msg, partner, err := share.Normalize(raw, viewerID)
	if err != nil {
		// A share referencing neither known party is dropped, not fatal.
		s.logger.Warn().Err(err).Str("share_id", raw.ID).Msg("dropping share with unresolvable partner")
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[partner.ID]
	if !ok {
		t = &Thread{Partner: partner}
		s.threads[partner.ID] = t
	}

	replaced := false
	for i := range t.Messages {
		if t.Messages[i].ID == msg.ID {
			t.Messages[i] = msg
			replaced = true
			break
		}
	}
	if !replaced {
		t.Messages = append(t.Messages, msg)
	}

	t.Partner = partner
	t.IsPlaceholder = false
	t.recompute()
	s.resortLocked()
	return partner.ID, true
}

// InsertPlaceholder adds a placeholder thread for partner unless a
// thread for that partner already exists. Reports whether it inserted.
func (s *Store) InsertPlaceholder(t *Thread) bool {
	if t == nil || !t.IsPlaceholder || t.Partner.ID == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[t.Partner.ID]; ok {
		return false
	}
	s.threads[t.Partner.ID] = t.Clone()
	s.resortLocked()
	return true
}

// Get returns a snapshot of the thread for a partner id.
func (s *Store) Get(partnerID int64) (*Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[partnerID]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// FindByUsername returns the thread whose partner matches username
// case-insensitively. Used only before a partner id is known.
func (s *Store) FindByUsername(username string) (*Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		t := s.threads[id]
		if strings.EqualFold(t.Partner.Username, username) {
			return t.Clone(), true
		}
	}
	return nil, false
}

// List returns a snapshot of all threads, most recent first.
func (s *Store) List() []*Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Thread, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.threads[id].Clone())
	}
	return out
}

// Len returns the number of threads.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

// resortLocked recomputes the recency order. Seeding from the previous
// order keeps ties deterministic across mutations. Callers hold s.mu.
func (s *Store) resortLocked() {
	ordered := make([]*Thread, 0, len(s.threads))
	seen := make(map[int64]struct{}, len(s.threads))
	for _, id := range s.order {
		if t, ok := s.threads[id]; ok {
			ordered = append(ordered, t)
			seen[id] = struct{}{}
		}
	}
	for id, t := range s.threads {
		if _, ok := seen[id]; !ok {
			ordered = append(ordered, t)
		}
	}
	sortByRecency(ordered)

	s.order = s.order[:0]
	for _, t := range ordered {
		s.order = append(s.order, t.Partner.ID)
	}
}
