package memory

import (
	"context"
	"iter"
	"sort"
	"sync"

	"warden/internal/audit"
)

// InMemoryStore keeps entries in a slice ordered by sequence id.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Append stores entries, ignoring sequence ids already present.
func (s *InMemoryStore) Append(_ context.Context, entries ...audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		n := len(s.entries)
		if n == 0 || e.SequenceID > s.entries[n-1].SequenceID {
			s.entries = append(s.entries, e)
			continue
		}
		i := sort.Search(n, func(i int) bool { return s.entries[i].SequenceID >= e.SequenceID })
		if s.entries[i].SequenceID == e.SequenceID {
			continue
		}
		s.entries = append(s.entries, audit.Entry{})
		copy(s.entries[i+1:], s.entries[i:])
		s.entries[i] = e
	}
	return nil
}

// Query yields matching entries from a snapshot taken when iteration starts.
func (s *InMemoryStore) Query(ctx context.Context, filter audit.Filter) iter.Seq2[audit.Entry, error] {
	return func(yield func(audit.Entry, error) bool) {
		s.mu.RLock()
		start := sort.Search(len(s.entries), func(i int) bool {
			return s.entries[i].SequenceID > filter.AfterSequence
		})
		snapshot := append([]audit.Entry(nil), s.entries[start:]...)
		s.mu.RUnlock()

		emitted := 0
		for _, e := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(audit.Entry{}, err)
				return
			}
			if !filter.Matches(e) {
				continue
			}
			if !yield(e, nil) {
				return
			}
			emitted++
			if filter.Limit > 0 && emitted >= filter.Limit {
				return
			}
		}
	}
}

// Len returns the number of stored entries.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}
