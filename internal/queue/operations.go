package queue

import (
	"context"
	"strings"
	"time"
)

// Entries returns a copy of the in-memory list, newest first.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]Entry, len(s.entries))
	copy(cp, s.entries)
	return cp
}

// Get returns the entry for jobID.
func (s *Store) Get(jobID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(jobID); idx >= 0 {
		return s.entries[idx], true
	}
	return Entry{}, false
}

// Has reports whether jobID is in the entry list.
func (s *Store) Has(jobID string) bool {
	_, ok := s.Get(jobID)
	return ok
}

// Upsert adds entry or overwrites the fields of the existing entry with the
// same JobID. A zero CreatedAt keeps the existing timestamp (or uses now for a
// new entry). Suppressed ids are refused and Upsert returns false.
func (s *Store) Upsert(ctx context.Context, entry Entry) bool {
	entry.JobID = strings.TrimSpace(entry.JobID)
	if entry.JobID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeStoredLocked(ctx)
	if s.suppressedLocked(entry.JobID) {
		return false
	}
	if entry.Status == "" {
		entry.Status = StatusPending
	}
	if idx := s.indexLocked(entry.JobID); idx >= 0 {
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = s.entries[idx].CreatedAt
		}
		s.entries[idx] = entry
	} else {
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = s.now()
		}
		s.entries = append(s.entries, entry)
	}
	s.saveEntriesLocked(ctx)
	return true
}

// Update applies fn to the tracked entry for jobID and writes the result
// through. It never inserts: a job that was removed or cleared in the
// meantime stays gone and Update returns false.
func (s *Store) Update(ctx context.Context, jobID string, fn func(*Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeStoredLocked(ctx)
	if s.suppressedLocked(jobID) {
		return false
	}
	idx := s.indexLocked(jobID)
	if idx < 0 {
		return false
	}
	entry := s.entries[idx]
	fn(&entry)
	entry.JobID = s.entries[idx].JobID
	s.entries[idx] = entry
	s.saveEntriesLocked(ctx)
	return true
}

// MarkCleared adds ids to the cleared set and drops them from the list.
func (s *Store) MarkCleared(ctx context.Context, ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped, adopted := s.mergeStoredLocked(ctx)
	removed := len(dropped) > 0 || adopted
	for _, id := range ids {
		s.cleared.Add(id)
		if s.removeLocked(id) {
			removed = true
		}
	}
	s.writeSetLocked(ctx, s.keys.cleared, s.cleared)
	if removed {
		s.writeEntriesLocked(ctx, s.entries)
	}
}

// MarkPersisted records jobID as saved to the permanent gallery and drops it
// from the list.
func (s *Store) MarkPersisted(ctx context.Context, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped, adopted := s.mergeStoredLocked(ctx)
	s.persisted.Add(jobID)
	s.writeSetLocked(ctx, s.keys.persisted, s.persisted)
	if s.removeLocked(jobID) || len(dropped) > 0 || adopted {
		s.writeEntriesLocked(ctx, s.entries)
	}
}

// IsCleared reports whether jobID was deleted or bulk-cleared.
func (s *Store) IsCleared(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleared.Has(jobID)
}

// IsPersisted reports whether jobID was saved to the permanent gallery.
func (s *Store) IsPersisted(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persisted.Has(jobID)
}

// IsSuppressed reports whether jobID must never be shown in the live queue.
func (s *Store) IsSuppressed(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suppressedLocked(jobID)
}

// ClearedAt returns the in-memory timestamp of the last bulk clear.
func (s *Store) ClearedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearedAt
}

// ClearedIDs returns a snapshot of the cleared set.
func (s *Store) ClearedIDs() IDSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleared.clone()
}

// PurgeExpired evicts entries older than TTL or created at or before the last
// bulk clear. Their ids move to the cleared set so late completions stay
// hidden. The removed ids are returned so callers can drop matching tiles.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeStoredLocked(ctx)

	kept := s.entries[:0:0]
	var removed []string
	for _, entry := range s.entries {
		if entry.Expired(now, s.clearedAt) {
			removed = append(removed, entry.JobID)
			s.cleared.Add(entry.JobID)
			continue
		}
		kept = append(kept, entry)
	}
	if len(removed) == 0 {
		return nil
	}
	s.entries = kept
	s.writeSetLocked(ctx, s.keys.cleared, s.cleared)
	s.writeEntriesLocked(ctx, s.entries)
	return removed
}

// ClearAll marks every known id cleared, records at as the clear timestamp,
// and empties the list. It returns the ids that were in the list.
func (s *Store) ClearAll(ctx context.Context, at time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeStoredLocked(ctx)

	ids := make([]string, 0, len(s.entries))
	for _, entry := range s.entries {
		ids = append(ids, entry.JobID)
		s.cleared.Add(entry.JobID)
	}
	s.entries = nil
	s.clearedAt = at
	s.writeSetLocked(ctx, s.keys.cleared, s.cleared)
	s.writeTimeLocked(ctx, at)
	s.writeEntriesLocked(ctx, s.entries)
	return ids
}

func (s *Store) indexLocked(jobID string) int {
	for i := range s.entries {
		if s.entries[i].JobID == jobID {
			return i
		}
	}
	return -1
}

func (s *Store) removeLocked(jobID string) bool {
	idx := s.indexLocked(jobID)
	if idx < 0 {
		return false
	}
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	return true
}

func (s *Store) suppressedLocked(jobID string) bool {
	return s.cleared.Has(jobID) || s.persisted.Has(jobID)
}
