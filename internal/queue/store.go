package queue

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"genqueue/internal/kv"
	"genqueue/internal/logging"
)

// Options configures a Store.
type Options struct {
	// Namespace separates variants sharing one backend (e.g. "image", "video").
	Namespace string
	// UserKey namespaces the records per account.
	UserKey string
	Logger  *slog.Logger
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// Store is the persistent client store for one variant and user.
type Store struct {
	backend kv.Backend
	keys    keySet
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	entries   []Entry
	cleared   IDSet
	persisted IDSet
	clearedAt time.Time
	ephemeral bool
}

// New constructs a Store over backend. Call Reload to populate the mirror.
func New(backend kv.Backend, opts Options) *Store {
	namespace := strings.TrimSpace(opts.Namespace)
	if namespace == "" {
		namespace = "default"
	}
	userKey := strings.TrimSpace(opts.UserKey)
	if userKey == "" {
		userKey = "anon"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Store{
		backend:   backend,
		keys:      newKeySet(namespace, userKey),
		logger:    logging.NewComponentLogger(opts.Logger, "store").With(logging.String(logging.FieldVariant, namespace)),
		now:       now,
		cleared:   IDSet{},
		persisted: IDSet{},
	}
	if backend == nil {
		s.ephemeral = true
	}
	return s
}

// Ephemeral reports whether the store has stopped writing to its backend.
func (s *Store) Ephemeral() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ephemeral
}

// Reload reads all four records from the backend into memory.
func (s *Store) Reload(ctx context.Context) {
	entries := s.Load(ctx)
	cleared := s.LoadClearedSet(ctx)
	persisted := s.LoadPersistedSet(ctx)
	clearedAt := s.LoadClearedAt(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	s.cleared = cleared
	s.persisted = persisted
	s.clearedAt = clearedAt
}

// Load parses the stored entry list. It never fails: unreadable or corrupt
// data yields an empty list.
func (s *Store) Load(ctx context.Context) []Entry {
	raw, ok := s.read(ctx, s.keys.entries)
	if !ok {
		return []Entry{}
	}
	entries, legacy, err := decodeEntries(raw)
	if err != nil {
		s.discard(ctx, s.keys.entries, err)
		return []Entry{}
	}
	sortNewestFirst(entries)
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	if legacy {
		s.mu.Lock()
		s.writeEntriesLocked(ctx, entries)
		s.mu.Unlock()
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries
}

// Save writes entries newest first, keeping at most MaxEntries, and makes
// them the in-memory list. Suppressed ids are left out.
func (s *Store) Save(ctx context.Context, entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeStoredLocked(ctx)
	cp := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if !s.suppressedLocked(entry.JobID) {
			cp = append(cp, entry)
		}
	}
	s.entries = cp
	s.saveEntriesLocked(ctx)
}

// Refresh folds in records written by other processes sharing the backend
// and returns the ids that dropped out of the list because they were
// cleared or persisted elsewhere.
func (s *Store) Refresh(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped, _ := s.mergeStoredLocked(ctx)
	return dropped
}

// LoadClearedSet returns the stored cleared ids.
func (s *Store) LoadClearedSet(ctx context.Context) IDSet {
	return s.loadSet(ctx, s.keys.cleared)
}

// LoadPersistedSet returns the stored persisted ids.
func (s *Store) LoadPersistedSet(ctx context.Context) IDSet {
	return s.loadSet(ctx, s.keys.persisted)
}

// LoadClearedAt returns the timestamp of the last bulk clear, or zero.
func (s *Store) LoadClearedAt(ctx context.Context) time.Time {
	raw, ok := s.read(ctx, s.keys.clearedAt)
	if !ok {
		return time.Time{}
	}
	at, legacy, err := decodeTime(raw)
	if err != nil {
		s.discard(ctx, s.keys.clearedAt, err)
		return time.Time{}
	}
	if legacy {
		s.mu.Lock()
		s.writeTimeLocked(ctx, at)
		s.mu.Unlock()
	}
	return at
}

// SaveClearedAt records the timestamp of a bulk clear.
func (s *Store) SaveClearedAt(ctx context.Context, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearedAt = at
	s.writeTimeLocked(ctx, at)
}

func (s *Store) loadSet(ctx context.Context, key string) IDSet {
	raw, ok := s.read(ctx, key)
	if !ok {
		return IDSet{}
	}
	ids, legacy, err := decodeIDs(raw)
	if err != nil {
		s.discard(ctx, key, err)
		return IDSet{}
	}
	set := NewIDSet(ids...)
	if legacy {
		s.mu.Lock()
		s.writeSetLocked(ctx, key, set)
		s.mu.Unlock()
	}
	return set
}

// mergeStoredLocked brings the mirror up to date with the backend before a
// write. The cleared and persisted sets only grow, so stored ids are unioned
// in; entries held only in the backend are adopted unless suppressed; entries
// suppressed by either set are dropped. Unreadable records are skipped here
// and left to Reload. It returns the dropped ids and whether entries were
// adopted.
func (s *Store) mergeStoredLocked(ctx context.Context) (dropped []string, adopted bool) {
	if s.ephemeral || s.backend == nil {
		return nil, false
	}
	for _, id := range s.peekIDs(ctx, s.keys.cleared) {
		s.cleared.Add(id)
	}
	for _, id := range s.peekIDs(ctx, s.keys.persisted) {
		s.persisted.Add(id)
	}
	if raw, ok := s.read(ctx, s.keys.clearedAt); ok {
		if at, _, err := decodeTime(raw); err == nil && at.After(s.clearedAt) {
			s.clearedAt = at
		}
	}
	if raw, ok := s.read(ctx, s.keys.entries); ok {
		if stored, _, err := decodeEntries(raw); err == nil {
			for _, entry := range stored {
				id := strings.TrimSpace(entry.JobID)
				if id == "" || s.indexLocked(id) >= 0 || s.suppressedLocked(id) {
					continue
				}
				entry.JobID = id
				s.entries = append(s.entries, entry)
				adopted = true
			}
		}
	}

	kept := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		if s.suppressedLocked(entry.JobID) {
			dropped = append(dropped, entry.JobID)
			continue
		}
		kept = append(kept, entry)
	}
	s.entries = kept
	if adopted {
		sortNewestFirst(s.entries)
		if len(s.entries) > MaxEntries {
			s.entries = s.entries[:MaxEntries]
		}
	}
	return dropped, adopted
}

func (s *Store) peekIDs(ctx context.Context, key string) []string {
	raw, ok := s.read(ctx, key)
	if !ok {
		return nil
	}
	ids, _, err := decodeIDs(raw)
	if err != nil {
		return nil
	}
	return ids
}

func (s *Store) read(ctx context.Context, key string) (string, bool) {
	if s.backend == nil {
		return "", false
	}
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.logger.Debug("queue record unreadable", logging.String("key", key), logging.Error(err))
		return "", false
	}
	return raw, ok
}

// discard drops a record that cannot be decoded so it does not fail every load.
func (s *Store) discard(ctx context.Context, key string, cause error) {
	attrs := []logging.Attr{
		logging.String("key", key),
		logging.Error(cause),
		logging.String(logging.FieldImpact, "stored record ignored"),
	}
	if errors.Is(cause, errUnknownVersion) {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, "record written by a different genqueue version"))
	}
	logging.WarnWithContext(s.logger, "discarding unreadable queue record", "store_record_discarded", attrs...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ephemeral {
		return
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		s.degradeLocked(err)
	}
}

// saveEntriesLocked normalizes the in-memory list and writes it through.
func (s *Store) saveEntriesLocked(ctx context.Context) {
	sortNewestFirst(s.entries)
	if len(s.entries) > MaxEntries {
		s.entries = s.entries[:MaxEntries]
	}
	s.writeEntriesLocked(ctx, s.entries)
}

func (s *Store) writeEntriesLocked(ctx context.Context, entries []Entry) {
	value, err := encodeEntries(entries)
	if err != nil {
		s.degradeLocked(err)
		return
	}
	s.writeLocked(ctx, s.keys.entries, value)
}

func (s *Store) writeSetLocked(ctx context.Context, key string, set IDSet) {
	value, err := encodeIDs(set)
	if err != nil {
		s.degradeLocked(err)
		return
	}
	s.writeLocked(ctx, key, value)
}

func (s *Store) writeTimeLocked(ctx context.Context, at time.Time) {
	value, err := encodeTime(at)
	if err != nil {
		s.degradeLocked(err)
		return
	}
	s.writeLocked(ctx, s.keys.clearedAt, value)
}

func (s *Store) writeLocked(ctx context.Context, key, value string) {
	if s.ephemeral {
		return
	}
	if err := s.backend.Set(ctx, key, value); err != nil {
		s.degradeLocked(err)
	}
}

// degradeLocked switches the store to memory-only operation after a write failure.
func (s *Store) degradeLocked(err error) {
	if s.ephemeral {
		return
	}
	s.ephemeral = true
	logging.WarnWithContext(s.logger, "queue storage unavailable; continuing in memory", "store_write_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "queue will not survive a restart"),
		logging.String(logging.FieldErrorHint, "check disk space and permissions of the state directory"),
	)
}
