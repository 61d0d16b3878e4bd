package queue

import (
	"sort"
	"strings"
	"time"
)

// Status represents the lifecycle of a tracked generation job.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

const (
	// MaxEntries bounds the stored entry list; the oldest entries are evicted first.
	MaxEntries = 24
	// TTL is how long an entry stays visible after it was enqueued.
	TTL = 24 * time.Hour
)

// ParseStatus converts a string into a known Status. Server spellings such as
// "completed" and "succeeded" map to StatusDone.
func ParseStatus(value string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "pending", "queued", "running", "processing":
		return StatusPending, true
	case "done", "completed", "complete", "succeeded", "success":
		return StatusDone, true
	case "failed", "error":
		return StatusFailed, true
	default:
		return "", false
	}
}

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Entry is one tracked generation job.
type Entry struct {
	JobID        string    `json:"jobId"`
	Status       Status    `json:"status"`
	ResultURL    string    `json:"resultUrl,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	GalleryID    string    `json:"galleryId,omitempty"`
	Progress     float64   `json:"progress,omitempty"`
	Phase        string    `json:"phase,omitempty"`
	Prompt       string    `json:"prompt,omitempty"`
}

// Expired reports whether the entry must no longer be shown at now, given the
// timestamp of the last bulk clear. A zero CreatedAt counts as expired.
func (e Entry) Expired(now, clearedAt time.Time) bool {
	if e.CreatedAt.IsZero() {
		return true
	}
	if now.Sub(e.CreatedAt) > TTL {
		return true
	}
	return !clearedAt.IsZero() && !e.CreatedAt.After(clearedAt)
}

// SetDone marks the entry as finished with a result.
func (e *Entry) SetDone(resultURL, galleryID string) {
	e.Status = StatusDone
	e.ResultURL = resultURL
	e.ErrorMessage = ""
	if galleryID != "" {
		e.GalleryID = galleryID
	}
	e.Progress = 100
}

// SetFailed marks the entry as failed with the given message.
func (e *Entry) SetFailed(message string) {
	e.Status = StatusFailed
	e.ErrorMessage = message
	e.ResultURL = ""
}

// sortNewestFirst orders entries by CreatedAt descending; ties keep their
// relative order.
func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}

// IDSet is a set of job identifiers.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids, skipping blanks.
func NewIDSet(ids ...string) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	s[id] = struct{}{}
}

// Sorted returns the ids in lexical order, the wire representation.
func (s IDSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s IDSet) clone() IDSet {
	cp := make(IDSet, len(s))
	for id := range s {
		cp[id] = struct{}{}
	}
	return cp
}
