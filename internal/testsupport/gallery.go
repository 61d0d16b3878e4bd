package testsupport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Reply is a scripted HTTP response.
type Reply struct {
	Code int
	Body string
}

// JSON is a 200 reply.
func JSON(body string) Reply { return Reply{Code: http.StatusOK, Body: body} }

// Gallery fakes the generation gallery routes for both variants using the
// default endpoint layout.
type Gallery struct {
	URL string

	mu        sync.Mutex
	submit    map[string]Reply
	statuses  map[string][]Reply
	completed map[string]Reply
	actions   map[string]Reply
	gates     map[string]chan struct{}
	calls     []string
	forms     []map[string]string
}

// NewGallery starts a fake gallery server that is closed with the test.
func NewGallery(t testing.TB) *Gallery {
	t.Helper()
	g := &Gallery{
		submit:    map[string]Reply{},
		statuses:  map[string][]Reply{},
		completed: map[string]Reply{},
		actions:   map[string]Reply{},
		gates:     map[string]chan struct{}{},
	}
	server := httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(server.Close)
	g.URL = server.URL
	return g
}

// SetSubmit scripts the submit reply for kind ("image" or "video").
func (g *Gallery) SetSubmit(kind string, reply Reply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submit[kind] = reply
}

// QueueStatus appends status replies for jobID; the last one repeats.
func (g *Gallery) QueueStatus(jobID string, replies ...Reply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[jobID] = append(g.statuses[jobID], replies...)
}

// GateStatus makes status requests for jobID block until the returned
// function is called.
func (g *Gallery) GateStatus(jobID string) (release func()) {
	ch := make(chan struct{})
	g.mu.Lock()
	g.gates[jobID] = ch
	g.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// SetCompleted scripts the completed-jobs listing for kind.
func (g *Gallery) SetCompleted(kind string, reply Reply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[kind] = reply
}

// SetAction scripts "persist", "clear" or "remove" replies.
func (g *Gallery) SetAction(name string, reply Reply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.actions[name] = reply
}

// Calls returns "METHOD path" for every request received.
func (g *Gallery) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.calls))
	copy(out, g.calls)
	return out
}

// CountCalls counts requests whose "METHOD path" starts with prefix.
func (g *Gallery) CountCalls(prefix string) int {
	n := 0
	for _, call := range g.Calls() {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

// LastForm returns the form of the most recent POST.
func (g *Gallery) LastForm() map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.forms) == 0 {
		return nil
	}
	return g.forms[len(g.forms)-1]
}

func (g *Gallery) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	path := r.URL.Path

	g.mu.Lock()
	g.calls = append(g.calls, r.Method+" "+path)
	if r.Method == http.MethodPost {
		form := map[string]string{}
		for key := range r.PostForm {
			form[key] = r.PostForm.Get(key)
		}
		g.forms = append(g.forms, form)
	}
	g.mu.Unlock()

	switch {
	case path == "/generate/image/" || path == "/generate/video/":
		g.write(w, g.lookup(g.submit, strings.Trim(strings.TrimPrefix(path, "/generate/"), "/")))
	case path == "/generate/api/completed-jobs/":
		kind := r.URL.Query().Get("type")
		g.write(w, g.lookup(g.completed, kind))
	case path == "/generate/queue/clear/":
		g.write(w, g.action("clear"))
	case path == "/generate/queue/remove/":
		g.write(w, g.action("remove"))
	case strings.HasPrefix(path, "/generate/persist/") || strings.HasPrefix(path, "/generate/video/persist/"):
		g.write(w, g.action("persist"))
	case strings.HasPrefix(path, "/generate/status/") || strings.HasPrefix(path, "/generate/video/status/"):
		jobID := lastSegment(path)
		g.waitGate(r, jobID)
		g.write(w, g.nextStatus(jobID))
	default:
		http.NotFound(w, r)
	}
}

func (g *Gallery) lookup(m map[string]Reply, key string) Reply {
	g.mu.Lock()
	defer g.mu.Unlock()
	if reply, ok := m[key]; ok {
		return reply
	}
	return Reply{Code: http.StatusInternalServerError, Body: `{"error":"not scripted"}`}
}

func (g *Gallery) action(name string) Reply {
	g.mu.Lock()
	defer g.mu.Unlock()
	if reply, ok := g.actions[name]; ok {
		return reply
	}
	return JSON(`{"ok": true}`)
}

func (g *Gallery) nextStatus(jobID string) Reply {
	g.mu.Lock()
	defer g.mu.Unlock()
	replies := g.statuses[jobID]
	if len(replies) == 0 {
		return Reply{Code: http.StatusNotFound, Body: `{"error":"unknown job"}`}
	}
	reply := replies[0]
	if len(replies) > 1 {
		g.statuses[jobID] = replies[1:]
	}
	return reply
}

func (g *Gallery) waitGate(r *http.Request, jobID string) {
	g.mu.Lock()
	gate := g.gates[jobID]
	g.mu.Unlock()
	if gate == nil {
		return
	}
	select {
	case <-gate:
	case <-r.Context().Done():
	}
}

func (g *Gallery) write(w http.ResponseWriter, reply Reply) {
	code := reply.Code
	if code == 0 {
		code = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(reply.Body))
}

func lastSegment(path string) string {
	trimmed := strings.Trim(path, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
