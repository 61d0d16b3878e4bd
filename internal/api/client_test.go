package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"genqueue/internal/api"
	"genqueue/internal/config"
)

type recordedRequest struct {
	method    string
	path      string
	query     string
	form      map[string]string
	csrf      string
	requestID string
	session   string
}

type fakeServer struct {
	t        *testing.T
	mu       sync.Mutex
	requests []recordedRequest
	handlers map[string]http.HandlerFunc
	server   *httptest.Server
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{t: t, handlers: map[string]http.HandlerFunc{}}
	fs.server = httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeServer) handle(method, path string, handler http.HandlerFunc) {
	fs.handlers[method+" "+path] = handler
}

func (fs *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	rec := recordedRequest{
		method:    r.Method,
		path:      r.URL.Path,
		query:     r.URL.RawQuery,
		form:      map[string]string{},
		csrf:      r.Header.Get("X-CSRFToken"),
		requestID: r.Header.Get("X-Request-ID"),
	}
	for key := range r.PostForm {
		rec.form[key] = r.PostForm.Get(key)
	}
	if cookie, err := r.Cookie("sessionid"); err == nil {
		rec.session = cookie.Value
	}
	fs.mu.Lock()
	fs.requests = append(fs.requests, rec)
	fs.mu.Unlock()

	handler, ok := fs.handlers[r.Method+" "+r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	handler(w, r)
}

func (fs *fakeServer) last() recordedRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.requests) == 0 {
		fs.t.Fatal("no requests recorded")
	}
	return fs.requests[len(fs.requests)-1]
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newClient(t *testing.T, fs *fakeServer, kind api.MediaKind) *api.Client {
	t.Helper()
	cfg := config.Default()
	cfg.Server.BaseURL = fs.server.URL
	cfg.Server.SessionCookie = "sess-1"
	cfg.Server.CSRFToken = "csrf-1"
	return api.FromConfig(&cfg, kind, nil)
}

func TestSubmitSendsFormWithCredentials(t *testing.T) {
	fs := newFakeServer(t)
	fs.handle(http.MethodPost, "/generate/image/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"job_ids":[101,"102",101]}`)
	})
	client := newClient(t, fs, api.KindImage)

	resp, err := client.Submit(context.Background(), api.SubmitRequest{Prompt: "  a red fox  ", Count: 2, AspectRatio: "16:9"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if got := strings.Join(resp.JobIDs(), ","); got != "101,102" {
		t.Fatalf("unexpected job ids %q", got)
	}

	req := fs.last()
	if req.form["prompt"] != "a red fox" || req.form["count"] != "2" || req.form["aspect_ratio"] != "16:9" {
		t.Fatalf("unexpected form %+v", req.form)
	}
	if req.csrf != "csrf-1" || req.session != "sess-1" {
		t.Fatalf("expected credentials, got csrf=%q session=%q", req.csrf, req.session)
	}
	if len(req.requestID) != 36 {
		t.Fatalf("expected uuid request id, got %q", req.requestID)
	}
}

func TestSubmitAcceptsSingleIDShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "job id number", body: `{"job_id": 42}`, want: "42"},
		{name: "id string", body: `{"id": "abc"}`, want: "abc"},
		{name: "job ids win", body: `{"id": 1, "job_ids": [7, 8]}`, want: "7,8"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := newFakeServer(t)
			fs.handle(http.MethodPost, "/generate/image/", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tc.body)
			})
			resp, err := newClient(t, fs, api.KindImage).Submit(context.Background(), api.SubmitRequest{Prompt: "p", Count: 1})
			if err != nil {
				t.Fatalf("Submit returned error: %v", err)
			}
			if got := strings.Join(resp.JobIDs(), ","); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestSubmitImmediateVideoResult(t *testing.T) {
	fs := newFakeServer(t)
	fs.handle(http.MethodPost, "/generate/video/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"job_id": 9, "video": {"url": "https://cdn/v.mp4"}, "gallery_id": 3}`)
	})
	resp, err := newClient(t, fs, api.KindVideo).Submit(context.Background(), api.SubmitRequest{Prompt: "p", Count: 1})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if resp.ResultURL(api.KindVideo) != "https://cdn/v.mp4" || resp.ResultURL(api.KindImage) != "" {
		t.Fatalf("unexpected result urls %+v", resp)
	}
	if resp.GalleryID != "3" {
		t.Fatalf("unexpected gallery id %q", resp.GalleryID)
	}
}

func TestSubmitValidation(t *testing.T) {
	fs := newFakeServer(t)
	client := newClient(t, fs, api.KindImage)
	cases := []api.SubmitRequest{
		{Prompt: "", Count: 1},
		{Prompt: "p", Count: 0},
		{Prompt: "p", Count: 9},
		{Prompt: "p", Count: 1, AspectRatio: "5:7"},
	}
	for _, req := range cases {
		_, err := client.Submit(context.Background(), req)
		if !errors.Is(err, api.ErrInvalidRequest) {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
		if api.ErrorKind(err) != api.KindValidation {
			t.Fatalf("unexpected kind %q", api.ErrorKind(err))
		}
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.requests) != 0 {
		t.Fatalf("invalid submissions must not reach the server, saw %d", len(fs.requests))
	}
}

func TestSubmitServerRejection(t *testing.T) {
	fs := newFakeServer(t)
	fs.handle(http.MethodPost, "/generate/image/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusPaymentRequired, `{"error": "Not enough credits"}`)
	})
	_, err := newClient(t, fs, api.KindImage).Submit(context.Background(), api.SubmitRequest{Prompt: "p", Count: 1})
	var httpErr *api.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected HTTPError 402, got %v", err)
	}
	if api.UserMessage(err) != "Not enough credits" {
		t.Fatalf("unexpected user message %q", api.UserMessage(err))
	}
}

func TestStatusParsesProgressAndResult(t *testing.T) {
	fs := newFakeServer(t)
	fs.handle(http.MethodGet, "/generate/status/42/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"done": true, "progress": 100, "image": {"url": "https://cdn/x.png"}, "gallery_id": "g-1"}`)
	})
	status, err := newClient(t, fs, api.KindImage).Status(context.Background(), "42")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if !status.Done || status.ResultURL(api.KindImage) != "https://cdn/x.png" || status.GalleryID != "g-1" {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.Progress == nil || *status.Progress != 100 {
		t.Fatalf("unexpected progress %v", status.Progress)
	}
}

func TestStatusInaccessible(t *testing.T) {
	for _, code := range []int{http.StatusForbidden, http.StatusNotFound} {
		fs := newFakeServer(t)
		fs.handle(http.MethodGet, "/generate/status/7/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, code, `{"error": "nope"}`)
		})
		_, err := newClient(t, fs, api.KindImage).Status(context.Background(), "7")
		if !errors.Is(err, api.ErrInaccessible) {
			t.Fatalf("status %d: expected ErrInaccessible, got %v", code, err)
		}
		if api.ErrorKind(err) != api.KindInaccessible {
			t.Fatalf("status %d: unexpected kind %q", code, api.ErrorKind(err))
		}
	}
}

func TestStatusTransientFailures(t *testing.T) {
	fs := newFakeServer(t)
	fs.handle(http.MethodGet, "/generate/status/1/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, `<html>bad gateway</html>`)
	})
	fs.handle(http.MethodGet, "/generate/status/2/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"done": tru`)
	})
	client := newClient(t, fs, api.KindImage)
	for _, id := range []string{"1", "2"} {
		_, err := client.Status(context.Background(), id)
		if err == nil {
			t.Fatalf("job %s: expected error", id)
		}
		if errors.Is(err, api.ErrInaccessible) {
			t.Fatalf("job %s: should not be inaccessible", id)
		}
		if api.ErrorKind(err) != api.KindTransient {
			t.Fatalf("job %s: unexpected kind %q", id, api.ErrorKind(err))
		}
	}
}

func TestCompletedParsesMixedTimestamps(t *testing.T) {
	fs := newFakeServer(t)
	fs.handle(http.MethodGet, "/generate/api/completed-jobs/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success": true, "jobs": [
			{"job_id": 5, "status": "completed", "image_url": "https://cdn/5.png", "created_at": "2026-03-14T11:00:00Z", "generation_type": "image"},
			{"job_id": "6", "status": "completed", "image_url": "https://cdn/6.png", "created_at": 1773486000},
			{"job_id": 7, "status": "failed", "created_at": null}
		]}`)
	})
	listing, err := newClient(t, fs, api.KindImage).Completed(context.Background())
	if err != nil {
		t.Fatalf("Completed returned error: %v", err)
	}
	if fs.last().query != "type=image" {
		t.Fatalf("expected type query, got %q", fs.last().query)
	}
	if len(listing.Jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(listing.Jobs))
	}
	want := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	if !listing.Jobs[0].CreatedAt.Equal(want) {
		t.Fatalf("unexpected RFC3339 time %v", listing.Jobs[0].CreatedAt)
	}
	if !listing.Jobs[1].CreatedAt.Equal(time.Unix(1773486000, 0)) {
		t.Fatalf("unexpected epoch time %v", listing.Jobs[1].CreatedAt)
	}
	if !listing.Jobs[2].CreatedAt.IsZero() {
		t.Fatalf("expected zero time for null, got %v", listing.Jobs[2].CreatedAt)
	}
	if listing.Jobs[1].JobID != "6" || listing.Jobs[1].ResultURL(api.KindImage) != "https://cdn/6.png" {
		t.Fatalf("unexpected job %+v", listing.Jobs[1])
	}
}

func TestPersistReportsServerMessage(t *testing.T) {
	fs := newFakeServer(t)
	fs.handle(http.MethodPost, "/generate/persist/11/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"ok": true}`)
	})
	fs.handle(http.MethodPost, "/generate/persist/12/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"ok": false, "error": "Gallery is full"}`)
	})
	client := newClient(t, fs, api.KindImage)
	if err := client.Persist(context.Background(), "11"); err != nil {
		t.Fatalf("Persist returned error: %v", err)
	}
	err := client.Persist(context.Background(), "12")
	var actionErr *api.ActionError
	if !errors.As(err, &actionErr) || actionErr.Message != "Gallery is full" {
		t.Fatalf("expected ActionError, got %v", err)
	}
	if api.ErrorKind(err) != api.KindRejected {
		t.Fatalf("unexpected kind %q", api.ErrorKind(err))
	}
}

func TestRemoveAndClear(t *testing.T) {
	fs := newFakeServer(t)
	fs.handle(http.MethodPost, "/generate/queue/remove/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"ok": true}`)
	})
	fs.handle(http.MethodPost, "/generate/queue/clear/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"ok": true}`)
	})
	client := newClient(t, fs, api.KindImage)

	if err := client.RemoveJob(context.Background(), "77", true); err != nil {
		t.Fatalf("RemoveJob returned error: %v", err)
	}
	req := fs.last()
	if req.form["job_id"] != "77" || req.form["keep_saved"] != "1" {
		t.Fatalf("unexpected remove form %+v", req.form)
	}
	if err := client.ClearQueue(context.Background()); err != nil {
		t.Fatalf("ClearQueue returned error: %v", err)
	}
	if fs.last().path != "/generate/queue/clear/" {
		t.Fatalf("unexpected clear path %q", fs.last().path)
	}
}
