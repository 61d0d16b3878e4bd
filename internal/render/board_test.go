package render_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"genqueue/internal/render"
)

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newBoard(t *testing.T) (*render.Board, *bytes.Buffer, *fakeNow) {
	t.Helper()
	var buf bytes.Buffer
	clock := &fakeNow{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	off := false
	board := render.NewBoard(render.Options{Writer: &buf, Color: &off, Variant: "image", Now: clock.Now})
	return board, &buf, clock
}

func lines(buf *bytes.Buffer) []string {
	trimmed := strings.TrimSpace(buf.String())
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func TestPlaceholdersAreMostRecentFirst(t *testing.T) {
	board, _, _ := newBoard(t)
	first := board.Placeholder("first")
	board.Placeholder("second")
	board.Bind(first, "1")

	views := board.Tiles()
	if len(views) != 2 || views[0].Prompt != "second" || views[1].JobID != "1" {
		t.Fatalf("unexpected order %+v", views)
	}
	if views[1].State != render.StatePending || views[0].State != render.StatePlaceholder {
		t.Fatalf("unexpected states %+v", views)
	}
	if board.Find("1") != first {
		t.Fatal("expected Find to return bound tile")
	}
}

func TestDiscardRemovesPlaceholder(t *testing.T) {
	board, _, _ := newBoard(t)
	tile := board.Placeholder("extra")
	board.Discard(tile)
	if board.Len() != 0 {
		t.Fatalf("expected empty board, got %d", board.Len())
	}
	if board.Bind(tile, "9") {
		t.Fatal("discarded tile must not bind")
	}
}

func TestSetProgressThrottlesSmallFastChanges(t *testing.T) {
	board, buf, clock := newBoard(t)
	tile := board.Placeholder("p")
	board.Bind(tile, "42")
	buf.Reset()

	if !board.SetProgress(tile, 10, "generating") {
		t.Fatal("first write should be accepted")
	}
	clock.advance(50 * time.Millisecond)
	if board.SetProgress(tile, 11, "generating") {
		t.Fatal("small change inside window should be throttled")
	}
	if !board.SetProgress(tile, 14, "generating") {
		t.Fatal("large change inside window should be written")
	}
	clock.advance(200 * time.Millisecond)
	if !board.SetProgress(tile, 15, "generating") {
		t.Fatal("small change after window should be written")
	}
	if board.SetProgress(tile, 15, "generating") {
		t.Fatal("identical progress should be a no-op")
	}
	if !board.SetProgress(tile, 15, "almost done") {
		t.Fatal("phase change should be written")
	}
	if got := len(lines(buf)); got != 4 {
		t.Fatalf("expected 4 progress lines, got %d: %q", got, buf.String())
	}
}

func TestSetProgressNeverRegresses(t *testing.T) {
	board, _, clock := newBoard(t)
	tile := board.Placeholder("p")
	board.Bind(tile, "42")
	board.SetProgress(tile, 40, "generating")
	clock.advance(time.Second)
	board.SetProgress(tile, 20, "reconnecting")
	if view := board.View(tile); view.Progress != 40 || view.Phase != "reconnecting" {
		t.Fatalf("expected clamped progress, got %+v", view)
	}
}

func TestTerminalStatesAreIrrevocable(t *testing.T) {
	board, buf, _ := newBoard(t)
	tile := board.Placeholder("p")
	board.Bind(tile, "42")
	if !board.RenderResult(tile, "https://cdn/42.png", "42", "g1") {
		t.Fatal("expected result to render")
	}
	if board.RenderError(tile, "late failure") {
		t.Fatal("done tile must not turn failed")
	}
	if board.SetProgress(tile, 50, "generating") {
		t.Fatal("done tile must not accept progress")
	}
	view := board.View(tile)
	if view.State != render.StateDone || view.ResultURL != "https://cdn/42.png" || view.Action != render.ActionIdle {
		t.Fatalf("unexpected view %+v", view)
	}
	last := lines(buf)[len(lines(buf))-1]
	if !strings.Contains(last, "Done") || !strings.Contains(last, "Image · Job 42") || !strings.Contains(last, "https://cdn/42.png") {
		t.Fatalf("unexpected event line %q", last)
	}
}

func TestRenderErrorMentionsNoCharge(t *testing.T) {
	board, _, _ := newBoard(t)
	tile := board.Placeholder("p")
	board.Bind(tile, "5")
	board.RenderError(tile, "Content blocked")
	view := board.View(tile)
	if view.State != render.StateFailed || view.Message != "Content blocked. No credits were charged." {
		t.Fatalf("unexpected failure view %+v", view)
	}
	if got := render.FailureText(""); got != "Generation failed. No credits were charged." {
		t.Fatalf("unexpected default failure text %q", got)
	}
	if got := render.FailureText("Oops. No credits were charged."); got != "Oops. No credits were charged." {
		t.Fatalf("notice should not repeat: %q", got)
	}
}

func TestActionTransitions(t *testing.T) {
	board, _, _ := newBoard(t)
	tile := board.Placeholder("p")
	board.Bind(tile, "8")
	if board.BeginSave(tile) {
		t.Fatal("pending tile has no save action")
	}
	board.RenderResult(tile, "u", "8", "")
	if !board.BeginSave(tile) || board.BeginSave(tile) {
		t.Fatal("expected exactly one idle to saving transition")
	}
	if !board.ResetAction(tile) || board.View(tile).Action != render.ActionIdle {
		t.Fatal("expected reset to idle")
	}
	board.BeginSave(tile)
	if !board.MarkSaved(tile) || board.View(tile).Action != render.ActionSaved {
		t.Fatal("expected saved")
	}
}

func TestRemoveAndClear(t *testing.T) {
	board, _, _ := newBoard(t)
	a := board.Placeholder("a")
	board.Bind(a, "1")
	b := board.Placeholder("b")
	board.Bind(b, "2")

	if !board.Remove("1") || board.Remove("1") {
		t.Fatal("expected single removal")
	}
	if board.RenderResult(a, "u", "1", "") {
		t.Fatal("removed tile must not render")
	}
	board.Clear()
	if board.Len() != 0 || board.Active() != 0 {
		t.Fatalf("expected empty board after clear")
	}
}

func TestRestoreKeepsOrderAndDeduplicates(t *testing.T) {
	board, _, _ := newBoard(t)
	board.Restore("3", "newest")
	board.Restore("2", "older")
	board.Restore("3", "dup")
	views := board.Tiles()
	if len(views) != 2 || views[0].JobID != "3" || views[1].JobID != "2" {
		t.Fatalf("unexpected restored order %+v", views)
	}
}

func TestSnapshotRendersTable(t *testing.T) {
	board, _, _ := newBoard(t)
	tile := board.Placeholder("a lighthouse at dusk")
	board.Bind(tile, "42")
	board.SetProgress(tile, 40, "generating")

	var out bytes.Buffer
	if err := board.Snapshot(&out); err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Job", "Status", "42", "Pending", "40%", "a lighthouse at dusk"} {
		if !strings.Contains(text, want) {
			t.Fatalf("snapshot missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "JOB") {
		t.Fatalf("snapshot headers should keep their case:\n%s", text)
	}
}

func TestLabelTitleCases(t *testing.T) {
	if got := render.Label("almost done"); got != "Almost Done" {
		t.Fatalf("unexpected label %q", got)
	}
}
