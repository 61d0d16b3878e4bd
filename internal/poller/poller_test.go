package poller_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"genqueue/internal/api"
	"genqueue/internal/config"
	"genqueue/internal/poller"
	"genqueue/internal/testsupport"
)

type step struct {
	status *api.JobStatus
	err    error
}

type scriptedFetcher struct {
	mu    sync.Mutex
	steps []step
	calls int
	hook  func(call int)
}

func (f *scriptedFetcher) Status(_ context.Context, _ string) (*api.JobStatus, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	var s step
	if len(f.steps) > 0 {
		s = f.steps[0]
		if len(f.steps) > 1 {
			f.steps = f.steps[1:]
		}
	}
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return s.status, s.err
}

func pending(progress *float64) step {
	return step{status: &api.JobStatus{Progress: progress}}
}

func pct(v float64) *float64 { return &v }

func newPoller(f poller.Fetcher, clock poller.Clock, policy poller.Policy) *poller.Poller {
	return &poller.Poller{Fetcher: f, Kind: api.KindImage, Policy: policy, Clock: clock}
}

func TestPolicyDelaysGrowAndCap(t *testing.T) {
	p := poller.DefaultPolicy()
	if got := p.Delay(1, false); got != 950*time.Millisecond {
		t.Fatalf("first delay %v", got)
	}
	second := p.Delay(2, false)
	if second <= 950*time.Millisecond || second > 1100*time.Millisecond {
		t.Fatalf("expected ~1092ms second delay, got %v", second)
	}
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		if d := p.Delay(attempt, false); d > p.MaxInterval {
			t.Fatalf("attempt %d delay %v exceeds max", attempt, d)
		}
	}
	if got := p.Delay(20, false); got != p.MaxInterval {
		t.Fatalf("expected capped delay, got %v", got)
	}
	if got := p.Delay(20, true); got != 2*p.MaxInterval {
		t.Fatalf("expected hidden factor, got %v", got)
	}
	if got := p.Delay(p.MaxAttempts, false); got != 5*time.Second {
		t.Fatalf("expected slow cadence after budget, got %v", got)
	}
}

func TestFixedPolicy(t *testing.T) {
	p := poller.FixedPolicy(time.Second)
	for _, attempt := range []int{1, 5, 50} {
		if got := p.Delay(attempt, false); got != time.Second {
			t.Fatalf("attempt %d: got %v", attempt, got)
		}
	}
	cfg := config.Default()
	fromCfg := poller.PolicyFromConfig(cfg.Poll, true)
	if !fromCfg.Fixed || fromCfg.Delay(3, false) != time.Second {
		t.Fatalf("unexpected video policy %+v", fromCfg)
	}
	image := poller.PolicyFromConfig(cfg.Poll, false)
	if image.Fixed || image.Delay(1, false) != 950*time.Millisecond {
		t.Fatalf("unexpected image policy %+v", image)
	}
}

func TestProgressCappedBelowDone(t *testing.T) {
	p := poller.DefaultPolicy()
	if got := p.Progress(pct(40), 3); got != 40 {
		t.Fatalf("server progress: %v", got)
	}
	if got := p.Progress(pct(100), 3); got != 98 {
		t.Fatalf("server progress must be capped, got %v", got)
	}
	if got := p.Progress(nil, 60); got != 50 {
		t.Fatalf("estimated progress: %v", got)
	}
	if got := p.Progress(nil, 500); got != 98 {
		t.Fatalf("estimate must be capped, got %v", got)
	}
}

func TestRunReportsProgressThenDone(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{
		pending(pct(40)),
		{status: &api.JobStatus{Done: true, Image: &api.Media{URL: "https://cdn/42.png"}, GalleryID: "g9"}},
	}}
	clock := testsupport.NewFakeClock(time.Unix(0, 0))
	var updates []poller.Update
	result := newPoller(fetcher, clock, poller.DefaultPolicy()).Run(context.Background(), poller.Job{
		ID:         "42",
		OnProgress: func(u poller.Update) { updates = append(updates, u) },
	})

	if result.Outcome != poller.OutcomeDone || result.ResultURL != "https://cdn/42.png" || result.GalleryID != "g9" {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(updates) != 1 || updates[0].Progress != 40 {
		t.Fatalf("unexpected updates %+v", updates)
	}
	if sleeps := clock.Sleeps(); len(sleeps) != 1 || sleeps[0] != 950*time.Millisecond {
		t.Fatalf("unexpected sleeps %v", sleeps)
	}
}

func TestRunFailureMessages(t *testing.T) {
	cases := []struct {
		name   string
		status *api.JobStatus
		want   string
	}{
		{name: "server reason", status: &api.JobStatus{Failed: true, Error: "NSFW content"}, want: "NSFW content"},
		{name: "default reason", status: &api.JobStatus{Failed: true}, want: poller.DefaultFailureMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := &scriptedFetcher{steps: []step{{status: tc.status}}}
			result := newPoller(fetcher, testsupport.NewFakeClock(time.Unix(0, 0)), poller.DefaultPolicy()).
				Run(context.Background(), poller.Job{ID: "1"})
			if result.Outcome != poller.OutcomeFailed || result.Error != tc.want {
				t.Fatalf("unexpected result %+v", result)
			}
		})
	}
}

func TestRunInaccessibleStops(t *testing.T) {
	notFound := &api.HTTPError{Method: "GET", Path: "/x", StatusCode: 404}
	fetcher := &scriptedFetcher{steps: []step{{err: notFound}}}
	result := newPoller(fetcher, testsupport.NewFakeClock(time.Unix(0, 0)), poller.DefaultPolicy()).
		Run(context.Background(), poller.Job{ID: "404"})
	if result.Outcome != poller.OutcomeInaccessible {
		t.Fatalf("expected inaccessible, got %+v", result)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected a single request, got %d", fetcher.calls)
	}
}

func TestRunRetriesTransientErrorsIndefinitely(t *testing.T) {
	var steps []step
	for i := 0; i < 200; i++ {
		steps = append(steps, step{err: errors.New("connection reset")})
	}
	steps = append(steps, step{status: &api.JobStatus{Done: true, ImageURL: "https://cdn/late.png"}})
	fetcher := &scriptedFetcher{steps: steps}
	clock := testsupport.NewFakeClock(time.Unix(0, 0))

	result := newPoller(fetcher, clock, poller.DefaultPolicy()).Run(context.Background(), poller.Job{ID: "7"})
	if result.Outcome != poller.OutcomeDone || result.ResultURL != "https://cdn/late.png" {
		t.Fatalf("unexpected result %+v", result)
	}
	sleeps := clock.Sleeps()
	if len(sleeps) != 200 {
		t.Fatalf("expected 200 retry sleeps, got %d", len(sleeps))
	}
	for _, d := range sleeps {
		if d != 1500*time.Millisecond {
			t.Fatalf("unexpected retry delay %v", d)
		}
	}
}

func TestRunKeepsPollingPastSoftBudget(t *testing.T) {
	policy := poller.DefaultPolicy()
	policy.MaxAttempts = 3
	var steps []step
	for i := 0; i < 6; i++ {
		steps = append(steps, pending(nil))
	}
	steps = append(steps, step{status: &api.JobStatus{Done: true, ImageURL: "https://cdn/slow.png"}})
	fetcher := &scriptedFetcher{steps: steps}
	clock := testsupport.NewFakeClock(time.Unix(0, 0))
	var phases []string

	result := newPoller(fetcher, clock, policy).Run(context.Background(), poller.Job{
		ID:         "slow",
		OnProgress: func(u poller.Update) { phases = append(phases, u.Phase) },
	})
	if result.Outcome != poller.OutcomeDone || result.Attempts != 7 {
		t.Fatalf("unexpected result %+v", result)
	}
	if phases[len(phases)-1] != poller.PhaseAlmostDone || phases[0] == poller.PhaseAlmostDone {
		t.Fatalf("unexpected phases %v", phases)
	}
	sleeps := clock.Sleeps()
	if sleeps[len(sleeps)-1] != 5*time.Second {
		t.Fatalf("expected slow cadence, got %v", sleeps)
	}
}

func TestRunHiddenDoublesDelay(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{
		pending(nil),
		{status: &api.JobStatus{Done: true, ImageURL: "u"}},
	}}
	clock := testsupport.NewFakeClock(time.Unix(0, 0))
	p := newPoller(fetcher, clock, poller.DefaultPolicy())
	p.Visibility = poller.VisibilityFunc(func() bool { return true })
	p.Run(context.Background(), poller.Job{ID: "h"})
	if sleeps := clock.Sleeps(); len(sleeps) != 1 || sleeps[0] != 1900*time.Millisecond {
		t.Fatalf("unexpected sleeps %v", sleeps)
	}
}

func TestRunStopsWhenCancelled(t *testing.T) {
	var cancelled bool
	var mu sync.Mutex
	fetcher := &scriptedFetcher{steps: []step{pending(nil)}}
	fetcher.hook = func(call int) {
		if call == 3 {
			mu.Lock()
			cancelled = true
			mu.Unlock()
		}
	}
	result := newPoller(fetcher, testsupport.NewFakeClock(time.Unix(0, 0)), poller.DefaultPolicy()).
		Run(context.Background(), poller.Job{ID: "c", Cancelled: func() bool {
			mu.Lock()
			defer mu.Unlock()
			return cancelled
		}})
	if result.Outcome != poller.OutcomeCancelled {
		t.Fatalf("expected cancelled, got %+v", result)
	}
	if fetcher.calls != 3 {
		t.Fatalf("expected polling to stop at the third request, got %d", fetcher.calls)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &scriptedFetcher{steps: []step{pending(nil)}}
	fetcher.hook = func(call int) {
		if call == 2 {
			cancel()
		}
	}
	result := newPoller(fetcher, testsupport.NewFakeClock(time.Unix(0, 0)), poller.DefaultPolicy()).
		Run(ctx, poller.Job{ID: "ctx"})
	if result.Outcome != poller.OutcomeCancelled {
		t.Fatalf("expected cancelled, got %+v", result)
	}
}

func TestRealClockSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (poller.RealClock{}).Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
