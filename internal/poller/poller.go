package poller

import (
	"context"
	"log/slog"
	"strings"

	"genqueue/internal/api"
	"genqueue/internal/logging"
)

// DefaultFailureMessage is shown when the server reports failure without a reason.
const DefaultFailureMessage = "Generation failed"

// Phases reported through Update.
const (
	PhaseQueued     = "queued"
	PhaseGenerating = "generating"
	PhaseAlmostDone = "almost done"
	PhaseRetrying   = "reconnecting"
)

// Fetcher is the subset of the API client the poller needs.
type Fetcher interface {
	Status(ctx context.Context, jobID string) (*api.JobStatus, error)
}

// Outcome is how a Run ended.
type Outcome int

const (
	OutcomeDone Outcome = iota + 1
	OutcomeFailed
	OutcomeInaccessible
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeFailed:
		return "failed"
	case OutcomeInaccessible:
		return "inaccessible"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Update is a non-terminal progress report.
type Update struct {
	JobID    string
	Attempt  int
	Progress float64
	Phase    string
}

// Job identifies the work to poll. Cancelled is consulted before each request
// and after each sleep; OnProgress receives every non-terminal observation.
type Job struct {
	ID         string
	Cancelled  func() bool
	OnProgress func(Update)
}

// Result is the terminal observation.
type Result struct {
	JobID     string
	Outcome   Outcome
	ResultURL string
	GalleryID string
	Error     string
	Attempts  int
}

// Poller polls one variant's status endpoint.
type Poller struct {
	Fetcher    Fetcher
	Kind       api.MediaKind
	Policy     Policy
	Clock      Clock
	Visibility Visibility
	Logger     *slog.Logger
}

// Run polls until the job reaches a terminal outcome or is cancelled.
func (p *Poller) Run(ctx context.Context, job Job) Result {
	policy := p.Policy.withDefaults()
	clock := p.Clock
	if clock == nil {
		clock = RealClock{}
	}
	visibility := p.Visibility
	if visibility == nil {
		visibility = AlwaysVisible{}
	}
	logger := logging.NewComponentLogger(p.Logger, "poller").With(logging.String(logging.FieldJobID, job.ID))
	ctx = logging.WithJobID(ctx, job.ID)

	cancelled := func() bool {
		if ctx.Err() != nil {
			return true
		}
		return job.Cancelled != nil && job.Cancelled()
	}
	result := Result{JobID: job.ID}
	stop := func() Result {
		result.Outcome = OutcomeCancelled
		logger.Debug("polling stopped", logging.Int("attempts", result.Attempts))
		return result
	}

	attempt := 0
	slowLogged := false
	for {
		if cancelled() {
			return stop()
		}
		status, err := p.Fetcher.Status(ctx, job.ID)
		if cancelled() {
			return stop()
		}
		if err != nil {
			kind := api.ErrorKind(err)
			if kind == api.KindInaccessible {
				result.Outcome = OutcomeInaccessible
				result.Error = err.Error()
				logger.Info("job no longer accessible", logging.Error(err))
				return result
			}
			logger.Debug("status request failed; retrying",
				logging.Error(err),
				logging.String("error_kind", kind),
				logging.Duration("retry_in", policy.RetryInterval),
			)
			p.report(job, Update{JobID: job.ID, Attempt: attempt, Progress: policy.Progress(nil, attempt), Phase: PhaseRetrying})
			if clock.Sleep(ctx, policy.RetryInterval) != nil || cancelled() {
				return stop()
			}
			continue
		}

		attempt++
		result.Attempts = attempt
		if status.Failed {
			result.Outcome = OutcomeFailed
			result.Error = strings.TrimSpace(status.Error)
			if result.Error == "" {
				result.Error = DefaultFailureMessage
			}
			logger.Info("generation failed", logging.String("reason", result.Error), logging.Int("attempts", attempt))
			return result
		}
		if status.Done {
			if url := status.ResultURL(p.Kind); url != "" {
				result.Outcome = OutcomeDone
				result.ResultURL = url
				result.GalleryID = status.GalleryID.String()
				logger.Info("generation complete", logging.Int("attempts", attempt))
				return result
			}
			logger.Debug("job reported done without a result yet")
		}

		phase := strings.TrimSpace(status.Stage)
		if phase == "" {
			phase = PhaseGenerating
			if status.Progress == nil && attempt == 1 {
				phase = PhaseQueued
			}
		}
		if policy.Exhausted(attempt) {
			phase = PhaseAlmostDone
			if !slowLogged {
				slowLogged = true
				logger.Info("soft poll budget spent; slowing down", logging.Int("attempts", attempt))
			}
		}
		p.report(job, Update{JobID: job.ID, Attempt: attempt, Progress: policy.Progress(status.Progress, attempt), Phase: phase})

		if clock.Sleep(ctx, policy.Delay(attempt, visibility.Hidden())) != nil || cancelled() {
			return stop()
		}
	}
}

func (p *Poller) report(job Job, update Update) {
	if job.OnProgress != nil {
		job.OnProgress(update)
	}
}
