package generation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"genqueue/internal/api"
	"genqueue/internal/logging"
	"genqueue/internal/notifications"
	"genqueue/internal/poller"
	"genqueue/internal/queue"
	"genqueue/internal/render"
)

// DefaultExitDelay is how long a saved tile stays visible before it is removed.
const DefaultExitDelay = 600 * time.Millisecond

var (
	// ErrSubmitInFlight rejects a submission while another is being sent.
	ErrSubmitInFlight = errors.New("a submission is already in progress")
	// ErrUnknownJob reports an action on a job the queue does not track.
	ErrUnknownJob = errors.New("job is not in the queue")
	// ErrNotReady reports a persist on a job that has not finished.
	ErrNotReady = errors.New("job has not finished")
	// ErrSaveInFlight reports a persist on a tile that is already saving or saved.
	ErrSaveInFlight = errors.New("job is already being saved")
)

// API is the server surface the controller uses.
type API interface {
	poller.Fetcher
	Submit(ctx context.Context, req api.SubmitRequest) (*api.SubmitResponse, error)
	Completed(ctx context.Context) (*api.CompletedListing, error)
	Persist(ctx context.Context, jobID string) error
	ClearQueue(ctx context.Context) error
	RemoveJob(ctx context.Context, jobID string, keepSaved bool) error
}

// Deps wires a Controller. Store is expected to be loaded already.
type Deps struct {
	Variant Variant
	Store   *queue.Store
	API     API
	Board   *render.Board
	Logger  *slog.Logger
	Clock   poller.Clock
	// Poller overrides the default poller built from API and Variant.Policy.
	Poller     *poller.Poller
	Visibility poller.Visibility
	ExitDelay  time.Duration
	// Notifier announces finished and failed jobs; nil disables.
	Notifier notifications.Service
}

// Controller is the queue orchestrator for one variant.
type Controller struct {
	variant   Variant
	store     *queue.Store
	api       API
	board     *render.Board
	poller    *poller.Poller
	clock     poller.Clock
	logger    *slog.Logger
	exitDelay time.Duration
	notifier  notifications.Service

	submitting atomic.Bool
	wg         sync.WaitGroup

	mu      sync.Mutex
	polling map[string]context.CancelFunc
}

// NewController validates deps and builds a controller.
func NewController(deps Deps) (*Controller, error) {
	if deps.Store == nil {
		return nil, errors.New("generation: store is required")
	}
	if deps.API == nil {
		return nil, errors.New("generation: api client is required")
	}
	if deps.Variant.Kind == "" {
		return nil, errors.New("generation: variant is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = poller.RealClock{}
	}
	board := deps.Board
	if board == nil {
		board = render.NewBoard(render.Options{Variant: deps.Variant.Name(), Logger: deps.Logger, Now: clock.Now})
	}
	logger := logging.NewComponentLogger(deps.Logger, "controller").
		With(logging.String(logging.FieldVariant, deps.Variant.Name()))
	p := deps.Poller
	if p == nil {
		p = &poller.Poller{
			Fetcher:    deps.API,
			Kind:       deps.Variant.Kind,
			Policy:     deps.Variant.Policy,
			Clock:      clock,
			Visibility: deps.Visibility,
			Logger:     deps.Logger,
		}
	}
	exitDelay := deps.ExitDelay
	if exitDelay <= 0 {
		exitDelay = DefaultExitDelay
	}
	return &Controller{
		variant:   deps.Variant,
		store:     deps.Store,
		api:       deps.API,
		board:     board,
		poller:    p,
		clock:     clock,
		logger:    logger,
		exitDelay: exitDelay,
		notifier:  deps.Notifier,
		polling:   map[string]context.CancelFunc{},
	}, nil
}

// Board exposes the controller's tiles.
func (c *Controller) Board() *render.Board { return c.board }

// Store exposes the controller's queue store.
func (c *Controller) Store() *queue.Store { return c.store }

// Variant returns the controller's variant.
func (c *Controller) Variant() Variant { return c.variant }

// Wait blocks until every poller and background task has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Stop cancels every running poller. Results already applied are kept.
func (c *Controller) Stop() {
	c.mu.Lock()
	for id, cancel := range c.polling {
		cancel()
		delete(c.polling, id)
	}
	c.mu.Unlock()
}

func (c *Controller) jobLogger(jobID string) *slog.Logger {
	return c.logger.With(logging.String(logging.FieldJobID, jobID))
}

// startPolling launches one poller goroutine for jobID; ctx bounds its life.
func (c *Controller) startPolling(ctx context.Context, jobID string, tile *render.Tile) {
	c.mu.Lock()
	if _, running := c.polling[jobID]; running {
		c.mu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	c.polling[jobID] = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer c.stopPolling(jobID)
		result := c.poller.Run(pollCtx, poller.Job{
			ID:        jobID,
			Cancelled: func() bool { return !c.live(ctx, jobID) },
			OnProgress: func(update poller.Update) {
				c.applyProgress(ctx, jobID, tile, update)
			},
		})
		c.applyResult(ctx, tile, result)
	}()
}

func (c *Controller) stopPolling(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.polling[jobID]; ok {
		cancel()
		delete(c.polling, jobID)
	}
}

// live re-reads the shared store first so a remove, clear or persist made
// by another process stops this job's poller.
func (c *Controller) live(ctx context.Context, jobID string) bool {
	c.store.Refresh(ctx)
	return c.tracked(jobID)
}

// tracked reports whether jobID is still in the live queue.
func (c *Controller) tracked(jobID string) bool {
	return c.store.Has(jobID) && !c.store.IsSuppressed(jobID)
}

func (c *Controller) applyProgress(ctx context.Context, jobID string, tile *render.Tile, update poller.Update) {
	if !c.tracked(jobID) {
		return
	}
	if !c.board.SetProgress(tile, update.Progress, update.Phase) {
		return
	}
	view := c.board.View(tile)
	c.store.Update(ctx, jobID, func(entry *queue.Entry) {
		entry.Progress = view.Progress
		entry.Phase = view.Phase
	})
}

func (c *Controller) applyResult(ctx context.Context, tile *render.Tile, result poller.Result) {
	jobID := result.JobID
	logger := c.jobLogger(jobID)
	switch result.Outcome {
	case poller.OutcomeCancelled:
		if c.store.IsSuppressed(jobID) && c.board.Remove(jobID) {
			logger.Info("job left the queue elsewhere; tile removed")
		}
		return
	case poller.OutcomeInaccessible:
		c.store.MarkCleared(ctx, jobID)
		c.board.Remove(jobID)
		logger.Info("job inaccessible; removed from queue")
		return
	}
	if !c.tracked(jobID) {
		logger.Debug("dropping result for untracked job", logging.String("outcome", result.Outcome.String()))
		return
	}
	switch result.Outcome {
	case poller.OutcomeDone:
		if c.store.Update(ctx, jobID, func(entry *queue.Entry) { entry.SetDone(result.ResultURL, result.GalleryID) }) &&
			c.board.RenderResult(tile, result.ResultURL, jobID, result.GalleryID) {
			c.notify(ctx, jobID, func(n notifications.Service) error {
				return n.NotifyJobDone(ctx, c.variant.Name(), jobID, result.ResultURL)
			})
		}
	case poller.OutcomeFailed:
		if c.store.Update(ctx, jobID, func(entry *queue.Entry) { entry.SetFailed(result.Error) }) &&
			c.board.RenderError(tile, result.Error) {
			c.notify(ctx, jobID, func(n notifications.Service) error {
				return n.NotifyJobFailed(ctx, c.variant.Name(), jobID, result.Error)
			})
		}
	}
}

func (c *Controller) notify(ctx context.Context, jobID string, send func(notifications.Service) error) {
	if c.notifier == nil || ctx.Err() != nil {
		return
	}
	if err := send(c.notifier); err != nil {
		c.jobLogger(jobID).Debug("notification failed", logging.Error(err))
	}
}
