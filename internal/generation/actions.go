package generation

import (
	"context"
	"fmt"
	"strings"

	"genqueue/internal/api"
	"genqueue/internal/logging"
	"genqueue/internal/queue"
	"genqueue/internal/render"
)

// Submit sends one generation request and fans its job ids out to tiles.
// One placeholder is created per requested result; surplus placeholders and
// surplus ids are dropped. The returned ids are the ones now tracked. Pollers
// started here live until ctx is done.
func (c *Controller) Submit(ctx context.Context, req api.SubmitRequest) ([]string, error) {
	if !c.submitting.CompareAndSwap(false, true) {
		return nil, ErrSubmitInFlight
	}
	defer c.submitting.Store(false)

	count := req.Count
	if count < 1 {
		count = 1
	}
	tiles := make([]*render.Tile, count)
	for i := range tiles {
		tiles[i] = c.board.Placeholder(req.Prompt)
	}
	discard := func(from int) {
		for _, tile := range tiles[from:] {
			c.board.Discard(tile)
		}
	}

	resp, err := c.api.Submit(ctx, req)
	if err != nil {
		discard(0)
		c.logger.Warn("submission failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "submit_failed"),
			logging.String(logging.FieldErrorHint, "check the prompt and your session credentials"),
		)
		return nil, err
	}
	ids := resp.JobIDs()
	now := c.clock.Now()
	prompt := strings.TrimSpace(req.Prompt)

	if url := resp.ResultURL(c.variant.Kind); url != "" {
		jobID := ""
		if len(ids) > 0 {
			jobID = ids[0]
		}
		galleryID := resp.GalleryID.String()
		if jobID != "" {
			c.board.Bind(tiles[0], jobID)
			entry := queue.Entry{JobID: jobID, CreatedAt: now, Prompt: prompt}
			entry.SetDone(url, galleryID)
			c.store.Upsert(ctx, entry)
		}
		c.board.RenderResult(tiles[0], url, jobID, galleryID)
		discard(1)
		c.logger.Info("generation returned immediately", logging.String(logging.FieldJobID, jobID))
		if jobID == "" {
			return nil, nil
		}
		return []string{jobID}, nil
	}

	bound := min(len(tiles), len(ids))
	tracked := make([]string, 0, bound)
	for i := 0; i < bound; i++ {
		jobID := ids[i]
		if !c.store.Upsert(ctx, queue.Entry{
			JobID:     jobID,
			Status:    queue.StatusPending,
			CreatedAt: now,
			Prompt:    prompt,
		}) {
			// Already cleared or saved; the id will never be shown.
			c.board.Discard(tiles[i])
			c.jobLogger(jobID).Debug("submitted id is suppressed; not tracking")
			continue
		}
		c.board.Bind(tiles[i], jobID)
		c.startPolling(ctx, jobID, tiles[i])
		tracked = append(tracked, jobID)
	}
	discard(bound)
	if len(ids) > bound {
		c.logger.Debug("dropping surplus job ids", logging.Int("requested", count), logging.Int("returned", len(ids)))
	}
	c.logger.Info("submitted generation",
		logging.Int("requested", count),
		logging.String("job_ids", strings.Join(tracked, ",")),
	)
	return tracked, nil
}

// Bootstrap restores the saved queue: it purges expired entries, shows what
// is left, resumes polling for pending jobs, and backfills completions from
// the server in the background.
func (c *Controller) Bootstrap(ctx context.Context) {
	if removed := c.store.PurgeExpired(ctx, c.clock.Now()); len(removed) > 0 {
		for _, id := range removed {
			c.board.Remove(id)
		}
		c.logger.Info("purged expired queue entries", logging.Int("count", len(removed)))
	}

	for _, entry := range c.store.Entries() {
		if c.store.IsSuppressed(entry.JobID) {
			continue
		}
		tile := c.board.Restore(entry.JobID, entry.Prompt)
		switch entry.Status {
		case queue.StatusDone:
			c.board.RenderResult(tile, entry.ResultURL, entry.JobID, entry.GalleryID)
		case queue.StatusFailed:
			c.board.RenderError(tile, entry.ErrorMessage)
		default:
			c.board.SetProgress(tile, entry.Progress, entry.Phase)
			c.startPolling(ctx, entry.JobID, tile)
		}
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.Backfill(ctx); err != nil {
			c.logger.Debug("completed-jobs backfill skipped", logging.Error(err))
		}
	}()
}

// Backfill merges recently completed server jobs the queue does not know yet.
// Jobs that are cleared, persisted, already tracked, expired, created at or
// before the last clear, of another variant, or not finished are skipped.
// It returns the number of jobs added.
func (c *Controller) Backfill(ctx context.Context) (int, error) {
	listing, err := c.api.Completed(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch completed jobs: %w", err)
	}
	if listing == nil || !listing.Success {
		return 0, nil
	}
	now := c.clock.Now()
	clearedAt := c.store.ClearedAt()
	added := 0
	for _, job := range listing.Jobs {
		jobID := job.JobID.String()
		if jobID == "" {
			continue
		}
		if job.GenerationType != "" && !strings.EqualFold(job.GenerationType, c.variant.GenerationType) {
			continue
		}
		if status, ok := queue.ParseStatus(job.Status); !ok || status != queue.StatusDone {
			continue
		}
		url := job.ResultURL(c.variant.Kind)
		if url == "" || c.store.Has(jobID) || c.store.IsSuppressed(jobID) {
			continue
		}
		entry := queue.Entry{JobID: jobID, CreatedAt: job.CreatedAt.Time}
		entry.SetDone(url, job.GalleryID.String())
		if entry.Expired(now, clearedAt) {
			continue
		}
		if !c.store.Upsert(ctx, entry) {
			continue
		}
		tile := c.board.Restore(jobID, "")
		c.board.RenderResult(tile, url, jobID, entry.GalleryID)
		added++
	}
	if added > 0 {
		c.logger.Info("backfilled completed jobs", logging.Int("count", added))
	}
	return added, nil
}

// ClearAll empties the queue locally and asks the server to do the same.
// Local state is cleared even when the server call fails; that error is
// returned for reporting only.
func (c *Controller) ClearAll(ctx context.Context) error {
	serverErr := c.api.ClearQueue(ctx)
	if serverErr != nil {
		logging.WarnWithContext(c.logger, "server queue clear failed", "queue_clear_failed",
			logging.Error(serverErr),
			logging.String(logging.FieldErrorHint, "local queue was cleared; the server may still list these jobs"),
			logging.String(logging.FieldImpact, "jobs created before now stay hidden locally"),
		)
	}

	cleared := queue.NewIDSet(c.store.ClearAll(ctx, c.clock.Now())...)
	var extra []string
	for _, view := range c.board.Tiles() {
		if view.JobID != "" && !cleared.Has(view.JobID) {
			extra = append(extra, view.JobID)
			cleared.Add(view.JobID)
		}
	}
	if len(extra) > 0 {
		c.store.MarkCleared(ctx, extra...)
	}
	c.Stop()
	c.board.Clear()
	c.logger.Info("queue cleared", logging.Int("count", len(cleared)))
	return serverErr
}

// RemoveOne drops jobID locally at once and then asks the server to forget
// it, keeping any gallery copy. The server error is returned for reporting.
func (c *Controller) RemoveOne(ctx context.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return ErrUnknownJob
	}
	c.store.MarkCleared(ctx, jobID)
	c.stopPolling(jobID)
	c.board.Remove(jobID)

	if err := c.api.RemoveJob(ctx, jobID, true); err != nil {
		c.jobLogger(jobID).Debug("server remove failed", logging.Error(err))
		return err
	}
	c.jobLogger(jobID).Info("job removed from queue")
	return nil
}

// PersistOne saves a finished job to the permanent gallery. On success the
// job leaves the queue for good; on failure its save action is reset so the
// user can retry.
func (c *Controller) PersistOne(ctx context.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	entry, known := c.store.Get(jobID)
	tile := c.board.Find(jobID)
	if !known && tile == nil {
		return ErrUnknownJob
	}
	if known && entry.Status != queue.StatusDone {
		return ErrNotReady
	}
	if tile != nil && !c.board.BeginSave(tile) {
		if c.board.View(tile).State != render.StateDone {
			return ErrNotReady
		}
		return ErrSaveInFlight
	}

	if err := c.api.Persist(ctx, jobID); err != nil {
		c.board.ResetAction(tile)
		logging.WarnWithContext(c.jobLogger(jobID), "persist failed", "persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "retry the save"),
			logging.String(logging.FieldImpact, "job stays in the queue"),
		)
		return err
	}

	c.store.MarkPersisted(ctx, jobID)
	c.jobLogger(jobID).Info("job saved to gallery")
	if tile == nil {
		return nil
	}
	c.board.MarkSaved(tile)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.clock.Sleep(ctx, c.exitDelay)
		c.board.Remove(jobID)
	}()
	return nil
}
