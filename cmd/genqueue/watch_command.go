package main

import (
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"genqueue/internal/logging"
	"genqueue/internal/render"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Restore the saved queue and poll until every job settles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(sess *session) error {
				unlock, err := lockWatcher(sess)
				if err != nil {
					return err
				}
				defer unlock()

				sess.controller.Bootstrap(cmd.Context())
				return drain(cmd, sess)
			})
		},
	}
}

// lockWatcher ensures a single process polls a variant's queue per user.
func lockWatcher(sess *session) (func(), error) {
	path := sess.cfg.LockPath(sess.variant.Name())
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire watch lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("another genqueue process is already watching the %s queue (lock %s)", sess.variant.Name(), path)
	}
	return func() { _ = lock.Unlock() }, nil
}

// drain waits for every poller to finish, then prints the final board.
func drain(cmd *cobra.Command, sess *session) error {
	started := time.Now()
	sess.controller.Wait()

	board := sess.controller.Board()
	tiles := board.Tiles()
	if ctx := cmd.Context(); ctx.Err() != nil {
		return ctx.Err()
	}

	done, failed := 0, 0
	for _, view := range tiles {
		switch view.State {
		case render.StateDone:
			done++
		case render.StateFailed:
			failed++
		}
	}

	out := cmd.OutOrStdout()
	if len(tiles) == 0 {
		fmt.Fprintf(out, "The %s queue is empty\n", sess.variant.Name())
		return nil
	}
	if err := board.Snapshot(out); err != nil {
		return err
	}
	if err := sess.notifier.NotifyQueueDrained(cmd.Context(), sess.variant.Name(), done, failed, time.Since(started)); err != nil {
		logging.NewComponentLogger(sess.logger, "cli").Debug("drained notification failed", logging.Error(err))
	}
	return nil
}
