package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"genqueue/internal/api"
	"genqueue/internal/generation"
	"genqueue/internal/queue"
	"genqueue/internal/render"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the saved queue without polling",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(sess *session) error {
				entries := visibleEntries(sess.store, time.Now())
				if ctx.JSONMode() {
					if entries == nil {
						entries = []queue.Entry{}
					}
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintf(out, "The %s queue is empty\n", sess.variant.Name())
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						entry.JobID,
						render.Label(string(entry.Status)),
						progressColumn(entry),
						detailColumn(entry),
						entry.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				table := renderTable(
					[]string{"Job", "Status", "Progress", "Detail", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the queue locally and on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(sess *session) error {
				before := len(visibleEntries(sess.store, time.Now()))
				if err := sess.controller.ClearAll(cmd.Context()); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: server clear failed: %s\n", api.UserMessage(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s job(s)\n", before, sess.variant.Name())
				return nil
			})
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Remove one job from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(sess *session) error {
				jobID := strings.TrimSpace(args[0])
				if err := sess.controller.RemoveOne(cmd.Context(), jobID); err != nil {
					if errors.Is(err, generation.ErrUnknownJob) {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: server remove failed: %s\n", api.UserMessage(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed job %s\n", jobID)
				return nil
			})
		},
	}
}

func newPersistCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "persist <job-id>",
		Short: "Save a finished job to the permanent gallery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(sess *session) error {
				jobID := strings.TrimSpace(args[0])
				err := sess.controller.PersistOne(cmd.Context(), jobID)
				sess.controller.Wait()
				if err != nil {
					return fmt.Errorf("persist %s: %s", jobID, api.UserMessage(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved job %s to the gallery\n", jobID)
				return nil
			})
		},
	}
}

// visibleEntries lists entries that are neither expired nor suppressed.
func visibleEntries(store *queue.Store, now time.Time) []queue.Entry {
	clearedAt := store.ClearedAt()
	var out []queue.Entry
	for _, entry := range store.Entries() {
		if entry.Expired(now, clearedAt) || store.IsSuppressed(entry.JobID) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func progressColumn(entry queue.Entry) string {
	switch entry.Status {
	case queue.StatusDone:
		return "100%"
	case queue.StatusFailed:
		return "-"
	default:
		return fmt.Sprintf("%.0f%%", entry.Progress)
	}
}

func detailColumn(entry queue.Entry) string {
	switch entry.Status {
	case queue.StatusDone:
		return entry.ResultURL
	case queue.StatusFailed:
		return render.FailureText(entry.ErrorMessage)
	default:
		if entry.Phase != "" {
			return entry.Phase
		}
		return "queued"
	}
}
