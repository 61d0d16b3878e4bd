package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"genqueue/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var req api.SubmitRequest
	var params []string
	var watch bool

	cmd := &cobra.Command{
		Use:   "submit [prompt...]",
		Short: "Submit a generation request and track its jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(req.Prompt) == "" {
				req.Prompt = strings.Join(args, " ")
			}
			extra, err := parseParams(params)
			if err != nil {
				return err
			}
			req.Extra = extra

			return ctx.withSession(cmd, func(sess *session) error {
				if watch {
					unlock, err := lockWatcher(sess)
					if err != nil {
						return err
					}
					defer unlock()
				}

				ids, err := sess.controller.Submit(cmd.Context(), req)
				if err != nil {
					return fmt.Errorf("submit: %s", api.UserMessage(err))
				}
				if !watch {
					// Pending jobs stay in the store; a later watch resumes them.
					sess.controller.Stop()
					sess.controller.Wait()
					if ctx.JSONMode() {
						return writeJSON(cmd, map[string]any{"variant": sess.variant.Name(), "job_ids": ids})
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Queued %d %s job(s): %s\n", len(ids), sess.variant.Name(), strings.Join(ids, ", "))
					return nil
				}
				return drain(cmd, sess)
			})
		},
	}

	cmd.Flags().StringVarP(&req.Prompt, "prompt", "p", "", "Prompt text (defaults to the positional arguments)")
	cmd.Flags().IntVarP(&req.Count, "count", "n", 1, "Number of results to request")
	cmd.Flags().StringVar(&req.Model, "model", "", "Model name")
	cmd.Flags().StringVar(&req.AspectRatio, "aspect-ratio", "", "Aspect ratio such as 16:9")
	cmd.Flags().StringVar(&req.NegativePrompt, "negative-prompt", "", "Negative prompt")
	cmd.Flags().StringVar(&req.SourceImageURL, "source-image", "", "Source image URL for image-to-video requests")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Extra form field as key=value (repeatable)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep polling until every job settles")
	return cmd
}

func parseParams(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, raw := range values {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q (want key=value)", raw)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}
