package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"genqueue/internal/kv"
)

func newStoreCommand(ctx *commandContext) *cobra.Command {
	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect the local queue store",
	}
	storeCmd.AddCommand(newStoreHealthCommand(ctx))
	return storeCmd
}

func newStoreHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the configured store backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			backend, err := kv.Open(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer backend.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Backend: %s\n", strings.ToLower(cfg.Store.Backend))
			switch b := backend.(type) {
			case *kv.SQLite:
				health, err := b.CheckHealth(cmd.Context())
				fmt.Fprintf(out, "Database path: %s\n", health.DBPath)
				fmt.Fprintf(out, "Database exists: %s\n", yesNo(health.DatabaseExists))
				fmt.Fprintf(out, "Readable: %s\n", yesNo(health.DatabaseReadable))
				fmt.Fprintf(out, "Schema version: %d\n", health.SchemaVersion)
				fmt.Fprintf(out, "Table present: %s\n", yesNo(health.TableExists))
				fmt.Fprintf(out, "Integrity check: %s\n", yesNo(health.IntegrityCheck))
				fmt.Fprintf(out, "Stored keys: %d\n", health.TotalKeys)
				if health.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", health.Error)
				}
				return err
			case *kv.Redis:
				if err := b.Ping(cmd.Context()); err != nil {
					return fmt.Errorf("redis ping: %w", err)
				}
				fmt.Fprintf(out, "Redis reachable at %s\n", cfg.Store.RedisAddr)
				return nil
			case *kv.Memory:
				fmt.Fprintln(out, "In-memory store; nothing persists between runs")
				return nil
			default:
				return errors.New("unknown store backend")
			}
		},
	}
}
