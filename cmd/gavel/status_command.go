package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"gavel/internal/session"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show capture status and session totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *session.Store) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Session database: %s\n", store.Path())
				fmt.Fprintf(out, "Log file:         %s\n", filepath.Join(cfg.Paths.LogDir, "gavel.log"))
				fmt.Fprintf(out, "Recordings:       %s\n", cfg.Paths.RecordingsDir)

				active, err := store.ActiveSession(cmd.Context())
				if err != nil {
					return err
				}
				if active != nil {
					fmt.Fprintf(out, "Active session:   %s (recording for %s)\n",
						active.SessionID, formatSessionDuration(active))
				} else {
					fmt.Fprintln(out, "Active session:   none")
				}

				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(out, "No sessions recorded yet")
					return nil
				}

				states := make([]string, 0, len(stats))
				for state := range stats {
					states = append(states, string(state))
				}
				sort.Strings(states)
				rows := make([][]string, 0, len(states))
				for _, state := range states {
					rows = append(rows, []string{state, fmt.Sprintf("%d", stats[session.State(state)])})
				}
				table := renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}
}
