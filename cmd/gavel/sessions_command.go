package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"gavel/internal/session"
	"gavel/internal/transcribe"
)

var committeeTitler = cases.Title(language.AmericanEnglish)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *session.Store) error {
				records, err := store.ListSessions(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No recorded sessions")
					return nil
				}

				colorize := shouldColorize(cmd.OutOrStdout())
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					rows = append(rows, []string{
						strconv.FormatInt(rec.ID, 10),
						rec.SessionID,
						committeeTitle(rec.Committee),
						renderState(rec, colorize),
						formatSessionDuration(rec),
						strconv.Itoa(rec.VideoRestarts + rec.AudioRestarts),
						rec.StartedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				table := renderTable(
					[]string{"ID", "Session", "Committee", "State", "Duration", "Restarts", "Started"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	sessionsCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to list")
	sessionsCmd.AddCommand(newSessionTriggersCommand(ctx))
	return sessionsCmd
}

func newSessionTriggersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "triggers <session-row-id>",
		Short: "List trigger phrase events detected during a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session id %q", args[0])
			}
			return ctx.withStore(func(store *session.Store) error {
				rec, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("session %d not found", id)
				}
				events, err := store.ListTriggerEvents(cmd.Context(), id)
				if err != nil {
					return err
				}
				if len(events) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No trigger events for session %s\n", rec.SessionID)
					return nil
				}

				rows := make([][]string, 0, len(events))
				for _, ev := range events {
					rows = append(rows, []string{
						transcribe.FormatOffset(float64(ev.SegmentStartMS) / 1000),
						ev.Phrase,
						ev.Excerpt,
					})
				}
				table := renderTable(
					[]string{"Offset", "Phrase", "Excerpt"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func committeeTitle(committee string) string {
	cleaned := strings.ReplaceAll(strings.TrimSpace(committee), "_", " ")
	if cleaned == "" {
		return ""
	}
	return committeeTitler.String(cleaned)
}

func renderState(rec *session.Record, colorize bool) string {
	value := string(rec.State)
	if !colorize {
		return value
	}
	switch rec.State {
	case session.StateRecording:
		return text.FgYellow.Sprint(value)
	case session.StateCompleted:
		return text.FgGreen.Sprint(value)
	case session.StateAborted, session.StateFailed:
		return text.FgRed.Sprint(value)
	default:
		return value
	}
}

func formatSessionDuration(rec *session.Record) string {
	d := rec.Duration()
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
