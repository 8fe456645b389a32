package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"slidecast/internal/api"
	"slidecast/internal/store"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var projectID string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recent pipeline runs, or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				if len(args) == 1 {
					record, err := st.GetRun(cmd.Context(), strings.TrimSpace(args[0]))
					if errors.Is(err, store.ErrRunNotFound) {
						return fmt.Errorf("run %s not found", args[0])
					}
					if err != nil {
						return err
					}
					if asJSON {
						return writeJSON(cmd, record)
					}
					printRunDetail(cmd, *record)
					return nil
				}

				records, err := st.ListRuns(cmd.Context(), strings.TrimSpace(projectID), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.FromRunRecords(records))
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Run", "Project", "State", "Slides", "Error", "Started", "Duration"},
					runRows(records),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Only show runs for this project")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func runRows(records []store.RunRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			shortID(r.ID),
			r.ProjectID,
			string(r.State),
			strconv.Itoa(r.SlideCount),
			fallback(r.ErrorKind, "-"),
			formatTimestamp(r.StartedAt),
			formatDuration(r.Duration()),
		})
	}
	return rows
}

func printRunDetail(cmd *cobra.Command, r store.RunRecord) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:       %s\n", r.ID)
	fmt.Fprintf(out, "Project:   %s (user %s)\n", r.ProjectID, r.UserID)
	fmt.Fprintf(out, "State:     %s\n", r.State)
	fmt.Fprintf(out, "Slides:    %d\n", r.SlideCount)
	fmt.Fprintf(out, "Started:   %s\n", formatTimestamp(r.StartedAt))
	fmt.Fprintf(out, "Duration:  %s\n", formatDuration(r.Duration()))
	if r.FinishedAt != nil {
		fmt.Fprintf(out, "Finished:  %s\n", formatTimestamp(*r.FinishedAt))
	}
	if r.ArtifactPath != "" {
		fmt.Fprintf(out, "Video:     %s\n", r.ArtifactPath)
	}
	if r.ErrorKind != "" {
		fmt.Fprintf(out, "Error:     %s: %s\n", r.ErrorKind, r.ErrorMessage)
	}
}
