package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"slidecast/internal/api"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var runID string
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log events",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			query := api.LogQuery{Limit: limit, RunID: strings.TrimSpace(runID)}
			for {
				resp, err := client.Logs(cmd.Context(), query)
				if err != nil {
					if follow && errors.Is(err, context.Canceled) {
						return nil
					}
					return wrapAPIError(err, ctx.configValue().Paths.APIBind)
				}
				for _, evt := range resp.Events {
					printLogEvent(cmd.OutOrStdout(), evt)
				}
				if !follow {
					return nil
				}
				if resp.Next > query.Since {
					query.Since = resp.Next
				}
				query.Follow = true
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new events")
	cmd.Flags().StringVar(&runID, "run", "", "Only show events for this run")
	cmd.Flags().IntVarP(&limit, "limit", "n", 200, "Maximum events per page")
	return cmd
}

func printLogEvent(w io.Writer, evt api.LogEvent) {
	var b strings.Builder
	b.WriteString(evt.Timestamp)
	b.WriteByte(' ')
	fmt.Fprintf(&b, "%-5s ", evt.Level)
	if evt.Component != "" {
		b.WriteString(evt.Component)
		if evt.RunID != "" {
			fmt.Fprintf(&b, " [%s]", shortID(evt.RunID))
		}
		b.WriteString(": ")
	}
	b.WriteString(evt.Message)

	keys := make([]string, 0, len(evt.Fields))
	for k := range evt.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, evt.Fields[k])
	}
	fmt.Fprintln(w, b.String())
}
