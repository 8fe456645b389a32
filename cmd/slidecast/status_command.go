package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"slidecast/internal/api"
	"slidecast/internal/config"
	"slidecast/internal/preflight"
	"slidecast/internal/store"
)

const statusProbeTimeout = 3 * time.Second

type statusReport struct {
	Daemon       *api.DaemonStatus      `json:"daemon,omitempty"`
	DaemonError  string                 `json:"daemonError,omitempty"`
	Dependencies []api.DependencyStatus `json:"dependencies"`
	Checks       []checkResult          `json:"checks"`
	RunCounts    map[string]int         `json:"runCounts"`
}

type checkResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and run status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := collectStatus(cmd.Context(), ctx, cfg)
			if asJSON {
				return writeJSON(cmd, report)
			}
			colorize := shouldColorize(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(statusLines(report, colorize), "\n"))
			active := activeRunRows(report)
			if len(active) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Run", "Project", "State", "Slides", "Started"},
					active,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// collectStatus prefers the daemon's view and falls back to local probes when
// the daemon is not reachable.
func collectStatus(parent context.Context, ctx *commandContext, cfg *config.Config) statusReport {
	report := statusReport{RunCounts: map[string]int{}}

	if client, err := ctx.apiClient(); err != nil {
		report.DaemonError = err.Error()
	} else {
		probeCtx, cancel := context.WithTimeout(parent, statusProbeTimeout)
		status, err := client.Status(probeCtx)
		cancel()
		if err != nil {
			report.DaemonError = wrapAPIError(err, cfg.Paths.APIBind).Error()
		} else {
			report.Daemon = &status
		}
	}

	if report.Daemon != nil {
		report.Dependencies = report.Daemon.Dependencies
		report.RunCounts = report.Daemon.RunCounts
	} else {
		report.Dependencies = api.FromDependencies(preflight.CheckSystemDeps(cfg))
		if err := ctx.withStore(func(st *store.Store) error {
			stats, err := st.RunStats(parent)
			if err != nil {
				return err
			}
			report.RunCounts = api.FromRunCounts(stats)
			return nil
		}); err != nil {
			report.Checks = append(report.Checks, checkResult{Name: "Database", Detail: err.Error()})
		}
	}

	skip := make(map[string]bool, len(report.Dependencies))
	for _, dep := range report.Dependencies {
		skip[dep.Name] = true
	}
	for _, r := range preflight.RunAll(parent, cfg) {
		if skip[r.Name] {
			continue
		}
		report.Checks = append(report.Checks, checkResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return report
}

func statusLines(report statusReport, colorize bool) []string {
	lines := renderSectionHeader("Daemon", colorize)
	if d := report.Daemon; d != nil {
		lines = append(lines, renderStatusLine("Slidecast", statusOK, fmt.Sprintf("Running (pid %d, since %s)", d.PID, fallback(d.StartedAt, "unknown")), colorize))
		engineKind := statusOK
		engineMsg := fmt.Sprintf("%s %s, %d running", d.Engine.Binary, d.Engine.Version, d.Engine.Running)
		if !d.Engine.Healthy {
			engineKind = statusError
			engineMsg = fallback(d.Engine.Detail, "unhealthy")
		}
		lines = append(lines, renderStatusLine("FFmpeg engine", engineKind, strings.TrimSpace(engineMsg), colorize))
		lines = append(lines, renderStatusLine("Database", statusInfo, d.DatabasePath, colorize))
	} else {
		lines = append(lines, renderStatusLine("Slidecast", statusWarn, "Not running", colorize))
		if report.DaemonError != "" {
			lines = append(lines, renderStatusLine("API", statusInfo, report.DaemonError, colorize))
		}
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	lines = append(lines, dependencyLines(report.Dependencies, colorize)...)

	if len(report.Checks) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Checks", colorize)...)
		for _, c := range report.Checks {
			kind := statusOK
			if !c.Passed {
				kind = statusError
			}
			lines = append(lines, renderStatusLine(c.Name, kind, c.Detail, colorize))
		}
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Runs", colorize)...)
	lines = append(lines, runCountLines(report.RunCounts, colorize)...)
	return lines
}

func runCountLines(counts map[string]int, colorize bool) []string {
	if len(counts) == 0 {
		return []string{renderStatusLine("History", statusInfo, "No runs recorded", colorize)}
	}
	states := make([]string, 0, len(counts))
	for state := range counts {
		states = append(states, state)
	}
	sort.Strings(states)
	lines := make([]string, 0, len(states))
	for _, state := range states {
		kind := statusInfo
		switch store.RunState(state) {
		case store.RunDone:
			kind = statusOK
		case store.RunFailed:
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(state, kind, fmt.Sprintf("%d", counts[state]), colorize))
	}
	return lines
}

func activeRunRows(report statusReport) [][]string {
	if report.Daemon == nil {
		return nil
	}
	rows := make([][]string, 0, len(report.Daemon.ActiveRuns))
	for _, run := range report.Daemon.ActiveRuns {
		rows = append(rows, []string{shortID(run.RunID), run.ProjectID, run.State, fmt.Sprintf("%d", run.Slides), run.StartedAt})
	}
	return rows
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
