package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"slidecast/internal/api"
	"slidecast/internal/daemonrun"
	"slidecast/internal/fileutil"
	"slidecast/internal/services"
	"slidecast/internal/textutil"
)

func newBuildCommand(ctx *commandContext) *cobra.Command {
	var userID string
	var projectID string
	var output string
	var remote bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Render a project into a single MP4",
		Long: "Render a project into a single MP4.\n\n" +
			"By default the pipeline runs in this process against the configured\n" +
			"projects directory. With --remote the running daemon renders the\n" +
			"project and streams the result back.",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID = strings.TrimSpace(userID)
			projectID = strings.TrimSpace(projectID)
			if userID == "" || projectID == "" {
				return errors.New("--user and --project are required")
			}
			if remote {
				return buildRemote(cmd, ctx, userID, projectID, output)
			}
			return buildLocal(cmd, ctx, userID, projectID, output)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Project owner")
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project to render")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Copy the finished video to this path")
	cmd.Flags().BoolVar(&remote, "remote", false, "Render through the running daemon")
	return cmd
}

func buildLocal(cmd *cobra.Command, ctx *commandContext, userID, projectID, output string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.cliLogger()
	if err != nil {
		return err
	}
	components, err := daemonrun.NewComponents(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	result, err := components.Orchestrator.Run(cmd.Context(), projectID, userID)
	if err != nil {
		return describeBuildFailure(err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Rendered %d slides in %s (run %s)\n", result.Slides, formatDuration(result.Duration), result.RunID)
	fmt.Fprintf(out, "Video: %s\n", result.ArtifactPath)

	if strings.TrimSpace(output) == "" {
		return nil
	}
	target, err := resolveOutput(output)
	if err != nil {
		return err
	}
	if err := fileutil.CopyFileVerified(result.ArtifactPath, target); err != nil {
		return fmt.Errorf("copy video: %w", err)
	}
	fmt.Fprintf(out, "Copied to: %s\n", target)
	return nil
}

func buildRemote(cmd *cobra.Command, ctx *commandContext, userID, projectID, output string) error {
	client, err := ctx.apiClient()
	if err != nil {
		return err
	}
	if strings.TrimSpace(output) == "" {
		output = textutil.Slug(projectID, "video") + ".mp4"
	}
	target, err := resolveOutput(output)
	if err != nil {
		return err
	}

	written, err := streamToFile(cmd.Context(), target, func(f *os.File) (int64, error) {
		return client.Build(cmd.Context(), userID, projectID, f)
	})
	if err != nil {
		return describeBuildFailure(wrapAPIError(err, ctx.configValue().Paths.APIBind))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", written, target)
	return nil
}

// streamToFile writes through a partial file next to target and renames it
// into place only after fill succeeds.
func streamToFile(ctx context.Context, target string, fill func(*os.File) (int64, error)) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.partial")
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	tmpPath := tmp.Name()
	written, err := fill(tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err == nil && written == 0 {
		err = fileutil.ErrEmptyFile
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("finalize output: %w", err)
	}
	return written, nil
}

func resolveOutput(path string) (string, error) {
	abs, err := filepath.Abs(strings.TrimSpace(path))
	if err != nil {
		return "", fmt.Errorf("resolve output path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	return abs, nil
}

func describeBuildFailure(err error) error {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		return fmt.Errorf("build failed (%s, HTTP %d): %s", fallback(statusErr.Body.Kind, "unknown"), statusErr.Status, fallback(statusErr.Body.Error, "no detail"))
	}
	kind := services.ErrorKind(err)
	if kind == "" {
		kind = services.Classify(err).Kind
	}
	return fmt.Errorf("build failed (%s): %w", kind, err)
}
