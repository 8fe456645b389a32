package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"slidecast/internal/config"
	"slidecast/internal/fileutil"
	"slidecast/internal/store"
	"slidecast/internal/workspace"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Create and inspect slide projects",
	}

	projectCmd.AddCommand(newProjectCreateCommand(ctx))
	projectCmd.AddCommand(newProjectAddSlideCommand(ctx))
	projectCmd.AddCommand(newProjectOrderCommand(ctx))
	projectCmd.AddCommand(newProjectShowCommand(ctx))

	return projectCmd
}

func newProjectCreateCommand(ctx *commandContext) *cobra.Command {
	var userID string
	var title string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				project, err := st.CreateProject(cmd.Context(), userID, title)
				if err != nil {
					return err
				}
				layout, err := workspace.For(ctx.configValue().Paths.ProjectsDir, project.UserID, project.ID)
				if err != nil {
					return err
				}
				for _, dir := range []string{layout.ImagesDir(), layout.AudiosDir()} {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						return fmt.Errorf("create project directory: %w", err)
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), project.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Project owner")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Project title")
	return cmd
}

func newProjectAddSlideCommand(ctx *commandContext) *cobra.Command {
	var imagePath string
	var audioPath string

	cmd := &cobra.Command{
		Use:   "add-slide <project-id>",
		Short: "Copy an image and narration into a project and append a slide",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(imagePath) == "" || strings.TrimSpace(audioPath) == "" {
				return errors.New("--image and --audio are required")
			}
			return ctx.withStore(func(st *store.Store) error {
				project, err := st.GetProject(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				layout, err := workspace.For(ctx.configValue().Paths.ProjectsDir, project.UserID, project.ID)
				if err != nil {
					return err
				}
				imageRef, err := importMedia(imagePath, layout.ImagesDir())
				if err != nil {
					return err
				}
				audioRef, err := importMedia(audioPath, layout.AudiosDir())
				if err != nil {
					return err
				}
				slide, err := st.AddSlide(cmd.Context(), project.ID, imageRef, audioRef)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added slide %s (%d in sequence)\n", slide.ID, len(project.SlideSequence)+1)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "Slide image file")
	cmd.Flags().StringVar(&audioPath, "audio", "", "Narration audio file")
	return cmd
}

// importMedia copies src into dir and returns the ref stored on the slide.
func importMedia(src, dir string) (string, error) {
	src = strings.TrimSpace(src)
	if err := fileutil.RequireNonEmpty(src); err != nil {
		return "", fmt.Errorf("media %s: %w", src, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media directory: %w", err)
	}
	ref := filepath.Base(src)
	if err := fileutil.CopyFileVerified(src, filepath.Join(dir, ref)); err != nil {
		return "", fmt.Errorf("import %s: %w", ref, err)
	}
	return ref, nil
}

func newProjectOrderCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "order <project-id> <slide-id>...",
		Short: "Replace the declared slide order",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				if err := st.SetSlideSequence(cmd.Context(), args[0], args[1:]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sequence updated (%d slides)\n", len(args)-1)
				return nil
			})
		},
	}
}

type projectView struct {
	ID     string      `json:"id"`
	UserID string      `json:"userId"`
	Title  string      `json:"title"`
	Slides []slideView `json:"slides"`
}

type slideView struct {
	SequenceIndex int    `json:"sequenceIndex"`
	ID            string `json:"id"`
	ImageRef      string `json:"imageRef"`
	AudioRef      string `json:"audioRef"`
	ImagePresent  bool   `json:"imagePresent"`
	AudioPresent  bool   `json:"audioPresent"`
}

func newProjectShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project's slides in declared order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				view, err := loadProjectView(cmd.Context(), ctx.configValue(), st, strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, view)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Project: %s\n", view.ID)
				fmt.Fprintf(out, "Owner:   %s\n", view.UserID)
				fmt.Fprintf(out, "Title:   %s\n", fallback(view.Title, "(untitled)"))
				if len(view.Slides) == 0 {
					fmt.Fprintln(out, "No slides")
					return nil
				}
				rows := make([][]string, 0, len(view.Slides))
				for _, s := range view.Slides {
					rows = append(rows, []string{
						strconv.Itoa(s.SequenceIndex),
						shortID(s.ID),
						fallback(s.ImageRef, "-"),
						yesNo(s.ImagePresent),
						fallback(s.AudioRef, "-"),
						yesNo(s.AudioPresent),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"#", "Slide", "Image", "On disk", "Audio", "On disk"},
					rows,
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// loadProjectView lists slides in declared order, including slides with
// missing media so they can be fixed.
func loadProjectView(ctx context.Context, cfg *config.Config, st *store.Store, projectID string) (projectView, error) {
	project, err := st.GetProject(ctx, projectID)
	if err != nil {
		return projectView{}, err
	}
	rows, err := st.ListSlides(ctx, project.ID)
	if err != nil {
		return projectView{}, err
	}
	layout, err := workspace.For(cfg.Paths.ProjectsDir, project.UserID, project.ID)
	if err != nil {
		return projectView{}, err
	}

	byID := make(map[string]store.Slide, len(rows))
	for _, slide := range rows {
		byID[slide.ID] = slide
	}
	view := projectView{ID: project.ID, UserID: project.UserID, Title: project.Title}
	for _, id := range project.SlideSequence {
		s, ok := byID[id]
		if !ok {
			continue
		}
		view.Slides = append(view.Slides, slideView{
			SequenceIndex: len(view.Slides) + 1,
			ID:            s.ID,
			ImageRef:      s.ImageRef,
			AudioRef:      s.AudioRef,
			ImagePresent:  s.ImageRef != "" && fileutil.RequireNonEmpty(layout.ImagePath(s.ImageRef)) == nil,
			AudioPresent:  s.AudioRef != "" && fileutil.RequireNonEmpty(layout.AudioPath(s.AudioRef)) == nil,
		})
	}
	return view, nil
}
