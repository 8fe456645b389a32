package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"slidecast/internal/services"
	"slidecast/internal/slides"
)

// Project is a user's presentation.
type Project struct {
	ID            string
	UserID        string
	Title         string
	SlideSequence []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Slide is one (image, audio) pair. Refs are file names inside the
// project's compressedImages/ and audios/ directories.
type Slide struct {
	ID        string
	ProjectID string
	ImageRef  string
	AudioRef  string
	CreatedAt time.Time
}

// CreateProject inserts an empty project owned by userID.
func (s *Store) CreateProject(ctx context.Context, userID, title string) (*Project, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "create project", "user id is required", nil)
	}
	now := time.Now().UTC()
	project := &Project{
		ID:            uuid.NewString(),
		UserID:        userID,
		Title:         strings.TrimSpace(title),
		SlideSequence: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO projects (id, user_id, title, slide_sequence, created_at, updated_at) VALUES (?, ?, ?, '[]', ?, ?)`,
		project.ID, project.UserID, project.Title, formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return project, nil
}

// GetProject fetches a project by ID. It returns slides.ErrProjectNotFound
// when the row does not exist.
func (s *Store) GetProject(ctx context.Context, projectID string) (*Project, error) {
	return getProject(ensureContext(ctx), s.db, projectID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getProject(ctx context.Context, q queryRower, projectID string) (*Project, error) {
	var (
		p          Project
		sequence   string
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, title, slide_sequence, created_at, updated_at FROM projects WHERE id = ?`,
		projectID,
	).Scan(&p.ID, &p.UserID, &p.Title, &sequence, &createdRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, slides.NotFound(projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}
	if err := json.Unmarshal([]byte(sequence), &p.SlideSequence); err != nil {
		return nil, fmt.Errorf("decode slide sequence for project %s: %w", projectID, err)
	}
	p.CreatedAt = parseTime(createdRaw)
	p.UpdatedAt = parseTime(updatedRaw)
	return &p, nil
}

// ListSlides returns every slide row of a project in creation order.
func (s *Store) ListSlides(ctx context.Context, projectID string) ([]Slide, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, project_id, image_ref, audio_ref, created_at FROM slides WHERE project_id = ? ORDER BY created_at, id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list slides: %w", err)
	}
	defer rows.Close()

	var out []Slide
	for rows.Next() {
		var (
			slide      Slide
			createdRaw sql.NullString
		)
		if err := rows.Scan(&slide.ID, &slide.ProjectID, &slide.ImageRef, &slide.AudioRef, &createdRaw); err != nil {
			return nil, err
		}
		slide.CreatedAt = parseTime(createdRaw)
		out = append(out, slide)
	}
	return out, rows.Err()
}

// AddSlide inserts a slide and appends it to the project's sequence.
func (s *Store) AddSlide(ctx context.Context, projectID, imageRef, audioRef string) (*Slide, error) {
	now := time.Now().UTC()
	slide := &Slide{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		ImageRef:  strings.TrimSpace(imageRef),
		AudioRef:  strings.TrimSpace(audioRef),
		CreatedAt: now,
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		project, err := getProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO slides (id, project_id, image_ref, audio_ref, created_at) VALUES (?, ?, ?, ?, ?)`,
			slide.ID, projectID, slide.ImageRef, slide.AudioRef, formatTime(now),
		); err != nil {
			return fmt.Errorf("insert slide: %w", err)
		}
		return writeSequence(ctx, tx, projectID, append(project.SlideSequence, slide.ID), now)
	})
	if err != nil {
		return nil, err
	}
	return slide, nil
}

// SetSlideSequence replaces the declared slide order. Every ID must belong
// to the project and appear once.
func (s *Store) SetSlideSequence(ctx context.Context, projectID string, slideIDs []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getProject(ctx, tx, projectID); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, `SELECT id FROM slides WHERE project_id = ?`, projectID)
		if err != nil {
			return fmt.Errorf("list slide ids: %w", err)
		}
		known := make(map[string]bool)
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			known[id] = false
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range slideIDs {
			used, ok := known[id]
			if !ok {
				return services.Wrap(services.ErrValidation, "store", "set sequence", fmt.Sprintf("slide %s does not belong to project %s", id, projectID), nil)
			}
			if used {
				return services.Wrap(services.ErrValidation, "store", "set sequence", fmt.Sprintf("slide %s listed twice", id), nil)
			}
			known[id] = true
		}
		return writeSequence(ctx, tx, projectID, slideIDs, time.Now().UTC())
	})
}

func writeSequence(ctx context.Context, tx *sql.Tx, projectID string, ids []string, now time.Time) error {
	if ids == nil {
		ids = []string{}
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode slide sequence: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE projects SET slide_sequence = ?, updated_at = ? WHERE id = ?`,
		string(encoded), formatTime(now), projectID,
	); err != nil {
		return fmt.Errorf("update slide sequence: %w", err)
	}
	return nil
}

// ResolveSlides returns the project's slides in declared order.
//
// Sequence entries without a slide row are skipped and the remaining slides
// are numbered 1..N. Any slide of the project lacking an image or audio
// reference fails the whole lookup with *slides.IncompleteMediaError.
func (s *Store) ResolveSlides(ctx context.Context, projectID, userID string) (slides.Sequence, error) {
	ctx = ensureContext(ctx)
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.UserID != userID {
		return nil, slides.NotFound(projectID)
	}

	rows, err := s.ListSlides(ctx, projectID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Slide, len(rows))
	var incomplete []string
	for _, slide := range rows {
		byID[slide.ID] = slide
		if slide.ImageRef == "" || slide.AudioRef == "" {
			incomplete = append(incomplete, slide.ID)
		}
	}
	if len(incomplete) > 0 {
		sort.Strings(incomplete)
		return nil, &slides.IncompleteMediaError{SlideIDs: incomplete}
	}

	seq := make(slides.Sequence, 0, len(project.SlideSequence))
	for _, id := range project.SlideSequence {
		slide, ok := byID[id]
		if !ok {
			continue
		}
		seq = append(seq, slides.Descriptor{
			SequenceIndex: len(seq) + 1,
			SlideID:       slide.ID,
			ImageRef:      slide.ImageRef,
			AudioRef:      slide.AudioRef,
		})
	}
	return seq, nil
}
