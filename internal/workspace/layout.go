// Package workspace maps a project onto its directory tree and reclaims
// intermediates that a crashed run left behind.
package workspace

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"slidecast/internal/services"
)

const (
	imagesDirName = "compressedImages"
	audiosDirName = "audios"
	videosDirName = "videos"
	manifestName  = "concatList.txt"
	resultName    = "result.mp4"
)

// Layout is the directory tree of one project:
//
//	<root>/<userID>/<projectID>/
//	    compressedImages/  slide images (input)
//	    audios/            slide narration (input)
//	    videos/            per-slide clips (intermediate)
//	    concatList.txt     concat manifest (transient)
//	    result.mp4         final video
type Layout struct {
	ProjectDir string
}

// For returns the layout of a project under root. IDs that could escape the
// root directory are rejected.
func For(root, userID, projectID string) (Layout, error) {
	for label, id := range map[string]string{"user id": userID, "project id": projectID} {
		if err := checkID(id); err != nil {
			return Layout{}, services.Wrap(services.ErrValidation, "workspace", "layout", label+" "+err.Error(), nil)
		}
	}
	return Layout{ProjectDir: filepath.Join(root, userID, projectID)}, nil
}

func checkID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("is empty")
	case strings.ContainsAny(id, `/\`), id == "." || id == "..", strings.HasPrefix(id, "."):
		return fmt.Errorf("%q is not a valid identifier", id)
	}
	return nil
}

// ImagesDir holds slide images.
func (l Layout) ImagesDir() string { return filepath.Join(l.ProjectDir, imagesDirName) }

// AudiosDir holds slide narration.
func (l Layout) AudiosDir() string { return filepath.Join(l.ProjectDir, audiosDirName) }

// VideosDir holds the per-slide clips of the current run.
func (l Layout) VideosDir() string { return filepath.Join(l.ProjectDir, videosDirName) }

// ManifestPath is the concat demuxer input list.
func (l Layout) ManifestPath() string { return filepath.Join(l.ProjectDir, manifestName) }

// ResultPath is the final video.
func (l Layout) ResultPath() string { return filepath.Join(l.ProjectDir, resultName) }

// ImagePath resolves a slide image reference.
func (l Layout) ImagePath(ref string) string {
	return filepath.Join(l.ImagesDir(), filepath.Base(ref))
}

// AudioPath resolves a slide audio reference.
func (l Layout) AudioPath(ref string) string {
	return filepath.Join(l.AudiosDir(), filepath.Base(ref))
}

// ClipPath is the clip file for a sequence index.
func (l Layout) ClipPath(sequenceIndex int) string {
	return filepath.Join(l.VideosDir(), "video-"+strconv.Itoa(sequenceIndex)+".mp4")
}
