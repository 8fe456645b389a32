package ffmpeg

import (
	"strconv"
	"strings"
)

// Profile is the fixed output format every clip is encoded to.
type Profile struct {
	Width       int
	Height      int
	PixelFormat string
	VideoCodec  string
	AudioCodec  string
	CRF         int
	Preset      string
}

// DefaultProfile is 1080p H.264/AAC suitable for stream-copy concatenation.
func DefaultProfile() Profile {
	return Profile{
		Width:       1920,
		Height:      1080,
		PixelFormat: "yuv420p",
		VideoCodec:  "libx264",
		AudioCodec:  "aac",
		CRF:         18,
		Preset:      "slow",
	}
}

var commonArgs = []string{"-y", "-hide_banner", "-nostdin", "-loglevel", "error"}

// Bit-exact flags keep encoder version strings and timestamps out of the
// container so identical inputs give identical bytes.
var bitexactArgs = []string{"-map_metadata", "-1", "-fflags", "+bitexact", "-flags:v", "+bitexact", "-flags:a", "+bitexact"}

// ClipArgs renders one still image over one audio track. The audio length
// decides the clip length.
func ClipArgs(p Profile, image, audio, output string) []string {
	args := append([]string(nil), commonArgs...)
	args = append(args,
		"-loop", "1",
		"-i", image,
		"-i", audio,
		"-vf", "scale="+strconv.Itoa(p.Width)+":"+strconv.Itoa(p.Height),
		"-pix_fmt", p.PixelFormat,
		"-crf", strconv.Itoa(p.CRF),
		"-preset", p.Preset,
		"-c:v", p.VideoCodec,
		"-c:a", p.AudioCodec,
		"-strict", "experimental",
		"-shortest",
		"-movflags", "+faststart",
	)
	args = append(args, bitexactArgs...)
	return append(args, output)
}

// ConcatArgs joins the clips listed in manifest without re-encoding.
func ConcatArgs(manifest, output string) []string {
	args := append([]string(nil), commonArgs...)
	args = append(args,
		"-f", "concat",
		"-safe", "0",
		"-i", manifest,
		"-c", "copy",
		"-movflags", "+faststart",
	)
	args = append(args, bitexactArgs[:4]...)
	return append(args, output)
}

// ManifestLine formats one concat demuxer entry. Single quotes inside the
// path are closed, escaped, and reopened.
func ManifestLine(path string) string {
	return "file '" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}
