package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xfrr/goffmpeg/transcoder"
)

// ErrUnsupported is returned for content types that are not accepted as audio attachments.
var ErrUnsupported = errors.New("unsupported audio type")

var extensions = map[string]string{
	"audio/mpeg":   "mp3",
	"audio/mp4":    "m4a",
	"audio/x-m4a":  "m4a",
	"audio/aac":    "aac",
	"audio/ogg":    "ogg",
	"audio/opus":   "opus",
	"audio/wav":    "wav",
	"audio/x-wav":  "wav",
	"audio/wave":   "wav",
	"audio/webm":   "webm",
	"audio/flac":   "flac",
	"audio/x-flac": "flac",
}

// Extension returns the file extension used for an accepted audio content type.
func Extension(mime string) (string, error) {
	mime = strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0]))
	ext, ok := extensions[mime]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, mime)
	}
	return ext, nil
}

// Prober reads audio duration with ffprobe.
type Prober struct {
	tmpDir string
}

func NewProber(tmpDir string) *Prober {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &Prober{tmpDir: tmpDir}
}

// Duration returns the length of the clip in seconds.
func (p *Prober) Duration(ctx context.Context, data []byte, ext string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	dir, err := os.MkdirTemp(p.tmpDir, "probe_*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input."+ext)
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return 0, fmt.Errorf("failed to write temp file: %w", err)
	}

	trans := new(transcoder.Transcoder)
	if err := trans.Initialize(input, filepath.Join(dir, "unused."+ext)); err != nil {
		return 0, fmt.Errorf("failed to probe audio: %w", err)
	}

	return parseDuration(trans.MediaFile().Metadata().Format.Duration)
}

func parseDuration(raw string) (float64, error) {
	d, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return d, nil
}
