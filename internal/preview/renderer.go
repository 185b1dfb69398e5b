package preview

import (
	"errors"
	"fmt"

	"github.com/h2non/bimg"
)

const (
	DefaultMaxWidth = 1280
	jpegQuality     = 85
	ContentType     = "image/jpeg"
)

// ErrUnsupported is returned for sources libvips cannot decode.
var ErrUnsupported = errors.New("unsupported image type")

// Result is a rendered preview plus the dimensions of the source it was made from.
type Result struct {
	Data         []byte
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
}

type Renderer struct {
	maxWidth int
	quality  int
}

func NewRenderer(maxWidth int) *Renderer {
	if maxWidth <= 0 || maxWidth > DefaultMaxWidth {
		maxWidth = DefaultMaxWidth
	}
	return &Renderer{maxWidth: maxWidth, quality: jpegQuality}
}

// Supports reports whether mime is an image type the renderer handles.
func (r *Renderer) Supports(mime string) bool {
	switch mime {
	case "image/jpeg", "image/png", "image/gif", "image/webp", "image/tiff":
		return true
	}
	return false
}

// Render produces a JPEG no wider than the configured bound. Sources that are
// already narrow enough are re-encoded at their own size.
func (r *Renderer) Render(data []byte) (*Result, error) {
	if bimg.DetermineImageType(data) == bimg.UNKNOWN {
		return nil, ErrUnsupported
	}

	image := bimg.NewImage(data)
	size, err := image.Size()
	if err != nil {
		return nil, fmt.Errorf("failed to get image size: %w", err)
	}

	width, height := calculateNewDimensions(size.Width, size.Height, r.maxWidth)
	processed, err := image.Process(bimg.Options{
		Width:   width,
		Height:  height,
		Quality: r.quality,
		Type:    bimg.JPEG,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process image: %w", err)
	}

	return &Result{
		Data:         processed,
		Width:        width,
		Height:       height,
		SourceWidth:  size.Width,
		SourceHeight: size.Height,
	}, nil
}

// calculateNewDimensions keeps the aspect ratio and never upscales.
func calculateNewDimensions(width, height, maxWidth int) (newWidth, newHeight int) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	if width <= maxWidth {
		return width, height
	}
	newWidth = maxWidth
	newHeight = (height * maxWidth) / width
	if newHeight < 1 {
		newHeight = 1
	}
	return
}
