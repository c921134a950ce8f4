package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned when there are no bytes to probe
var ErrEmptyImage = errors.New("empty image")

// Prober extracts pixel dimensions from encoded image bytes
type Prober struct{}

// NewProber creates a prober
func NewProber() *Prober {
	return &Prober{}
}

// Probe returns the displayed width and height of data.
// JPEGs are fully decoded so EXIF orientation is honoured (a portrait photo
// stored landscape reports portrait dimensions); other formats only have
// their header read.
func (p *Prober) Probe(data []byte) (int, int, error) {
	if len(data) == 0 {
		return 0, 0, ErrEmptyImage
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image header: %w", err)
	}

	if format != "jpeg" {
		return cfg.Width, cfg.Height, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image: %w", err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}
