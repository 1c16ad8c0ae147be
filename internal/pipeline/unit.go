package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"github.com/dunamismax/pixelbatch/internal/domain"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Unit carries one file through the pipeline. It is owned by a single
// Process call.
type Unit struct {
	Image        image.Image
	Width        int
	Height       int
	Source       string
	Output       string
	SourceFormat domain.Format
}

// NewUnit decodes data, applies the orientation recorded in its metadata and
// records the upright dimensions.
func NewUnit(source string, data []byte, outputDir string, format domain.Format) (*Unit, error) {
	img, sourceFormat, err := decode(data)
	if err != nil {
		return nil, err
	}

	img = Rotate(img, orientationFromBytes(data))
	bounds := img.Bounds()

	return &Unit{
		Image:        img,
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
		Source:       source,
		Output:       OutputPath(source, outputDir, format),
		SourceFormat: sourceFormat,
	}, nil
}

// Apply runs the geometry stages in order and refreshes the dimensions.
func (u *Unit) Apply(opts domain.TransformOptions) {
	u.Image = Resize(u.Image, opts)
	u.Image = Orient(u.Image, opts.Rotation, opts.FlipVertical, opts.FlipHorizontal)
	bounds := u.Image.Bounds()
	u.Width, u.Height = bounds.Dx(), bounds.Dy()
}

func decode(data []byte) (image.Image, domain.Format, error) {
	img, name, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, containerFormat(name), nil
	}
	if !errors.Is(err, image.ErrFormat) {
		return nil, domain.FormatNone, err
	}

	img, format, fallbackErr := decodeFallback(data)
	if fallbackErr != nil {
		return nil, domain.FormatNone, fmt.Errorf("%w (fallback: %v)", err, fallbackErr)
	}
	return img, format, nil
}

// containerFormat maps a registered decoder name to a format. Containers
// without an encoder here fall back to JPEG.
func containerFormat(name string) domain.Format {
	if f := domain.ParseFormat(name); f != domain.FormatNone {
		return f
	}
	return domain.FormatJPEG
}

// Eligible reports whether path has an extension this build can decode.
func Eligible(path string) bool {
	return canDecodeExt(strings.ToLower(filepath.Ext(path)))
}
