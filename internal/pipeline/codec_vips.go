//go:build govips && cgo

package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/pixelbatch/internal/domain"
)

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

func Startup() error {
	startupOnce.Do(func() {
		vips.LoggingSettings(nil, vips.LogLevelWarning)
		vips.Startup(&vips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   128 * 1024 * 1024,
			MaxCacheSize:  100,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

// Backend names the codec set compiled into this build.
func Backend() string {
	return "govips"
}

func canDecodeExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".tiff", ".webp", ".avif":
		return true
	default:
		return false
	}
}

// decodeFallback handles containers the Go decoders do not register.
func decodeFallback(data []byte) (image.Image, domain.Format, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, domain.FormatNone, fmt.Errorf("vips decode: %w", err)
	}
	defer ref.Close()

	img, err := ref.ToImage(vips.NewDefaultExportParams())
	if err != nil {
		return nil, domain.FormatNone, fmt.Errorf("vips to image: %w", err)
	}

	format := domain.FormatJPEG
	switch ref.Format() {
	case vips.ImageTypeAVIF:
		format = domain.FormatAVIF
	case vips.ImageTypeWEBP:
		format = domain.FormatWebP
	case vips.ImageTypePNG:
		format = domain.FormatPNG
	case vips.ImageTypeTIFF:
		format = domain.FormatTIFF
	}
	return img, format, nil
}

func encodeWebP(w io.Writer, img image.Image, quality float32) error {
	ref, err := vipsImage(img)
	if err != nil {
		return err
	}
	defer ref.Close()

	params := vips.NewWebpExportParams()
	params.Quality = int(webpQuality(quality))
	data, _, err := ref.ExportWebp(params)
	if err != nil {
		return fmt.Errorf("encode webp: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func encodeAVIF(w io.Writer, img image.Image, quality float32, speed int) error {
	ref, err := vipsImage(img)
	if err != nil {
		return err
	}
	defer ref.Close()

	params := vips.NewAvifExportParams()
	params.Quality = int(webpQuality(quality))
	params.Effort = avifEffort(speed)
	data, _, err := ref.ExportAvif(params)
	if err != nil {
		return fmt.Errorf("encode avif: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// vipsImage hands pixels to libvips through a lossless PNG buffer.
func vipsImage(img image.Image) (*vips.ImageRef, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, domain.FormatPNG, domain.FormatPNG, 0, 0); err != nil {
		return nil, fmt.Errorf("stage pixels for vips: %w", err)
	}
	ref, err := vips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("load pixels into vips: %w", err)
	}
	return ref, nil
}
