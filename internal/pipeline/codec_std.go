//go:build !govips || !cgo

package pipeline

import (
	"fmt"
	"image"
	"io"

	"github.com/dunamismax/pixelbatch/internal/domain"
)

func Startup() error {
	return nil
}

func Shutdown() {}

func Backend() string {
	return "std"
}

func canDecodeExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".tiff", ".webp":
		return true
	default:
		return false
	}
}

func decodeFallback([]byte) (image.Image, domain.Format, error) {
	return nil, domain.FormatNone, image.ErrFormat
}

func encodeAVIF(io.Writer, image.Image, float32, int) error {
	return fmt.Errorf("avif export requires govips build tag: %w", ErrCodecUnavailable)
}
