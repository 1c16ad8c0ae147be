//go:build !cgo

package pipeline

import (
	"fmt"
	"image"
	"io"
)

func encodeWebP(io.Writer, image.Image, float32) error {
	return fmt.Errorf("webp export requires cgo: %w", ErrCodecUnavailable)
}
