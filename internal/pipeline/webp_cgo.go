//go:build !govips && cgo

package pipeline

import (
	"fmt"
	"image"
	"io"

	"github.com/chai2010/webp"
)

func encodeWebP(w io.Writer, img image.Image, quality float32) error {
	if err := webp.Encode(w, img, &webp.Options{Quality: webpQuality(quality)}); err != nil {
		return fmt.Errorf("encode webp: %w", err)
	}
	return nil
}
