package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelbatch/internal/claim"
	"github.com/dunamismax/pixelbatch/internal/domain"
)

// ErrCodecUnavailable is returned when the build has no encoder for a format.
var ErrCodecUnavailable = errors.New("codec unavailable in this build")

// Encode writes img in format. FormatNone means the source container; an
// unknown source container falls back to JPEG.
func Encode(w io.Writer, img image.Image, format, source domain.Format, quality float32, speed int) error {
	if format == domain.FormatNone {
		format = source
	}

	switch format {
	case domain.FormatPNG:
		return imaging.Encode(w, img, imaging.PNG)
	case domain.FormatTIFF:
		return imaging.Encode(w, img, imaging.TIFF)
	case domain.FormatWebP:
		return encodeWebP(w, img, quality)
	case domain.FormatAVIF:
		return encodeAVIF(w, img, quality, speed)
	default:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(jpeg.DefaultQuality))
	}
}

// Save reserves a collision-free output path for unit, encodes into it and
// returns the final path and its size. A failed encode removes the reserved
// file.
func Save(ctx context.Context, unit *Unit, opts domain.TransformOptions, claimer claim.Claimer) (string, int64, error) {
	f, err := ReserveOutput(ctx, unit.Output, claimer)
	if err != nil {
		return "", 0, err
	}
	path := f.Name()

	bw := bufio.NewWriter(f)
	err = Encode(bw, unit.Image, opts.Format, unit.SourceFormat, opts.Quality, opts.Speed)
	if err == nil {
		err = bw.Flush()
	}
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close output: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(path)
		if claimer != nil {
			_ = claimer.Release(ctx, path)
		}
		return "", 0, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return path, 0, nil
	}
	return path, info.Size(), nil
}

// avifEffort maps speed (1 slowest, 10 fastest) onto libvips effort
// (9 slowest, 0 fastest).
func avifEffort(speed int) int {
	effort := 10 - speed
	if effort < 0 {
		return 0
	}
	if effort > 9 {
		return 9
	}
	return effort
}

func webpQuality(quality float32) float32 {
	if quality < 1 {
		return 1
	}
	if quality > 100 {
		return 100
	}
	return quality
}
