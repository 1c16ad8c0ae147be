package pipeline

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelbatch/internal/domain"
)

// TargetSize resolves the output dimensions for a resize policy. Zero width
// or height means the axis was not configured.
func TargetSize(policy domain.ResizePolicy, width, height, naturalW, naturalH int) (int, int) {
	switch policy {
	case domain.ResizeExact:
		return exactSize(width, height, naturalW, naturalH)
	case domain.ResizeThumbnail, domain.ResizeFill:
		return boundedSize(width, height, naturalW, naturalH)
	default:
		return naturalW, naturalH
	}
}

// exactSize keeps the aspect ratio when only one axis is configured.
func exactSize(width, height, naturalW, naturalH int) (int, int) {
	switch {
	case naturalW == 0 || naturalH == 0:
		return 0, 0
	case width == 0 && height == 0:
		return naturalW, naturalH
	case width == 0:
		return height * naturalW / naturalH, height
	case height == 0:
		return width, width * naturalH / naturalW
	default:
		return width, height
	}
}

func boundedSize(width, height, naturalW, naturalH int) (int, int) {
	if width == 0 {
		width = naturalW
	}
	if height == 0 {
		height = naturalH
	}
	return width, height
}

// Resize applies the configured resize policy. Thumbnail only shrinks.
func Resize(img image.Image, opts domain.TransformOptions) image.Image {
	if opts.Resize == domain.ResizeNone {
		return img
	}

	bounds := img.Bounds()
	w, h := TargetSize(opts.Resize, opts.Width, opts.Height, bounds.Dx(), bounds.Dy())
	filter := resampleFilter(opts.Filter)

	switch opts.Resize {
	case domain.ResizeExact:
		if w == bounds.Dx() && h == bounds.Dy() {
			return img
		}
		return imaging.Resize(img, w, h, filter)
	case domain.ResizeThumbnail:
		return imaging.Fit(img, w, h, filter)
	case domain.ResizeFill:
		return imaging.Fill(img, w, h, imaging.Center, filter)
	default:
		return img
	}
}

// Orient applies the explicit rotation, then the vertical flip, then the
// horizontal flip. The order is fixed regardless of how options were given.
func Orient(img image.Image, rotation domain.Rotation, flipVertical, flipHorizontal bool) image.Image {
	img = Rotate(img, rotation)
	if flipVertical {
		img = imaging.FlipV(img)
	}
	if flipHorizontal {
		img = imaging.FlipH(img)
	}
	return img
}

// Rotate turns img clockwise. imaging rotates counter-clockwise, hence the
// swapped 90/270 calls.
func Rotate(img image.Image, rotation domain.Rotation) image.Image {
	switch rotation {
	case domain.Rotate90:
		return imaging.Rotate270(img)
	case domain.Rotate180:
		return imaging.Rotate180(img)
	case domain.Rotate270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

func resampleFilter(f domain.Filter) imaging.ResampleFilter {
	switch f {
	case domain.FilterTriangle:
		return imaging.Linear
	case domain.FilterCatmullRom:
		return imaging.CatmullRom
	case domain.FilterGaussian:
		return imaging.Gaussian
	case domain.FilterNearest:
		return imaging.NearestNeighbor
	default:
		return imaging.Lanczos
	}
}
