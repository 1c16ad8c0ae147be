package pipeline

import (
	"bytes"
	"io"
	"os"

	"github.com/dunamismax/pixelbatch/internal/domain"
	"github.com/rwcarlsen/goexif/exif"
)

// ResolveOrientation reads the EXIF orientation tag of the file at path and
// returns the clockwise rotation that makes the pixels upright. Missing files,
// missing metadata and unsupported codes all resolve to RotateNone.
func ResolveOrientation(path string) domain.Rotation {
	f, err := os.Open(path)
	if err != nil {
		return domain.RotateNone
	}
	defer f.Close()
	return orientationFrom(f)
}

func orientationFromBytes(data []byte) domain.Rotation {
	return orientationFrom(bytes.NewReader(data))
}

func orientationFrom(r io.Reader) (rotation domain.Rotation) {
	// goexif panics on some truncated IFDs.
	defer func() {
		if recover() != nil {
			rotation = domain.RotateNone
		}
	}()

	x, err := exif.Decode(r)
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return domain.RotateNone
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return domain.RotateNone
	}
	code, err := tag.Int(0)
	if err != nil {
		return domain.RotateNone
	}
	return rotationForOrientation(code)
}

// rotationForOrientation maps EXIF orientation codes to clockwise rotations.
// Mirrored codes (2, 4, 5, 7) are left untouched.
func rotationForOrientation(code int) domain.Rotation {
	switch code {
	case 3:
		return domain.Rotate180
	case 6:
		return domain.Rotate90
	case 8:
		return domain.Rotate270
	default:
		return domain.RotateNone
	}
}
