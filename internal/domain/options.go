package domain

import (
	"fmt"
	"strings"
)

type ResizePolicy int

const (
	ResizeNone ResizePolicy = iota
	ResizeExact
	ResizeThumbnail
	ResizeFill
)

// ParseResizePolicy is case-insensitive; unknown names mean no resize.
func ParseResizePolicy(s string) ResizePolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact":
		return ResizeExact
	case "thumbnail":
		return ResizeThumbnail
	case "fill":
		return ResizeFill
	default:
		return ResizeNone
	}
}

func (p ResizePolicy) String() string {
	switch p {
	case ResizeExact:
		return "exact"
	case ResizeThumbnail:
		return "thumbnail"
	case ResizeFill:
		return "fill"
	default:
		return "none"
	}
}

func (p ResizePolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *ResizePolicy) UnmarshalText(text []byte) error {
	*p = ParseResizePolicy(string(text))
	return nil
}

// UsesFilter reports whether the policy resamples through the configured filter.
func (p ResizePolicy) UsesFilter() bool {
	return p == ResizeExact || p == ResizeFill
}

type Filter int

const (
	FilterLanczos Filter = iota
	FilterTriangle
	FilterCatmullRom
	FilterGaussian
	FilterNearest
)

func ParseFilter(s string) Filter {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "triangle":
		return FilterTriangle
	case "catmullrom":
		return FilterCatmullRom
	case "gaussian":
		return FilterGaussian
	case "nearest":
		return FilterNearest
	default:
		return FilterLanczos
	}
}

func (f Filter) String() string {
	switch f {
	case FilterTriangle:
		return "triangle"
	case FilterCatmullRom:
		return "catmullrom"
	case FilterGaussian:
		return "gaussian"
	case FilterNearest:
		return "nearest"
	default:
		return "lanczos"
	}
}

func (f Filter) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Filter) UnmarshalText(text []byte) error {
	*f = ParseFilter(string(text))
	return nil
}

// Format is the target container. FormatNone keeps the source container.
type Format int

const (
	FormatNone Format = iota
	FormatPNG
	FormatJPEG
	FormatTIFF
	FormatWebP
	FormatAVIF
)

func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return FormatPNG
	case "jpeg":
		return FormatJPEG
	case "tiff":
		return FormatTIFF
	case "webp":
		return FormatWebP
	case "avif":
		return FormatAVIF
	default:
		return FormatNone
	}
}

func (f Format) String() string {
	if f == FormatNone {
		return "none"
	}
	return f.Extension()
}

// Extension is the canonical file extension without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpeg"
	case FormatTIFF:
		return "tiff"
	case FormatWebP:
		return "webp"
	case FormatAVIF:
		return "avif"
	default:
		return ""
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatTIFF:
		return "image/tiff"
	case FormatWebP:
		return "image/webp"
	case FormatAVIF:
		return "image/avif"
	default:
		return "application/octet-stream"
	}
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Format) UnmarshalText(text []byte) error {
	*f = ParseFormat(string(text))
	return nil
}

// Rotation is clockwise. It doubles as the normalizing pre-rotation derived
// from embedded orientation metadata.
type Rotation int

const (
	RotateNone Rotation = iota
	Rotate90
	Rotate180
	Rotate270
)

func ParseRotation(s string) Rotation {
	switch strings.TrimSpace(s) {
	case "90":
		return Rotate90
	case "180":
		return Rotate180
	case "270":
		return Rotate270
	default:
		return RotateNone
	}
}

func (r Rotation) Degrees() int {
	switch r {
	case Rotate90:
		return 90
	case Rotate180:
		return 180
	case Rotate270:
		return 270
	default:
		return 0
	}
}

func (r Rotation) String() string {
	if r == RotateNone {
		return "none"
	}
	return fmt.Sprintf("%d", r.Degrees())
}

func (r Rotation) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Rotation) UnmarshalText(text []byte) error {
	*r = ParseRotation(string(text))
	return nil
}

// TransformOptions is the immutable per-run transform configuration.
// Zero Width or Height means the axis was not configured.
type TransformOptions struct {
	Width          int          `json:"width,omitempty"`
	Height         int          `json:"height,omitempty"`
	Resize         ResizePolicy `json:"resize"`
	Filter         Filter       `json:"filter"`
	Format         Format       `json:"format"`
	Quality        float32      `json:"quality"`
	Speed          int          `json:"speed"`
	Rotation       Rotation     `json:"rotation"`
	FlipHorizontal bool         `json:"flip_horizontal,omitempty"`
	FlipVertical   bool         `json:"flip_vertical,omitempty"`
}

const (
	DefaultQuality = 75.0
	DefaultSpeed   = 7
)

func DefaultTransformOptions() TransformOptions {
	return TransformOptions{
		Resize:  ResizeExact,
		Filter:  FilterLanczos,
		Format:  FormatNone,
		Quality: DefaultQuality,
		Speed:   DefaultSpeed,
	}
}
