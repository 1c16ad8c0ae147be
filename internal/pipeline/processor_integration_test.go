package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/dunamismax/pixelbatch/internal/domain"
)

func TestProcessor_FileInTransformFileOut(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	outputDir := filepath.Join(tmp, "out")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatalf("create output dir: %v", err)
	}

	if err := os.WriteFile(inputPath, buildTestPNG(t, 240, 120), 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}

	opts := domain.DefaultTransformOptions()
	opts.Width = 80
	opts.Format = domain.FormatJPEG

	out, err := NewProcessor(opts, outputDir).Process(context.Background(), inputPath)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if want := filepath.Join(outputDir, "input.jpeg"); out.Path != want {
		t.Fatalf("expected output %s, got %s", want, out.Path)
	}
	if out.Format != domain.FormatJPEG {
		t.Fatalf("expected jpeg output format, got %s", out.Format)
	}
	if out.Width != 80 || out.Height != 40 {
		t.Fatalf("expected 80x40, got %dx%d", out.Width, out.Height)
	}
	if out.Bytes <= 0 {
		t.Fatalf("expected non-empty output, got %d bytes", out.Bytes)
	}
	verifyImage(t, out.Path, "jpeg", 80, 40)
}

func TestProcessor_NativeFormatRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "photo.png")
	if err := os.WriteFile(inputPath, buildTestPNG(t, 32, 16), 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}
	outputDir := filepath.Join(tmp, "out")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatalf("create output dir: %v", err)
	}

	opts := domain.DefaultTransformOptions()
	opts.Resize = domain.ResizeNone

	out, err := NewProcessor(opts, outputDir).Process(context.Background(), inputPath)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if want := filepath.Join(outputDir, "photo.png"); out.Path != want {
		t.Fatalf("expected output %s, got %s", want, out.Path)
	}
	if out.Format != domain.FormatPNG {
		t.Fatalf("expected native png format, got %s", out.Format)
	}
	verifyImage(t, out.Path, "png", 32, 16)
}

func TestProcessor_CollisionKeepsExistingOutput(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "photo.png")
	if err := os.WriteFile(inputPath, buildTestPNG(t, 8, 8), 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}
	outputDir := filepath.Join(tmp, "out")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatalf("create output dir: %v", err)
	}

	processor := NewProcessor(domain.DefaultTransformOptions(), outputDir)
	for i, want := range []string{"photo.png", "photo_1.png", "photo_2.png"} {
		out, err := processor.Process(context.Background(), inputPath)
		if err != nil {
			t.Fatalf("process run %d: %v", i, err)
		}
		if out.Path != filepath.Join(outputDir, want) {
			t.Fatalf("run %d: expected %s, got %s", i, want, out.Path)
		}
	}
}

func TestProcessor_CorruptInputFailsInDecoding(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "broken.jpg")
	if err := os.WriteFile(inputPath, []byte("definitely not a jpeg"), 0o644); err != nil {
		t.Fatalf("write corrupt input: %v", err)
	}

	_, err := NewProcessor(domain.DefaultTransformOptions(), tmp).Process(context.Background(), inputPath)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if stage := StageOf(err); stage != StageDecoding {
		t.Fatalf("expected decoding stage, got %s", stage)
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no output written, found %d entries", len(entries))
	}
}

func TestProcessor_MissingInputFailsInDecoding(t *testing.T) {
	_, err := NewProcessor(domain.DefaultTransformOptions(), t.TempDir()).
		Process(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	if StageOf(err) != StageDecoding {
		t.Fatalf("expected decoding failure, got %v", err)
	}
}

func buildTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func verifyImage(t *testing.T, path, wantFormat string, wantW, wantH int) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open image %s: %v", path, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode image %s: %v", path, err)
	}
	if format != wantFormat {
		t.Fatalf("expected %s container, got %s", wantFormat, format)
	}
	if cfg.Width != wantW || cfg.Height != wantH {
		t.Fatalf("expected %dx%d, got %dx%d", wantW, wantH, cfg.Width, cfg.Height)
	}
}
