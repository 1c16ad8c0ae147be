package runner

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/dunamismax/pixelbatch/internal/domain"
	"github.com/dunamismax/pixelbatch/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRunIsolatesCorruptFiles(t *testing.T) {
	input := t.TempDir()
	output := filepath.Join(t.TempDir(), "nested", "out")

	writeFile(t, filepath.Join(input, "good.jpg"), encodeJPEG(t, 40, 20))
	writeFile(t, filepath.Join(input, "bad.jpg"), []byte("this is not an image"))
	writeFile(t, filepath.Join(input, "notes.txt"), []byte("ignored"))
	writeFile(t, filepath.Join(input, "sub", "deep.png"), encodePNG(t, 8, 8))

	core, logs := observer.New(zapcore.InfoLevel)
	results := store.NewMemoryResultStore()

	r := New(zap.New(core), Options{
		RunID:     "run-e2e",
		Input:     input,
		OutputDir: output,
		Workers:   4,
		Transform: domain.DefaultTransformOptions(),
	}, WithStore(results))

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.Discovered != 2 || summary.Succeeded != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	if got := listDir(t, output); len(got) != 1 || got[0] != "good.jpg" {
		t.Fatalf("expected only good.jpg in output, got %v", got)
	}

	recorded, err := results.ListRun(context.Background(), "run-e2e")
	if err != nil {
		t.Fatalf("list run: %v", err)
	}
	if len(recorded) != 2 {
		t.Fatalf("expected 2 recorded results, got %d", len(recorded))
	}
	bad := recorded[0]
	if bad.Status != domain.FileStatusFailed || bad.Stage != "decoding" || bad.Error == "" {
		t.Fatalf("expected decoding failure for bad.jpg, got %+v", bad)
	}
	good := recorded[1]
	if good.Status != domain.FileStatusSucceeded || good.Width != 40 || good.Height != 20 {
		t.Fatalf("expected 40x20 success for good.jpg, got %+v", good)
	}

	warnings := logs.FilterMessage("transform failed").All()
	if len(warnings) != 1 {
		t.Fatalf("expected one failure diagnostic, got %d", len(warnings))
	}
	if path := warnings[0].ContextMap()["path"]; path != filepath.Join(input, "bad.jpg") {
		t.Fatalf("expected diagnostic for bad.jpg, got %v", path)
	}
	if logs.FilterMessage("done").Len() != 1 {
		t.Fatal("expected a done entry with elapsed time")
	}
}

func TestRunRecursiveIncludesSubdirectories(t *testing.T) {
	input := t.TempDir()
	output := t.TempDir()

	writeFile(t, filepath.Join(input, "top.png"), encodePNG(t, 8, 8))
	writeFile(t, filepath.Join(input, "a", "b", "deep.png"), encodePNG(t, 8, 8))

	opts := domain.DefaultTransformOptions()
	opts.Format = domain.FormatJPEG

	summary, err := New(zap.NewNop(), Options{
		Input:     input,
		OutputDir: output,
		Recursive: true,
		Transform: opts,
	}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Succeeded != 2 {
		t.Fatalf("expected 2 successes, got %+v", summary)
	}
	if got := listDir(t, output); len(got) != 2 || got[0] != "deep.jpeg" || got[1] != "top.jpeg" {
		t.Fatalf("unexpected outputs %v", got)
	}
}

func TestRunSingleFileIgnoresExtension(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "export.dat")
	writeFile(t, input, encodePNG(t, 10, 6))

	opts := domain.DefaultTransformOptions()
	opts.Rotation = domain.Rotate90

	results := store.NewMemoryResultStore()
	r := New(zap.NewNop(), Options{
		Input:     input,
		OutputDir: filepath.Join(dir, "out"),
		Transform: opts,
	}, WithStore(results))

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("expected single file to be processed, got %+v", summary)
	}

	recorded, _ := results.ListRun(context.Background(), r.RunID())
	if len(recorded) != 1 || recorded[0].Width != 6 || recorded[0].Height != 10 {
		t.Fatalf("expected rotated 6x10 output, got %+v", recorded)
	}
	if filepath.Base(recorded[0].Output) != "export.dat" {
		t.Fatalf("expected native output name export.dat, got %s", recorded[0].Output)
	}
}

func TestRunMissingInputFails(t *testing.T) {
	_, err := New(zap.NewNop(), Options{
		Input:     filepath.Join(t.TempDir(), "missing"),
		OutputDir: t.TempDir(),
		Transform: domain.DefaultTransformOptions(),
	}).Run(context.Background())
	if err == nil {
		t.Fatal("expected error for missing input")
	}
}

func TestRunMirrorsOutputsAndNotifies(t *testing.T) {
	input := t.TempDir()
	writeFile(t, filepath.Join(input, "a.png"), encodePNG(t, 4, 4))
	writeFile(t, filepath.Join(input, "b.png"), encodePNG(t, 4, 4))

	mirror := &recordingMirror{}
	notifier := &recordingNotifier{}

	r := New(zap.NewNop(), Options{
		RunID:     "run-mirror",
		Input:     input,
		OutputDir: t.TempDir(),
		Transform: domain.DefaultTransformOptions(),
	}, WithMirror(mirror), WithNotifier(notifier, "http://hooks.invalid/pixelbatch"))

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	sort.Strings(mirror.paths)
	if len(mirror.paths) != 2 || filepath.Base(mirror.paths[0]) != "a.png" {
		t.Fatalf("expected both outputs mirrored, got %v", mirror.paths)
	}
	if len(notifier.summaries) != 1 {
		t.Fatalf("expected one run.completed notification, got %d", len(notifier.summaries))
	}
	if got := notifier.summaries[0]; got.RunID != "run-mirror" || got.Succeeded != 2 {
		t.Fatalf("unexpected notified summary %+v", got)
	}
}

func TestOptionFieldsFollowFormatAndPolicy(t *testing.T) {
	opts := domain.DefaultTransformOptions()
	opts.Resize = domain.ResizeThumbnail
	opts.Format = domain.FormatWebP

	fields := fieldKeys(New(zap.NewNop(), Options{Transform: opts}).optionFields())
	if !fields["quality"] || fields["speed"] || fields["filter"] {
		t.Fatalf("webp thumbnail: unexpected fields %v", fields)
	}

	opts.Resize = domain.ResizeFill
	opts.Format = domain.FormatAVIF
	fields = fieldKeys(New(zap.NewNop(), Options{Transform: opts}).optionFields())
	if !fields["quality"] || !fields["speed"] || !fields["filter"] {
		t.Fatalf("avif fill: unexpected fields %v", fields)
	}

	opts.Format = domain.FormatPNG
	fields = fieldKeys(New(zap.NewNop(), Options{Transform: opts}).optionFields())
	if fields["quality"] || fields["speed"] {
		t.Fatalf("png: unexpected fields %v", fields)
	}
}

type recordingMirror struct {
	mu    sync.Mutex
	paths []string
}

func (m *recordingMirror) Mirror(_ context.Context, runID, localPath string, _ domain.Format) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, localPath)
	return runID + "/" + filepath.Base(localPath), nil
}

type recordingNotifier struct {
	summaries []domain.RunSummary
}

func (n *recordingNotifier) NotifyRunCompleted(_ context.Context, _ string, summary domain.RunSummary) error {
	n.summaries = append(n.summaries, summary)
	return nil
}

func fieldKeys(fields []zap.Field) map[string]bool {
	keys := make(map[string]bool, len(fields))
	for _, f := range fields {
		keys[f.Key] = true
	}
	return keys
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 90, A: 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(w, h)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
