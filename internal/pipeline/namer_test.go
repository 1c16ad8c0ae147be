package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dunamismax/pixelbatch/internal/domain"
)

func TestOutputPath(t *testing.T) {
	cases := []struct {
		source string
		format domain.Format
		want   string
	}{
		{"in/photo.jpg", domain.FormatNone, "out/photo.jpg"},
		{"in/photo.jpg", domain.FormatPNG, "out/photo.png"},
		{"in/nested/photo.JPG", domain.FormatJPEG, "out/photo.jpeg"},
		{"in/archive.tar.tiff", domain.FormatWebP, "out/archive.tar.webp"},
		{"in/noext", domain.FormatAVIF, "out/noext.avif"},
	}

	for _, tc := range cases {
		got := OutputPath(tc.source, "out", tc.format)
		if got != filepath.FromSlash(tc.want) {
			t.Fatalf("OutputPath(%q, %s) = %q, want %q", tc.source, tc.format, got, tc.want)
		}
	}
}

func TestReserveOutputAppendsSuffixOnCollision(t *testing.T) {
	dir := t.TempDir()
	target := OutputPath("photo.jpg", dir, domain.FormatPNG)

	if err := os.WriteFile(target, []byte("existing"), 0o644); err != nil {
		t.Fatalf("seed existing output: %v", err)
	}

	first, err := ReserveOutput(context.Background(), target, nil)
	if err != nil {
		t.Fatalf("reserve first: %v", err)
	}
	first.Close()
	if want := filepath.Join(dir, "photo_1.png"); first.Name() != want {
		t.Fatalf("expected %s, got %s", want, first.Name())
	}

	second, err := ReserveOutput(context.Background(), target, nil)
	if err != nil {
		t.Fatalf("reserve second: %v", err)
	}
	second.Close()
	if want := filepath.Join(dir, "photo_2.png"); second.Name() != want {
		t.Fatalf("expected %s, got %s", want, second.Name())
	}

	body, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read original: %v", err)
	}
	if string(body) != "existing" {
		t.Fatal("expected existing output to be left untouched")
	}
}

func TestReserveOutputConcurrentCallersGetDistinctNames(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "photo.png")

	const workers = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		names = make(map[string]struct{}, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := ReserveOutput(context.Background(), target, nil)
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			f.Close()

			mu.Lock()
			names[f.Name()] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(names) != workers {
		t.Fatalf("expected %d distinct names, got %d", workers, len(names))
	}
}

type heldClaimer struct {
	held map[string]bool
}

func (c heldClaimer) Claim(_ context.Context, name string) (bool, error) {
	return !c.held[name], nil
}

func (heldClaimer) Release(context.Context, string) error { return nil }

func TestReserveOutputSkipsNamesClaimedElsewhere(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "photo.png")
	claimer := heldClaimer{held: map[string]bool{target: true}}

	f, err := ReserveOutput(context.Background(), target, claimer)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	f.Close()

	if want := filepath.Join(dir, "photo_1.png"); f.Name() != want {
		t.Fatalf("expected %s, got %s", want, f.Name())
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("expected claimed name %s to stay unwritten, stat err=%v", target, err)
	}
}
