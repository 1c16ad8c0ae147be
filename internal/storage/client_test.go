package storage

import (
	"path/filepath"
	"testing"
)

func TestObjectKey(t *testing.T) {
	cases := []struct {
		prefix string
		runID  string
		path   string
		want   string
	}{
		{"outputs", "run-1", filepath.Join("out", "photo.png"), "outputs/run-1/photo.png"},
		{"", "run-1", "photo_1.webp", "outputs/run-1/photo_1.webp"},
		{"/mirror/", "run-2", filepath.Join("a", "b", "c.jpeg"), "mirror/run-2/c.jpeg"},
		{"outputs", " ", "x.tiff", "outputs/unknown/x.tiff"},
	}

	for _, tc := range cases {
		if got := ObjectKey(tc.prefix, tc.runID, tc.path); got != tc.want {
			t.Fatalf("ObjectKey(%q, %q, %q) = %q, want %q", tc.prefix, tc.runID, tc.path, got, tc.want)
		}
	}
}

func TestNewClientRequiresBucket(t *testing.T) {
	if _, err := NewClient(Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error for empty bucket")
	}

	c, err := NewClient(Config{Endpoint: "localhost:9000", Bucket: "pixelbatch"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.Bucket() != "pixelbatch" {
		t.Fatalf("expected bucket pixelbatch, got %s", c.Bucket())
	}
}
