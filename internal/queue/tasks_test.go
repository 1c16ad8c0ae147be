package queue

import (
	"testing"
	"time"

	"github.com/dunamismax/pixelbatch/internal/domain"
	"github.com/hibiken/asynq"
)

func TestTransformTaskCarriesOptions(t *testing.T) {
	opts := domain.DefaultTransformOptions()
	opts.Resize = domain.ResizeFill
	opts.Width = 120
	opts.Format = domain.FormatWebP
	opts.Rotation = domain.Rotate180

	payload := TransformPayload{
		RunID:       "run-123",
		Source:      "/data/in/photo.jpg",
		OutputDir:   "/data/out",
		Options:     opts,
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewTransformTask(payload)
	if err != nil {
		t.Fatalf("NewTransformTask returned error: %v", err)
	}
	if task.Type() != TypeTransformImage {
		t.Fatalf("expected task type %s, got %s", TypeTransformImage, task.Type())
	}

	parsed, err := ParseTransformPayload(task)
	if err != nil {
		t.Fatalf("ParseTransformPayload returned error: %v", err)
	}
	if parsed.Options != opts {
		t.Fatalf("expected options %+v, got %+v", opts, parsed.Options)
	}
	if parsed.Source != payload.Source || parsed.RunID != payload.RunID {
		t.Fatalf("expected source/run preserved, got %+v", parsed)
	}
}

func TestTransformTaskRejectsIncompletePayload(t *testing.T) {
	if _, err := NewTransformTask(TransformPayload{RunID: "run-1"}); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := ParseTransformPayload(asynq.NewTask(TypeTransformImage, []byte("{"))); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestClientOptionsDisableRetries(t *testing.T) {
	c := &Client{queue: "images", timeout: time.Minute}

	var sawMaxRetry, sawQueue bool
	for _, opt := range c.options() {
		switch opt.Type() {
		case asynq.MaxRetryOpt:
			sawMaxRetry = true
			if opt.Value() != 0 {
				t.Fatalf("expected MaxRetry(0), got %v", opt.Value())
			}
		case asynq.QueueOpt:
			sawQueue = true
			if opt.Value() != "images" {
				t.Fatalf("expected queue images, got %v", opt.Value())
			}
		}
	}
	if !sawMaxRetry || !sawQueue {
		t.Fatal("expected queue and max retry options")
	}
}
