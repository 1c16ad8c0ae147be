package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/pixelbatch/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeTransformImage = "image:transform"

// TransformPayload carries one file and the run's transform options.
type TransformPayload struct {
	RunID       string                  `json:"run_id"`
	Source      string                  `json:"source"`
	OutputDir   string                  `json:"output_dir"`
	Options     domain.TransformOptions `json:"options"`
	RequestedAt time.Time               `json:"requested_at"`
}

func (p TransformPayload) Validate() error {
	if strings.TrimSpace(p.RunID) == "" {
		return fmt.Errorf("run_id is required")
	}
	if strings.TrimSpace(p.Source) == "" {
		return fmt.Errorf("source is required")
	}
	if strings.TrimSpace(p.OutputDir) == "" {
		return fmt.Errorf("output_dir is required")
	}
	return nil
}

func NewTransformTask(payload TransformPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transform payload: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal transform payload: %w", err)
	}
	return asynq.NewTask(TypeTransformImage, body), nil
}

func ParseTransformPayload(task *asynq.Task) (TransformPayload, error) {
	var payload TransformPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TransformPayload{}, fmt.Errorf("unmarshal transform payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return TransformPayload{}, fmt.Errorf("invalid transform payload: %w", err)
	}
	return payload, nil
}
