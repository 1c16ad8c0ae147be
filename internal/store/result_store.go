package store

import (
	"context"

	"github.com/dunamismax/pixelbatch/internal/domain"
)

// ResultStore is the run ledger: one row per attempted file.
type ResultStore interface {
	Record(ctx context.Context, result domain.FileResult) error
	ListRun(ctx context.Context, runID string) ([]domain.FileResult, error)
}
