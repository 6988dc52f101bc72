// Package store records the history of enrichment runs.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wildfire-cli/internal/model"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = eris.New("run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for run history.
type Store interface {
	CreateRun(ctx context.Context, params string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error
	FailRun(ctx context.Context, runID string, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

const defaultLimit = 100

func limitOf(f RunFilter) int {
	if f.Limit <= 0 {
		return defaultLimit
	}
	return f.Limit
}
