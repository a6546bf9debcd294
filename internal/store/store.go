// Package store persists zones, flow tables, and model fit runs behind a
// single interface with SQLite and Postgres backends.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/urban-analytics/simflow/internal/model"
)

// ErrNotFound is returned for lookups of runs that do not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  model.RunStatus `json:"status,omitempty"`
	Dataset string          `json:"dataset,omitempty"`
	Model   string          `json:"model,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the modelling toolkit.
type Store interface {
	// Zones
	UpsertZones(ctx context.Context, zones []model.Zone) (int64, error)
	ListZones(ctx context.Context) ([]model.Zone, error)

	// Flows
	InsertFlows(ctx context.Context, dataset string, flows []model.Flow) (int64, error)
	LoadFlows(ctx context.Context, dataset string) (*model.FlowTable, error)
	DatasetCounts(ctx context.Context) (map[string]int64, error)

	// Runs
	CreateRun(ctx context.Context, dataset, modelKind string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	SaveRunSummary(ctx context.Context, runID string, summary *model.FitSummary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Estimated matrices
	SaveEstimates(ctx context.Context, runID string, estimates []model.ODValue) (int64, error)
	LoadEstimates(ctx context.Context, runID string) ([]model.ODValue, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
