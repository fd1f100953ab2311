package storage

import (
	"context"

	"kcbalance/internal/model"
)

// Store archives calibration runs. Per-metric series are keyed by run id and
// metric.
type Store interface {
	Init(ctx context.Context) error
	SaveCalibration(ctx context.Context, record model.CalibrationRecord) error
	GetCalibration(ctx context.Context, runID string) (model.CalibrationRecord, bool, error)
	// ListRunIDs returns archived run ids, oldest first.
	ListRunIDs(ctx context.Context) ([]string, error)
	SaveFitnessHistory(ctx context.Context, runID string, metric model.Metric, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string, metric model.Metric) ([]float64, bool, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, metric model.Metric, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string, metric model.Metric) ([]model.GenerationDiagnostics, bool, error)
	SaveLineage(ctx context.Context, runID string, metric model.Metric, lineage []model.LineageRecord) error
	GetLineage(ctx context.Context, runID string, metric model.Metric) ([]model.LineageRecord, bool, error)
}
