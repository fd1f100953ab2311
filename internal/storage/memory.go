package storage

import (
	"context"
	"errors"
	"sync"

	"kcbalance/internal/model"
)

type MemoryStore struct {
	mu           sync.RWMutex
	initialized  bool
	calibrations map[string]model.CalibrationRecord
	runOrder     []string
	history      map[seriesKey][]float64
	diagnostics  map[seriesKey][]model.GenerationDiagnostics
	lineage      map[seriesKey][]model.LineageRecord
}

type seriesKey struct {
	runID  string
	metric model.Metric
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.calibrations = make(map[string]model.CalibrationRecord)
	s.runOrder = nil
	s.history = make(map[seriesKey][]float64)
	s.diagnostics = make(map[seriesKey][]model.GenerationDiagnostics)
	s.lineage = make(map[seriesKey][]model.LineageRecord)
	return nil
}

var errNotInitialized = errors.New("store is not initialized")

func (s *MemoryStore) SaveCalibration(_ context.Context, record model.CalibrationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	if _, exists := s.calibrations[record.RunID]; !exists {
		s.runOrder = append(s.runOrder, record.RunID)
	}
	s.calibrations[record.RunID] = cloneCalibration(record)
	return nil
}

func (s *MemoryStore) GetCalibration(_ context.Context, runID string) (model.CalibrationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.calibrations[runID]
	if !ok {
		return model.CalibrationRecord{}, false, nil
	}
	return cloneCalibration(record), true, nil
}

func (s *MemoryStore) ListRunIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.runOrder...), nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, metric model.Metric, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.history[seriesKey{runID, metric}] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string, metric model.Metric) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[seriesKey{runID, metric}]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}

func (s *MemoryStore) SaveGenerationDiagnostics(_ context.Context, runID string, metric model.Metric, diagnostics []model.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	copied := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(copied, diagnostics)
	s.diagnostics[seriesKey{runID, metric}] = copied
	return nil
}

func (s *MemoryStore) GetGenerationDiagnostics(_ context.Context, runID string, metric model.Metric) ([]model.GenerationDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	diagnostics, ok := s.diagnostics[seriesKey{runID, metric}]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(copied, diagnostics)
	return copied, true, nil
}

func (s *MemoryStore) SaveLineage(_ context.Context, runID string, metric model.Metric, lineage []model.LineageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.lineage[seriesKey{runID, metric}] = cloneLineage(lineage)
	return nil
}

func (s *MemoryStore) GetLineage(_ context.Context, runID string, metric model.Metric) ([]model.LineageRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lineage, ok := s.lineage[seriesKey{runID, metric}]
	if !ok {
		return nil, false, nil
	}
	return cloneLineage(lineage), true, nil
}

func cloneLineage(lineage []model.LineageRecord) []model.LineageRecord {
	copied := make([]model.LineageRecord, 0, len(lineage))
	for _, record := range lineage {
		record.ParentIDs = append([]string(nil), record.ParentIDs...)
		copied = append(copied, record)
	}
	return copied
}

func cloneCalibration(record model.CalibrationRecord) model.CalibrationRecord {
	results := make([]model.MetricResult, 0, len(record.Results))
	for _, result := range record.Results {
		result.Candidate = result.Candidate.Clone()
		result.BestByGeneration = append([]float64(nil), result.BestByGeneration...)
		if result.Diagnostics != nil {
			diagnostics := make([]model.GenerationDiagnostics, len(result.Diagnostics))
			copy(diagnostics, result.Diagnostics)
			result.Diagnostics = diagnostics
		}
		results = append(results, result)
	}
	record.Results = results
	return record
}
