package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"kcbalance/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveCalibration(ctx context.Context, record model.CalibrationRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeCalibration(record)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO calibrations (run_id, created_at_utc, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			created_at_utc = excluded.created_at_utc,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, record.RunID, record.CreatedAtUTC, record.SchemaVersion, record.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetCalibration(ctx context.Context, runID string) (model.CalibrationRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.CalibrationRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM calibrations WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.CalibrationRecord{}, false, nil
		}
		return model.CalibrationRecord{}, false, err
	}

	record, err := DecodeCalibration(payload)
	if err != nil {
		return model.CalibrationRecord{}, false, fmt.Errorf("decode calibration %s: %w", runID, err)
	}
	return record, true, nil
}

func (s *SQLiteStore) ListRunIDs(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT run_id FROM calibrations ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) SaveFitnessHistory(ctx context.Context, runID string, metric model.Metric, history []float64) error {
	payload, err := EncodeFitnessHistory(history)
	if err != nil {
		return err
	}
	return s.saveSeries(ctx, "fitness_history", runID, metric, payload)
}

func (s *SQLiteStore) GetFitnessHistory(ctx context.Context, runID string, metric model.Metric) ([]float64, bool, error) {
	payload, ok, err := s.getSeries(ctx, "fitness_history", runID, metric)
	if err != nil || !ok {
		return nil, ok, err
	}
	history, err := DecodeFitnessHistory(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode fitness history %s/%s: %w", runID, metric, err)
	}
	return history, true, nil
}

func (s *SQLiteStore) SaveGenerationDiagnostics(ctx context.Context, runID string, metric model.Metric, diagnostics []model.GenerationDiagnostics) error {
	payload, err := EncodeGenerationDiagnostics(diagnostics)
	if err != nil {
		return err
	}
	return s.saveSeries(ctx, "generation_diagnostics", runID, metric, payload)
}

func (s *SQLiteStore) GetGenerationDiagnostics(ctx context.Context, runID string, metric model.Metric) ([]model.GenerationDiagnostics, bool, error) {
	payload, ok, err := s.getSeries(ctx, "generation_diagnostics", runID, metric)
	if err != nil || !ok {
		return nil, ok, err
	}
	diagnostics, err := DecodeGenerationDiagnostics(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode diagnostics %s/%s: %w", runID, metric, err)
	}
	return diagnostics, true, nil
}

func (s *SQLiteStore) SaveLineage(ctx context.Context, runID string, metric model.Metric, lineage []model.LineageRecord) error {
	payload, err := EncodeLineage(lineage)
	if err != nil {
		return err
	}
	return s.saveSeries(ctx, "lineage", runID, metric, payload)
}

func (s *SQLiteStore) GetLineage(ctx context.Context, runID string, metric model.Metric) ([]model.LineageRecord, bool, error) {
	payload, ok, err := s.getSeries(ctx, "lineage", runID, metric)
	if err != nil || !ok {
		return nil, ok, err
	}
	lineage, err := DecodeLineage(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode lineage %s/%s: %w", runID, metric, err)
	}
	return lineage, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// saveSeries upserts a per-metric payload. table is always one of the
// constant series table names.
func (s *SQLiteStore) saveSeries(ctx context.Context, table, runID string, metric model.Metric, payload []byte) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO `+table+` (run_id, metric, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, metric) DO UPDATE SET
			payload = excluded.payload
	`, runID, string(metric), payload)
	return err
}

func (s *SQLiteStore) getSeries(ctx context.Context, table, runID string, metric model.Metric) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}
	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM `+table+` WHERE run_id = ? AND metric = ?`, runID, string(metric)).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS calibrations (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL UNIQUE,
			created_at_utc TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS fitness_history (
			run_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, metric)
		);
		CREATE TABLE IF NOT EXISTS generation_diagnostics (
			run_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, metric)
		);
		CREATE TABLE IF NOT EXISTS lineage (
			run_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, metric)
		);
	`)
	return err
}
