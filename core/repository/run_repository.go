package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"training-orchestrator/core/models"
)

// RunStore is the run registry consumed by the launcher and the HTTP API
type RunStore interface {
	CreateRun(ctx context.Context, run *models.Run) error
	UpdateRunStatus(ctx context.Context, id string, status models.RunStatus) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*models.Run, error)
	AddArtifact(ctx context.Context, id string, artifact models.RunArtifact) error
	ListArtifacts(ctx context.Context, id string) ([]models.RunArtifact, error)
}

// timeLayout is fixed-width so text columns sort chronologically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// RunRepository handles database operations for runs
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun inserts a new run
func (r *RunRepository) CreateRun(ctx context.Context, run *models.Run) error {
	devices, err := json.Marshal(nonNil(run.Devices))
	if err != nil {
		return err
	}
	query := r.db.Rebind(`
		INSERT INTO runs (id, submitted_at, config, weights, profile, devices_json, log_path, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		formatTime(run.SubmittedAt),
		run.Config,
		run.Weights,
		run.Profile,
		string(devices),
		run.LogPath,
		string(run.Status),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateRunStatus updates the status of a run
func (r *RunRepository) UpdateRunStatus(ctx context.Context, id string, status models.RunStatus) error {
	query := r.db.Rebind(`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, string(status), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
	}
	return nil
}

// GetRun retrieves a run by ID
func (r *RunRepository) GetRun(ctx context.Context, id string) (*models.Run, error) {
	query := r.db.Rebind(`
		SELECT id, submitted_at, config, weights, profile, devices_json, log_path, status
		FROM runs
		WHERE id = ?
	`)
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	run.Artifacts, err = r.ListArtifacts(ctx, id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns lists runs newest first. limit <= 0 means no limit.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	query := `
		SELECT id, submitted_at, config, weights, profile, devices_json, log_path, status
		FROM runs
		ORDER BY submitted_at DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// AddArtifact records an artifact for a run
func (r *RunRepository) AddArtifact(ctx context.Context, id string, artifact models.RunArtifact) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, r.db.Rebind(`SELECT COUNT(*) FROM runs WHERE id = ?`), id).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
	}

	query := r.db.Rebind(`INSERT INTO run_artifacts (run_id, type, uri, created_at) VALUES (?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, query, id, string(artifact.Type), artifact.URI, formatTime(artifact.CreatedAt)); err != nil {
		return fmt.Errorf("add artifact to run %s: %w", id, err)
	}
	return tx.Commit()
}

// ListArtifacts retrieves the artifacts of a run, oldest first
func (r *RunRepository) ListArtifacts(ctx context.Context, id string) ([]models.RunArtifact, error) {
	query := r.db.Rebind(`
		SELECT type, uri, created_at
		FROM run_artifacts
		WHERE run_id = ?
		ORDER BY created_at ASC
	`)
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []models.RunArtifact
	for rows.Next() {
		var a models.RunArtifact
		var createdAt string
		if err := rows.Scan(&a.Type, &a.URI, &createdAt); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("artifact created_at: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var run models.Run
	var submittedAt, devices, status string
	var weights sql.NullString

	err := row.Scan(
		&run.ID,
		&submittedAt,
		&run.Config,
		&weights,
		&run.Profile,
		&devices,
		&run.LogPath,
		&status,
	)
	if err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)
	if weights.Valid {
		run.Weights = &weights.String
	}
	if run.SubmittedAt, err = time.Parse(timeLayout, submittedAt); err != nil {
		return nil, fmt.Errorf("run %s submitted_at: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(devices), &run.Devices); err != nil {
		return nil, fmt.Errorf("run %s devices: %w", run.ID, err)
	}
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
