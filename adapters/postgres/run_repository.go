// Package postgres persists run manifests and result bundles. Persistence is
// optional; the engine and CLI work entirely in memory without it.
package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"permstat/domain/glm"
	"permstat/domain/run"
	"permstat/internal/errors"
	"permstat/ports"
)

// Connect opens and pings a PostgreSQL connection.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, errors.WrapCode(err, errors.CodeDatabaseError, "connect to postgres")
	}
	return db, nil
}

// RunRepositoryImpl implements ports.RunRepository for PostgreSQL.
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a PostgreSQL run repository.
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &RunRepositoryImpl{db: db}
}

// EnsureSchema creates the run tables when they do not exist.
func (r *RunRepositoryImpl) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS permutation_runs (
			id UUID PRIMARY KEY,
			state TEXT NOT NULL,
			n_permutations INTEGER NOT NULL,
			seed BIGINT NOT NULL,
			stat_name TEXT NOT NULL,
			n_samples INTEGER NOT NULL DEFAULT 0,
			n_features INTEGER NOT NULL DEFAULT 0,
			n_contrasts INTEGER NOT NULL DEFAULT 0,
			two_tailed BOOLEAN NOT NULL DEFAULT FALSE,
			flip_signs BOOLEAN NOT NULL DEFAULT FALSE,
			accel_tail BOOLEAN NOT NULL DEFAULT FALSE,
			correct_across_contrasts BOOLEAN NOT NULL DEFAULT FALSE,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			elapsed_ms BIGINT NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS permutation_results (
			run_id UUID NOT NULL REFERENCES permutation_runs(id) ON DELETE CASCADE,
			result_key TEXT NOT NULL,
			result_values DOUBLE PRECISION[] NOT NULL,
			PRIMARY KEY (run_id, result_key)
		);
	`)
	if err != nil {
		return errors.WrapCode(err, errors.CodeDatabaseError, "ensure run schema")
	}
	return nil
}

// SaveManifest inserts a new manifest.
func (r *RunRepositoryImpl) SaveManifest(ctx context.Context, m *run.Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO permutation_runs (
			id, state, n_permutations, seed, stat_name,
			n_samples, n_features, n_contrasts,
			two_tailed, flip_signs, accel_tail, correct_across_contrasts,
			started_at, completed_at, elapsed_ms, error_message
		) VALUES (
			:id, :state, :n_permutations, :seed, :stat_name,
			:n_samples, :n_features, :n_contrasts,
			:two_tailed, :flip_signs, :accel_tail, :correct_across_contrasts,
			:started_at, :completed_at, :elapsed_ms, :error_message
		)
	`, m)
	if err != nil {
		return errors.WrapCode(err, errors.CodeDatabaseError, "insert run manifest")
	}
	return nil
}

// UpdateManifest writes the manifest's mutable lifecycle fields.
func (r *RunRepositoryImpl) UpdateManifest(ctx context.Context, m *run.Manifest) error {
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE permutation_runs
		SET state = :state,
		    n_samples = :n_samples,
		    n_features = :n_features,
		    n_contrasts = :n_contrasts,
		    completed_at = :completed_at,
		    elapsed_ms = :elapsed_ms,
		    error_message = :error_message
		WHERE id = :id
	`, m)
	if err != nil {
		return errors.WrapCode(err, errors.CodeDatabaseError, "update run manifest")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Newf(errors.CodeNotFound, "run %s not found", m.ID)
	}
	return nil
}

// GetManifest retrieves a manifest by run ID.
func (r *RunRepositoryImpl) GetManifest(ctx context.Context, id uuid.UUID) (*run.Manifest, error) {
	var m run.Manifest
	err := r.db.GetContext(ctx, &m, `
		SELECT id, state, n_permutations, seed, stat_name,
		       n_samples, n_features, n_contrasts,
		       two_tailed, flip_signs, accel_tail, correct_across_contrasts,
		       started_at, completed_at, elapsed_ms, error_message
		FROM permutation_runs
		WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.CodeNotFound, "run %s not found", id)
	}
	if err != nil {
		return nil, errors.WrapCode(err, errors.CodeDatabaseError, "get run manifest")
	}
	return &m, nil
}

// ListManifests returns recent manifests, newest first.
func (r *RunRepositoryImpl) ListManifests(ctx context.Context, limit int) ([]*run.Manifest, error) {
	query := `
		SELECT id, state, n_permutations, seed, stat_name,
		       n_samples, n_features, n_contrasts,
		       two_tailed, flip_signs, accel_tail, correct_across_contrasts,
		       started_at, completed_at, elapsed_ms, error_message
		FROM permutation_runs
		ORDER BY started_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	var manifests []*run.Manifest
	if err := r.db.SelectContext(ctx, &manifests, query, args...); err != nil {
		return nil, errors.WrapCode(err, errors.CodeDatabaseError, "list run manifests")
	}
	return manifests, nil
}

// SaveResults stores every named array of a bundle. Existing keys for the
// run are overwritten, so a rerun with the same ID replaces its results.
func (r *RunRepositoryImpl) SaveResults(ctx context.Context, runID uuid.UUID, bundle glm.ResultBundle) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.WrapCode(err, errors.CodeDatabaseError, "begin results transaction")
	}
	defer tx.Rollback()

	for key, values := range bundle {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO permutation_results (run_id, result_key, result_values)
			VALUES ($1, $2, $3)
			ON CONFLICT (run_id, result_key) DO UPDATE SET result_values = EXCLUDED.result_values
		`, runID, key, pq.Float64Array(values))
		if err != nil {
			return errors.WrapCode(err, errors.CodeDatabaseError, "insert result "+key)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.WrapCode(err, errors.CodeDatabaseError, "commit results")
	}
	return nil
}

// GetResults reassembles the stored bundle for a run.
func (r *RunRepositoryImpl) GetResults(ctx context.Context, runID uuid.UUID) (glm.ResultBundle, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT result_key, result_values
		FROM permutation_results
		WHERE run_id = $1
	`, runID)
	if err != nil {
		return nil, errors.WrapCode(err, errors.CodeDatabaseError, "query results")
	}
	defer rows.Close()

	bundle := glm.ResultBundle{}
	for rows.Next() {
		var key string
		var values pq.Float64Array
		if err := rows.Scan(&key, &values); err != nil {
			return nil, errors.WrapCode(err, errors.CodeDatabaseError, "scan result row")
		}
		bundle[key] = []float64(values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapCode(err, errors.CodeDatabaseError, "iterate results")
	}
	if len(bundle) == 0 {
		return nil, errors.Newf(errors.CodeNotFound, "no results stored for run %s", runID)
	}
	return bundle, nil
}
