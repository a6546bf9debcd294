package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/urban-analytics/simflow/internal/db"
	"github.com/urban-analytics/simflow/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS zones (
	code TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	lon  DOUBLE PRECISION NOT NULL,
	lat  DOUBLE PRECISION NOT NULL,
	geom BYTEA
);

CREATE TABLE IF NOT EXISTS flows (
	dataset         TEXT NOT NULL,
	origin          TEXT NOT NULL,
	dest            TEXT NOT NULL,
	observed        DOUBLE PRECISION NOT NULL,
	log_dest_attr   DOUBLE PRECISION NOT NULL,
	log_origin_size DOUBLE PRECISION NOT NULL,
	log_distance    DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (dataset, origin, dest)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	dataset    TEXT NOT NULL,
	model      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	summary    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_estimates (
	run_id TEXT NOT NULL REFERENCES runs(id),
	origin TEXT NOT NULL,
	dest   TEXT NOT NULL,
	value  DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, origin, dest)
);

CREATE INDEX IF NOT EXISTS idx_flows_dataset ON flows(dataset);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset);
CREATE INDEX IF NOT EXISTS idx_run_estimates_run_id ON run_estimates(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertZones(ctx context.Context, zones []model.Zone) (int64, error) {
	var n int64
	for _, z := range zones {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO zones (code, name, lon, lat, geom) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, lon = EXCLUDED.lon, lat = EXCLUDED.lat, geom = EXCLUDED.geom`,
			z.Code, z.Name, z.Lon, z.Lat, z.Geom)
		if err != nil {
			return n, eris.Wrapf(err, "postgres: upsert zone %s", z.Code)
		}
		n++
	}
	return n, nil
}

func (s *PostgresStore) ListZones(ctx context.Context) ([]model.Zone, error) {
	rows, err := s.pool.Query(ctx, `SELECT code, name, lon, lat, geom FROM zones ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list zones")
	}
	defer rows.Close()

	var zones []model.Zone
	for rows.Next() {
		var z model.Zone
		if err := rows.Scan(&z.Code, &z.Name, &z.Lon, &z.Lat, &z.Geom); err != nil {
			return nil, eris.Wrap(err, "postgres: scan zone")
		}
		zones = append(zones, z)
	}
	return zones, eris.Wrap(rows.Err(), "postgres: iterate zones")
}

// InsertFlows replaces the dataset's rows and bulk-loads the new ones via
// COPY.
func (s *PostgresStore) InsertFlows(ctx context.Context, dataset string, flows []model.Flow) (int64, error) {
	if len(flows) == 0 {
		return 0, nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM flows WHERE dataset = $1`, dataset); err != nil {
		return 0, eris.Wrapf(err, "postgres: clear dataset %s", dataset)
	}

	rows := make([][]any, len(flows))
	for i, f := range flows {
		rows[i] = []any{dataset, f.Origin, f.Dest, f.Observed, f.LogDestAttr, f.LogOriginSize, f.LogDistance}
	}
	cols := []string{"dataset", "origin", "dest", "observed", "log_dest_attr", "log_origin_size", "log_distance"}
	return db.CopyFrom(ctx, s.pool, "flows", cols, rows)
}

func (s *PostgresStore) LoadFlows(ctx context.Context, dataset string) (*model.FlowTable, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT origin, dest, observed, log_dest_attr, log_origin_size, log_distance
		FROM flows WHERE dataset = $1 ORDER BY origin, dest`, dataset)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load flows for %s", dataset)
	}
	defer rows.Close()

	var flows []model.Flow
	for rows.Next() {
		var f model.Flow
		if err := rows.Scan(&f.Origin, &f.Dest, &f.Observed, &f.LogDestAttr, &f.LogOriginSize, &f.LogDistance); err != nil {
			return nil, eris.Wrap(err, "postgres: scan flow")
		}
		flows = append(flows, f)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate flows")
	}
	return model.NewFlowTable(dataset, flows), nil
}

func (s *PostgresStore) DatasetCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT dataset, COUNT(*) FROM flows GROUP BY dataset ORDER BY dataset`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dataset counts")
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var ds string
		var n int64
		if err := rows.Scan(&ds, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dataset count")
		}
		counts[ds] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate dataset counts")
}

func (s *PostgresStore) CreateRun(ctx context.Context, dataset, modelKind string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, dataset, model, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, dataset, modelKind, string(model.RunStatusQueued), now, now)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Dataset:   dataset,
		Model:     modelKind,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrap(err, "postgres: update run status")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveRunSummary(ctx context.Context, runID string, summary *model.FitSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET summary = $1, status = $2, updated_at = $3 WHERE id = $4`,
		string(data), string(model.RunStatusComplete), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrap(err, "postgres: save run summary")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var summary *string
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, dataset, model, status, summary, created_at, updated_at FROM runs WHERE id = $1`, runID,
	).Scan(&r.ID, &r.Dataset, &r.Model, &status, &summary, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}
	r.Status = model.RunStatus(status)
	if summary != nil && *summary != "" {
		var fs model.FitSummary
		if err := json.Unmarshal([]byte(*summary), &fs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
		r.Summary = &fs
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, dataset, model, status, summary, created_at, updated_at FROM runs`
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+arg(string(filter.Status)))
	}
	if filter.Dataset != "" {
		conds = append(conds, "dataset = "+arg(filter.Dataset))
	}
	if filter.Model != "" {
		conds = append(conds, "model = "+arg(filter.Model))
	}
	if len(conds) > 0 {
		query += " WHERE " + conds[0]
		for _, c := range conds[1:] {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET " + arg(filter.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var summary *string
		var status string
		if err := rows.Scan(&r.ID, &r.Dataset, &r.Model, &status, &summary, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.RunStatus(status)
		if summary != nil && *summary != "" {
			var fs model.FitSummary
			if err := json.Unmarshal([]byte(*summary), &fs); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal summary")
			}
			r.Summary = &fs
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) SaveEstimates(ctx context.Context, runID string, estimates []model.ODValue) (int64, error) {
	if len(estimates) == 0 {
		return 0, nil
	}
	rows := make([][]any, len(estimates))
	for i, e := range estimates {
		rows[i] = []any{runID, e.Origin, e.Dest, e.Value}
	}
	return db.CopyFrom(ctx, s.pool, "run_estimates", []string{"run_id", "origin", "dest", "value"}, rows)
}

func (s *PostgresStore) LoadEstimates(ctx context.Context, runID string) ([]model.ODValue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT origin, dest, value FROM run_estimates WHERE run_id = $1 ORDER BY origin, dest`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load estimates")
	}
	defer rows.Close()

	var out []model.ODValue
	for rows.Next() {
		var v model.ODValue
		if err := rows.Scan(&v.Origin, &v.Dest, &v.Value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan estimate")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate estimates")
}
