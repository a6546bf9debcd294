package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/urban-analytics/simflow/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS zones (
	code TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	lon  REAL NOT NULL,
	lat  REAL NOT NULL,
	geom BLOB
);

CREATE TABLE IF NOT EXISTS flows (
	dataset         TEXT NOT NULL,
	origin          TEXT NOT NULL,
	dest            TEXT NOT NULL,
	observed        REAL NOT NULL,
	log_dest_attr   REAL NOT NULL,
	log_origin_size REAL NOT NULL,
	log_distance    REAL NOT NULL,
	PRIMARY KEY (dataset, origin, dest)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	dataset    TEXT NOT NULL,
	model      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	summary    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_estimates (
	run_id TEXT NOT NULL REFERENCES runs(id),
	origin TEXT NOT NULL,
	dest   TEXT NOT NULL,
	value  REAL NOT NULL,
	PRIMARY KEY (run_id, origin, dest)
);

CREATE INDEX IF NOT EXISTS idx_flows_dataset ON flows(dataset);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset);
CREATE INDEX IF NOT EXISTS idx_run_estimates_run_id ON run_estimates(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertZones(ctx context.Context, zones []model.Zone) (int64, error) {
	if len(zones) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert zones")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO zones (code, name, lon, lat, geom) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET name = excluded.name, lon = excluded.lon, lat = excluded.lat, geom = excluded.geom`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert zones")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, z := range zones {
		if _, err := stmt.ExecContext(ctx, z.Code, z.Name, z.Lon, z.Lat, z.Geom); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert zone %s", z.Code)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert zones")
	}
	return n, nil
}

func (s *SQLiteStore) ListZones(ctx context.Context) ([]model.Zone, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, name, lon, lat, geom FROM zones ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list zones")
	}
	defer rows.Close() //nolint:errcheck

	var zones []model.Zone
	for rows.Next() {
		var z model.Zone
		if err := rows.Scan(&z.Code, &z.Name, &z.Lon, &z.Lat, &z.Geom); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan zone")
		}
		zones = append(zones, z)
	}
	return zones, eris.Wrap(rows.Err(), "sqlite: iterate zones")
}

func (s *SQLiteStore) InsertFlows(ctx context.Context, dataset string, flows []model.Flow) (int64, error) {
	if len(flows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert flows")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flows (dataset, origin, dest, observed, log_dest_attr, log_origin_size, log_distance)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dataset, origin, dest) DO UPDATE SET
			observed = excluded.observed,
			log_dest_attr = excluded.log_dest_attr,
			log_origin_size = excluded.log_origin_size,
			log_distance = excluded.log_distance`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert flows")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, f := range flows {
		if _, err := stmt.ExecContext(ctx, dataset, f.Origin, f.Dest, f.Observed, f.LogDestAttr, f.LogOriginSize, f.LogDistance); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert flow %s->%s", f.Origin, f.Dest)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert flows")
	}
	return n, nil
}

func (s *SQLiteStore) LoadFlows(ctx context.Context, dataset string) (*model.FlowTable, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT origin, dest, observed, log_dest_attr, log_origin_size, log_distance
		FROM flows WHERE dataset = ? ORDER BY origin, dest`, dataset)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load flows for %s", dataset)
	}
	defer rows.Close() //nolint:errcheck

	var flows []model.Flow
	for rows.Next() {
		var f model.Flow
		if err := rows.Scan(&f.Origin, &f.Dest, &f.Observed, &f.LogDestAttr, &f.LogOriginSize, &f.LogDistance); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan flow")
		}
		flows = append(flows, f)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate flows")
	}
	return model.NewFlowTable(dataset, flows), nil
}

func (s *SQLiteStore) DatasetCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT dataset, COUNT(*) FROM flows GROUP BY dataset ORDER BY dataset`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dataset counts")
	}
	defer rows.Close() //nolint:errcheck

	counts := map[string]int64{}
	for rows.Next() {
		var ds string
		var n int64
		if err := rows.Scan(&ds, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dataset count")
		}
		counts[ds] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: iterate dataset counts")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, dataset, modelKind string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, dataset, model, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, dataset, modelKind, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update run status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SaveRunSummary(ctx context.Context, runID string, summary *model.FitSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET summary = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(data), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: save run summary")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var summary sql.NullString
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, dataset, model, status, summary, created_at, updated_at FROM runs WHERE id = ?`, runID,
	).Scan(&r.ID, &r.Dataset, &r.Model, &status, &summary, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run")
	}
	r.Status = model.RunStatus(status)
	if summary.Valid && summary.String != "" {
		var fs model.FitSummary
		if err := json.Unmarshal([]byte(summary.String), &fs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
		r.Summary = &fs
	}
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, dataset, model, status, summary, created_at, updated_at FROM runs`
	var conds []string
	var args []any
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Dataset != "" {
		conds = append(conds, "dataset = ?")
		args = append(args, filter.Dataset)
	}
	if filter.Model != "" {
		conds = append(conds, "model = ?")
		args = append(args, filter.Model)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var summary sql.NullString
		var status string
		if err := rows.Scan(&r.ID, &r.Dataset, &r.Model, &status, &summary, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Status = model.RunStatus(status)
		if summary.Valid && summary.String != "" {
			var fs model.FitSummary
			if err := json.Unmarshal([]byte(summary.String), &fs); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal summary")
			}
			r.Summary = &fs
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) SaveEstimates(ctx context.Context, runID string, estimates []model.ODValue) (int64, error) {
	if len(estimates) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save estimates")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_estimates (run_id, origin, dest, value) VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id, origin, dest) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare save estimates")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, e := range estimates {
		if _, err := stmt.ExecContext(ctx, runID, e.Origin, e.Dest, e.Value); err != nil {
			return 0, eris.Wrapf(err, "sqlite: save estimate %s->%s", e.Origin, e.Dest)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save estimates")
	}
	return n, nil
}

func (s *SQLiteStore) LoadEstimates(ctx context.Context, runID string) ([]model.ODValue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT origin, dest, value FROM run_estimates WHERE run_id = ? ORDER BY origin, dest`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load estimates")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ODValue
	for rows.Next() {
		var v model.ODValue
		if err := rows.Scan(&v.Origin, &v.Dest, &v.Value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan estimate")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate estimates")
}
