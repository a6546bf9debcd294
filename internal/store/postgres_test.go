package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urban-analytics/simflow/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgres_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, dataset, model, status, summary, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("missing-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "missing-run")
	require.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRun_WithSummary(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	summary := `{"model":"production","deterrence":"power","r2":0.93,"converged":true}`
	mock.ExpectQuery(`SELECT id, dataset, model, status, summary, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "dataset", "model", "status", "summary", "created_at", "updated_at"},
		).AddRow("run-1", "commute", "production", "complete", &summary, now, now))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "commute", run.Dataset)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Summary)
	assert.Equal(t, "production", run.Summary.Model)
	assert.InDelta(t, 0.93, run.Summary.R2, 1e-12)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "commute", "doubly", "queued", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), "commute", "doubly")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("running", pgxmock.AnyArg(), "missing-run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing-run", model.RunStatusRunning)
	require.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertZones(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO zones`).
		WithArgs("A", "Alpha", -0.1, 51.5, []byte{1}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO zones`).
		WithArgs("B", "Bravo", -1.2, 52.1, []byte(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	n, err := s.UpsertZones(context.Background(), []model.Zone{
		{Code: "A", Name: "Alpha", Lon: -0.1, Lat: 51.5, Geom: []byte{1}},
		{Code: "B", Name: "Bravo", Lon: -1.2, Lat: 52.1},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertFlows_ReplacesDataset(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM flows WHERE dataset = \$1`).
		WithArgs("commute").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCopyFrom(pgx.Identifier{"flows"},
		[]string{"dataset", "origin", "dest", "observed", "log_dest_attr", "log_origin_size", "log_distance"}).
		WillReturnResult(2)

	n, err := s.InsertFlows(context.Background(), "commute", testFlows()[:2])
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertFlows_Empty(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	n, err := s.InsertFlows(context.Background(), "commute", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPostgres_LoadFlows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT origin, dest, observed, log_dest_attr, log_origin_size, log_distance`).
		WithArgs("commute").
		WillReturnRows(pgxmock.NewRows(
			[]string{"origin", "dest", "observed", "log_dest_attr", "log_origin_size", "log_distance"},
		).
			AddRow("A", "X", 120.0, 5.3, 6.9, 2.48).
			AddRow("A", "Y", 45.0, 6.1, 6.9, 3.22))

	tab, err := s.LoadFlows(context.Background(), "commute")
	require.NoError(t, err)
	assert.Equal(t, 2, tab.Len())
	assert.Equal(t, []string{"A"}, tab.Origins())
	assert.Equal(t, []string{"X", "Y"}, tab.Dests())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveEstimates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"run_estimates"},
		[]string{"run_id", "origin", "dest", "value"}).
		WillReturnResult(2)

	n, err := s.SaveEstimates(context.Background(), "run-1", []model.ODValue{
		{Origin: "A", Dest: "X", Value: 118.4},
		{Origin: "A", Dest: "Y", Value: 46.2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListRuns_Filtered(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, dataset, model, status, summary, created_at, updated_at FROM runs WHERE status = \$1`).
		WithArgs("complete").
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "dataset", "model", "status", "summary", "created_at", "updated_at"},
		).AddRow("run-1", "commute", "production", "complete", (*string)(nil), now, now))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Nil(t, runs[0].Summary)
	assert.NoError(t, mock.ExpectationsWereMet())
}
