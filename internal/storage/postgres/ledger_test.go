package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
	"github.com/JakeFAU/cse-daily-fetcher/internal/store"
)

func newLedger(t *testing.T) (*Ledger, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	ledger, err := NewWithPool(mock, "", "")
	require.NoError(t, err)
	return ledger, mock
}

func TestNewWithPoolValidates(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "", "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewWithPool(mock, "runs; DROP TABLE x", "")
	require.ErrorContains(t, err, "invalid table name")
}

func TestOpenRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{})
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	ledger, mock := newLedger(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS artifacts").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, ledger.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStartAndCompleteRun(t *testing.T) {
	t.Parallel()

	ledger, mock := newLedger(t)
	started := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	finished := started.Add(3 * time.Second)
	filename := "CSE_Daily_2024_03_15.pdf"

	mock.ExpectExec("INSERT INTO runs").
		WithArgs("run-1", started, "running").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE runs").
		WithArgs(finished, "success", (*string)(nil), (*string)(nil), &filename, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ctx := context.Background()
	require.NoError(t, ledger.StartRun(ctx, "run-1", started))
	require.NoError(t, ledger.CompleteRun(ctx, "run-1", store.Completion{
		FinishedAt: finished,
		Status:     store.RunSuccess,
		Filename:   &filename,
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteUnknownRun(t *testing.T) {
	t.Parallel()

	ledger, mock := newLedger(t)
	mock.ExpectExec("UPDATE runs").
		WithArgs(pgxmock.AnyArg(), "error", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := ledger.CompleteRun(context.Background(), "missing", store.Completion{Status: store.RunError})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	ledger, mock := newLedger(t)
	started := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	finished := started.Add(time.Second)
	kind := "report_block_not_found"
	msg := "report block not found"

	mock.ExpectQuery("SELECT id, started_at").
		WithArgs("run-2").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "started_at", "finished_at", "status", "error_kind", "error_message", "filename",
		}).AddRow("run-2", started, &finished, "error", &kind, &msg, (*string)(nil)))

	run, err := ledger.GetRun(context.Background(), "run-2")
	require.NoError(t, err)
	assert.Equal(t, store.RunError, run.Status)
	require.NotNil(t, run.ErrorKind)
	assert.Equal(t, kind, *run.ErrorKind)
	assert.Nil(t, run.Filename)
	require.NotNil(t, run.FinishedAt)
	assert.True(t, run.FinishedAt.Equal(finished))
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	ledger, mock := newLedger(t)
	mock.ExpectQuery("SELECT id, started_at").WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err := ledger.GetRun(context.Background(), "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	ledger, mock := newLedger(t)
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	filename := "CSE_Daily_2024_03_15.pdf"
	cols := []string{"id", "started_at", "finished_at", "status", "error_kind", "error_message", "filename"}

	mock.ExpectQuery("ORDER BY started_at DESC").
		WithArgs(20).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("run-2", now, &now, "success", (*string)(nil), (*string)(nil), &filename).
			AddRow("run-1", now.Add(-time.Hour), (*time.Time)(nil), "running", (*string)(nil), (*string)(nil), (*string)(nil)))

	runs, err := ledger.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, store.RunSuccess, runs[0].Status)
	assert.Nil(t, runs[1].FinishedAt)
}

func TestListRunsQueryError(t *testing.T) {
	t.Parallel()

	ledger, mock := newLedger(t)
	mock.ExpectQuery("ORDER BY started_at DESC").WithArgs(5).WillReturnError(errors.New("boom"))

	_, err := ledger.ListRuns(context.Background(), 5)
	require.ErrorContains(t, err, "boom")
}

func TestPublishInsertsArtifact(t *testing.T) {
	t.Parallel()

	ledger, mock := newLedger(t)
	assert.Equal(t, "ledger", ledger.Name())

	stored := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	pub := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	sum := "abc123"
	artifact := report.Artifact{
		RunID:           "run-1",
		File:            report.StoredFile{Path: "downloads/CSE_Daily_2024_03_15.pdf", Filename: "CSE_Daily_2024_03_15.pdf", SizeBytes: 2048},
		SourceURL:       "https://cdn.cse.lk/cmt/report.pdf",
		PublicationDate: &pub,
		DateFromPage:    true,
		SHA256:          sum,
		StoredAt:        stored,
	}

	mock.ExpectExec("INSERT INTO artifacts").
		WithArgs(
			artifact.File.Filename,
			artifact.RunID,
			artifact.File.Path,
			artifact.File.SizeBytes,
			&sum,
			artifact.SourceURL,
			(*string)(nil),
			&pub,
			true,
			stored,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, ledger.Publish(context.Background(), artifact))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishRequiresFilename(t *testing.T) {
	t.Parallel()

	ledger, _ := newLedger(t)
	require.Error(t, ledger.Publish(context.Background(), report.Artifact{}))
}
