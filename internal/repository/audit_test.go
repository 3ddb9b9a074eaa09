package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AuditRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := &AuditRepository{db: db}
	return db, mock, repo
}

func TestNewAuditRepository_ConnectionFailure(t *testing.T) {
	_, err := NewAuditRepository("invalid connection string")
	assert.Error(t, err)
}

func TestRecordEvent(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	event := Event{
		Kind:        KindUploadFailed,
		RefID:       "upload-1",
		Destination: "handbook",
		FileName:    "guide.pdf",
		Detail:      "virus scan rejected the file",
		OccurredAt:  time.Now(),
	}

	mock.ExpectExec("INSERT INTO work_audit").
		WithArgs(event.Kind, event.RefID, event.Destination, event.FileName, event.Detail, event.OccurredAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.RecordEvent(context.Background(), event)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEventDefaultsOccurredAt(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO work_audit").
		WithArgs(KindJobFailed, "job-1", "", "", "boom", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.RecordEvent(context.Background(), Event{
		Kind:   KindJobFailed,
		RefID:  "job-1",
		Detail: "boom",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentEvents(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "kind", "ref_id", "destination", "file_name", "detail", "occurred_at",
	}).
		AddRow(2, KindUploadCompleted, "job-2", "handbook", "guide.pdf", nil, now).
		AddRow(1, KindJobFailed, "job-1", nil, nil, "parse error", now.Add(-time.Minute))

	mock.ExpectQuery("SELECT.*FROM work_audit").
		WithArgs(10).
		WillReturnRows(rows)

	events, err := repo.RecentEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, KindUploadCompleted, events[0].Kind)
	assert.Equal(t, "guide.pdf", events[0].FileName)
	assert.Equal(t, "parse error", events[1].Detail)
	assert.Empty(t, events[1].Destination)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentEvents_QueryError(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT.*FROM work_audit").
		WithArgs(10).
		WillReturnError(sql.ErrConnDone)

	_, err := repo.RecentEvents(context.Background(), 10)
	assert.Error(t, err)
}

func TestFailureCounts(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	since := time.Now().Add(-24 * time.Hour)
	rows := sqlmock.NewRows([]string{"destination", "count"}).
		AddRow("handbook", 3).
		AddRow("contracts", 1)

	mock.ExpectQuery("SELECT destination, COUNT").
		WithArgs(KindUploadFailed, KindJobFailed, since).
		WillReturnRows(rows)

	counts, err := repo.FailureCounts(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"handbook": 3, "contracts": 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
