// Package repository provides PostgreSQL persistence for the work audit
// trail: upload outcomes and job failures recorded by the coordinator.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const (
	KindUploadCompleted = "upload_completed"
	KindUploadFailed    = "upload_failed"
	KindJobTracked      = "job_tracked"
	KindJobFailed       = "job_failed"
)

// Event is one audit entry. RefID points at the upload or job the event is
// about; Detail carries the error message for failure kinds.
type Event struct {
	ID          int64     `json:"id"`
	Kind        string    `json:"kind"`
	RefID       string    `json:"ref_id"`
	Destination string    `json:"destination,omitempty"`
	FileName    string    `json:"file_name,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(connectionString string) (*AuditRepository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &AuditRepository{db: db}, nil
}

func (r *AuditRepository) RecordEvent(ctx context.Context, e Event) error {
	occurredAt := e.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	query := `
		INSERT INTO work_audit (
			kind, ref_id, destination, file_name, detail, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		e.Kind,
		e.RefID,
		e.Destination,
		e.FileName,
		e.Detail,
		occurredAt,
	)

	return err
}

func (r *AuditRepository) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT id, kind, ref_id, destination, file_name, detail, occurred_at
		FROM work_audit
		ORDER BY occurred_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	events := []Event{}
	for rows.Next() {
		var e Event
		var destination, fileName, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Kind, &e.RefID, &destination, &fileName, &detail, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Destination = destination.String
		e.FileName = fileName.String
		e.Detail = detail.String
		events = append(events, e)
	}

	return events, rows.Err()
}

// FailureCounts returns the number of failure events per destination since
// the given time, for the dashboard's failure breakdown.
func (r *AuditRepository) FailureCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `
		SELECT destination, COUNT(*)
		FROM work_audit
		WHERE kind IN ($1, $2) AND occurred_at >= $3
		GROUP BY destination
	`

	rows, err := r.db.QueryContext(ctx, query, KindUploadFailed, KindJobFailed, since)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[string]int)
	for rows.Next() {
		var destination sql.NullString
		var count int
		if err := rows.Scan(&destination, &count); err != nil {
			return nil, err
		}
		counts[destination.String] = count
	}

	return counts, rows.Err()
}

func (r *AuditRepository) Close() error {
	return r.db.Close()
}
