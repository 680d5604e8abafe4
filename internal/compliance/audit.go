// Package compliance keeps an append-only audit trail of changes to clinical records.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Action names a kind of record change.
type Action string

const (
	ActionRecordCreated  Action = "record.created"
	ActionRecordUpdated  Action = "record.updated"
	ActionRecordDeleted  Action = "record.deleted"
	ActionBackupMerged   Action = "backup.merged"
	ActionBackupReplaced Action = "backup.replaced"
)

// AuditEvent is one immutable audit row.
type AuditEvent struct {
	ID           string          `json:"id"`
	Action       Action          `json:"action"`
	RecordIDs    []int64         `json:"record_ids,omitempty"`
	FolderNumber string          `json:"folder_number,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// AuditService writes and reads record_audit_events.
type AuditService struct {
	db  *sql.DB
	now func() time.Time
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db, now: time.Now}
}

// LogEvent records an audit event, filling in ID and CreatedAt when unset.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	if event.RecordIDs == nil {
		event.RecordIDs = []int64{}
	}

	query := `
		INSERT INTO record_audit_events (
			id, action, record_ids, folder_number, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Action),
		pq.Array(event.RecordIDs),
		nullString(event.FolderNumber),
		nullJSON(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}
	return nil
}

// LogRecordChange satisfies records.Auditor.
func (s *AuditService) LogRecordChange(ctx context.Context, action string, recordIDs []int64, folderNumber string) error {
	return s.LogEvent(ctx, AuditEvent{
		Action:       Action(action),
		RecordIDs:    recordIDs,
		FolderNumber: folderNumber,
	})
}

// AuditFilter narrows QueryEvents. Zero fields are ignored.
type AuditFilter struct {
	FolderNumber string
	Action       Action
	RecordID     int64
	StartTime    time.Time
	EndTime      time.Time
	Limit        int
}

// QueryEvents lists audit events newest first.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, action, record_ids, folder_number, details, created_at
		FROM record_audit_events
		WHERE 1 = 1
	`
	var args []any
	argIdx := 1

	if filter.FolderNumber != "" {
		query += fmt.Sprintf(" AND folder_number = $%d", argIdx)
		args = append(args, filter.FolderNumber)
		argIdx++
	}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, string(filter.Action))
		argIdx++
	}
	if filter.RecordID != 0 {
		query += fmt.Sprintf(" AND $%d = ANY(record_ids)", argIdx)
		args = append(args, filter.RecordID)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var (
			e       AuditEvent
			action  string
			ids     pq.Int64Array
			folder  sql.NullString
			details []byte
		)
		if err := rows.Scan(&e.ID, &action, &ids, &folder, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.Action = Action(action)
		e.RecordIDs = []int64(ids)
		e.FolderNumber = folder.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: failed to read audit events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
