package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_LogEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)

	tests := []struct {
		name  string
		event AuditEvent
	}{
		{
			name: "record created",
			event: AuditEvent{
				Action:       ActionRecordCreated,
				RecordIDs:    []int64{1700000000000},
				FolderNumber: "A1",
			},
		},
		{
			name: "backup replaced with details",
			event: AuditEvent{
				Action:  ActionBackupReplaced,
				Details: json.RawMessage(`{"records": 3}`),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectExec("INSERT INTO record_audit_events").
				WithArgs(sqlmock.AnyArg(), string(tt.event.Action), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(1, 1))

			assert.NoError(t, service.LogEvent(context.Background(), tt.event))
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_LogRecordChange(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return fixed }

	mock.ExpectExec("INSERT INTO record_audit_events").
		WithArgs(sqlmock.AnyArg(), "record.deleted", "{42}", sqlmock.AnyArg(), nil, fixed).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = service.LogRecordChange(context.Background(), "record.deleted", []int64{42}, "")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_LogEventError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO record_audit_events").WillReturnError(boom)

	err = NewAuditService(db).LogRecordChange(context.Background(), "record.created", []int64{1}, "A1")
	assert.ErrorIs(t, err, boom)
}

func TestAuditService_QueryEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "action", "record_ids", "folder_number", "details", "created_at",
	}).AddRow(
		uuid.NewString(), "record.updated", "{7,8}", "A1", []byte(`{}`), now,
	).AddRow(
		uuid.NewString(), "backup.merged", "{}", nil, nil, now.Add(-time.Hour),
	)

	mock.ExpectQuery("SELECT (.+) FROM record_audit_events").
		WithArgs("A1", int64(7), sqlmock.AnyArg()).
		WillReturnRows(rows)

	events, err := service.QueryEvents(context.Background(), AuditFilter{
		FolderNumber: "A1",
		RecordID:     7,
		StartTime:    now.Add(-24 * time.Hour),
		Limit:        100,
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ActionRecordUpdated, events[0].Action)
	assert.Equal(t, []int64{7, 8}, events[0].RecordIDs)
	assert.Equal(t, "A1", events[0].FolderNumber)
	assert.Empty(t, events[1].FolderNumber)
	assert.Empty(t, events[1].RecordIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
