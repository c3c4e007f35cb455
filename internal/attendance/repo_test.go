package attendance

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusd/internal/schedule"
)

func TestListLogsDateFilterBoundsOneCivilDay(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	day := time.Date(2026, 8, 31, 14, 45, 0, 0, schedule.Civil)
	dayStart := time.Date(2026, 8, 31, 0, 0, 0, 0, schedule.Civil)

	checkIn := time.Date(2026, 8, 31, 9, 1, 0, 0, schedule.Civil)
	mock.ExpectQuery(regexp.QuoteMeta(
		"FROM attendance_logs WHERE class_id = $1 AND check_in >= $2 AND check_in < $3 ORDER BY check_in DESC LIMIT $4 OFFSET $5")).
		WithArgs("class-1", dayStart, dayStart.AddDate(0, 0, 1), 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "class_id", "check_in", "check_out", "status", "entry_method", "created_at"}).
			AddRow("log-1", "stu-1", "class-1", checkIn, nil, "present", "face", checkIn))

	repo := NewRepository(db)
	logs, err := repo.ListLogs(context.Background(), "class-1", "", &day, 0, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "log-1", logs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListLogsWithoutDateHasNoTimeClause(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(
		"FROM attendance_logs WHERE student_id = $1 ORDER BY check_in DESC LIMIT $2 OFFSET $3")).
		WithArgs("stu-1", 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "class_id", "check_in", "check_out", "status", "entry_method", "created_at"}))

	repo := NewRepository(db)
	logs, err := repo.ListLogs(context.Background(), "", "stu-1", nil, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetCheckOutStampsOpenRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 8, 31, 10, 0, 0, 0, schedule.Civil)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_logs SET check_out")).
		WithArgs("log-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRepository(db)
	require.NoError(t, repo.SetCheckOut(context.Background(), "log-1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetCheckOutRequiresOpenRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 8, 31, 10, 0, 0, 0, schedule.Civil)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_logs SET check_out")).
		WithArgs("closed", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewRepository(db)
	err = repo.SetCheckOut(context.Background(), "closed", at)
	assert.ErrorIs(t, err, ErrNoOpenLog)
	assert.NoError(t, mock.ExpectationsWereMet())
}
