package kiosk

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTouchAndTakeCommandReturnsPreviousSlotValue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE kiosk_devices k")).
		WithArgs("ESP32-7", at, "1.2.0", "10.0.0.5").
		WillReturnRows(sqlmock.NewRows([]string{"pending_command"}).AddRow("reboot"))

	repo := NewRepository(db)
	cmd, err := repo.TouchAndTakeCommand(context.Background(), "ESP32-7", "1.2.0", "10.0.0.5", at)
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, "reboot", *cmd)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTouchAndTakeCommandEmptySlot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 8, 31, 9, 31, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE kiosk_devices k")).
		WithArgs("ESP32-7", at, "", "").
		WillReturnRows(sqlmock.NewRows([]string{"pending_command"}).AddRow(nil))

	repo := NewRepository(db)
	cmd, err := repo.TouchAndTakeCommand(context.Background(), "ESP32-7", "", "", at)
	require.NoError(t, err)
	assert.Nil(t, cmd)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTouchAndTakeCommandUnknownSerial(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 8, 31, 9, 32, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE kiosk_devices k")).
		WithArgs("ghost", at, "", "").
		WillReturnRows(sqlmock.NewRows([]string{"pending_command"}))

	repo := NewRepository(db)
	cmd, err := repo.TouchAndTakeCommand(context.Background(), "ghost", "", "", at)
	require.NoError(t, err)
	assert.Nil(t, cmd)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueCommandRequiresExistingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE kiosk_devices SET pending_command")).
		WithArgs("ghost", "reboot").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewRepository(db)
	err = repo.QueueCommand(context.Background(), "ghost", "reboot")
	assert.ErrorIs(t, err, ErrUnknownSerial)
	assert.NoError(t, mock.ExpectationsWereMet())
}
