package device

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusd/internal/audit"
	"campusd/internal/authz"
	"campusd/internal/schedule"
	"campusd/internal/sessionstate"
)

type captureSink struct {
	mu      sync.Mutex
	records []audit.Record
}

func (s *captureSink) Append(_ context.Context, rec audit.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

type gateStores struct {
	rooms     map[string]*authz.Room
	schedules map[string][]schedule.Schedule
}

func (g *gateStores) RoomByID(_ context.Context, id string) (*authz.Room, error) {
	return g.rooms[id], nil
}

func (g *gateStores) SchedulesByRoom(_ context.Context, roomID string) ([]schedule.Schedule, error) {
	return g.schedules[roomID], nil
}

// allDay is active at any evaluation time, so tests need no clock control.
func allDay() schedule.Schedule {
	return schedule.Schedule{
		ID:           "class-1",
		RoomID:       "room-1",
		InstructorID: "inst-1",
		DepartmentID: "dept-1",
		Days:         "Sun,Mon,Tue,Wed,Thu,Fri,Sat",
		StartTime:    "00:00",
		EndTime:      "23:59",
	}
}

func deviceActor() authz.Actor {
	return authz.Actor{
		Kind:    authz.ActorDevice,
		Binding: &authz.TokenBinding{Specific: true, RoomID: "room-1", DepartmentID: "dept-1"},
	}
}

func TestControlRejectsInvalidInput(t *testing.T) {
	svc := NewControlService(nil, nil, nil, nil, audit.NopSink{})

	_, err := svc.Control(context.Background(), deviceActor(), "TOGGLE", GroupLights, "")
	assert.Error(t, err)

	_, err = svc.Control(context.Background(), deviceActor(), ActionOn, "SPRINKLERS", "")
	assert.Error(t, err)
}

func TestControlDenyIsAuditedAndDispatchesNothing(t *testing.T) {
	stores := &gateStores{
		rooms: map[string]*authz.Room{"room-1": {ID: "room-1", DepartmentID: "dept-1"}},
		// No schedules: the room is never active.
	}
	sink := &captureSink{}
	svc := NewControlService(authz.NewGate(stores, stores), nil, nil, nil, sink)

	outcome, err := svc.Control(context.Background(), deviceActor(), ActionOn, GroupLights, "")
	require.NoError(t, err)
	assert.False(t, outcome.Decision.Allowed)
	assert.Equal(t, authz.ReasonRoomNotActive, outcome.Decision.Reason)
	assert.Empty(t, outcome.Results)

	require.Len(t, sink.records, 1)
	assert.Equal(t, "control_denied", sink.records[0].Action)
	assert.Equal(t, string(authz.ReasonRoomNotActive), sink.records[0].Detail)
}

func TestControlUpdatesStateOnlyForSuccessfulEndpoints(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	stores := &gateStores{
		rooms:     map[string]*authz.Room{"room-1": {ID: "room-1", DepartmentID: "dept-1"}},
		schedules: map[string][]schedule.Schedule{"room-1": {allDay()}},
	}

	mock.ExpectQuery(regexp.QuoteMeta("FROM device_endpoints")).
		WithArgs("room-1", GroupLights).
		WillReturnRows(sqlmock.NewRows([]string{"id", "room_id", "role", "control_code", "is_on"}).
			AddRow("ep-a", "room-1", GroupLights, "a", false).
			AddRow("ep-b", "room-1", GroupLights, "b", false))
	// Only the endpoint that responded gets its cached state written.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE device_endpoints SET is_on")).
		WithArgs("ep-a", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	driver := newFakeDriver()
	driver.fail["b"] = errors.New("relay unreachable")

	sink := &captureSink{}
	svc := NewControlService(
		authz.NewGate(stores, stores),
		NewRepository(db),
		NewDispatcher(driver, time.Second),
		sessionstate.NewRepository(db),
		sink,
	)

	outcome, err := svc.Control(context.Background(), deviceActor(), ActionOn, GroupLights, "")
	require.NoError(t, err)
	require.True(t, outcome.Decision.Allowed)
	require.Len(t, outcome.Results, 2)

	require.Len(t, sink.records, 1)
	assert.Equal(t, "ep-a", sink.records[0].Target)
	assert.Equal(t, "room-1", sink.records[0].RoomID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureAutoOnSkipsWhenAlreadyDoneOrOverridden(t *testing.T) {
	for _, flags := range []struct{ done, override bool }{
		{done: true},
		{override: true},
	} {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)

		mock.ExpectQuery(regexp.QuoteMeta("FROM session_state")).
			WillReturnRows(sqlmock.NewRows([]string{"auto_on_done", "manual_override"}).
				AddRow(flags.done, flags.override))

		svc := NewControlService(nil, NewRepository(db), NewDispatcher(newFakeDriver(), time.Second),
			sessionstate.NewRepository(db), audit.NopSink{})

		err = svc.EnsureAutoOn(context.Background(), authz.Context{RoomID: "room-1", ClassID: "class-1", DepartmentID: "dept-1"})
		require.NoError(t, err)
		// No endpoint query, no dispatch.
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

func TestEnsureAutoOnRunsOnceThenMarks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM session_state")).
		WillReturnRows(sqlmock.NewRows([]string{"auto_on_done", "manual_override"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM device_endpoints")).
		WithArgs("room-1", GroupLights).
		WillReturnRows(sqlmock.NewRows([]string{"id", "room_id", "role", "control_code", "is_on"}).
			AddRow("ep-a", "room-1", GroupLights, "a", false))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE device_endpoints SET is_on")).
		WithArgs("ep-a", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_state")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewControlService(nil, NewRepository(db), NewDispatcher(newFakeDriver(), time.Second),
		sessionstate.NewRepository(db), audit.NopSink{})

	err = svc.EnsureAutoOn(context.Background(), authz.Context{RoomID: "room-1", ClassID: "class-1", DepartmentID: "dept-1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
