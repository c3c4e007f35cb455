package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"campusd/internal/schedule"
)

type fakeStores struct {
	rooms     map[string]*Room
	schedules map[string][]schedule.Schedule
	roomErr   error
	schedErr  error
}

func (f *fakeStores) RoomByID(_ context.Context, id string) (*Room, error) {
	if f.roomErr != nil {
		return nil, f.roomErr
	}
	return f.rooms[id], nil
}

func (f *fakeStores) SchedulesByRoom(_ context.Context, roomID string) ([]schedule.Schedule, error) {
	if f.schedErr != nil {
		return nil, f.schedErr
	}
	return f.schedules[roomID], nil
}

// 2026-08-31 is a Monday.
func mondayAt(clock string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", "2026-08-31 "+clock, schedule.Civil)
	if err != nil {
		panic(err)
	}
	return t
}

func testStores() *fakeStores {
	return &fakeStores{
		rooms: map[string]*Room{
			"room-a": {ID: "room-a", Name: "A101", DepartmentID: "dept-1"},
			"room-b": {ID: "room-b", Name: "B202", DepartmentID: "dept-1"},
		},
		schedules: map[string][]schedule.Schedule{
			"room-a": {{
				ID:           "sched-1",
				RoomID:       "room-a",
				InstructorID: "inst-1",
				DepartmentID: "dept-1",
				Days:         "Mon,Wed,Fri",
				StartTime:    "09:00",
				EndTime:      "10:00",
			}},
		},
	}
}

func gateAt(stores *fakeStores, clock string) *Gate {
	g := NewGate(stores, stores)
	g.now = func() time.Time { return mondayAt(clock) }
	return g
}

func specificActor(roomID string) Actor {
	return Actor{
		Kind:    ActorDevice,
		Binding: &TokenBinding{Specific: true, RoomID: roomID, DepartmentID: "dept-1"},
	}
}

func TestSpecificTokenRoomMismatchAlwaysDenied(t *testing.T) {
	g := gateAt(testStores(), "09:30")
	// room-b is in the same department; the mismatch still has to lose.
	d := g.Authorize(context.Background(), specificActor("room-a"), Request{RoomID: "room-b"})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonTokenRoomMismatch, d.Reason)
}

func TestSpecificTokenInfersRoom(t *testing.T) {
	g := gateAt(testStores(), "09:30")
	d := g.Authorize(context.Background(), specificActor("room-a"), Request{})
	assert.True(t, d.Allowed)
	assert.Equal(t, "room-a", d.Context.RoomID)
	assert.Equal(t, "sched-1", d.Context.ClassID)
	assert.Empty(t, d.Context.InstructorID)
}

func TestGlobalTokenRequiresRoom(t *testing.T) {
	g := gateAt(testStores(), "09:30")
	actor := Actor{Kind: ActorDevice, Binding: &TokenBinding{DepartmentID: "dept-1"}}
	d := g.Authorize(context.Background(), actor, Request{})
	assert.Equal(t, ReasonMissingRoom, d.Reason)

	d = g.Authorize(context.Background(), actor, Request{RoomID: "room-a"})
	assert.True(t, d.Allowed)
}

func TestUnknownRoomDenied(t *testing.T) {
	g := gateAt(testStores(), "09:30")
	actor := Actor{Kind: ActorDevice, Binding: &TokenBinding{DepartmentID: "dept-1"}}
	d := g.Authorize(context.Background(), actor, Request{RoomID: "room-z"})
	assert.Equal(t, ReasonRoomNotFound, d.Reason)
}

func TestCrossDepartmentHardDenied(t *testing.T) {
	g := gateAt(testStores(), "09:30")
	actor := Actor{Kind: ActorDevice, Binding: &TokenBinding{DepartmentID: "dept-2"}}
	d := g.Authorize(context.Background(), actor, Request{RoomID: "room-a"})
	assert.Equal(t, ReasonCrossDepartment, d.Reason)
}

func TestDeviceRoomNotActiveOutsideWindow(t *testing.T) {
	// Control tolerance is 30m lead / 15m lag around 09:00–10:00.
	g := gateAt(testStores(), "08:29")
	d := g.Authorize(context.Background(), specificActor("room-a"), Request{})
	assert.Equal(t, ReasonRoomNotActive, d.Reason)

	g = gateAt(testStores(), "08:30")
	assert.True(t, g.Authorize(context.Background(), specificActor("room-a"), Request{}).Allowed)

	g = gateAt(testStores(), "10:16")
	assert.Equal(t, ReasonRoomNotActive, g.Authorize(context.Background(), specificActor("room-a"), Request{}).Reason)
}

func TestWebActorNeedsOwnScheduleForRoom(t *testing.T) {
	own := Actor{Kind: ActorWeb, InstructorID: "inst-1", DepartmentID: "dept-1"}
	other := Actor{Kind: ActorWeb, InstructorID: "inst-2", DepartmentID: "dept-1"}

	g := gateAt(testStores(), "09:30")
	d := g.Authorize(context.Background(), own, Request{RoomID: "room-a"})
	assert.True(t, d.Allowed)
	assert.Equal(t, "inst-1", d.Context.InstructorID)

	// Someone else's active schedule does not help.
	d = g.Authorize(context.Background(), other, Request{RoomID: "room-a"})
	assert.Equal(t, ReasonNotAuthorizedForRoom, d.Reason)
}

func TestWebActorWindowLead(t *testing.T) {
	actor := Actor{Kind: ActorWeb, InstructorID: "inst-1", DepartmentID: "dept-1"}
	stores := testStores()

	g := gateAt(stores, "08:30")
	g.lead = 15 * time.Minute
	assert.Equal(t, ReasonNotAuthorizedForRoom,
		g.Authorize(context.Background(), actor, Request{RoomID: "room-a"}).Reason)

	g = gateAt(stores, "08:46")
	g.lead = 15 * time.Minute
	assert.True(t, g.Authorize(context.Background(), actor, Request{RoomID: "room-a"}).Allowed)
}

func TestStoreFailuresFailClosed(t *testing.T) {
	stores := testStores()
	stores.roomErr = errors.New("connection refused")
	g := gateAt(stores, "09:30")
	d := g.Authorize(context.Background(), specificActor("room-a"), Request{})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonUpstreamUnavailable, d.Reason)

	stores = testStores()
	stores.schedErr = errors.New("timeout")
	g = gateAt(stores, "09:30")
	d = g.Authorize(context.Background(), specificActor("room-a"), Request{})
	assert.Equal(t, ReasonUpstreamUnavailable, d.Reason)
}
