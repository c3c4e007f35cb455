package authz

import (
	"context"
	"time"

	"campusd/internal/schedule"
)

// Device-control window tolerance. Looser than the attendance and kiosk
// tolerances on purpose: the question here is "is anyone supposed to be in
// this room right now", not "is check-in open".
const (
	ControlLead = 30 * time.Minute
	ControlLag  = 15 * time.Minute
)

// Reason is a terminal deny code. Stable strings, surfaced to callers and
// counted in metrics.
type Reason string

const (
	ReasonMissingRoom          Reason = "room_required"
	ReasonTokenRoomMismatch    Reason = "token_room_mismatch"
	ReasonRoomNotFound         Reason = "room_not_found"
	ReasonCrossDepartment      Reason = "cross_department_denied"
	ReasonRoomNotActive        Reason = "room_not_active"
	ReasonNotAuthorizedForRoom Reason = "not_authorized_for_room_at_this_time"
	ReasonUpstreamUnavailable  Reason = "dependency_unavailable"
)

// ActorKind distinguishes bearer-token devices from human web sessions.
type ActorKind string

const (
	ActorDevice ActorKind = "device"
	ActorWeb    ActorKind = "web"
)

// TokenBinding is what a device bearer token resolves to. A specific
// binding fixes the room; a global one requires the caller to name it.
type TokenBinding struct {
	Specific     bool
	RoomID       string
	DepartmentID string
}

// Actor is the caller identity resolved once per request. Never cached
// across requests.
type Actor struct {
	Kind         ActorKind
	Binding      *TokenBinding // device actors only
	InstructorID string        // web actors only
	DepartmentID string        // web actors only
}

// Room is the lookup result the gate checks department ownership against.
type Room struct {
	ID           string
	Name         string
	DepartmentID string
}

// Request is a device-control request as seen by the gate.
type Request struct {
	RoomID string
}

// Context is the audit payload returned on allow. Consumed by the caller
// for logging only, never re-used for further authorization.
type Context struct {
	InstructorID string // empty for anonymous device actions
	DepartmentID string
	RoomID       string
	ClassID      string // the schedule that made the room active
}

// Decision is either an allow carrying audit context or a deny with a
// terminal reason.
type Decision struct {
	Allowed bool
	Reason  Reason
	Context Context
}

func deny(r Reason) Decision { return Decision{Reason: r} }

// RoomStore looks rooms up by id. Nil result means not found.
type RoomStore interface {
	RoomByID(ctx context.Context, id string) (*Room, error)
}

// ScheduleStore lists the class schedules touching a room.
type ScheduleStore interface {
	SchedulesByRoom(ctx context.Context, roomID string) ([]schedule.Schedule, error)
}

// Gate decides whether a control action on a room is permitted. Stateless
// and safe for concurrent use; all lookups go through the injected stores.
type Gate struct {
	rooms     RoomStore
	schedules ScheduleStore
	lead      time.Duration
	lag       time.Duration
	now       func() time.Time
}

// NewGate builds a gate with the device-control tolerance.
func NewGate(rooms RoomStore, schedules ScheduleStore) *Gate {
	return &Gate{
		rooms:     rooms,
		schedules: schedules,
		lead:      ControlLead,
		lag:       ControlLag,
		now:       time.Now,
	}
}

// Authorize evaluates the predicates top to bottom; the first failure is
// terminal. Store errors deny with ReasonUpstreamUnavailable — the gate
// fails closed, never open.
func (g *Gate) Authorize(ctx context.Context, actor Actor, req Request) Decision {
	roomID := req.RoomID
	if actor.Kind == ActorDevice && actor.Binding != nil && actor.Binding.Specific {
		// A specific token fixes the room. Naming a different one is a
		// token/room mismatch, not something to auto-correct.
		if roomID != "" && roomID != actor.Binding.RoomID {
			return deny(ReasonTokenRoomMismatch)
		}
		roomID = actor.Binding.RoomID
	}
	if roomID == "" {
		return deny(ReasonMissingRoom)
	}

	room, err := g.rooms.RoomByID(ctx, roomID)
	if err != nil {
		return deny(ReasonUpstreamUnavailable)
	}
	if room == nil {
		return deny(ReasonRoomNotFound)
	}

	dept := actor.DepartmentID
	if actor.Kind == ActorDevice {
		if actor.Binding == nil {
			return deny(ReasonUpstreamUnavailable)
		}
		dept = actor.Binding.DepartmentID
	}
	if dept != room.DepartmentID {
		return deny(ReasonCrossDepartment)
	}

	scheds, err := g.schedules.SchedulesByRoom(ctx, room.ID)
	if err != nil {
		return deny(ReasonUpstreamUnavailable)
	}

	now := g.now()
	switch actor.Kind {
	case ActorDevice:
		for _, s := range scheds {
			if schedule.IsWithinWindow(s, now, g.lead, g.lag) {
				return Decision{Allowed: true, Context: Context{
					DepartmentID: dept,
					RoomID:       room.ID,
					ClassID:      s.ID,
				}}
			}
		}
		return deny(ReasonRoomNotActive)
	default:
		// Web actors need their own active schedule for this room, not
		// merely somebody's.
		for _, s := range scheds {
			if s.InstructorID == actor.InstructorID && schedule.IsWithinWindow(s, now, g.lead, g.lag) {
				return Decision{Allowed: true, Context: Context{
					InstructorID: actor.InstructorID,
					DepartmentID: dept,
					RoomID:       room.ID,
					ClassID:      s.ID,
				}}
			}
		}
		return deny(ReasonNotAuthorizedForRoom)
	}
}
