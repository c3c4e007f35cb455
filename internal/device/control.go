package device

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"campusd/internal/audit"
	"campusd/internal/authz"
	"campusd/internal/metrics"
	"campusd/internal/sessionstate"
)

// Actions accepted by the control surface.
const (
	ActionOn  = "ON"
	ActionOff = "OFF"
)

// ControlOutcome is the full result of a control request: the gate decision
// plus, when allowed, one result per endpoint.
type ControlOutcome struct {
	Decision authz.Decision
	Results  []Result
}

// ControlService runs the authorize-then-dispatch pipeline for a room's
// output group. Stateless; safe for concurrent requests on different rooms.
type ControlService struct {
	gate  *authz.Gate
	repo  *Repository
	disp  *Dispatcher
	state *sessionstate.Repository
	sink  audit.Sink
	log   *logrus.Entry
}

// NewControlService wires the pipeline.
func NewControlService(gate *authz.Gate, repo *Repository, disp *Dispatcher, state *sessionstate.Repository, sink audit.Sink) *ControlService {
	return &ControlService{
		gate:  gate,
		repo:  repo,
		disp:  disp,
		state: state,
		sink:  sink,
		log:   logrus.WithField("component", "control"),
	}
}

// Control authorizes and executes one control action. A deny comes back in
// the outcome, not as an error; errors are reserved for invalid input and
// infrastructure failures after authorization.
func (s *ControlService) Control(ctx context.Context, actor authz.Actor, action, group, roomID string) (ControlOutcome, error) {
	action = strings.ToUpper(strings.TrimSpace(action))
	if action != ActionOn && action != ActionOff {
		return ControlOutcome{}, fmt.Errorf("action must be %s or %s", ActionOn, ActionOff)
	}
	if !ValidGroup(group) {
		return ControlOutcome{}, fmt.Errorf("unknown group type %q", group)
	}
	on := action == ActionOn

	decision := s.gate.Authorize(ctx, actor, authz.Request{RoomID: roomID})
	metrics.ObserveGate(decision.Allowed, string(decision.Reason))
	if !decision.Allowed {
		// Denied attempts are still audit-worthy.
		s.sink.Append(ctx, audit.Record{
			ActorID:   actor.InstructorID,
			ActorType: string(actor.Kind),
			Action:    "control_denied",
			Target:    roomID,
			Detail:    string(decision.Reason),
		})
		return ControlOutcome{Decision: decision}, nil
	}

	endpoints, err := s.repo.EndpointsByRoomGroup(ctx, decision.Context.RoomID, group)
	if err != nil {
		return ControlOutcome{}, err
	}

	results := s.disp.Dispatch(ctx, endpoints, on)
	s.recordResults(ctx, decision.Context, actor, action, results)

	if !on {
		// A human (or kiosk button) switching things off sticks for the
		// rest of the day; automation must not fight it.
		date := sessionstate.DateKey(time.Now())
		if err := s.state.MarkManualOverride(ctx, decision.Context.RoomID, date, decision.Context.ClassID); err != nil {
			s.log.WithError(err).Warn("manual override flag write failed")
		}
	}

	return ControlOutcome{Decision: decision, Results: results}, nil
}

// EnsureAutoOn turns a room's lights on once per session, unless automation
// already ran or a human override is in effect. Triggered opportunistically
// by kiosk contact during an active window.
func (s *ControlService) EnsureAutoOn(ctx context.Context, authCtx authz.Context) error {
	date := sessionstate.DateKey(time.Now())
	flags, err := s.state.Get(ctx, authCtx.RoomID, date, authCtx.ClassID)
	if err != nil {
		return err
	}
	if flags.AutoOnDone || flags.ManualOverride {
		return nil
	}

	endpoints, err := s.repo.EndpointsByRoomGroup(ctx, authCtx.RoomID, GroupLights)
	if err != nil {
		return err
	}
	results := s.disp.Dispatch(ctx, endpoints, true)
	s.recordResults(ctx, authCtx, authz.Actor{Kind: authz.ActorDevice}, "AUTO_ON", results)

	return s.state.MarkAutoOn(ctx, authCtx.RoomID, date, authCtx.ClassID)
}

// recordResults updates cached state and appends one audit record per
// endpoint that succeeded. Failures are counted but never block the rest.
func (s *ControlService) recordResults(ctx context.Context, authCtx authz.Context, actor authz.Actor, action string, results []Result) {
	on := action == ActionOn || action == "AUTO_ON"
	for _, res := range results {
		if !res.OK {
			metrics.DispatchResults.WithLabelValues("failure").Inc()
			s.log.WithFields(logrus.Fields{
				"endpoint": res.EndpointID,
				"room":     authCtx.RoomID,
			}).WithField("error", res.Error).Warn("endpoint dispatch failed")
			continue
		}
		metrics.DispatchResults.WithLabelValues("success").Inc()
		if err := s.repo.SetCachedState(ctx, res.EndpointID, on); err != nil {
			s.log.WithError(err).WithField("endpoint", res.EndpointID).Warn("state cache update failed")
		}
		s.sink.Append(ctx, audit.Record{
			ActorID:      authCtx.InstructorID,
			ActorType:    string(actor.Kind),
			Action:       action,
			Target:       res.EndpointID,
			Detail:       res.Role,
			RoomID:       authCtx.RoomID,
			DepartmentID: authCtx.DepartmentID,
		})
	}
}
