package kiosk

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"campusd/internal/metrics"
	"campusd/internal/schedule"
)

// StaleAfter is how old a heartbeat may be before a device counts as
// offline. The sweep runs lazily on list reads, so actual flips can lag by
// one read interval; dashboards are the only consumer and tolerate that.
const StaleAfter = 3 * time.Minute

// Recommended-class tolerance: a class is suggested on the kiosk from 15
// minutes before its start through its scheduled end.
const (
	RecommendedLead = 15 * time.Minute
	RecommendedLag  = 0
)

// Store is the persistence surface the service needs.
type Store interface {
	BySerial(ctx context.Context, serial string) (*Device, error)
	Register(ctx context.Context, serial, firmware, ip string, at time.Time) (*Device, error)
	TouchAndTakeCommand(ctx context.Context, serial, firmware, ip string, at time.Time) (*string, error)
	SetStatus(ctx context.Context, serial, status string) error
	BindRoom(ctx context.Context, serial, roomID, label string) error
	QueueCommand(ctx context.Context, serial, command string) error
	MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error)
	List(ctx context.Context) ([]Device, error)
}

// ScheduleSource lists class schedules for a room.
type ScheduleSource interface {
	SchedulesByRoom(ctx context.Context, roomID string) ([]schedule.Schedule, error)
}

// RosterSource lists enrolled students for a class.
type RosterSource interface {
	StudentsByClass(ctx context.Context, classID string) ([]Student, error)
}

// Contact is what a kiosk sends on heartbeat or sync.
type Contact struct {
	Serial   string
	Firmware string
	IP       string
}

// Provisioning is the state echoed back on every contact.
type Provisioning struct {
	Status string `json:"status"`
	RoomID string `json:"room_id,omitempty"`
	Label  string `json:"label,omitempty"`
}

// HeartbeatResult is the heartbeat response payload.
type HeartbeatResult struct {
	PendingCommand *string      `json:"pending_command"`
	Provisioning   Provisioning `json:"provisioning"`
}

// ClassView is one schedule entry in a sync payload; Recommended marks the
// class whose window contains now.
type ClassView struct {
	ClassID      string `json:"class_id"`
	Subject      string `json:"subject"`
	InstructorID string `json:"instructor_id"`
	DepartmentID string `json:"department_id"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Recommended  bool   `json:"recommended"`
}

// SyncResult is the sync response payload. An approved-but-unbound kiosk
// gets empty sets, not an error; that is a normal steady state.
type SyncResult struct {
	Provisioned    bool        `json:"provisioned"`
	Status         string      `json:"status"`
	RoomID         string      `json:"room_id,omitempty"`
	Classes        []ClassView `json:"classes"`
	Students       []Student   `json:"students"`
	PendingCommand *string     `json:"pending_command"`
}

// Service owns the kiosk lifecycle: self-registration, liveness, provisioning,
// the one-shot command slot, and sync payload shaping.
type Service struct {
	store     Store
	schedules ScheduleSource
	rosters   RosterSource
	now       func() time.Time
	log       *logrus.Entry
}

// NewService creates the lifecycle manager.
func NewService(store Store, schedules ScheduleSource, rosters RosterSource) *Service {
	return &Service{
		store:     store,
		schedules: schedules,
		rosters:   rosters,
		now:       time.Now,
		log:       logrus.WithField("component", "kiosk"),
	}
}

// Heartbeat handles one liveness contact. Unknown serials self-register as
// pending. Liveness refresh is unconditional regardless of approval state.
func (s *Service) Heartbeat(ctx context.Context, c Contact) (HeartbeatResult, error) {
	metrics.KioskContacts.WithLabelValues("heartbeat").Inc()
	d, cmd, err := s.touch(ctx, c)
	if err != nil {
		return HeartbeatResult{}, err
	}
	return HeartbeatResult{
		PendingCommand: cmd,
		Provisioning:   Provisioning{Status: d.Status, RoomID: d.RoomID, Label: d.Label},
	}, nil
}

// Sync handles one full contact: liveness plus "what should this kiosk show
// right now" once approved and bound.
func (s *Service) Sync(ctx context.Context, c Contact) (SyncResult, error) {
	metrics.KioskContacts.WithLabelValues("sync").Inc()
	d, cmd, err := s.touch(ctx, c)
	if err != nil {
		return SyncResult{}, err
	}

	res := SyncResult{
		Status:         d.Status,
		PendingCommand: cmd,
		Classes:        []ClassView{},
		Students:       []Student{},
	}
	if d.Status != StatusApproved || d.RoomID == "" {
		return res, nil
	}
	res.Provisioned = true
	res.RoomID = d.RoomID

	scheds, err := s.schedules.SchedulesByRoom(ctx, d.RoomID)
	if err != nil {
		return SyncResult{}, err
	}

	now := s.now()
	today := now.In(schedule.Civil).Weekday()
	seen := map[string]bool{}
	for _, sc := range scheds {
		if !schedule.ScheduledOn(sc.Days, today) {
			continue
		}
		res.Classes = append(res.Classes, ClassView{
			ClassID:      sc.ID,
			Subject:      sc.Subject,
			InstructorID: sc.InstructorID,
			DepartmentID: sc.DepartmentID,
			StartTime:    sc.StartTime,
			EndTime:      sc.EndTime,
			Recommended:  schedule.IsWithinWindow(sc, now, RecommendedLead, RecommendedLag),
		})

		students, err := s.rosters.StudentsByClass(ctx, sc.ID)
		if err != nil {
			return SyncResult{}, err
		}
		for _, st := range students {
			key := st.ID + "/" + st.ClassID
			if !seen[key] {
				seen[key] = true
				res.Students = append(res.Students, st)
			}
		}
	}
	return res, nil
}

// touch registers unseen serials and refreshes liveness, draining the
// command slot atomically for known ones.
func (s *Service) touch(ctx context.Context, c Contact) (*Device, *string, error) {
	if c.Serial == "" {
		return nil, nil, fmt.Errorf("device serial required")
	}
	now := s.now()

	d, err := s.store.BySerial(ctx, c.Serial)
	if err != nil {
		return nil, nil, err
	}
	if d == nil {
		d, err = s.store.Register(ctx, c.Serial, c.Firmware, c.IP, now)
		if err != nil {
			return nil, nil, err
		}
		s.log.WithField("serial", c.Serial).Info("new kiosk self-registered")
		return d, nil, nil
	}

	cmd, err := s.store.TouchAndTakeCommand(ctx, c.Serial, c.Firmware, c.IP, now)
	if err != nil {
		return nil, nil, err
	}
	return d, cmd, nil
}

// Approve moves a kiosk to approved. Allowed from pending and, for
// re-review, from rejected.
func (s *Service) Approve(ctx context.Context, serial string) error {
	d, err := s.store.BySerial(ctx, serial)
	if err != nil {
		return err
	}
	if d == nil {
		return ErrUnknownSerial
	}
	if d.Status == StatusApproved {
		return nil
	}
	return s.store.SetStatus(ctx, serial, StatusApproved)
}

// Reject moves a pending kiosk to rejected. The record is retained.
func (s *Service) Reject(ctx context.Context, serial string) error {
	d, err := s.store.BySerial(ctx, serial)
	if err != nil {
		return err
	}
	if d == nil {
		return ErrUnknownSerial
	}
	if d.Status != StatusPending {
		return fmt.Errorf("cannot reject kiosk in state %q", d.Status)
	}
	return s.store.SetStatus(ctx, serial, StatusRejected)
}

// Bind assigns a room to an approved kiosk.
func (s *Service) Bind(ctx context.Context, serial, roomID, label string) error {
	d, err := s.store.BySerial(ctx, serial)
	if err != nil {
		return err
	}
	if d == nil {
		return ErrUnknownSerial
	}
	if d.Status != StatusApproved {
		return fmt.Errorf("cannot bind kiosk in state %q", d.Status)
	}
	return s.store.BindRoom(ctx, serial, roomID, label)
}

// QueueCommand fills the one-shot slot; a prior undelivered command is
// replaced.
func (s *Service) QueueCommand(ctx context.Context, serial, command string) error {
	if command == "" {
		return fmt.Errorf("command required")
	}
	return s.store.QueueCommand(ctx, serial, command)
}

// ListDevices sweeps stale heartbeats offline, then returns the fleet.
func (s *Service) ListDevices(ctx context.Context) ([]Device, error) {
	if n, err := s.store.MarkStaleOffline(ctx, s.now().Add(-StaleAfter)); err != nil {
		s.log.WithError(err).Warn("stale sweep failed")
	} else if n > 0 {
		s.log.WithField("count", n).Debug("kiosks marked offline")
	}
	return s.store.List(ctx)
}
