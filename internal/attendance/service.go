package attendance

import (
	"context"
	"errors"
	"time"

	"campusd/internal/schedule"
)

// DisplayLog is a log row annotated with its derived display label.
type DisplayLog struct {
	Log
	Display DisplayStatus `json:"display_status"`
	Subject string        `json:"subject,omitempty"`
}

// Service coordinates attendance capture and the classified read path.
type Service struct {
	repo        *Repository
	dedupWindow time.Duration
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, dedupWindow time.Duration) *Service {
	if dedupWindow <= 0 {
		dedupWindow = 5 * time.Minute
	}
	return &Service{repo: repo, dedupWindow: dedupWindow}
}

// RecordCheckIn writes a new attendance row with deduplication: a repeat
// scan inside the dedup window returns the existing row instead of a copy.
func (s *Service) RecordCheckIn(ctx context.Context, studentID, classID string, status Status, entryMethod string) (Log, error) {
	if studentID == "" || classID == "" {
		return Log{}, errors.New("student and class required")
	}
	if recent, err := s.repo.RecentLog(ctx, studentID, classID, s.dedupWindow); err != nil {
		return Log{}, err
	} else if recent != nil {
		return *recent, nil
	}

	now := time.Now().In(schedule.Civil)
	return s.repo.InsertLog(ctx, Log{
		StudentID:   studentID,
		ClassID:     classID,
		CheckIn:     &now,
		Status:      status,
		EntryMethod: entryMethod,
	})
}

// RecordCheckOut stamps the current civil time on an open row.
func (s *Service) RecordCheckOut(ctx context.Context, logID string) error {
	if logID == "" {
		return errors.New("log id required")
	}
	return s.repo.SetCheckOut(ctx, logID, time.Now().In(schedule.Civil))
}

// ListForDisplay returns filtered rows, each labeled through Classify using
// its class schedule. Schedules are looked up once per class per call, never
// cached across requests. A non-nil day keeps only that civil date.
func (s *Service) ListForDisplay(ctx context.Context, classID, studentID string, day *time.Time, limit, offset int) ([]DisplayLog, error) {
	logs, err := s.repo.ListLogs(ctx, classID, studentID, day, limit, offset)
	if err != nil {
		return nil, err
	}

	schedules := map[string]*schedule.Schedule{}
	out := make([]DisplayLog, 0, len(logs))
	for _, l := range logs {
		sched, ok := schedules[l.ClassID]
		if !ok {
			sched, err = s.repo.ScheduleByClass(ctx, l.ClassID)
			if err != nil {
				return nil, err
			}
			schedules[l.ClassID] = sched
		}

		d := DisplayLog{Log: l, Display: DisplayStatus(l.Status)}
		if sched != nil {
			d.Display = Classify(*sched, l.CheckIn, l.CheckOut, l.Status)
			d.Subject = sched.Subject
		}
		out = append(out, d)
	}
	return out, nil
}
