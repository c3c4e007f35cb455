package schedule

import (
	"strings"
	"time"
	"unicode"
)

// Civil is the fixed campus timezone. All day-of-week and time-of-day
// decisions are made in this zone no matter where the server runs.
var Civil = time.FixedZone("UTC+8", 8*60*60)

// Schedule is a recurring class occupying a room. Start and End are civil
// times of day ("15:04" or "15:04:05"); Days is the stored weekday set,
// delimited, possibly with stray punctuation from older rows.
type Schedule struct {
	ID           string
	RoomID       string
	InstructorID string
	DepartmentID string
	Subject      string
	Days         string
	StartTime    string
	EndTime      string
}

// Window is the materialized session window for a schedule on one day.
// OpensAt/ClosesAt carry the caller's lead/lag tolerance; Start/End are
// the scheduled instants themselves. Never cached across days.
type Window struct {
	Start    time.Time
	End      time.Time
	OpensAt  time.Time
	ClosesAt time.Time
}

// Contains reports whether t falls inside the tolerance-adjusted window,
// inclusive at both edges.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.OpensAt) && !t.After(w.ClosesAt)
}

// ResolveTodayWindow computes the window for s on now's civil date. The
// second return is false when the schedule does not run today or has no
// usable start/end time.
func ResolveTodayWindow(s Schedule, now time.Time, lead, lag time.Duration) (Window, bool) {
	local := now.In(Civil)
	if !ScheduledOn(s.Days, local.Weekday()) {
		return Window{}, false
	}
	start, ok := atTimeOfDay(local, s.StartTime)
	if !ok {
		return Window{}, false
	}
	end, ok := atTimeOfDay(local, s.EndTime)
	if !ok {
		return Window{}, false
	}
	return Window{
		Start:    start,
		End:      end,
		OpensAt:  start.Add(-lead),
		ClosesAt: end.Add(lag),
	}, true
}

// IsWithinWindow reports whether the schedule is active at now, with the
// caller's lead/lag tolerance. Tolerances differ by use case; this function
// has no opinion about them.
func IsWithinWindow(s Schedule, now time.Time, lead, lag time.Duration) bool {
	w, ok := ResolveTodayWindow(s, now, lead, lag)
	if !ok {
		return false
	}
	return w.Contains(now.In(Civil))
}

// ScheduledOn tests weekday membership in a stored day set. Tokens are
// cleaned of non-letter characters before comparison because legacy rows
// contain values like `{"Mon","Wed"}`.
func ScheduledOn(days string, day time.Weekday) bool {
	want := day.String()[:3]
	for _, tok := range strings.FieldsFunc(days, func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if strings.EqualFold(tok, want) || strings.EqualFold(tok, day.String()) {
			return true
		}
	}
	return false
}

// atTimeOfDay pins a civil time-of-day string onto ref's date. A missing or
// malformed value means "not schedulable", not an error.
func atTimeOfDay(ref time.Time, clock string) (time.Time, bool) {
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return time.Time{}, false
	}
	var parsed time.Time
	var err error
	if parsed, err = time.Parse("15:04:05", clock); err != nil {
		if parsed, err = time.Parse("15:04", clock); err != nil {
			return time.Time{}, false
		}
	}
	return time.Date(ref.Year(), ref.Month(), ref.Day(),
		parsed.Hour(), parsed.Minute(), parsed.Second(), 0, Civil), true
}
