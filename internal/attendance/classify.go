package attendance

import (
	"time"

	"campusd/internal/schedule"
)

// Status is the value the ingestion path recorded at write time.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
)

// DisplayStatus is the human-meaningful label derived for presentation.
// Logs are never mutated; the label is recomputed on every read.
type DisplayStatus string

const (
	DisplayPresent          DisplayStatus = "Present"
	DisplayLate             DisplayStatus = "Late"
	DisplayAbsent           DisplayStatus = "Absent"
	DisplayCutClass         DisplayStatus = "Cut Class"
	DisplayGhosting         DisplayStatus = "Ghosting"
	DisplayInvalidTooEarly  DisplayStatus = "Invalid (Too Early)"
	DisplayIncompleteAbsent DisplayStatus = "Incomplete (Absent)"
)

// Policy thresholds. Exceeding a margin by any amount, seconds included,
// trips the rule; landing exactly on it does not. Tunable without touching
// Classify.
const (
	// EarlyInvalidMargin: a check-in this far before the scheduled start is
	// treated as clock skew or a premature scan, never as presence.
	EarlyInvalidMargin = 20 * time.Minute

	// CutClassMargin: an absent student whose check-out precedes the
	// scheduled end by more than this left mid-session.
	CutClassMargin = 15 * time.Minute

	// GhostingMargin: an absent student whose check-out trails the
	// scheduled end by more than this never properly left.
	GhostingMargin = 60 * time.Minute
)

// Classify derives the display label for one attendance row. Pure and
// deterministic: no clock reads, no I/O. Rules apply in priority order and
// the first match wins.
func Classify(s schedule.Schedule, checkIn, checkOut *time.Time, recorded Status) DisplayStatus {
	start, end, haveWindow := sessionBounds(s, checkIn, checkOut)

	if haveWindow && checkIn != nil {
		if checkIn.Sub(start) < -EarlyInvalidMargin {
			return DisplayInvalidTooEarly
		}
	}

	if recorded == StatusAbsent {
		if haveWindow && checkOut != nil {
			delta := checkOut.Sub(end)
			if delta < -CutClassMargin {
				return DisplayCutClass
			}
			if delta > GhostingMargin {
				return DisplayGhosting
			}
		}
		return DisplayAbsent
	}

	switch recorded {
	case StatusLate:
		return DisplayLate
	case StatusPresent:
		return DisplayPresent
	}

	if checkIn == nil && checkOut != nil {
		return DisplayIncompleteAbsent
	}

	return DisplayStatus(recorded)
}

// sessionBounds materializes the schedule's start/end on the log's own date.
// Works from the observed timestamps, not "now", so classification stays
// deterministic for historical rows.
func sessionBounds(s schedule.Schedule, checkIn, checkOut *time.Time) (start, end time.Time, ok bool) {
	ref := checkIn
	if ref == nil {
		ref = checkOut
	}
	if ref == nil {
		return time.Time{}, time.Time{}, false
	}
	w, ok := schedule.ResolveTodayWindow(s, *ref, 0, 0)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return w.Start, w.End, true
}
