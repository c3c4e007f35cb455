package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"campusd/internal/schedule"
)

// 09:00–10:00 Monday class; 2026-08-31 is a Monday.
func classAt9() schedule.Schedule {
	return schedule.Schedule{
		ID:        "sched-1",
		RoomID:    "room-1",
		Days:      "Mon,Wed",
		StartTime: "09:00",
		EndTime:   "10:00",
	}
}

func at(clock string) *time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", "2026-08-31 "+clock, schedule.Civil)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestClassifyTooEarlyWinsOverRecorded(t *testing.T) {
	// 25 minutes before start, recorded present — rule 1 still wins.
	got := Classify(classAt9(), at("08:35"), nil, StatusPresent)
	assert.Equal(t, DisplayInvalidTooEarly, got)
}

func TestClassifyTooEarlyBoundary(t *testing.T) {
	assert.Equal(t, DisplayInvalidTooEarly, Classify(classAt9(), at("08:39"), nil, StatusPresent))
	// Exactly 20 minutes early is still inside tolerance.
	assert.Equal(t, DisplayPresent, Classify(classAt9(), at("08:40"), nil, StatusPresent))
}

func TestClassifySecondsPastMarginStillTrip(t *testing.T) {
	// 20m30s early is earlier than start-20m even though it truncates to 20
	// whole minutes; same for the check-out margins.
	in := at("08:39").Add(30 * time.Second)
	assert.Equal(t, DisplayInvalidTooEarly, Classify(classAt9(), &in, nil, StatusPresent))

	out := at("09:44").Add(30 * time.Second)
	assert.Equal(t, DisplayCutClass, Classify(classAt9(), at("09:05"), &out, StatusAbsent))

	late := at("11:00").Add(30 * time.Second)
	assert.Equal(t, DisplayGhosting, Classify(classAt9(), at("09:05"), &late, StatusAbsent))
}

func TestClassifyCutClassBoundary(t *testing.T) {
	assert.Equal(t, DisplayCutClass, Classify(classAt9(), at("09:05"), at("09:44"), StatusAbsent))
	assert.Equal(t, DisplayAbsent, Classify(classAt9(), at("09:05"), at("09:46"), StatusAbsent))
	// Exactly −15 stays plain Absent.
	assert.Equal(t, DisplayAbsent, Classify(classAt9(), at("09:05"), at("09:45"), StatusAbsent))
}

func TestClassifyGhostingBoundary(t *testing.T) {
	assert.Equal(t, DisplayGhosting, Classify(classAt9(), at("09:05"), at("11:01"), StatusAbsent))
	assert.Equal(t, DisplayAbsent, Classify(classAt9(), at("09:05"), at("10:59"), StatusAbsent))
	assert.Equal(t, DisplayAbsent, Classify(classAt9(), at("09:05"), at("11:00"), StatusAbsent))
}

func TestClassifyAbsentWithoutCheckOut(t *testing.T) {
	assert.Equal(t, DisplayAbsent, Classify(classAt9(), at("09:05"), nil, StatusAbsent))
}

func TestClassifyRecordedPassThrough(t *testing.T) {
	assert.Equal(t, DisplayLate, Classify(classAt9(), at("09:20"), nil, StatusLate))
	assert.Equal(t, DisplayPresent, Classify(classAt9(), at("09:01"), at("10:00"), StatusPresent))
	// Unknown recorded status passes through unchanged.
	assert.Equal(t, DisplayStatus("excused"), Classify(classAt9(), at("09:01"), nil, Status("excused")))
}

func TestClassifyOrphanCheckOut(t *testing.T) {
	assert.Equal(t, DisplayIncompleteAbsent, Classify(classAt9(), nil, at("10:00"), Status("")))
}

func TestClassifyIdempotent(t *testing.T) {
	s := classAt9()
	first := Classify(s, at("08:35"), at("11:30"), StatusAbsent)
	second := Classify(s, at("08:35"), at("11:30"), StatusAbsent)
	assert.Equal(t, first, second)
}

func TestClassifyUnresolvableScheduleFallsThrough(t *testing.T) {
	s := classAt9()
	s.StartTime = ""
	// No window means the time rules cannot apply; recorded status stands.
	assert.Equal(t, DisplayPresent, Classify(s, at("08:00"), nil, StatusPresent))
	assert.Equal(t, DisplayAbsent, Classify(s, at("09:05"), at("09:30"), StatusAbsent))
}
