package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"campusd/internal/schedule"
)

// Log is one check-in (and optional check-out) of a student in a class on
// one day. Created by the capture endpoints; read and re-labeled for display,
// never mutated by the classifier.
type Log struct {
	ID          string
	StudentID   string
	ClassID     string
	CheckIn     *time.Time
	CheckOut    *time.Time
	Status      Status
	EntryMethod string
	CreatedAt   time.Time
}

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ScheduleByClass loads the class schedule a log row belongs to.
func (r *Repository) ScheduleByClass(ctx context.Context, classID string) (*schedule.Schedule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, room_id, instructor_id, department_id, subject, days, start_time, end_time
		FROM class_schedules WHERE id = $1
	`, classID)
	var s schedule.Schedule
	var start, end sql.NullString
	if err := row.Scan(&s.ID, &s.RoomID, &s.InstructorID, &s.DepartmentID, &s.Subject, &s.Days, &start, &end); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.StartTime = start.String
	s.EndTime = end.String
	return &s, nil
}

// RecentLog returns a log for the student/class within the dedup window.
func (r *Repository) RecentLog(ctx context.Context, studentID, classID string, window time.Duration) (*Log, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, class_id, check_in, check_out, status, entry_method, created_at
		FROM attendance_logs
		WHERE student_id = $1 AND class_id = $2 AND check_in >= NOW() - ($3 * interval '1 second')
		ORDER BY check_in DESC
		LIMIT 1
	`, studentID, classID, window.Seconds())
	var l Log
	if err := row.Scan(&l.ID, &l.StudentID, &l.ClassID, &l.CheckIn, &l.CheckOut, &l.Status, &l.EntryMethod, &l.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

// InsertLog writes a new attendance row.
func (r *Repository) InsertLog(ctx context.Context, l Log) (Log, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = StatusPresent
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_logs (id, student_id, class_id, check_in, check_out, status, entry_method)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, l.ID, l.StudentID, l.ClassID, l.CheckIn, l.CheckOut, l.Status, l.EntryMethod)
	if err := row.Scan(&l.CreatedAt); err != nil {
		return Log{}, err
	}
	return l, nil
}

// ErrNoOpenLog means the row does not exist or already has a check-out.
var ErrNoOpenLog = errors.New("no open attendance row")

// SetCheckOut stamps a check-out on an open row.
func (r *Repository) SetCheckOut(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_logs SET check_out = $2 WHERE id = $1 AND check_out IS NULL
	`, id, at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNoOpenLog
	}
	return nil
}

// ListLogs returns rows with basic filters, newest first. A non-nil day
// restricts rows to check-ins on that civil date.
func (r *Repository) ListLogs(ctx context.Context, classID, studentID string, day *time.Time, limit, offset int) ([]Log, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, student_id, class_id, check_in, check_out, status, entry_method, created_at FROM attendance_logs`
	args := []any{}
	clauses := []string{}
	if classID != "" {
		clauses = append(clauses, "class_id = $"+itoa(len(args)+1))
		args = append(args, classID)
	}
	if studentID != "" {
		clauses = append(clauses, "student_id = $"+itoa(len(args)+1))
		args = append(args, studentID)
	}
	if day != nil {
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, schedule.Civil)
		clauses = append(clauses, "check_in >= $"+itoa(len(args)+1), "check_in < $"+itoa(len(args)+2))
		args = append(args, start, start.AddDate(0, 0, 1))
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinClauses(clauses, " AND ")
	}
	query += " ORDER BY check_in DESC LIMIT $" + itoa(len(args)+1) + " OFFSET $" + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Log
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.StudentID, &l.ClassID, &l.CheckIn, &l.CheckOut, &l.Status, &l.EntryMethod, &l.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func itoa(i int) string { return fmt.Sprintf("%d", i) }

func joinClauses(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for i := 1; i < len(parts); i++ {
		out += sep + parts[i]
	}
	return out
}
