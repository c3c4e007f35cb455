package authz

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"campusd/internal/schedule"
)

// SQLStores implements the gate's lookup collaborators over Postgres.
type SQLStores struct {
	db *sql.DB
}

// NewSQLStores creates the store set.
func NewSQLStores(db *sql.DB) *SQLStores {
	return &SQLStores{db: db}
}

// RoomByID returns the room or nil when unknown.
func (s *SQLStores) RoomByID(ctx context.Context, id string) (*Room, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, department_id FROM rooms WHERE id = $1
	`, id)
	var r Room
	if err := row.Scan(&r.ID, &r.Name, &r.DepartmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// SchedulesByRoom lists every class schedule touching a room.
func (s *SQLStores) SchedulesByRoom(ctx context.Context, roomID string) ([]schedule.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, instructor_id, department_id, subject, days, start_time, end_time
		FROM class_schedules
		WHERE room_id = $1
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []schedule.Schedule
	for rows.Next() {
		var sc schedule.Schedule
		var start, end sql.NullString
		if err := rows.Scan(&sc.ID, &sc.RoomID, &sc.InstructorID, &sc.DepartmentID, &sc.Subject, &sc.Days, &start, &end); err != nil {
			return nil, err
		}
		sc.StartTime = start.String
		sc.EndTime = end.String
		res = append(res, sc)
	}
	return res, rows.Err()
}

// CreateToken mints a device token row and returns its id, which becomes
// the JWT subject handed to the device.
func (s *SQLStores) CreateToken(ctx context.Context, tokenType, roomID, departmentID string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_tokens (id, token_type, room_id, department_id)
		VALUES ($1, $2, NULLIF($3,''), $4)
	`, id, tokenType, roomID, departmentID)
	if err != nil {
		return "", err
	}
	return id, nil
}

// RevokeToken marks a token revoked; resolution then returns nil.
func (s *SQLStores) RevokeToken(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE device_tokens SET revoked = TRUE WHERE id = $1`, id)
	return err
}

// TokenBindingByID resolves a device token id to its binding, or nil when
// the token is unknown or revoked.
func (s *SQLStores) TokenBindingByID(ctx context.Context, tokenID string) (*TokenBinding, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token_type, COALESCE(room_id, ''), COALESCE(department_id, '')
		FROM device_tokens
		WHERE id = $1 AND NOT revoked
	`, tokenID)
	var kind, roomID, deptID string
	if err := row.Scan(&kind, &roomID, &deptID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &TokenBinding{
		Specific:     kind == "specific",
		RoomID:       roomID,
		DepartmentID: deptID,
	}, nil
}
