package kiosk

import (
	"context"
	"database/sql"
)

// Student is a roster entry shown on a kiosk.
type Student struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	ClassID string `json:"class_id"`
}

// RosterRepository reads class enrollments.
type RosterRepository struct {
	db *sql.DB
}

// NewRosterRepository creates a repo.
func NewRosterRepository(db *sql.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// StudentsByClass lists the students enrolled in one class.
func (r *RosterRepository) StudentsByClass(ctx context.Context, classID string) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.name, e.class_id
		FROM class_enrollments e
		JOIN students s ON s.id = e.student_id
		WHERE e.class_id = $1
		ORDER BY s.name
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Name, &s.ClassID); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
