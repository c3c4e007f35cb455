package audit

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// Repository persists audit records. Used by the worker, not the API path.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes one record.
func (r *Repository) Insert(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, actor_type, action, target, detail, room_id, department_id, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, rec.ID, rec.ActorID, rec.ActorType, rec.Action, rec.Target, rec.Detail, rec.RoomID, rec.DepartmentID, rec.At)
	return err
}
