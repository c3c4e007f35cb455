package sessionstate

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"campusd/internal/schedule"
)

// Flags are the per-(room, date, class) switches guarding room automation:
// auto_on_done stops duplicate automatic activations, manual_override keeps
// a human's choice sticky for the rest of the day.
type Flags struct {
	AutoOnDone     bool
	ManualOverride bool
}

// Repository stores session flags. Rows are created lazily on first write
// and expire naturally by never being read after the date rolls over.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DateKey is the civil date used to key session state.
func DateKey(t time.Time) string {
	return t.In(schedule.Civil).Format("2006-01-02")
}

// Get returns the flags for the session, zero flags when no row exists yet.
func (r *Repository) Get(ctx context.Context, roomID, date, classID string) (Flags, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT auto_on_done, manual_override
		FROM session_state
		WHERE room_id = $1 AND session_date = $2 AND class_id = $3
	`, roomID, date, classID)
	var f Flags
	if err := row.Scan(&f.AutoOnDone, &f.ManualOverride); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Flags{}, nil
		}
		return Flags{}, err
	}
	return f, nil
}

// MarkAutoOn records that automatic activation already ran for the session.
func (r *Repository) MarkAutoOn(ctx context.Context, roomID, date, classID string) error {
	return r.upsert(ctx, roomID, date, classID, "auto_on_done")
}

// MarkManualOverride records a human override for the session.
func (r *Repository) MarkManualOverride(ctx context.Context, roomID, date, classID string) error {
	return r.upsert(ctx, roomID, date, classID, "manual_override")
}

func (r *Repository) upsert(ctx context.Context, roomID, date, classID, column string) error {
	// column is one of the two flag names above, never caller input.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_state (room_id, session_date, class_id, `+column+`)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (room_id, session_date, class_id) DO UPDATE SET `+column+` = TRUE
	`, roomID, date, classID)
	return err
}
