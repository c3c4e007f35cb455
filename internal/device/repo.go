package device

import (
	"context"
	"database/sql"
	"strings"
)

// Group names for controllable outputs.
const (
	GroupLights = "LIGHTS"
	GroupFans   = "FANS"
	GroupACs    = "ACS"
)

// ValidGroup reports whether g names a known output group.
func ValidGroup(g string) bool {
	switch strings.ToUpper(g) {
	case GroupLights, GroupFans, GroupACs:
		return true
	}
	return false
}

// Endpoint is one controllable output belonging to a room.
type Endpoint struct {
	ID          string `json:"id"`
	RoomID      string `json:"room_id"`
	Role        string `json:"role"`
	ControlCode string `json:"-"`
	IsOn        bool   `json:"is_on"`
}

// Repository persists device endpoints and their cached on/off state.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EndpointsByRoomGroup lists the endpoints of one output group in a room.
func (r *Repository) EndpointsByRoomGroup(ctx context.Context, roomID, group string) ([]Endpoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, room_id, role, control_code, is_on
		FROM device_endpoints
		WHERE room_id = $1 AND role = $2
		ORDER BY id
	`, roomID, strings.ToUpper(group))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Endpoint
	for rows.Next() {
		var e Endpoint
		if err := rows.Scan(&e.ID, &e.RoomID, &e.Role, &e.ControlCode, &e.IsOn); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// SetCachedState records the last state a dispatch confirmed. Only called
// for endpoints whose dispatch succeeded.
func (r *Repository) SetCachedState(ctx context.Context, endpointID string, on bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE device_endpoints SET is_on = $2, state_changed_at = NOW() WHERE id = $1
	`, endpointID, on)
	return err
}
