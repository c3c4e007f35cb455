package kiosk

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Provisioning states. Rejected is terminal but non-destructive; the row
// stays for audit and re-review.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Device is a field terminal identified by its immutable serial.
type Device struct {
	ID              string     `json:"id"`
	Serial          string     `json:"serial"`
	Status          string     `json:"status"`
	RoomID          string     `json:"room_id,omitempty"`
	Label           string     `json:"label,omitempty"`
	FirmwareVersion string     `json:"firmware_version,omitempty"`
	IPAddress       string     `json:"ip_address,omitempty"`
	LastHeartbeat   *time.Time `json:"last_heartbeat,omitempty"`
	Online          bool       `json:"online"`
	PendingCommand  *string    `json:"pending_command,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Repository persists kiosk devices in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const deviceColumns = `id, serial, status, COALESCE(room_id, ''), COALESCE(label, ''),
	COALESCE(firmware_version, ''), COALESCE(ip_address, ''), last_heartbeat, is_online, pending_command, created_at`

func scanDevice(row interface{ Scan(...any) error }) (*Device, error) {
	var d Device
	if err := row.Scan(&d.ID, &d.Serial, &d.Status, &d.RoomID, &d.Label,
		&d.FirmwareVersion, &d.IPAddress, &d.LastHeartbeat, &d.Online, &d.PendingCommand, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// BySerial returns the device or nil when unseen.
func (r *Repository) BySerial(ctx context.Context, serial string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+deviceColumns+` FROM kiosk_devices WHERE serial = $1
	`, serial)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// Register creates a pending record for an unseen serial, already online
// with a fresh heartbeat. ON CONFLICT keeps a concurrent first contact from
// erroring.
func (r *Repository) Register(ctx context.Context, serial, firmware, ip string, at time.Time) (*Device, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kiosk_devices (id, serial, status, firmware_version, ip_address, last_heartbeat, is_online)
		VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), $6, TRUE)
		ON CONFLICT (serial) DO NOTHING
	`, uuid.NewString(), serial, StatusPending, firmware, ip, at)
	if err != nil {
		return nil, err
	}
	return r.BySerial(ctx, serial)
}

// TouchAndTakeCommand refreshes liveness and drains the one-shot command
// slot in a single statement: the row is locked, the previous command value
// returned, and the slot nulled before any concurrent contact can see it.
func (r *Repository) TouchAndTakeCommand(ctx context.Context, serial, firmware, ip string, at time.Time) (*string, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE kiosk_devices k
		SET last_heartbeat = $2,
		    is_online = TRUE,
		    firmware_version = COALESCE(NULLIF($3,''), k.firmware_version),
		    ip_address = COALESCE(NULLIF($4,''), k.ip_address),
		    pending_command = NULL
		FROM (
			SELECT id, pending_command FROM kiosk_devices WHERE serial = $1 FOR UPDATE
		) prev
		WHERE k.id = prev.id
		RETURNING prev.pending_command
	`, serial, at, firmware, ip)
	var cmd *string
	if err := row.Scan(&cmd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return cmd, nil
}

// SetStatus moves the provisioning state.
func (r *Repository) SetStatus(ctx context.Context, serial, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE kiosk_devices SET status = $2 WHERE serial = $1
	`, serial, status)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// BindRoom assigns (or clears, with empty roomID) the bound room.
func (r *Repository) BindRoom(ctx context.Context, serial, roomID, label string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE kiosk_devices SET room_id = NULLIF($2,''), label = NULLIF($3,'') WHERE serial = $1
	`, serial, roomID, label)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// QueueCommand fills the single-slot mailbox. Last writer wins: queuing a
// second command before delivery silently replaces the first.
func (r *Repository) QueueCommand(ctx context.Context, serial, command string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE kiosk_devices SET pending_command = $2 WHERE serial = $1
	`, serial, command)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkStaleOffline flips devices whose heartbeat predates the cutoff.
func (r *Repository) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE kiosk_devices SET is_online = FALSE
		WHERE is_online AND (last_heartbeat IS NULL OR last_heartbeat < $1)
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// List returns every device, newest registrations first.
func (r *Repository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+deviceColumns+` FROM kiosk_devices ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *d)
	}
	return res, rows.Err()
}

// ErrUnknownSerial is returned by writes against serials with no record.
var ErrUnknownSerial = errors.New("unknown kiosk serial")

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUnknownSerial
	}
	return nil
}
