package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps the Postgres pool shared by the attendance, authorization and
// kiosk repositories.
type DB struct {
	Client *sql.DB
}

// NewDB opens a pgx-backed pool and verifies connectivity. The pool is sized
// for the kiosk heartbeat fan-in plus the staff read paths; a connection held
// longer than the lifetime is recycled so Postgres failovers drain cleanly.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(15)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Close closes the underlying pool.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
