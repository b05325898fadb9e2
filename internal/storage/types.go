// Package storage provides the persistent reminder store on top of
// database/sql, with SQLite (default) and PostgreSQL drivers.
package storage

import (
	"errors"
	"time"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "postgres": PostgreSQL via pgx stdlib driver; Path is the DSN
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

var errUnknownStatus = errors.New("storage: unknown status value")
