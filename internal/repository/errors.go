package repository

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a job or document does not exist
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a conditional tag write finds a different current value
	ErrConflict = errors.New("conditional update conflict")

	// ErrTransient marks failures that are worth retrying
	ErrTransient = errors.New("transient store error")
)

// classifySQLite wraps busy/locked SQLite errors with ErrTransient so callers can retry them.
func classifySQLite(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}
	return err
}
