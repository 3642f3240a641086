package repository

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// Sentinel kinds for storage errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrInvalidTable  = errors.New("table cannot be exported")
)

// isConstraint reports whether err is a sqlite UNIQUE or PRIMARY KEY violation.
func isConstraint(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}
