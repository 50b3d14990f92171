package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert violates a uniqueness constraint,
// such as two signups racing on the same email.
var ErrConflict = errors.New("conflict")

const pqUniqueViolation = "23505"

// translateConflict maps a Postgres unique-violation error to ErrConflict
// so callers can distinguish it from other store failures.
func translateConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ErrConflict
	}
	return err
}
