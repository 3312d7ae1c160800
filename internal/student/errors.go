package student

import "errors"

var (
	// ErrNotFound is returned when a student ID does not exist.
	ErrNotFound = errors.New("student not found")

	// ErrOwnerNotFound is returned when the new owner of a student is not a
	// registered staff member.
	ErrOwnerNotFound = errors.New("owner staff member not found")
)
