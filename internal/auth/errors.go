package auth

import (
	"errors"
	"fmt"

	"github.com/nerrad567/student-registry/internal/validation"
)

// Sentinel errors for auth operations. Callers test them with errors.Is;
// the HTTP layer maps each to a status code without adding detail.
var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrUnauthenticated means no valid identity could be resolved.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden means the identity lacks the required capability or ownership.
	ErrForbidden = errors.New("insufficient permission")

	// ErrEmailExists signals a registration conflict.
	ErrEmailExists = errors.New("email already registered")

	// ErrStaffNotFound means the targeted staff member does not exist.
	ErrStaffNotFound = errors.New("staff member not found")

	// ErrMalformedInput wraps field-level validation and parse failures. It is
	// the shared validation sentinel so one errors.Is check covers every package.
	ErrMalformedInput = validation.ErrInvalid

	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
)

// ErrSelfModification is returned when an admin targets their own role or
// account with an operation that must be performed by another admin.
var ErrSelfModification = fmt.Errorf("%w: cannot apply this change to your own account", ErrForbidden)

// malformed wraps ErrMalformedInput with a field-specific message.
func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}
