package auth

import (
	"context"
	"time"
)

// Staff is an authenticated principal. ID is assigned by the store and never
// changes; Email is unique and stored lower-case.
type Staff struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Permission `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// StaffFinder is the lookup the policy engine needs. Implementations return
// ErrStaffNotFound for an unknown id.
type StaffFinder interface {
	GetByID(ctx context.Context, id int64) (*Staff, error)
}

// RoleAssigner chooses the role for a new registration given the number of
// staff already stored, or rejects the registration. It runs inside the
// registration transaction and must not touch the store.
type RoleAssigner func(existing int) (Permission, error)

// StaffRepository persists staff members.
type StaffRepository interface {
	StaffFinder

	// Register counts existing staff, applies assign and inserts staff in a
	// single write transaction, so concurrent first registrations cannot
	// both observe an empty table.
	Register(ctx context.Context, staff *Staff, assign RoleAssigner) error
	GetByEmail(ctx context.Context, email string) (*Staff, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	List(ctx context.Context) ([]Staff, error)
	Update(ctx context.Context, staff *Staff) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	UpdateRole(ctx context.Context, id int64, role Permission) error

	// Delete removes a staff member. With reassignTo > 0 their students move
	// to that staff member first; otherwise they are removed with the owner.
	// It returns the number of students moved or removed.
	Delete(ctx context.Context, id, reassignTo int64) (int64, error)
	Count(ctx context.Context) (int, error)
}
