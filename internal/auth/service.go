package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nerrad567/student-registry/internal/validation"
)

// DefaultMinPasswordLength applies when no minimum is configured.
const DefaultMinPasswordLength = 6

// Registration is a request to create a staff member. Role is optional;
// supplying one requires the caller to hold Admin unless the store is empty.
type Registration struct {
	Username string      `json:"username" validate:"required,max=64"`
	Email    string      `json:"email" validate:"required,email,max=254"`
	Password string      `json:"password" validate:"required,max=128"`
	Role     *Permission `json:"role,omitempty"`
}

// Service implements registration, credential verification and role
// changes on top of a StaffRepository and a Policy.
type Service struct {
	repo        StaffRepository
	policy      *Policy
	logger      *slog.Logger
	minPassword int

	// dummyHash is verified against when the email is unknown, so both
	// failure paths cost one Argon2id derivation.
	dummyHash string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMinPasswordLength overrides DefaultMinPasswordLength.
func WithMinPasswordLength(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.minPassword = n
		}
	}
}

// NewService creates an auth service.
func NewService(repo StaffRepository, policy *Policy, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:        repo,
		policy:      policy,
		logger:      logger.With("component", "auth"),
		minPassword: DefaultMinPasswordLength,
	}
	for _, opt := range opts {
		opt(s)
	}

	dummy, err := HashPassword("registry-timing-equaliser")
	if err != nil {
		return nil, fmt.Errorf("preparing dummy hash: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

// NormalizeEmail lower-cases and trims an email address. Lookups and
// uniqueness both operate on the normalised form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a staff member on behalf of actorID, which may be
// Unauthenticated for self-registration.
//
// The first staff member ever stored receives PermAll whatever role was
// requested. Later registrations get the requested role when the caller is
// an Admin, and DefaultPermissions when no role was requested.
func (s *Service) Register(ctx context.Context, actorID int64, reg Registration) (*Staff, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = NormalizeEmail(reg.Email)

	if err := validation.Struct(reg); err != nil {
		return nil, err
	}
	if len(reg.Password) < s.minPassword {
		return nil, malformed("password: must be at least %d characters", s.minPassword)
	}
	if reg.Role != nil && !reg.Role.Valid() {
		return nil, malformed("role %d contains unknown bits", *reg.Role)
	}

	// Advisory: the UNIQUE index is authoritative.
	exists, err := s.repo.EmailExists(ctx, reg.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	roleGranted := false
	if reg.Role != nil {
		switch err := s.policy.RequireAdmin(ctx, actorID); {
		case err == nil:
			roleGranted = true
		case errors.Is(err, ErrForbidden), errors.Is(err, ErrUnauthenticated):
			// Refused inside the transaction unless this is the bootstrap registration.
		default:
			return nil, err
		}
	}

	hash, err := HashPassword(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	staff := &Staff{
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: hash,
	}

	bootstrap := false
	err = s.repo.Register(ctx, staff, func(existing int) (Permission, error) {
		bootstrap = existing == 0
		switch {
		case bootstrap:
			return PermAll, nil
		case reg.Role == nil:
			return DefaultPermissions, nil
		case roleGranted:
			return *reg.Role, nil
		default:
			return PermNone, ErrForbidden
		}
	})
	if err != nil {
		return nil, err
	}

	if bootstrap {
		s.logger.Info("first staff member registered as administrator", "staff_id", staff.ID)
	}
	return staff, nil
}

// Authenticate verifies email and password. An unknown email and a wrong
// password both yield ErrInvalidCredentials.
//
// Legacy bcrypt hashes are upgraded to Argon2id after a successful check.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Staff, error) {
	staff, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrStaffNotFound) {
			VerifyPassword(password, s.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up staff: %w", err)
	}

	if !VerifyPassword(password, staff.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if NeedsRehash(staff.PasswordHash) {
		if hash, err := HashPassword(password); err == nil {
			if err := s.repo.UpdatePassword(ctx, staff.ID, hash); err != nil {
				s.logger.Warn("password rehash failed", "staff_id", staff.ID, "error", err)
			} else {
				staff.PasswordHash = hash
			}
		}
	}
	return staff, nil
}

// UpdateRole replaces the role of targetID. The actor must be an Admin and
// may not change their own role.
func (s *Service) UpdateRole(ctx context.Context, actorID, targetID int64, role Permission) (*Staff, error) {
	if !role.Valid() {
		return nil, malformed("role %d contains unknown bits", role)
	}
	if err := s.policy.RequireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if actorID == targetID {
		return nil, ErrSelfModification
	}

	if err := s.repo.UpdateRole(ctx, targetID, role); err != nil {
		return nil, err
	}
	s.logger.Info("staff role updated", "staff_id", targetID, "role", role.String(), "actor_id", actorID)

	return s.repo.GetByID(ctx, targetID)
}
