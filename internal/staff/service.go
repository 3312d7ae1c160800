package staff

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nerrad567/student-registry/internal/auth"
	"github.com/nerrad567/student-registry/internal/student"
	"github.com/nerrad567/student-registry/internal/validation"
)

// Authorizer is the subset of auth.Policy the staff service consults.
type Authorizer interface {
	RequireAdmin(ctx context.Context, actorID int64) error
}

// StudentLister lists the students owned by a staff member, applying the
// owner-or-manager check itself.
type StudentLister interface {
	ListByOwner(ctx context.Context, actorID, ownerID int64) ([]student.Student, error)
}

// UpdateInput carries the editable profile fields. An empty Password leaves
// the password unchanged. Role is not editable here.
type UpdateInput struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password,omitempty" validate:"omitempty,max=128"`
}

// WithStudents is a staff member together with the students they own.
type WithStudents struct {
	*auth.Staff
	Students []student.Student `json:"students"`
}

// Service implements staff management.
type Service struct {
	repo        auth.StaffRepository
	policy      Authorizer
	students    StudentLister
	logger      *slog.Logger
	minPassword int
}

// NewService creates a staff service. minPassword <= 0 selects
// auth.DefaultMinPasswordLength.
func NewService(repo auth.StaffRepository, policy Authorizer, students StudentLister, logger *slog.Logger, minPassword int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if minPassword <= 0 {
		minPassword = auth.DefaultMinPasswordLength
	}
	return &Service{
		repo:        repo,
		policy:      policy,
		students:    students,
		logger:      logger.With("component", "staff"),
		minPassword: minPassword,
	}
}

// List returns every staff member. Requires admin.
func (s *Service) List(ctx context.Context, actorID int64) ([]auth.Staff, error) {
	if err := s.policy.RequireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx)
}

// Get returns a staff profile to its owner or an admin.
func (s *Service) Get(ctx context.Context, actorID, id int64) (*auth.Staff, error) {
	if err := s.requireSelfOrAdmin(ctx, actorID, id); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Update edits username, email and optionally the password of a staff
// member. Requires admin, including for the caller's own profile.
func (s *Service) Update(ctx context.Context, actorID, id int64, in UpdateInput) (*auth.Staff, error) {
	if err := s.policy.RequireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	in.Username = strings.TrimSpace(in.Username)
	in.Email = auth.NormalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Password != "" && len(in.Password) < s.minPassword {
		return nil, fmt.Errorf("%w: password: must be at least %d characters", validation.ErrInvalid, s.minPassword)
	}

	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	st.Username = in.Username
	st.Email = in.Email
	if err := s.repo.Update(ctx, st); err != nil {
		return nil, err
	}

	if in.Password != "" {
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		if err := s.repo.UpdatePassword(ctx, id, hash); err != nil {
			return nil, err
		}
		s.logger.Info("staff password changed", "staff_id", id, "actor_id", actorID)
	}
	return st, nil
}

// Delete removes a staff member. Their students move to reassignTo when it
// is positive and are deleted with them otherwise. An admin cannot delete
// their own account. It returns the deleted member and the number of
// students moved or removed.
func (s *Service) Delete(ctx context.Context, actorID, id, reassignTo int64) (*auth.Staff, int64, error) {
	if err := s.policy.RequireAdmin(ctx, actorID); err != nil {
		return nil, 0, err
	}
	if actorID == id {
		return nil, 0, auth.ErrSelfModification
	}
	if reassignTo == id {
		return nil, 0, fmt.Errorf("%w: cannot reassign students to the staff member being deleted", validation.ErrInvalid)
	}

	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	affected, err := s.repo.Delete(ctx, id, reassignTo)
	if err != nil {
		return nil, 0, err
	}

	s.logger.Info("staff deleted", "staff_id", id, "actor_id", actorID,
		"students_affected", affected, "reassigned_to", reassignTo)
	return st, affected, nil
}

// WithStudents returns a staff member and their students to that member or
// a manager.
func (s *Service) WithStudents(ctx context.Context, actorID, id int64) (*WithStudents, error) {
	students, err := s.students.ListByOwner(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &WithStudents{Staff: st, Students: students}, nil
}

func (s *Service) requireSelfOrAdmin(ctx context.Context, actorID, id int64) error {
	if actorID <= 0 {
		return auth.ErrUnauthenticated
	}
	if actorID == id {
		return nil
	}
	return s.policy.RequireAdmin(ctx, actorID)
}
