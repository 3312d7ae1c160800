package student

import (
	"context"
	"strings"

	"github.com/nerrad567/student-registry/internal/auth"
	"github.com/nerrad567/student-registry/internal/validation"
)

// Authorizer is the subset of auth.Policy the student service consults.
type Authorizer interface {
	RequireManager(ctx context.Context, actorID int64) error
	RequireOwnerOrManager(ctx context.Context, actorID, ownerID int64) error
}

// Service applies ownership and capability checks around a Repository.
// Every method takes the already-resolved actorID.
type Service struct {
	repo   Repository
	policy Authorizer
}

// NewService creates a student service.
func NewService(repo Repository, policy Authorizer) *Service {
	return &Service{repo: repo, policy: policy}
}

// List returns every student. Requires manager.
func (s *Service) List(ctx context.Context, actorID int64) ([]Student, error) {
	if err := s.policy.RequireManager(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx)
}

// ListByOwner returns the students owned by ownerID. Allowed to that staff
// member and to managers.
func (s *Service) ListByOwner(ctx context.Context, actorID, ownerID int64) ([]Student, error) {
	if err := s.policy.RequireOwnerOrManager(ctx, actorID, ownerID); err != nil {
		return nil, err
	}
	return s.repo.ListByOwner(ctx, ownerID)
}

// ListMine returns the caller's own students.
func (s *Service) ListMine(ctx context.Context, actorID int64) ([]Student, error) {
	return s.ListByOwner(ctx, actorID, actorID)
}

// Get returns one student to its owner or a manager.
func (s *Service) Get(ctx context.Context, actorID, id int64) (*Student, error) {
	return s.loadAuthorized(ctx, actorID, id)
}

// Create stores a new student owned by the caller. Requires manager.
func (s *Service) Create(ctx context.Context, actorID int64, in Input) (*Student, error) {
	in = normalize(in)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := s.policy.RequireManager(ctx, actorID); err != nil {
		return nil, err
	}

	st := &Student{StaffID: actorID}
	in.apply(st)
	if err := s.repo.Create(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Update replaces the editable fields of a student. The owner is unchanged.
func (s *Service) Update(ctx context.Context, actorID, id int64, in Input) (*Student, error) {
	in = normalize(in)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	st, err := s.loadAuthorized(ctx, actorID, id)
	if err != nil {
		return nil, err
	}

	in.apply(st)
	if err := s.repo.Update(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Reassign moves a student to newOwnerID. Requires manager.
func (s *Service) Reassign(ctx context.Context, actorID, id, newOwnerID int64) (*Student, error) {
	if err := s.policy.RequireManager(ctx, actorID); err != nil {
		return nil, err
	}
	if newOwnerID <= 0 {
		return nil, ErrOwnerNotFound
	}
	if err := s.repo.UpdateOwner(ctx, id, newOwnerID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Delete removes a student on behalf of its owner or a manager.
func (s *Service) Delete(ctx context.Context, actorID, id int64) (*Student, error) {
	st, err := s.loadAuthorized(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	return st, nil
}

// loadAuthorized reads the student's current owner and checks the caller
// against it. Anonymous callers are refused before the lookup so record
// existence is not revealed.
func (s *Service) loadAuthorized(ctx context.Context, actorID, id int64) (*Student, error) {
	if actorID <= 0 {
		return nil, auth.ErrUnauthenticated
	}
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.RequireOwnerOrManager(ctx, actorID, st.StaffID); err != nil {
		return nil, err
	}
	return st, nil
}

func normalize(in Input) Input {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.DateOfBirth = strings.TrimSpace(in.DateOfBirth)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.Gender = strings.ToLower(strings.TrimSpace(in.Gender))
	in.Address = strings.TrimSpace(in.Address)
	return in
}
