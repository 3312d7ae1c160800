package auth

import (
	"context"
	"errors"
	"fmt"
)

// Policy check names passed to a DecisionObserver.
const (
	CheckNameAdmin          = "admin"
	CheckNameManager        = "manager"
	CheckNameOwnerOrManager = "owner_or_manager"
)

// DecisionObserver is notified of every policy decision. It must not block.
type DecisionObserver func(check string, actorID int64, allowed bool)

// Policy decides whether a resolved identity may perform an operation.
// The actor's role is read from the store on every check, so a role change
// takes effect on the next request without reissuing tokens.
//
// Every check fails closed: Unauthenticated (or any id <= 0) yields
// ErrUnauthenticated, an unknown principal or a missing bit yields
// ErrForbidden, and a store failure is returned wrapped and never allows.
type Policy struct {
	staff    StaffFinder
	observer DecisionObserver
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithDecisionObserver registers fn to receive every decision.
func WithDecisionObserver(fn DecisionObserver) PolicyOption {
	return func(p *Policy) { p.observer = fn }
}

// NewPolicy creates a policy backed by staff.
func NewPolicy(staff StaffFinder, opts ...PolicyOption) *Policy {
	p := &Policy{staff: staff}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RequireAdmin returns nil when actorID holds the Admin bit.
func (p *Policy) RequireAdmin(ctx context.Context, actorID int64) error {
	return p.observe(CheckNameAdmin, actorID, p.requireBit(ctx, actorID, PermAdmin))
}

// RequireManager returns nil when actorID holds the Manager bit.
func (p *Policy) RequireManager(ctx context.Context, actorID int64) error {
	return p.observe(CheckNameManager, actorID, p.requireBit(ctx, actorID, PermManager))
}

// RequireOwnerOrManager returns nil when actorID is ownerID or holds the
// Manager bit. The actor must still exist in the store: a token for a deleted
// account grants nothing, not even access to records it used to own.
func (p *Policy) RequireOwnerOrManager(ctx context.Context, actorID, ownerID int64) error {
	err := func() error {
		actor, err := p.lookup(ctx, actorID)
		if err != nil {
			return err
		}
		if actor.ID == ownerID || actor.Role.Has(PermManager) {
			return nil
		}
		return ErrForbidden
	}()
	return p.observe(CheckNameOwnerOrManager, actorID, err)
}

// CheckAdmin is RequireAdmin as a boolean.
func (p *Policy) CheckAdmin(ctx context.Context, actorID int64) bool {
	return p.RequireAdmin(ctx, actorID) == nil
}

// CheckManagerOrOwner is RequireOwnerOrManager as a boolean.
func (p *Policy) CheckManagerOrOwner(ctx context.Context, actorID, ownerID int64) bool {
	return p.RequireOwnerOrManager(ctx, actorID, ownerID) == nil
}

func (p *Policy) requireBit(ctx context.Context, actorID int64, bit Permission) error {
	actor, err := p.lookup(ctx, actorID)
	if err != nil {
		return err
	}
	if !actor.Role.Has(bit) {
		return ErrForbidden
	}
	return nil
}

func (p *Policy) lookup(ctx context.Context, actorID int64) (*Staff, error) {
	if actorID <= 0 {
		return nil, ErrUnauthenticated
	}
	actor, err := p.staff.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrStaffNotFound) {
			return nil, ErrForbidden
		}
		return nil, fmt.Errorf("loading principal: %w", err)
	}
	return actor, nil
}

func (p *Policy) observe(check string, actorID int64, err error) error {
	if p.observer != nil {
		p.observer(check, actorID, err == nil)
	}
	return err
}
