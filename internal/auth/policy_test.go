package auth

import (
	"context"
	"errors"
	"testing"
)

func testPolicy(observer DecisionObserver) (*Policy, *fakeFinder) {
	f := &fakeFinder{staff: map[int64]*Staff{
		1: {ID: 1, Role: PermAll},
		3: {ID: 3, Role: PermRead},
		4: {ID: 4, Role: PermRead | PermManager},
		5: {ID: 5, Role: PermAdmin},
		7: {ID: 7, Role: PermRead},
		9: {ID: 9, Role: PermNone},
	}}
	var opts []PolicyOption
	if observer != nil {
		opts = append(opts, WithDecisionObserver(observer))
	}
	return NewPolicy(f, opts...), f
}

func TestPolicy_RequireAdmin(t *testing.T) {
	p, _ := testPolicy(nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		actor   int64
		wantErr error
	}{
		{"all bits", 1, nil},
		{"admin only", 5, nil},
		{"manager", 4, ErrForbidden},
		{"read", 3, ErrForbidden},
		{"zero role", 9, ErrForbidden},
		{"unknown principal", 42, ErrForbidden},
		{"unauthenticated", Unauthenticated, ErrUnauthenticated},
		{"zero id", 0, ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.RequireAdmin(ctx, tt.actor)
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Errorf("RequireAdmin(%d) error = %v, want %v", tt.actor, err, tt.wantErr)
			}
			if got := p.CheckAdmin(ctx, tt.actor); got != (tt.wantErr == nil) {
				t.Errorf("CheckAdmin(%d) = %v", tt.actor, got)
			}
		})
	}
}

func TestPolicy_RequireManager(t *testing.T) {
	p, _ := testPolicy(nil)
	ctx := context.Background()

	allowed := map[int64]bool{1: true, 4: true, 3: false, 5: false, 9: false, 42: false}
	for actor, want := range allowed {
		err := p.RequireManager(ctx, actor)
		if (err == nil) != want {
			t.Errorf("RequireManager(%d) error = %v, want allowed=%v", actor, err, want)
		}
		if err != nil && !errors.Is(err, ErrForbidden) {
			t.Errorf("RequireManager(%d) error = %v, want ErrForbidden", actor, err)
		}
	}
}

func TestPolicy_RequireOwnerOrManager(t *testing.T) {
	p, _ := testPolicy(nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		actor   int64
		owner   int64
		wantErr error
	}{
		{"owner without manager bit", 7, 7, nil},
		{"non-owner without manager bit", 3, 7, ErrForbidden},
		{"non-owner manager", 4, 7, nil},
		{"admin without manager bit", 5, 7, ErrForbidden},
		{"deleted owner", 42, 42, ErrForbidden},
		{"unauthenticated against sentinel owner", Unauthenticated, Unauthenticated, ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.RequireOwnerOrManager(ctx, tt.actor, tt.owner)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("RequireOwnerOrManager(%d, %d) error = %v", tt.actor, tt.owner, err)
				}
			} else if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RequireOwnerOrManager(%d, %d) error = %v, want %v", tt.actor, tt.owner, err, tt.wantErr)
			}
			if got := p.CheckManagerOrOwner(ctx, tt.actor, tt.owner); got != (tt.wantErr == nil) {
				t.Errorf("CheckManagerOrOwner(%d, %d) = %v", tt.actor, tt.owner, got)
			}
		})
	}
}

func TestPolicy_RoleChangeTakesEffectImmediately(t *testing.T) {
	p, f := testPolicy(nil)
	ctx := context.Background()

	if err := p.RequireManager(ctx, 3); !errors.Is(err, ErrForbidden) {
		t.Fatalf("RequireManager() error = %v, want ErrForbidden", err)
	}
	f.staff[3].Role |= PermManager
	if err := p.RequireManager(ctx, 3); err != nil {
		t.Fatalf("RequireManager() after promotion error = %v", err)
	}
	delete(f.staff, 3)
	if err := p.RequireManager(ctx, 3); !errors.Is(err, ErrForbidden) {
		t.Fatalf("RequireManager() after deletion error = %v, want ErrForbidden", err)
	}
}

func TestPolicy_StoreFailureDenies(t *testing.T) {
	p, f := testPolicy(nil)
	storeErr := errors.New("disk I/O error")
	f.err = storeErr
	ctx := context.Background()

	if err := p.RequireAdmin(ctx, 1); !errors.Is(err, storeErr) {
		t.Errorf("RequireAdmin() error = %v, want wrapped store error", err)
	}
	if p.CheckAdmin(ctx, 1) {
		t.Error("CheckAdmin() should deny when the store fails")
	}
	if p.CheckManagerOrOwner(ctx, 7, 7) {
		t.Error("CheckManagerOrOwner() should deny when the store fails")
	}
}

func TestPolicy_Observer(t *testing.T) {
	type decision struct {
		check   string
		actor   int64
		allowed bool
	}
	var got []decision
	p, _ := testPolicy(func(check string, actor int64, allowed bool) {
		got = append(got, decision{check, actor, allowed})
	})
	ctx := context.Background()

	p.RequireAdmin(ctx, 1)             //nolint:errcheck // observed
	p.RequireManager(ctx, 3)           //nolint:errcheck // observed
	p.RequireOwnerOrManager(ctx, 7, 7) //nolint:errcheck // observed

	want := []decision{
		{CheckNameAdmin, 1, true},
		{CheckNameManager, 3, false},
		{CheckNameOwnerOrManager, 7, true},
	}
	if len(got) != len(want) {
		t.Fatalf("observed %d decisions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("decision[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
