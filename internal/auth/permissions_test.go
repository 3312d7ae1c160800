package auth

import (
	"errors"
	"testing"
)

func TestHasCapability(t *testing.T) {
	tests := []struct {
		role Permission
		bit  Permission
		want bool
	}{
		{PermNone, PermRead, false},
		{PermNone, PermAdmin, false},
		{PermRead, PermRead, true},
		{PermRead, PermAdmin, false},
		{PermRead | PermManager, PermManager, true},
		{PermAdmin, PermManager, false},
		{PermAll, PermAdmin, true},
		{PermAll, PermManager | PermAdmin, true},
		{PermManager, PermManager | PermAdmin, false},
	}

	for _, tt := range tests {
		t.Run(tt.role.String()+"/"+tt.bit.String(), func(t *testing.T) {
			if got := HasCapability(tt.role, tt.bit); got != tt.want {
				t.Errorf("HasCapability(%d, %d) = %v, want %v", tt.role, tt.bit, got, tt.want)
			}
			if got := tt.role.Has(tt.bit); got != tt.want {
				t.Errorf("Permission(%d).Has(%d) = %v, want %v", tt.role, tt.bit, got, tt.want)
			}
		})
	}
}

func TestPermission_Bits(t *testing.T) {
	if PermRead != 1 || PermModify != 2 || PermManager != 4 || PermAdmin != 8 {
		t.Fatalf("capability bits = %d,%d,%d,%d; want 1,2,4,8", PermRead, PermModify, PermManager, PermAdmin)
	}
	if PermAll != 15 {
		t.Errorf("PermAll = %d, want 15", PermAll)
	}
	if DefaultPermissions.Has(PermManager) || DefaultPermissions.Has(PermAdmin) {
		t.Errorf("DefaultPermissions = %s, must carry no elevated bits", DefaultPermissions)
	}
}

func TestPermission_Valid(t *testing.T) {
	for _, p := range []Permission{0, 1, 7, 12, 15} {
		if !p.Valid() {
			t.Errorf("Permission(%d).Valid() = false, want true", p)
		}
	}
	for _, p := range []Permission{-1, 16, 31, 1 << 20} {
		if p.Valid() {
			t.Errorf("Permission(%d).Valid() = true, want false", p)
		}
	}
}

func TestPermission_String(t *testing.T) {
	tests := map[Permission]string{
		PermNone:                "none",
		PermRead:                "read",
		PermRead | PermManager:  "read|manager",
		PermAll:                 "read|modify|manager|admin",
		PermManager | PermAdmin: "manager|admin",
	}
	for p, want := range tests {
		if got := p.String(); got != want {
			t.Errorf("Permission(%d).String() = %q, want %q", p, got, want)
		}
	}
}

func TestParsePermissions(t *testing.T) {
	tests := []struct {
		in      string
		want    Permission
		wantErr bool
	}{
		{"12", PermManager | PermAdmin, false},
		{" 1 ", PermRead, false},
		{"0", PermNone, false},
		{"16", PermNone, true},
		{"-1", PermNone, true},
		{"admin", PermNone, true},
		{"", PermNone, true},
		{"1.5", PermNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePermissions(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePermissions(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrMalformedInput) {
				t.Errorf("ParsePermissions(%q) error = %v, want ErrMalformedInput", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParsePermissions(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
