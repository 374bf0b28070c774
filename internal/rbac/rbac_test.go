package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name  string
		role  Role
		cap   Capability
		allow bool
	}{
		{name: "viewer read", role: RoleViewer, cap: CapRead, allow: true},
		{name: "viewer edit", role: RoleViewer, cap: CapEditPosts, allow: false},
		{name: "contributor edit", role: RoleContributor, cap: CapEditPosts, allow: true},
		{name: "editor edit", role: RoleEditor, cap: CapEditPosts, allow: true},
		{name: "editor options", role: RoleEditor, cap: CapManageOptions, allow: false},
		{name: "admin options", role: RoleAdmin, cap: CapManageOptions, allow: true},
		{name: "unknown role", role: Role("guest"), cap: CapRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.cap); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.cap, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("contributor"); got != RoleContributor {
		t.Fatalf("Normalize(contributor) = %q", got)
	}
	if got := Normalize("superuser"); got != RoleViewer {
		t.Fatalf("Normalize(superuser) = %q, want viewer", got)
	}
}
