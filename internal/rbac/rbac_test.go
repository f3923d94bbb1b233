package rbac

import (
	"testing"

	"coparent/api/internal/store"
)

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer export", role: RoleViewer, action: ActionExport, allow: true},
		{name: "viewer propose", role: RoleViewer, action: ActionPropose, allow: false},
		{name: "viewer initial", role: RoleViewer, action: ActionInitial, allow: false},
		{name: "parent propose", role: RoleParent, action: ActionPropose, allow: true},
		{name: "parent restore", role: RoleParent, action: ActionRestore, allow: true},
		{name: "parent admin", role: RoleParent, action: ActionAdmin, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("guest"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestCanInitialFor(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		actor  store.Party
		target store.Party
		allow  bool
	}{
		{name: "parent own initials", role: RoleParent, actor: store.PartyA, target: store.PartyA, allow: true},
		{name: "parent other initials", role: RoleParent, actor: store.PartyA, target: store.PartyB, allow: false},
		{name: "admin either party", role: RoleAdmin, actor: "", target: store.PartyB, allow: true},
		{name: "viewer never", role: RoleViewer, actor: store.PartyA, target: store.PartyA, allow: false},
		{name: "invalid target", role: RoleAdmin, actor: store.PartyA, target: store.Party("partyC"), allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanInitialFor(tc.role, tc.actor, tc.target); got != tc.allow {
				t.Fatalf("CanInitialFor(%q, %q, %q) = %v, want %v", tc.role, tc.actor, tc.target, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("parent") != RoleParent || Normalize("admin") != RoleAdmin {
		t.Fatal("known roles should pass through")
	}
	if Normalize("editor") != RoleViewer || Normalize("") != RoleViewer {
		t.Fatal("unknown roles should fall back to viewer")
	}
}
