package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasRoleIsReflexive(t *testing.T) {
	for _, r := range Roles() {
		assert.True(t, HasRole(r, r), "role %s should include itself", r)
	}
}

func TestHierarchyMonotonicity(t *testing.T) {
	for _, a := range Roles() {
		for _, b := range Roles() {
			if !isSuperset(Subsumes(a), Subsumes(b)) {
				continue
			}
			for _, path := range []string{"/admin", "/admin/users", "/manager/reports", "/teller", "/compliance", "/dashboard", "/onboarding"} {
				if CheckRoutePermission(path, b) {
					assert.True(t, CheckRoutePermission(path, a), "%s subsumes %s but lacks %s", a, b, path)
				}
			}
		}
	}
}

func TestHierarchySupersets(t *testing.T) {
	assert.True(t, isSuperset(Subsumes(RoleOrgAdmin), Subsumes(RoleAgentAdmin)))
	assert.True(t, isSuperset(Subsumes(RoleAgentAdmin), Subsumes(RoleAgentUser)))
	assert.True(t, isSuperset(Subsumes(RoleAgentAdmin), Subsumes(RoleComplianceUser)))
	assert.True(t, isSuperset(Subsumes(RoleAgentUser), Subsumes(RoleOrgUser)))
	assert.True(t, isSuperset(Subsumes(RoleComplianceUser), Subsumes(RoleOrgUser)))
}

func TestCanManageRole(t *testing.T) {
	cases := []struct {
		actor, target Role
		want          bool
	}{
		{RoleOrgAdmin, RoleAgentAdmin, true},
		{RoleOrgAdmin, RoleOrgAdmin, false},
		{RoleAgentAdmin, RoleAgentUser, true},
		{RoleAgentAdmin, RoleOrgAdmin, false},
		{RoleAgentUser, RoleOrgUser, true},
		{RoleAgentUser, RoleComplianceUser, false},
		{RoleOrgUser, RoleOrgUser, false},
		{RoleUnknown, RoleOrgUser, false},
		{Role("SUPERUSER"), RoleOrgUser, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanManageRole(tc.actor, tc.target), "%s manages %s", tc.actor, tc.target)
	}
}

func TestUnknownActorFailsClosed(t *testing.T) {
	assert.False(t, HasRole(Role("ROOT"), RoleOrgUser))
	assert.False(t, HasRole(RoleUnknown, RoleUnknown))
	assert.Empty(t, Subsumes(Role("ROOT")))
}

func TestSubsumesReturnsCopy(t *testing.T) {
	roles := Subsumes(RoleOrgUser)
	roles[0] = RoleOrgAdmin
	assert.False(t, HasRole(RoleOrgUser, RoleOrgAdmin))
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" agent_admin ")
	assert.True(t, ok)
	assert.Equal(t, RoleAgentAdmin, r)

	r, ok = ParseRole("superuser")
	assert.False(t, ok)
	assert.Equal(t, RoleUnknown, r)
}

func TestRoleLabel(t *testing.T) {
	assert.Equal(t, "Compliance User", RoleComplianceUser.Label())
	assert.Equal(t, "Unknown", RoleUnknown.Label())
}

func isSuperset(a, b []Role) bool {
	for _, r := range b {
		if !containsRole(a, r) {
			return false
		}
	}
	return true
}

func TestManageableRoles(t *testing.T) {
	assert.Equal(t, []Role{RoleAgentAdmin, RoleAgentUser, RoleComplianceUser, RoleOrgUser}, ManageableRoles(RoleOrgAdmin))
	assert.Equal(t, []Role{RoleAgentUser, RoleComplianceUser, RoleOrgUser}, ManageableRoles(RoleAgentAdmin))
	assert.Equal(t, []Role{RoleOrgUser}, ManageableRoles(RoleAgentUser))
	assert.Empty(t, ManageableRoles(RoleOrgUser))
	assert.Empty(t, ManageableRoles(RoleUnknown))
}
