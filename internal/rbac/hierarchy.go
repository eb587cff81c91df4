package rbac

// hierarchy maps each role to the roles it subsumes. Every entry includes the role itself.
var hierarchy = map[Role][]Role{
	RoleOrgAdmin:       {RoleOrgAdmin, RoleAgentAdmin, RoleAgentUser, RoleComplianceUser, RoleOrgUser},
	RoleAgentAdmin:     {RoleAgentAdmin, RoleAgentUser, RoleComplianceUser, RoleOrgUser},
	RoleAgentUser:      {RoleAgentUser, RoleOrgUser},
	RoleComplianceUser: {RoleComplianceUser, RoleOrgUser},
	RoleOrgUser:        {RoleOrgUser},
}

// Subsumes returns a copy of the roles actor may act on behalf of.
func Subsumes(actor Role) []Role {
	entry := hierarchy[actor]
	out := make([]Role, len(entry))
	copy(out, entry)
	return out
}

// HasRole reports whether actor's hierarchy includes required.
func HasRole(actor, required Role) bool {
	return containsRole(hierarchy[actor], required)
}

// CanManageRole reports whether actor may manage users holding target.
// A role never manages itself; self-service goes through the owning handler.
func CanManageRole(actor, target Role) bool {
	return actor != target && containsRole(hierarchy[actor], target)
}

func containsRole(set []Role, role Role) bool {
	if role == RoleUnknown {
		return false
	}
	for _, r := range set {
		if r == role {
			return true
		}
	}
	return false
}

// ManageableRoles lists the roles actor may assign, most privileged first.
func ManageableRoles(actor Role) []Role {
	var out []Role
	for _, r := range allRoles {
		if CanManageRole(actor, r) {
			out = append(out, r)
		}
	}
	return out
}
