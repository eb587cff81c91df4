package rbac

import "strings"

// RoutePermission grants a set of roles access to every path under Prefix.
type RoutePermission struct {
	Prefix string
	Roles  []Role
}

// RouteTable is an ordered, read-only list of route permissions.
// Entries are matched by string prefix in declaration order; the first match wins.
type RouteTable struct {
	entries  []RoutePermission
	exact    map[string]int
	failOpen bool
}

// NewRouteTable copies entries into an immutable table. failOpen decides paths no entry matches.
func NewRouteTable(failOpen bool, entries ...RoutePermission) *RouteTable {
	t := &RouteTable{
		entries:  make([]RoutePermission, 0, len(entries)),
		exact:    make(map[string]int, len(entries)),
		failOpen: failOpen,
	}
	for _, e := range entries {
		roles := make([]Role, len(e.Roles))
		copy(roles, e.Roles)
		if _, dup := t.exact[e.Prefix]; !dup {
			t.exact[e.Prefix] = len(t.entries)
		}
		t.entries = append(t.entries, RoutePermission{Prefix: e.Prefix, Roles: roles})
	}
	return t
}

var defaultRoutes = NewRouteTable(true,
	RoutePermission{Prefix: "/admin/users", Roles: []Role{RoleOrgAdmin}},
	RoutePermission{Prefix: "/admin/settings", Roles: []Role{RoleOrgAdmin}},
	RoutePermission{Prefix: "/admin", Roles: []Role{RoleOrgAdmin}},
	RoutePermission{Prefix: "/manager/reports", Roles: []Role{RoleOrgAdmin, RoleAgentAdmin}},
	RoutePermission{Prefix: "/manager/invitations", Roles: []Role{RoleOrgAdmin, RoleAgentAdmin}},
	RoutePermission{Prefix: "/manager", Roles: []Role{RoleOrgAdmin, RoleAgentAdmin}},
	RoutePermission{Prefix: "/teller", Roles: []Role{RoleOrgAdmin, RoleAgentAdmin, RoleAgentUser}},
	RoutePermission{Prefix: "/compliance", Roles: []Role{RoleOrgAdmin, RoleAgentAdmin, RoleComplianceUser}},
	RoutePermission{Prefix: "/dashboard", Roles: allRoles},
	RoutePermission{Prefix: "/onboarding", Roles: allRoles},
)

// DefaultRoutes returns the console's compiled-in permission table.
func DefaultRoutes() *RouteTable {
	return defaultRoutes
}

// CheckRoutePermission evaluates path against the default table.
func CheckRoutePermission(path string, role Role) bool {
	return defaultRoutes.Allowed(path, role)
}

// Allowed reports whether role may access path.
// Unknown roles are denied everywhere, including paths no entry covers.
func (t *RouteTable) Allowed(path string, role Role) bool {
	if !role.Valid() {
		return false
	}
	if t == nil {
		return false
	}
	if idx, ok := t.exact[path]; ok {
		return containsRole(t.entries[idx].Roles, role)
	}
	for _, e := range t.entries {
		if strings.HasPrefix(path, e.Prefix) {
			return containsRole(e.Roles, role)
		}
	}
	return t.failOpen
}

// Entries returns a copy of the table in declaration order.
func (t *RouteTable) Entries() []RoutePermission {
	if t == nil {
		return nil
	}
	out := make([]RoutePermission, len(t.entries))
	for i, e := range t.entries {
		roles := make([]Role, len(e.Roles))
		copy(roles, e.Roles)
		out[i] = RoutePermission{Prefix: e.Prefix, Roles: roles}
	}
	return out
}

// DashboardURL returns the landing path for role. Unknown roles land on the generic dashboard.
func DashboardURL(role Role) string {
	switch role {
	case RoleOrgAdmin:
		return "/admin"
	case RoleAgentAdmin:
		return "/manager"
	case RoleAgentUser:
		return "/teller"
	case RoleComplianceUser:
		return "/compliance"
	default:
		return "/dashboard"
	}
}
