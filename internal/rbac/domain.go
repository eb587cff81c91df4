// Package rbac gates console requests by the caller's role claim.
package rbac

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is the caller's authorization level.
type Role string

// Known roles. Values match the role claim carried in session tokens.
const (
	RoleOrgAdmin       Role = "ORG_ADMIN"
	RoleAgentAdmin     Role = "AGENT_ADMIN"
	RoleAgentUser      Role = "AGENT_USER"
	RoleComplianceUser Role = "COMPLIANCE_USER"
	RoleOrgUser        Role = "ORG_USER"

	// RoleUnknown stands in for any claim value outside the closed set.
	RoleUnknown Role = ""
)

var allRoles = []Role{RoleOrgAdmin, RoleAgentAdmin, RoleAgentUser, RoleComplianceUser, RoleOrgUser}

var roleTitle = cases.Title(language.English)

// ParseRole narrows a raw claim value into a Role.
func ParseRole(raw string) (Role, bool) {
	candidate := Role(strings.ToUpper(strings.TrimSpace(raw)))
	for _, r := range allRoles {
		if r == candidate {
			return r, true
		}
	}
	return RoleUnknown, false
}

// Roles lists every known role from most to least privileged.
func Roles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

// String returns the wire value.
func (r Role) String() string {
	return string(r)
}

// Label renders a human readable name, e.g. "Agent Admin".
func (r Role) Label() string {
	if r == RoleUnknown {
		return "Unknown"
	}
	return roleTitle.String(strings.ReplaceAll(strings.ToLower(string(r)), "_", " "))
}

// Claim is the verified identity for one request.
type Claim struct {
	Subject string
	Email   string
	Name    string
	Status  string
	Role    Role
	// RawRole keeps the unnarrowed claim value for logging.
	RawRole string
}
