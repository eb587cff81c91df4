package view

import (
	"strings"

	"github.com/remitdesk/remitdesk/internal/rbac"
)

// NavItem is one entry in the console sidebar.
type NavItem struct {
	Label  string
	Path   string
	Active bool
}

var navItems = []NavItem{
	{Label: "Organization", Path: "/admin"},
	{Label: "Users", Path: "/admin/users"},
	{Label: "Agency", Path: "/manager"},
	{Label: "Invitations", Path: "/manager/invitations"},
	{Label: "Teller", Path: "/teller"},
	{Label: "Compliance", Path: "/compliance"},
	{Label: "Dashboard", Path: "/dashboard"},
	{Label: "Clients", Path: "/clients"},
	{Label: "Exchange", Path: "/exchange"},
	{Label: "Payout", Path: "/payout"},
	{Label: "Settings", Path: "/settings"},
}

// Navigation returns the sidebar entries role may open. The longest matching path is marked active.
func Navigation(routes *rbac.RouteTable, role rbac.Role, current string) []NavItem {
	items := make([]NavItem, 0, len(navItems))
	active := -1
	for _, item := range navItems {
		if !routes.Allowed(item.Path, role) {
			continue
		}
		if current == item.Path || strings.HasPrefix(current, item.Path+"/") {
			if active < 0 || len(item.Path) > len(items[active].Path) {
				active = len(items)
			}
		}
		items = append(items, item)
	}
	if active >= 0 {
		items[active].Active = true
	}
	return items
}
