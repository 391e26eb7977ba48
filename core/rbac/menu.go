package rbac

import "sort"

type MenuItem struct {
	ID            string   `json:"id"`
	Label         string   `json:"label"`
	Path          string   `json:"path"`
	RequiredRoles []string `json:"required_roles,omitempty"`
	Order         int      `json:"order"`
}

// Baseline items carry no role requirement and are shown to every
// authenticated user.
var menuCatalog = []MenuItem{
	{ID: "dashboard", Label: "Dashboard", Path: "/dashboard", Order: 10},
	{ID: "messaging", Label: "Messaging", Path: "/messaging", Order: 20},
	{ID: "analytics", Label: "Analytics", Path: "/analytics", Order: 30},
	{ID: "team", Label: "Team Management", Path: "/team", RequiredRoles: []string{RoleTenantAdmin, RoleSuperAdmin}, Order: 40},
	{ID: "roles", Label: "Role Management", Path: "/roles", RequiredRoles: []string{RoleTenantAdmin, RoleSuperAdmin}, Order: 50},
	{ID: "api_keys", Label: "API Keys", Path: "/api-keys", RequiredRoles: []string{RoleTenantAdmin, RoleDeveloper}, Order: 60},
	{ID: "kyc_review", Label: "KYC Review", Path: "/admin/kyc", RequiredRoles: []string{RoleComplianceOfficer, RoleSuperAdmin}, Order: 70},
	{ID: "tenants", Label: "Tenants", Path: "/admin/tenants", RequiredRoles: []string{RoleSuperAdmin}, Order: 80},
	{ID: "audit_log", Label: "Audit Log", Path: "/audit", RequiredRoles: []string{RoleAuditor, RoleSuperAdmin}, Order: 90},
	{ID: "platform_settings", Label: "Platform Settings", Path: "/admin/settings", RequiredRoles: []string{RoleSuperAdmin}, Order: 100},
}

func MenuCatalog() []MenuItem {
	return cloneMenu(menuCatalog)
}

// MenuFor derives a fresh menu for the given effective roles, sorted by Order.
// The result never aliases the catalog.
func MenuFor(effectiveRoles []string) []MenuItem {
	return menuFrom(menuCatalog, effectiveRoles)
}

func menuFrom(catalog []MenuItem, effectiveRoles []string) []MenuItem {
	out := make([]MenuItem, 0, len(catalog))
	for _, item := range catalog {
		if len(item.RequiredRoles) == 0 || HasAny(effectiveRoles, item.RequiredRoles) {
			out = append(out, cloneItem(item))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func cloneMenu(in []MenuItem) []MenuItem {
	out := make([]MenuItem, len(in))
	for i, item := range in {
		out[i] = cloneItem(item)
	}
	return out
}

func cloneItem(item MenuItem) MenuItem {
	if item.RequiredRoles != nil {
		roles := make([]string, len(item.RequiredRoles))
		copy(roles, item.RequiredRoles)
		item.RequiredRoles = roles
	}
	return item
}
