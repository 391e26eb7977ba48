package rbac

import (
	"sort"
	"strings"
)

const (
	RoleSuperAdmin        = "super_admin"
	RoleTenantAdmin       = "tenant_admin"
	RoleComplianceOfficer = "compliance_officer"
	RoleAuditor           = "auditor"
	RoleDeveloper         = "developer"
	RoleMember            = "member"
)

type RoleInfo struct {
	Name        string
	Description string
}

var roles = []RoleInfo{
	{Name: RoleSuperAdmin, Description: "platform operator"},
	{Name: RoleTenantAdmin, Description: "tenant administrator"},
	{Name: RoleComplianceOfficer, Description: "KYC reviewer"},
	{Name: RoleAuditor, Description: "read-only audit access"},
	{Name: RoleDeveloper, Description: "tenant API integration"},
	{Name: RoleMember, Description: "tenant member"},
}

var knownRoleSet = buildRoleSet()

func buildRoleSet() map[string]struct{} {
	out := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		out[r.Name] = struct{}{}
	}
	return out
}

func DefaultRoles() []RoleInfo {
	out := make([]RoleInfo, len(roles))
	copy(out, roles)
	return out
}

func IsKnownRole(r string) bool {
	_, ok := knownRoleSet[NormalizeRole(r)]
	return ok
}

// NormalizeRole lowercases and trims a role name; backend payloads are not
// consistent about either.
func NormalizeRole(r string) string {
	return strings.ToLower(strings.TrimSpace(r))
}

// NormalizeRoleNames splits raw names into known and unknown sets, both
// normalized, deduplicated and sorted.
func NormalizeRoleNames(in []string) ([]string, []string) {
	validSet := map[string]struct{}{}
	unknownSet := map[string]struct{}{}
	for _, raw := range in {
		r := NormalizeRole(raw)
		if r == "" {
			continue
		}
		if _, ok := knownRoleSet[r]; ok {
			validSet[r] = struct{}{}
			continue
		}
		unknownSet[r] = struct{}{}
	}
	return setToSortedSlice(validSet), setToSortedSlice(unknownSet)
}

func setToSortedSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
