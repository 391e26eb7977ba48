package rbac

// EffectiveRoles is the union of the primary role and every membership role,
// normalized and deduplicated. Unknown roles are kept: the backend owns the
// role vocabulary.
func EffectiveRoles(primary string, membershipRoles []string) []string {
	set := map[string]struct{}{}
	if r := NormalizeRole(primary); r != "" {
		set[r] = struct{}{}
	}
	for _, m := range membershipRoles {
		if r := NormalizeRole(m); r != "" {
			set[r] = struct{}{}
		}
	}
	return setToSortedSlice(set)
}

// HasAny reports whether held contains at least one of required.
func HasAny(held []string, required []string) bool {
	if len(held) == 0 || len(required) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(held))
	for _, r := range held {
		set[r] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[NormalizeRole(r)]; ok {
			return true
		}
	}
	return false
}
