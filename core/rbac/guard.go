package rbac

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const (
	subjectAnyone        = "*"
	subjectAuthenticated = "@authenticated"
	subjectAnonymous     = "@anonymous"
)

const guardModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = (p.sub == "*" || r.sub == p.sub) && keyMatch2(r.obj, p.obj)
`

// Route declares who may open a view. Public routes are reachable without a
// session; routes with no RequiredRoles need a session but no role.
type Route struct {
	Path          string
	Public        bool
	RequiredRoles []string
}

type Decision int

const (
	Allow Decision = iota
	RedirectLogin
	Forbidden
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	default:
		return "forbidden"
	}
}

// Guard evaluates view paths against declared routes. Path patterns use
// keyMatch2 syntax (/admin/kyc/:id, /static/*).
type Guard struct {
	enforcer *casbin.Enforcer
}

func DefaultRoutes() []Route {
	out := []Route{
		{Path: "/login", Public: true},
		{Path: "/register", Public: true},
		{Path: "/forgot-password", Public: true},
		{Path: "/reset-password", Public: true},
		{Path: "/verify-email", Public: true},
		{Path: "/profile"},
		{Path: "/notifications"},
		{Path: "/settings/notifications"},
		{Path: "/messaging/*"},
		{Path: "/tenant/request"},
		{Path: "/team/*", RequiredRoles: []string{RoleTenantAdmin, RoleSuperAdmin}},
		{Path: "/admin/kyc/:id", RequiredRoles: []string{RoleComplianceOfficer, RoleSuperAdmin}},
	}
	for _, item := range MenuCatalog() {
		out = append(out, Route{Path: item.Path, RequiredRoles: item.RequiredRoles})
	}
	return out
}

func NewGuard(routes []Route) (*Guard, error) {
	m, err := model.NewModelFromString(guardModel)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	for _, rt := range routes {
		path := strings.TrimSpace(rt.Path)
		if path == "" {
			continue
		}
		subjects := []string{}
		switch {
		case rt.Public:
			subjects = append(subjects, subjectAnyone)
		case len(rt.RequiredRoles) == 0:
			subjects = append(subjects, subjectAuthenticated)
		default:
			for _, r := range rt.RequiredRoles {
				if n := NormalizeRole(r); n != "" {
					subjects = append(subjects, n)
				}
			}
		}
		for _, sub := range subjects {
			if _, err := e.AddPolicy(sub, path); err != nil {
				return nil, fmt.Errorf("route %s: %w", path, err)
			}
		}
	}
	return &Guard{enforcer: e}, nil
}

// Check decides whether a viewer may open path. Anonymous viewers that are
// refused are sent to login; authenticated viewers are refused outright.
func (g *Guard) Check(path string, authenticated bool, effectiveRoles []string) (Decision, error) {
	subjects := []string{subjectAnonymous}
	if authenticated {
		subjects = append([]string{subjectAuthenticated}, effectiveRoles...)
	}
	for _, sub := range subjects {
		ok, err := g.enforcer.Enforce(sub, path)
		if err != nil {
			return Forbidden, err
		}
		if ok {
			return Allow, nil
		}
	}
	if !authenticated {
		return RedirectLogin, nil
	}
	return Forbidden, nil
}
