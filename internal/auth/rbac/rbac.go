package rbac

import (
	"log/slog"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Policy answers coarse permission checks like "settings:write" for a role.
// Ownership checks (a user touching only their own accounts) stay in handlers.
type Policy interface {
	Can(role, permission string) bool
}

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

type casbinPolicy struct {
	enforcer *casbin.Enforcer
}

// NewDefaultPolicy builds the built-in admin/user role matrix.
func NewDefaultPolicy() (Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	adminPerms := []string{
		"users:read", "users:write",
		"accounts:read", "accounts:write",
		"settings:read", "settings:write",
		"automation:read", "automation:run",
		"reports:read",
	}
	userPerms := []string{
		"accounts:read",
		"settings:read", "settings:write",
		"automation:read", "automation:run",
		"reports:read",
	}
	for _, p := range adminPerms {
		obj, act := splitPerm(p)
		if _, err := e.AddPolicy("role:admin", obj, act); err != nil {
			return nil, err
		}
	}
	for _, p := range userPerms {
		obj, act := splitPerm(p)
		if _, err := e.AddPolicy("role:user", obj, act); err != nil {
			return nil, err
		}
	}
	if _, err := e.AddGroupingPolicy("admin", "role:admin"); err != nil {
		return nil, err
	}
	if _, err := e.AddGroupingPolicy("user", "role:user"); err != nil {
		return nil, err
	}
	return &casbinPolicy{enforcer: e}, nil
}

// NewPolicyFromFiles loads a custom casbin model and CSV policy, for deployments
// that need more than the built-in matrix.
func NewPolicyFromFiles(modelPath, policyPath string) (Policy, error) {
	e, err := casbin.NewEnforcer(modelPath, policyPath)
	if err != nil {
		return nil, err
	}
	return &casbinPolicy{enforcer: e}, nil
}

func splitPerm(p string) (obj, act string) {
	if i := strings.IndexByte(p, ':'); i >= 0 {
		return p[:i], p[i+1:]
	}
	return p, "*"
}

func (cp *casbinPolicy) Can(role, permission string) bool {
	obj, act := splitPerm(permission)
	ok, err := cp.enforcer.Enforce(role, obj, act)
	if err != nil {
		slog.Warn("rbac enforce", "role", role, "permission", permission, "error", err)
		return false
	}
	return ok
}
