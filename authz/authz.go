/*
Package authz guards the HTTP surface with role-based access control.

PURPOSE:
  Settings mutations reshape pointers for whole sub-departments; only admin
  callers may perform them. Read endpoints are open to the ops role as well.
  Enforcement is backed by a casbin RBAC model held in memory.

MODES:
  enforce:  deny requests the policy rejects (default)
  shadow:   log would-be denials but let the request through
  disabled: skip evaluation entirely

  Shadow mode exists so a new policy can be watched in production before it
  starts rejecting traffic.

CALLER IDENTITY:
  The role is read from the X-Role header. Upstream API gateway terminates
  authentication and stamps the header; this service only authorizes.
*/
package authz

import (
	"fmt"
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/sirupsen/logrus"
)

// Mode selects how policy decisions are applied.
type Mode string

const (
	ModeEnforce  Mode = "enforce"
	ModeShadow   Mode = "shadow"
	ModeDisabled Mode = "disabled"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeEnforce, ModeShadow, ModeDisabled:
		return Mode(s), nil
	case "":
		return ModeEnforce, nil
	default:
		return "", fmt.Errorf("unknown authz mode %q", s)
	}
}

// RoleHeader carries the caller's role, stamped by the API gateway.
const RoleHeader = "X-Role"

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// Authorizer wraps a casbin enforcer with a deployment mode.
type Authorizer struct {
	enforcer *casbin.Enforcer
	mode     Mode
	log      *logrus.Logger
}

// New builds an Authorizer with the built-in policy set.
func New(mode Mode, log *logrus.Logger) (*Authorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to build authz model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to build authz enforcer: %w", err)
	}

	// Admins mutate and read everything; ops reads everything.
	policies := [][]string{
		{"role:admin", "/api/*", "*"},
		{"role:ops", "/api/*", "GET"},
	}
	for _, p := range policies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("failed to add authz policy: %w", err)
		}
	}

	return &Authorizer{enforcer: e, mode: mode, log: log}, nil
}

// Allowed evaluates role/path/method against the policy set.
func (a *Authorizer) Allowed(role, path, method string) (bool, error) {
	if a.mode == ModeDisabled {
		return true, nil
	}
	ok, err := a.enforcer.Enforce("role:"+role, path, method)
	if err != nil {
		return false, fmt.Errorf("authz evaluation failed: %w", err)
	}
	return ok, nil
}

// Middleware authorizes every request through the policy set. In shadow mode
// denials are logged and the request proceeds.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if a.mode == ModeDisabled {
			next.ServeHTTP(w, req)
			return
		}

		role := req.Header.Get(RoleHeader)
		ok, err := a.Allowed(role, req.URL.Path, req.Method)
		if err != nil {
			a.log.WithError(err).Error("authz evaluation error")
			http.Error(w, `{"error":"authorization unavailable"}`, http.StatusInternalServerError)
			return
		}

		if !ok {
			if a.mode == ModeShadow {
				a.log.WithFields(logrus.Fields{
					"role":   role,
					"path":   req.URL.Path,
					"method": req.Method,
				}).Warn("authz shadow denial")
				next.ServeHTTP(w, req)
				return
			}
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, req)
	})
}
