package auth

import (
	"net/http"
	"strings"
)

// Role is a planner API role. Each role includes the permissions of the
// roles ranked below it.
type Role string

const (
	// RoleViewer reads runs, results and exports.
	RoleViewer Role = "viewer"
	// RolePlanner also starts single projection runs.
	RolePlanner Role = "planner"
	// RoleAdmin also starts batches and market collection.
	RoleAdmin Role = "admin"
)

var roleRanks = map[Role]int{RoleViewer: 1, RolePlanner: 2, RoleAdmin: 3}

// ParseRole accepts only the planner roles.
func ParseRole(value string) (Role, bool) {
	role := Role(value)
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// Allows reports whether r may call an endpoint that requires required.
func (r Role) Allows(required Role) bool {
	return roleRanks[r] >= roleRanks[required]
}

// Policy determines required roles by request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds a default policy with exemptions. /healthz and
// /metrics are always exempt.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths)+2)
	set["/healthz"] = struct{}{}
	set["/metrics"] = struct{}{}
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt returns true when a request should skip auth/RBAC.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if r.Method == http.MethodOptions {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves required role for the request.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	path := r.URL.Path
	method := r.Method

	switch {
	case path == "/api/v1/market/collect":
		return RoleAdmin, true
	case path == "/api/v1/projections/batch":
		return RoleAdmin, true
	case strings.HasPrefix(path, "/api/v1/projections"):
		if method == http.MethodGet || method == http.MethodHead {
			return RoleViewer, true
		}
		return RolePlanner, true
	}

	if strings.HasPrefix(path, "/api/") {
		if method == http.MethodGet || method == http.MethodHead {
			return RoleViewer, true
		}
		return RolePlanner, true
	}
	return "", false
}
