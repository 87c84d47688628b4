package auth

import (
	"strings"

	"github.com/gehnabox/orders-service/internal/domain"
)

// RolePolicy maps a role to the route prefixes it may reach and its default
// landing route. It replaces per-page role switches with one table the
// routing guard consults.
type RolePolicy struct {
	Role            domain.Role
	AllowedPrefixes []string
	AllowedRoutes   []string
	LandingRoute    string
}

var rolePolicies = map[domain.Role]RolePolicy{
	domain.RoleAdmin: {
		Role:            domain.RoleAdmin,
		AllowedPrefixes: []string{"/orders/admin", "/auth"},
		LandingRoute:    "/admin/dashboard",
	},
	domain.RoleStaff: {
		Role:            domain.RoleStaff,
		AllowedPrefixes: []string{"/orders/admin", "/auth"},
		LandingRoute:    "/admin/orders",
	},
	domain.RoleAccountant: {
		Role:            domain.RoleAccountant,
		AllowedPrefixes: []string{"/auth"},
		LandingRoute:    "/admin/reports",
	},
	domain.RoleCustomer: {
		Role:            domain.RoleCustomer,
		AllowedPrefixes: []string{"/orders/my-orders", "/auth"},
		AllowedRoutes:   []string{"/orders"},
		LandingRoute:    "/account/orders",
	},
}

// PolicyFor returns the policy for a role. Unknown roles get an empty
// policy that allows nothing.
func PolicyFor(role domain.Role) RolePolicy {
	if p, ok := rolePolicies[role]; ok {
		return p
	}
	return RolePolicy{Role: role}
}

// Allows reports whether the role may reach the given route path.
func (p RolePolicy) Allows(path string) bool {
	for _, route := range p.AllowedRoutes {
		if path == route {
			return true
		}
	}
	for _, prefix := range p.AllowedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
