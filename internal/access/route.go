package access

import "strings"

type RouteClass int

const (
	RoutePublic RouteClass = iota
	RouteDashboard
	RouteStaff
	RouteAdmin
	RouteAdminRestricted
)

func (c RouteClass) String() string {
	switch c {
	case RouteDashboard:
		return "dashboard"
	case RouteStaff:
		return "staff"
	case RouteAdmin:
		return "admin"
	case RouteAdminRestricted:
		return "admin-restricted"
	default:
		return "public"
	}
}

// Classifier maps a request path to a RouteClass by prefix, checked in precedence order:
// admin-restricted, admin, staff, dashboard, otherwise public.
type Classifier struct {
	AdminRestricted []string
	Admin           []string
	Staff           []string
	Dashboard       []string
}

func DefaultClassifier() *Classifier {
	return &Classifier{
		AdminRestricted: []string{
			"/admin/users", "/admin/settings", "/admin/payments",
			"/api/admin/users", "/api/admin/settings", "/api/admin/payments",
		},
		Admin:     []string{"/admin", "/api/admin"},
		Staff:     []string{"/staff", "/api/staff"},
		Dashboard: []string{"/dashboard", "/checkout", "/api/checkout", "/api/orders", "/api/notifications"},
	}
}

func (c *Classifier) Classify(path string) RouteClass {
	switch {
	case matchAny(path, c.AdminRestricted):
		return RouteAdminRestricted
	case matchAny(path, c.Admin):
		return RouteAdmin
	case matchAny(path, c.Staff):
		return RouteStaff
	case matchAny(path, c.Dashboard):
		return RouteDashboard
	}
	return RoutePublic
}

// matchAny treats "/admin" as matching "/admin" and "/admin/..." but not "/administrator".
func matchAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// IsAPI reports whether the path belongs to the JSON API rather than a page.
func IsAPI(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}
