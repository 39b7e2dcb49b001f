package access

import (
	"net/url"
)

const (
	SignInPath        = "/auth/signin"
	DashboardPath     = "/dashboard"
	AdminPath         = "/admin"
	insufficientParam = "insufficient_permissions"
)

// Decision is Allow, or a redirect target for denied requests.
type Decision struct {
	Allow    bool
	Redirect string
	// Unauthenticated distinguishes "sign in first" from "not allowed".
	Unauthenticated bool
}

func allow() Decision { return Decision{Allow: true} }

// Authorize decides whether sess may reach a route of class c. sess is nil for anonymous
// callers; path is only used to build the sign-in callback.
func Authorize(c RouteClass, sess *Session, path string) Decision {
	if c == RoutePublic {
		return allow()
	}
	if sess == nil || !sess.Role.Valid() {
		return Decision{
			Redirect:        SignInPath + "?callbackUrl=" + url.QueryEscape(path),
			Unauthenticated: true,
		}
	}

	role := sess.Role
	switch c {
	case RouteDashboard:
		return allow()
	case RouteStaff, RouteAdmin:
		if role.AtLeast(RoleStaff) {
			return allow()
		}
		return deny(DashboardPath)
	case RouteAdminRestricted:
		if role.AtLeast(RoleAdmin) {
			return allow()
		}
		if role == RoleStaff {
			return deny(AdminPath)
		}
		return deny(DashboardPath)
	}
	return deny(DashboardPath)
}

func deny(target string) Decision {
	return Decision{Redirect: target + "?error=" + insufficientParam}
}
