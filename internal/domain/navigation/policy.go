package navigation

import "hrportal/internal/domain/auth"

// CanAccess is the one authorization policy for routes. The menu builder and
// the route resolver both go through it. An empty role means anonymous.
func CanAccess(role auth.Role, id RouteID) bool {
	route, ok := Lookup(id)
	if !ok {
		return false
	}
	return allows(route.Audience, role)
}

func allows(audience Audience, role auth.Role) bool {
	switch audience {
	case AudiencePublic:
		return true
	case AudienceAuthenticated:
		return role.Valid()
	case AudienceEmployee:
		return role.Valid() && !role.Elevated()
	case AudienceElevated:
		return role.Elevated()
	default:
		return false
	}
}
