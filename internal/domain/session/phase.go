package session

type Phase string

const (
	PhaseBooting               Phase = "booting"
	PhaseUnauthenticated       Phase = "unauthenticated"
	PhaseAuthenticatedEmployee Phase = "authenticated_employee"
	PhaseAuthenticatedElevated Phase = "authenticated_elevated"
)

func phaseOf(booted bool, current *Session) Phase {
	switch {
	case !booted:
		return PhaseBooting
	case current == nil:
		return PhaseUnauthenticated
	case current.Role.Elevated():
		return PhaseAuthenticatedElevated
	default:
		return PhaseAuthenticatedEmployee
	}
}

// View is the read-only projection of a Provider handed to consumers.
type View interface {
	Current() (Session, bool)
	Authenticated() bool
	Loading() bool
	Phase() Phase
}
