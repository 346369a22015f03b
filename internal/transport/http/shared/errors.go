package shared

import (
	"errors"
	"net/http"
	"strings"

	"hrportal/internal/domain/auth"
	"hrportal/internal/domain/identity"
)

type Failure struct {
	Status  int
	Code    string
	Message string
}

// Classify maps a session operation error to the status, code and message
// shown to the caller. Authentication failures never echo the underlying
// cause.
func Classify(err error) Failure {
	switch {
	case errors.Is(err, auth.ErrValidation):
		return Failure{Status: http.StatusBadRequest, Code: "validation_error", Message: validationMessage(err)}
	case errors.Is(err, identity.ErrMFARequired):
		return Failure{Status: http.StatusUnauthorized, Code: "mfa_required", Message: "a one-time code is required"}
	case errors.Is(err, identity.ErrMFAInvalid):
		return Failure{Status: http.StatusUnauthorized, Code: "mfa_invalid", Message: "invalid one-time code"}
	case errors.Is(err, auth.ErrAuthentication):
		return Failure{Status: http.StatusUnauthorized, Code: "invalid_credentials", Message: "invalid credentials"}
	case errors.Is(err, auth.ErrBusy):
		return Failure{Status: http.StatusConflict, Code: "busy", Message: "another sign-in is already in progress"}
	default:
		return Failure{Status: http.StatusInternalServerError, Code: "internal_error", Message: "something went wrong, please try again"}
	}
}

func validationMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), auth.ErrValidation.Error()+": ")
	if msg == "" || msg == auth.ErrValidation.Error() {
		return "payload validation failed"
	}
	return msg
}
