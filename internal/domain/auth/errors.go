package auth

import "errors"

var (
	ErrAuthentication = errors.New("authentication failed")
	ErrValidation     = errors.New("validation failed")
	ErrBusy           = errors.New("operation already in progress")
	ErrAccountExists  = errors.New("account already exists")
	ErrNotFound       = errors.New("not found")
)
