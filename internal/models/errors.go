package models

import "errors"

// Error kinds shared by services and handlers. Services wrap them with a
// caller-facing message, handlers map them to HTTP statuses with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrValidation         = errors.New("validation error")
	ErrCaptchaFailed      = errors.New("captcha failed")
	ErrSetupCompleted     = errors.New("setup already completed")
	ErrConflict           = errors.New("conflict")
)
