package domain

import "errors"

var (
	ErrNotAuthenticated         = errors.New("not authenticated")
	ErrInvalidSessionTransition = errors.New("invalid session transition")
	ErrSessionNotFound          = errors.New("session not found")
	ErrSecretNotFound           = errors.New("secret not found")
	ErrUnsupportedJobShape      = errors.New("unsupported job list shape")
)
