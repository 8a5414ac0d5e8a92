package auth

import (
	"errors"
	"fmt"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage"
)

// Error kinds returned across the auth boundary. Wrapped errors keep matching them with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrConflict           = errors.New("conflict")
	ErrExpired            = errors.New("token expired")
	ErrMalformed          = errors.New("malformed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
)

// ConflictError reports a uniqueness violation and the record it collided with.
type ConflictError struct {
	Collection string
	Field      string
	Value      string
	Existing   storage.Document
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q is already used in %s", e.Field, e.Value, e.Collection)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
