package service

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrInvalidCredentials is returned when email or password do not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated is returned when an operation needs a member token.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the member may not touch the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned for unknown collections and records.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when the email is already registered.
	ErrConflict = errors.New("already exists")
)

// ValidationError describes rejected input field by field.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// add records a field problem, keeping the first message per field.
func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// orNil returns e when it holds at least one problem.
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
