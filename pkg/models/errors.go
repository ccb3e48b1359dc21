package models

import "fmt"

// ValidationError reports a malformed or missing intent field. It is raised
// before any chain call and always names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for a named field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ResolutionError reports that a token or order could not be resolved
// through any tier. It is raised before the relevant chain call.
type ResolutionError struct {
	Kind string // "token" or "order"
	Ref  string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Ref)
}

// NewResolutionError creates a resolution error for a reference.
func NewResolutionError(kind, ref string) *ResolutionError {
	return &ResolutionError{Kind: kind, Ref: ref}
}
