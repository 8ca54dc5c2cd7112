package shared

import "errors"

var (
	ErrNotFound      = errors.New("resource not found")
	ErrDuplicate     = errors.New("duplicate entry")
	ErrInactive      = errors.New("resource is inactive")
	ErrRequiredField = errors.New("field is required")
)
