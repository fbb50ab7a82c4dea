package sessionnote

import "errors"

var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("access denied")
	ErrNotFound   = errors.New("session note not found")
	ErrDependency = errors.New("upstream dependency failed")
)
