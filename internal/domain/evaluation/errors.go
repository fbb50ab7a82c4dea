package evaluation

import "errors"

var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("access denied")
	ErrNotFound   = errors.New("evaluation not found")
)
