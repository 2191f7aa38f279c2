package domain

import "errors"

// Error taxonomy shared by every layer. Wrap these with fmt.Errorf("...: %w")
// and test with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrDependency = errors.New("dependency failure")
	ErrConflict   = errors.New("concurrent modification")
)
