package store

import "errors"

// Error kinds surfaced to callers. Wrap with fmt.Errorf("...: %w") and test with errors.Is.
var (
	ErrInvalidPath   = errors.New("invalid document path")
	ErrNotFound      = errors.New("document not found")
	ErrMalformedJSON = errors.New("malformed document json")
	ErrWriteFailure  = errors.New("document write failed")
	ErrValidation    = errors.New("validation failed")
)

// ErrSkipWrite is returned by an Update function to leave the document untouched.
var ErrSkipWrite = errors.New("skip write")
