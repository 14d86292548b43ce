package domain

import "errors"

// Error kinds for the solving pipeline. Handlers and the websocket session
// map these to client-facing failures; everything else stays in the logs.
var (
	ErrValidation  = errors.New("validation failed")
	ErrAuth        = errors.New("unauthorized")
	ErrExtraction  = errors.New("extraction failed")
	ErrGeneration  = errors.New("generation failed")
	ErrPersistence = errors.New("persistence failed")
	ErrTransport   = errors.New("transport failed")
	ErrNotFound    = errors.New("not found")
	ErrDuplicate   = errors.New("already exists")
)
