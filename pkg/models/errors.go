package models

import "errors"

// Caller/configuration errors surfaced directly by the routing API.
// These are not retried; they indicate a bad request, not a runtime fault.
var (
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrUnknownModel    = errors.New("unknown model")
)
