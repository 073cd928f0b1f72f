package tracking

import "errors"

// Sentinel errors for the tracking service layer.
var (
	ErrSessionNotFound = errors.New("tracking session not found")
	ErrJobNotFound     = errors.New("parent job not found")
	ErrUnknownContent  = errors.New("content does not belong to the session's job")
	ErrInvalidScore    = errors.New("score must be between 0 and 100")
)
