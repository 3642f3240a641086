package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrInvalidAction = errors.New("invalid action")
	ErrDuplicate     = errors.New("duplicate action")
	ErrQueueFull     = errors.New("action queue full")
)
