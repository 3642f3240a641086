package logger

import "errors"

// Sentinel kinds for log file operations.
var (
	ErrLogNotFound   = errors.New("log file not found")
	ErrUnknownFormat = errors.New("unknown export format")
	ErrUnknownKind   = errors.New("unknown log kind")
)
