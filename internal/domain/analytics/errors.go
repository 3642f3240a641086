package analytics

import "errors"

// Sentinel kinds for analytics errors.
var (
	ErrUnknownReport = errors.New("unknown report type")
	ErrUnknownFormat = errors.New("unknown export format")
)
