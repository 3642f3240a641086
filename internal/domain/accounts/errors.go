package accounts

import "errors"

// Sentinel kinds for account management errors.
var (
	ErrLimitReached = errors.New("account limit reached")
	ErrInvalidInput = errors.New("invalid input")
)
