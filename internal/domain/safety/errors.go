package safety

import "errors"

// Sentinel kinds for rejected permits.
var (
	ErrSuspended        = errors.New("operations suspended")
	ErrTooSoon          = errors.New("minimum delay between actions not reached")
	ErrHourlyLimit      = errors.New("hourly action limit reached")
	ErrDailyLimit       = errors.New("daily action limit reached")
	ErrConcurrencyLimit = errors.New("concurrent action limit reached")
)

// Reason returns a short label for a rejection error, for metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrSuspended):
		return "suspended"
	case errors.Is(err, ErrTooSoon):
		return "too_soon"
	case errors.Is(err, ErrHourlyLimit):
		return "hourly_limit"
	case errors.Is(err, ErrDailyLimit):
		return "daily_limit"
	case errors.Is(err, ErrConcurrencyLimit):
		return "concurrency_limit"
	}
	return "other"
}

// Transient reports whether err clears up on its own within seconds.
func Transient(err error) bool {
	return errors.Is(err, ErrTooSoon) || errors.Is(err, ErrConcurrencyLimit)
}
