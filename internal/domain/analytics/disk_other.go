//go:build !unix

package analytics

import "errors"

func diskFree(string) (uint64, uint64, error) {
	return 0, 0, errors.New("disk statistics unavailable on this platform")
}
