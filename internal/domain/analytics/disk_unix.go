//go:build unix

package analytics

import "golang.org/x/sys/unix"

// diskFree returns the total and available bytes of the filesystem holding path.
func diskFree(path string) (total, free uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize) //nolint:gosec // block size is never negative
	return uint64(st.Blocks) * bsize, uint64(st.Bavail) * bsize, nil //nolint:unconvert,gosec // field types differ per OS
}
