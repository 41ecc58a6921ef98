//go:build !windows
// +build !windows

package service

import "syscall"

// diskFree returns the bytes available to unprivileged users at path
func diskFree(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil
}
