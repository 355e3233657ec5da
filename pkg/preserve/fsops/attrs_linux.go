//go:build linux

package fsops

import (
	"os"
	"syscall"
	"time"
)

func accessTime(info os.FileInfo) time.Time {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(stat.Atim.Unix())
	}
	return time.Time{}
}

// createTime is not exposed by Stat_t on linux.
func createTime(os.FileInfo) time.Time {
	return time.Time{}
}
