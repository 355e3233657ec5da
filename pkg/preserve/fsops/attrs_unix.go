//go:build unix

package fsops

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// owner reads uid and gid from the stat result.
func owner(info os.FileInfo) (uid, gid int, ok bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return int(stat.Uid), int(stat.Gid), true
}

func chown(path string, uid, gid int) error {
	return unix.Lchown(path, uid, gid)
}

// setTimes sets access and modification times with nanosecond precision.
func setTimes(path string, atime, mtime time.Time) error {
	return unix.UtimesNano(path, []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	})
}
