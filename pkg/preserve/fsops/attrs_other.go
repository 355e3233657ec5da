//go:build !linux && !darwin

package fsops

import (
	"os"
	"time"
)

func accessTime(os.FileInfo) time.Time { return time.Time{} }

func createTime(os.FileInfo) time.Time { return time.Time{} }
