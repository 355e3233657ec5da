package fsops

import (
	"fmt"
	"os"

	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

// Capture records the metadata of info.
func Capture(info os.FileInfo) *types.Attributes {
	attrs := &types.Attributes{
		Mode:    info.Mode().Perm(),
		ModTime: info.ModTime(),
	}
	attrs.AccessTime = accessTime(info)
	attrs.CreateTime = createTime(info)
	if uid, gid, ok := owner(info); ok {
		attrs.UID, attrs.GID = &uid, &gid
	}
	return attrs
}

// Apply sets mode and timestamps on path. Ownership is only changed when
// withOwner is set and attrs carries ids.
func Apply(path string, attrs *types.Attributes, withOwner bool) error {
	if attrs == nil {
		return nil
	}
	if attrs.Mode != 0 {
		if err := os.Chmod(path, attrs.Mode); err != nil {
			return fmt.Errorf("chmod: %w", err)
		}
	}
	if withOwner && attrs.UID != nil && attrs.GID != nil {
		if err := chown(path, *attrs.UID, *attrs.GID); err != nil {
			return fmt.Errorf("chown: %w", err)
		}
	}
	if !attrs.ModTime.IsZero() {
		atime := attrs.AccessTime
		if atime.IsZero() {
			atime = attrs.ModTime
		}
		if err := setTimes(path, atime, attrs.ModTime); err != nil {
			return fmt.Errorf("set times: %w", err)
		}
	}
	return nil
}
