package fsops

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// trashTimeout bounds a single trash helper invocation.
const trashTimeout = 30 * time.Second

// RemoveSource deletes a moved file's original. With useTrash it asks the
// desktop trash first (Finder on macOS, gio or trash-put on Linux) and
// unlinks only when no trash is available.
func RemoveSource(ctx context.Context, path string, useTrash bool) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("remove source %q: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("remove source %q: is a directory", path)
	}

	if useTrash && trash(ctx, path) {
		return nil
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove source %q: %w", path, err)
	}
	return nil
}

// trash reports whether a trash helper accepted path.
func trash(ctx context.Context, path string) bool {
	ctx, cancel := context.WithTimeout(ctx, trashTimeout)
	defer cancel()

	var cmds [][]string
	switch runtime.GOOS {
	case "darwin":
		cmds = [][]string{{"osascript", "-e", fmt.Sprintf(`tell application "Finder" to delete POSIX file %q`, path)}}
	case "linux":
		cmds = [][]string{{"gio", "trash", path}, {"trash-put", path}}
	}

	for _, args := range cmds {
		bin, err := exec.LookPath(args[0])
		if err != nil {
			continue
		}
		if err := exec.CommandContext(ctx, bin, args[1:]...).Run(); err == nil {
			if _, statErr := os.Lstat(path); os.IsNotExist(statErr) {
				return true
			}
		}
	}
	return false
}
