//go:build darwin

package tuner

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Detect reads CPU count and total memory. Available memory is estimated
// as half the total; macOS keeps most of the rest as file cache.
func Detect() (SystemResources, error) {
	r := SystemResources{CPUCores: runtime.NumCPU()}

	memsize, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		r.TotalRAM = defaultTotalRAM
		r.AvailableRAM = defaultTotalRAM / 2
		return r, fmt.Errorf("sysctl hw.memsize: %w", err)
	}
	r.TotalRAM = int64(memsize)
	r.AvailableRAM = r.TotalRAM / 2
	return r, nil
}
