//go:build linux

package tuner

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Detect reads CPU count and memory from sysinfo(2).
func Detect() (SystemResources, error) {
	r := SystemResources{
		CPUCores:     runtime.NumCPU(),
		TotalRAM:     defaultTotalRAM,
		AvailableRAM: defaultTotalRAM / 2,
	}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return r, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	r.TotalRAM = int64(uint64(info.Totalram) * unit)
	r.AvailableRAM = int64((uint64(info.Freeram) + uint64(info.Bufferram)) * unit)
	if r.AvailableRAM > r.TotalRAM {
		r.AvailableRAM = r.TotalRAM
	}
	return r, nil
}
