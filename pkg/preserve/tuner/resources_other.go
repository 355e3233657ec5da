//go:build !linux && !darwin

package tuner

import "runtime"

// Detect reports the CPU count and a default memory size.
func Detect() (SystemResources, error) {
	return SystemResources{
		CPUCores:     runtime.NumCPU(),
		TotalRAM:     defaultTotalRAM,
		AvailableRAM: defaultTotalRAM / 2,
	}, nil
}
