// Package tuner sizes the worker pools of copy, verify and restore runs
// from the detected CPU count and memory.
package tuner

// Worker limits.
const (
	maxWorkers = 64

	// maxCopyWorkers caps parallel writes into a single destination; more
	// only makes the disk seek.
	maxCopyWorkers = 16

	minWorkers = 2
)

// Copy buffer limits.
const (
	minBufferSize = 32 * 1024
	maxBufferSize = 4 * 1024 * 1024

	// bufferMemoryFraction of available RAM is shared by all copy buffers.
	bufferMemoryFraction = 0.01
)

// SystemResources contains detected system resources.
type SystemResources struct {
	CPUCores     int
	TotalRAM     int64
	AvailableRAM int64
}

// Config is the tuned pool configuration.
type Config struct {
	// CopyWorkers copy and hash files in parallel.
	CopyWorkers int

	// VerifyWorkers only read, so they can run wider than copy workers.
	VerifyWorkers int

	// BufferSize is the per-worker copy buffer in bytes.
	BufferSize int
}

// Calculate derives a Config from resources.
func Calculate(r SystemResources) Config {
	cores := max(r.CPUCores, 1)

	copyWorkers := min(max(cores*2, minWorkers), maxCopyWorkers)
	verifyWorkers := min(max(cores, minWorkers), maxWorkers)

	return Config{
		CopyWorkers:   copyWorkers,
		VerifyWorkers: verifyWorkers,
		BufferSize:    bufferSize(r.AvailableRAM, copyWorkers),
	}
}

// CalculateWithOverride applies a user supplied worker count to both pools,
// still capped at the maximum. Zero or less keeps the calculated values.
func CalculateWithOverride(r SystemResources, workers int) Config {
	c := Calculate(r)
	if workers > 0 {
		w := min(workers, maxWorkers)
		c.CopyWorkers = w
		c.VerifyWorkers = w
	}
	return c
}

// Auto detects resources and calculates. Detection failures fall back to
// the partial result Detect returned.
func Auto(workers int) Config {
	r, _ := Detect()
	return CalculateWithOverride(r, workers)
}

// bufferSize splits a share of available memory across workers, rounded
// down to a power of two between minBufferSize and maxBufferSize.
func bufferSize(availableRAM int64, workers int) int {
	if workers <= 0 {
		workers = 1
	}
	per := int(float64(availableRAM) * bufferMemoryFraction / float64(workers))

	// Round down to a power of two.
	size := minBufferSize
	for size*2 <= per && size*2 <= maxBufferSize {
		size *= 2
	}
	return size
}
