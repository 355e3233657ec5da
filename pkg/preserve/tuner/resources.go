package tuner

// defaultTotalRAM is used when memory cannot be detected.
const defaultTotalRAM = 8 * 1024 * 1024 * 1024
