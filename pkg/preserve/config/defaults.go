// Package config provides configuration management for preserve.
package config

// Default configuration values.
const (
	// DefaultStyle is the path style used when none is given.
	DefaultStyle = "relative"

	// DefaultHashAlgorithm is recorded for every file unless configured.
	DefaultHashAlgorithm = "SHA256"

	// DefaultWorkers of zero sizes the worker pools from the machine.
	DefaultWorkers = 0

	// DefaultOutput picks pretty on a terminal and plain otherwise.
	DefaultOutput = "auto"

	// DefaultLogLevel is the file log level.
	DefaultLogLevel = "info"

	// DefaultLogMaxSize is the size at which the log file is rotated.
	DefaultLogMaxSize = "10MB"
)

// DefaultComponentLevels are the per-component log levels written by
// WriteDefault.
var DefaultComponentLevels = map[string]string{
	"operation": "info",
	"restore":   "info",
	"verify":    "info",
	"manifest":  "info",
	"scanner":   "warn",
	"cache":     "warn",
}
