// Package main provides the entry point for the preserve CLI.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		reportError(err)
		os.Exit(exitCode(err))
	}
}
