package main

import (
	"errors"
	"fmt"
)

// Process exit codes.
const (
	exitOK          = 0
	exitPartial     = 1
	exitOperational = 2
)

// exitError carries an exit code out of a command. A nil err means the
// command already reported everything the user needs to see.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// partialFailure marks a run in which some files failed.
func partialFailure(format string, args ...interface{}) error {
	return &exitError{code: exitPartial, err: fmt.Errorf(format, args...)}
}

// exitCode maps a command error to the process exit status. Anything that
// is not a partial failure is operational.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitOperational
}

// reportError prints err unless the command marked it as already reported.
func reportError(err error) {
	var ee *exitError
	if errors.As(err, &ee) && ee.err == nil {
		return
	}
	printError("%v", err)
}
