package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		code := 1
		var exit *exitError
		if errors.As(err, &exit) {
			code = exit.code
		}
		if shouldReportError(err, exit) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(code)
	}
}

// exitError carries a specific process exit code through cobra's error
// return so commands never call os.Exit themselves.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

// shouldReportError suppresses stderr noise for outcomes the run already
// logged: interrupts and per-unit failures carry their story in the run
// summary, not in a trailing error line.
func shouldReportError(err error, exit *exitError) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if exit != nil && exit.err == nil {
		return false
	}
	return true
}
