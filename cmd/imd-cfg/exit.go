package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1   // aborted run, unreachable IMD or missing configuration
	ExitInterrupted = 130 // SIGINT or SIGTERM
)

// exitFunc is replaced in tests.
var exitFunc = os.Exit

// exitCode maps the result of a command to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitFailure
	}
}

// watchInterrupt exits with ExitInterrupted as soon as ctx is cancelled by
// a signal, even while a prompt is blocked reading stdin. cleanup runs
// first. Closing done stops the watch.
func watchInterrupt(ctx context.Context, done <-chan struct{}, cleanup func()) {
	go func() {
		select {
		case <-ctx.Done():
			if cleanup != nil {
				cleanup()
			}
			fmt.Fprintln(os.Stderr, "\nInterrupted.")
			exitFunc(ExitInterrupted)
		case <-done:
		}
	}()
}
