// Imd-cfg is a configuration wizard for Vertiv Geist IMD rack PDUs.
//
// It creates the device account, pushes hostname, network and NTP
// settings described by a prompts file, checks and upgrades firmware and
// factory-resets a unit, all through the IMD's local HTTPS API. A run that
// is interrupted or partly fails can be resumed.
//
// Usage:
//
//	imd-cfg [command] [flags]
//
// Running without arguments starts the configuration wizard.
// See 'imd-cfg --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rackops/imdcfg/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := newApp()
	done := make(chan struct{})
	watchInterrupt(ctx, done, a.close)

	err := newRootCmd(a).ExecuteContext(ctx)
	close(done)
	stop()
	a.close()
	logging.Sync()

	code := exitCode(err)
	if err != nil && code != ExitInterrupted {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	exitFunc(code)
}
