//go:build !windows

package main

import (
	"log/slog"
	"os"
	"syscall"
)

// getShutdownSignals returns the signals to listen for on Unix systems
func getShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}
}

// handlePlatformSignal reloads the config on SIGHUP. It returns true when
// the signal was handled and the process should keep running.
func handlePlatformSignal(sig os.Signal, logger *slog.Logger, reload func()) bool {
	if sig == syscall.SIGHUP {
		logger.Info("reload signal received")
		reload()
		return true
	}
	return false
}
