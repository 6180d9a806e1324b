//go:build windows

package main

import (
	"log/slog"
	"os"
	"syscall"
)

func getShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// Windows has no reload signal; the config watcher covers reloads.
func handlePlatformSignal(os.Signal, *slog.Logger, func()) bool {
	return false
}
