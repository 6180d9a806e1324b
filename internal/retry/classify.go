package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// DefaultShouldRetry retries errors that IsTransient classifies as network,
// timeout or server-side failures.
func DefaultShouldRetry(err error, _ int) bool {
	return IsTransient(err)
}

// IsTransient reports whether err looks like a failure that may go away on
// its own: network unreachable, timeouts, truncated responses, or any error
// in the chain that declares itself transient (5xx API errors do).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}

	var te interface{ Transient() bool }
	if errors.As(err, &te) {
		return te.Transient()
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return false
}
