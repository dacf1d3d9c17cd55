package driver

import (
	"errors"
	"fmt"
)

// ErrTimeout marks a driver operation that exceeded its wait budget.
// Drivers wrap it so the engine can distinguish timeouts from hard errors.
var ErrTimeout = errors.New("driver timeout")

// ErrSessionClosed is returned by operations issued after Close.
var ErrSessionClosed = errors.New("driver session closed")

// ErrNoPage is returned by page interactions on drivers that carry no
// browser attachment, such as the HTTP-only driver.
var ErrNoPage = errors.New("no page attached to this driver")

// Timeoutf builds a timeout error with context.
func Timeoutf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrTimeout)...)
}

// IsTimeout reports whether err stems from a driver timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
