package broker

import (
	"errors"
	"fmt"
)

// ErrPrecondition is the single error kind for fatal simulation usage,
// configuration and balance errors. Every such error wraps it and carries a
// human-readable reason. None of them are retried.
var ErrPrecondition = errors.New("simulation precondition violated")

func preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}
