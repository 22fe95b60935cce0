// Package dnserr collects the sentinel errors shared by the codec, cache,
// client, resolver, and server packages. Callers use errors.Is against these
// rather than type assertions; boundaries wrap them with fmt.Errorf("%w").
package dnserr

import "errors"

var (
	// ErrInvalidInput marks malformed wire data: bad lengths, an
	// overflowing name, or a RDLENGTH that doesn't fit the buffer.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLimitsExceeded marks a name-compression pointer loop or a write
	// past the end of a fixed-size buffer.
	ErrLimitsExceeded = errors.New("limits exceeded")

	// ErrTimedOut marks a client query that received no matching reply
	// within its budget.
	ErrTimedOut = errors.New("timed out")

	// ErrNotFound marks a resolver that could not produce an authoritative
	// answer: no nameserver reachable, or a referral loop.
	ErrNotFound = errors.New("not found")

	// ErrIO marks a socket or file I/O failure.
	ErrIO = errors.New("io error")
)
