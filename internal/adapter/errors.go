package adapter

import (
	"errors"
	"fmt"
	"net"
)

var (
	// ErrAuthentication is returned when the remote rejects the configured
	// credentials. Not transient: retrying without reconfiguration is useless.
	ErrAuthentication = errors.New("remote authentication failed")

	// ErrNotFound is returned by Download when the requested object does
	// not exist on the remote.
	ErrNotFound = errors.New("remote object not found")

	// ErrSizeLimit is returned when an object exceeds the configured or
	// provider-imposed size limit.
	ErrSizeLimit = errors.New("object exceeds size limit")

	// ErrRemoteConflict is returned by a conditional Upload when the remote
	// object changed since it was last observed.
	ErrRemoteConflict = errors.New("remote object changed concurrently")

	// ErrUnknownProvider is returned by New for a provider name that is
	// neither built in nor registered.
	ErrUnknownProvider = errors.New("unknown sync provider")
)

// TransientError wraps a failure that is worth retrying on a later cycle:
// network timeouts, connection resets, 5xx responses.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient remote error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err represents a temporary remote failure.
// Transport-level errors are treated as transient as well.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
