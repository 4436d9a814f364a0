package gatt

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrUnreachable is returned, or delivered through a completion
	// callback, when an operation targets an entity whose parent chain
	// is not attached to a live connection. Operations on unreachable
	// entities fail fast; they are never queued.
	ErrUnreachable = errors.New("gatt: entity not reachable")

	// ErrUnhandled indicates that no observer was registered for a
	// callback that carries a mandatory result. It signals a wiring
	// bug in the integrating application, not a runtime condition.
	ErrUnhandled = errors.New("gatt: no handler registered")

	// ErrScanTimeout is delivered to the ScanStopped observer when a
	// scan is stopped by its timeout rather than by StopScanning.
	ErrScanTimeout = errors.New("gatt: scan timeout")

	// ErrNoValue is returned by a ValueTransform decoding an absent or
	// empty buffer. It is distinct from a DecodeError: the entity has
	// no value yet, as opposed to a value that failed to parse.
	ErrNoValue = errors.New("gatt: no value")

	// ErrPoweredOff is the disconnect cause synthesized for connected
	// peripherals when the host radio powers off.
	ErrPoweredOff = errors.New("gatt: radio powered off")
)

// A DecodeError reports that an entity's raw value could not be parsed
// by its value transform. The entity's cached raw bytes are left
// untouched when decoding fails.
type DecodeError struct {
	UUID   UUID
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("gatt: decode %s: %s", e.UUID, e.Reason)
}

// An EncodeError reports that a domain value could not be serialized by
// a value transform.
type EncodeError struct {
	UUID   UUID
	Reason string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("gatt: encode %s: %s", e.UUID, e.Reason)
}

// wrapBackendErr wraps an error reported by the radio backend. The core
// never inspects backend errors; they pass through to observers opaquely.
func wrapBackendErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, "gatt: backend "+op)
}
