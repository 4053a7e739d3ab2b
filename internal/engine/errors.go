package engine

import (
	"errors"
	"fmt"
)

// Errors the engine's operations return, checkable with errors.Is()
var (
	// ErrValidation is returned for malformed macs, zones, or
	// durations. Nothing has been mutated.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned for unknown zones or bindings. Nothing
	// has been mutated.
	ErrNotFound = errors.New("not found")

	// ErrPersistence is returned when a binding store write fails.
	// The remaining steps of the operation were aborted; prior state
	// is intact.
	ErrPersistence = errors.New("persistence failure")

	// ErrCollaborator is returned when a registry, session, or
	// firewall call fails after the binding store already reflects the
	// caller's intent. The local write is not rolled back.
	ErrCollaborator = errors.New("collaborator call failed")
)

// ConflictCode is the machine-readable code carried by ConflictError.
const ConflictCode = "VOUCHER_IN_USE"

// ConflictError reports that a voucher is bound to a different device
// that is still present in the pass-through registry.
type ConflictError struct {
	VoucherHash      string
	BoundMAC         string
	RemainingSeconds int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("voucher already bound to %s (%ds remaining)", e.BoundMAC, e.RemainingSeconds)
}

// Code returns the machine-readable conflict code.
func (e *ConflictError) Code() string {
	return ConflictCode
}
